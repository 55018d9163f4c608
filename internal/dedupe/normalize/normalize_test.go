package normalize

import "testing"

func TestText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"already normal", "the earth orbits the sun", "the earth orbits the sun"},
		{"case variant", "The EARTH Orbits The SUN", "the earth orbits the sun"},
		{"whitespace variant", "  the   earth\torbits\n the sun  ", "the earth orbits the sun"},
		{"punctuation variant", "The Earth, orbits the Sun!!!", "the earth orbits the sun"},
		{"accented letters kept", "café culture", "café culture"},
		{"underscore is a word char", "foo_bar baz", "foo_bar baz"},
		{"empty", "", ""},
		{"only punctuation", "!!!???", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Text(tt.in); got != tt.want {
				t.Errorf("Text(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestHash(t *testing.T) {
	base := "The Earth orbits the Sun."
	variants := []string{
		"the earth orbits the sun",
		"  THE EARTH ORBITS THE SUN  ",
		"The Earth orbits the Sun!!!",
		"the\n\tearth   orbits the sun",
	}

	want := Hash(base)

	for _, v := range variants {
		if got := Hash(v); got != want {
			t.Errorf("Hash(%q) = %q, want %q (same as base %q)", v, got, want, base)
		}
	}

	if len(want) != 64 {
		t.Errorf("Hash() length = %d, want 64 hex chars", len(want))
	}
}

func TestHashIdempotent(t *testing.T) {
	s := "Nuclear energy is safe."
	if Hash(s) != Hash(Text(s)) {
		t.Error("Hash(s) != Hash(Text(s)), hash is not idempotent over normalization")
	}
}

func TestHashDistinctForDifferentClaims(t *testing.T) {
	a := Hash("The Earth orbits the Sun.")
	b := Hash("The Moon orbits the Earth.")

	if a == b {
		t.Error("distinct claims hashed to the same digest")
	}
}
