package classify

import "testing"

func TestNewThresholdsSwapsReversedInputs(t *testing.T) {
	th := NewThresholds(0.5, 0.9)
	if th.Duplicate != 0.9 || th.NearDuplicate != 0.5 {
		t.Errorf("NewThresholds(0.5, 0.9) = %+v, want dup=0.9 near=0.5", th)
	}
}

func TestNewThresholdsKeepsOrderedInputs(t *testing.T) {
	th := NewThresholds(0.95, 0.85)
	if th.Duplicate != 0.95 || th.NearDuplicate != 0.85 {
		t.Errorf("NewThresholds(0.95, 0.85) = %+v, want unchanged", th)
	}
}

func TestClassify(t *testing.T) {
	th := DefaultThresholds()

	tests := []struct {
		name   string
		maxSim float64
		want   Band
	}{
		{"at dup threshold", th.Duplicate, Duplicate},
		{"above dup threshold", 0.99, Duplicate},
		{"at near threshold", th.NearDuplicate, NearDuplicate},
		{"between near and dup", 0.90, NearDuplicate},
		{"just below near threshold", th.NearDuplicate - 0.001, New},
		{"zero similarity", 0, New},
		{"no neighbors", 0, New},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.maxSim, th); got != tt.want {
				t.Errorf("Classify(%v) = %v, want %v", tt.maxSim, got, tt.want)
			}
		})
	}
}
