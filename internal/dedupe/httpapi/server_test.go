package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/factengine/claimdedupe/internal/dedupe/classify"
	"github.com/factengine/claimdedupe/internal/dedupe/coordinator"
)

type fakeCoordinator struct {
	lastText string
	lastK    int
	resp     coordinator.Response
	err      error
}

func (f *fakeCoordinator) CheckDuplicate(_ context.Context, text string, k int) (coordinator.Response, error) {
	f.lastText = text
	f.lastK = k

	return f.resp, f.err
}

func (f *fakeCoordinator) CheckDuplicateBatch(_ context.Context, texts []string, k int) ([]coordinator.Response, error) {
	if f.err != nil {
		return nil, f.err
	}

	out := make([]coordinator.Response, len(texts))
	for i := range texts {
		out[i] = f.resp
	}

	return out, nil
}

func newTestServer(fc *fakeCoordinator) *Server {
	logger := zerolog.Nop()
	return New(fc, &logger, Config{Addr: ":0"})
}

func TestHandleHealth(t *testing.T) {
	s := newTestServer(&fakeCoordinator{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true}`, rec.Body.String())
}

func TestHandleCheckDuplicate(t *testing.T) {
	fc := &fakeCoordinator{resp: coordinator.Response{
		Hash:           "abc",
		ClaimID:        1,
		Created:        true,
		Classification: classify.New,
	}}
	s := newTestServer(fc)

	body, _ := json.Marshal(checkDuplicateRequest{ClaimText: "the sky is blue", TopK: 3})
	req := httptest.NewRequest(http.MethodPost, "/claims/check-duplicate", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "the sky is blue", fc.lastText)
	assert.Equal(t, 3, fc.lastK)

	var got coordinator.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "abc", got.Hash)
}

func TestHandleCheckDuplicateDefaultsTopK(t *testing.T) {
	fc := &fakeCoordinator{}
	s := newTestServer(fc)

	body, _ := json.Marshal(checkDuplicateRequest{ClaimText: "x"})
	req := httptest.NewRequest(http.MethodPost, "/claims/check-duplicate", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, defaultTopK, fc.lastK)
}

func TestHandleCheckDuplicateEmptyTextRejected(t *testing.T) {
	s := newTestServer(&fakeCoordinator{})

	body, _ := json.Marshal(checkDuplicateRequest{ClaimText: ""})
	req := httptest.NewRequest(http.MethodPost, "/claims/check-duplicate", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleCheckDuplicateTopKOutOfRangeRejected(t *testing.T) {
	s := newTestServer(&fakeCoordinator{})

	body, _ := json.Marshal(checkDuplicateRequest{ClaimText: "x", TopK: 51})
	req := httptest.NewRequest(http.MethodPost, "/claims/check-duplicate", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleCheckDuplicateBatch(t *testing.T) {
	fc := &fakeCoordinator{resp: coordinator.Response{Hash: "h"}}
	s := newTestServer(fc)

	body, _ := json.Marshal(checkDuplicateBatchRequest{Claims: []string{"a", "b"}, TopK: 5})
	req := httptest.NewRequest(http.MethodPost, "/claims/check-duplicate-batch", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var got checkDuplicateBatchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Len(t, got.Results, 2)
}

func TestHandleCheckDuplicateBatchSizeRejected(t *testing.T) {
	s := newTestServer(&fakeCoordinator{})

	body, _ := json.Marshal(checkDuplicateBatchRequest{Claims: []string{}, TopK: 5})
	req := httptest.NewRequest(http.MethodPost, "/claims/check-duplicate-batch", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleCheckDuplicateUpstreamErrorIs500(t *testing.T) {
	fc := &fakeCoordinator{err: assertErr("boom")}
	s := newTestServer(fc)

	body, _ := json.Marshal(checkDuplicateRequest{ClaimText: "x"})
	req := httptest.NewRequest(http.MethodPost, "/claims/check-duplicate", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
