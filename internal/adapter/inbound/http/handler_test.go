package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Sentinel-Gate/Contractgate/internal/domain/contract"
	"github.com/Sentinel-Gate/Contractgate/internal/domain/usage"
	"github.com/Sentinel-Gate/Contractgate/internal/service"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockVerifier returns a fixed result and records the request.
type mockVerifier struct {
	result service.AccessResult
	err    error
	got    usage.AccessRequest
}

func (m *mockVerifier) Verify(_ context.Context, req usage.AccessRequest) (service.AccessResult, error) {
	m.got = req
	return m.result, m.err
}

const validBody = `{"agreement_id":"agr-1","artifact_id":"art-a","issuer_connector":"https://consumer.example"}`

func TestAccessHandler(t *testing.T) {
	t.Parallel()

	denial := usage.Deny(usage.PatternNTimesUsage, usage.ReasonAccessNumberReached, "limit 1 reached")
	tests := []struct {
		name        string
		method      string
		body        string
		verifier    *mockVerifier
		wantCode    int
		wantAllowed bool
		wantReason  string
	}{
		{
			name:        "allowed",
			method:      http.MethodPost,
			body:        validBody,
			verifier:    &mockVerifier{result: service.AccessResult{Allowed: true, Decisions: []usage.Decision{usage.Allow(usage.PatternProvideAccess)}}},
			wantCode:    http.StatusOK,
			wantAllowed: true,
		},
		{
			name:       "denied",
			method:     http.MethodPost,
			body:       validBody,
			verifier:   &mockVerifier{result: service.AccessResult{Denial: denial, Decisions: []usage.Decision{denial}}},
			wantCode:   http.StatusOK,
			wantReason: "AccessNumberReached",
		},
		{
			name:     "unknown agreement",
			method:   http.MethodPost,
			body:     validBody,
			verifier: &mockVerifier{err: fmt.Errorf("agreement agr-1: %w", contract.ErrResourceNotFound)},
			wantCode: http.StatusNotFound,
		},
		{
			name:     "foreign issuer",
			method:   http.MethodPost,
			body:     validBody,
			verifier: &mockVerifier{err: fmt.Errorf("issuer: %w", contract.ErrContractMismatch)},
			wantCode: http.StatusForbidden,
		},
		{
			name:     "storage failure",
			method:   http.MethodPost,
			body:     validBody,
			verifier: &mockVerifier{err: errors.New("disk I/O error")},
			wantCode: http.StatusInternalServerError,
		},
		{
			name:     "missing fields",
			method:   http.MethodPost,
			body:     `{"agreement_id":"agr-1"}`,
			verifier: &mockVerifier{},
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "unknown field",
			method:   http.MethodPost,
			body:     `{"agreement_id":"agr-1","artifact_id":"a","issuer_connector":"c","extra":1}`,
			verifier: &mockVerifier{},
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "wrong method",
			method:   http.MethodGet,
			verifier: &mockVerifier{},
			wantCode: http.StatusMethodNotAllowed,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rec := httptest.NewRecorder()
			req := httptest.NewRequest(tt.method, "/v1/access", strings.NewReader(tt.body))
			AccessHandler(tt.verifier).ServeHTTP(rec, req)

			if rec.Code != tt.wantCode {
				t.Fatalf("code = %d, want %d (%s)", rec.Code, tt.wantCode, rec.Body.String())
			}
			if tt.wantCode != http.StatusOK {
				return
			}
			var resp AccessResponse
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Allowed != tt.wantAllowed || resp.Reason != tt.wantReason {
				t.Errorf("response = %+v", resp)
			}
			if len(resp.Decisions) != 1 {
				t.Errorf("decisions = %+v", resp.Decisions)
			}
			if tt.verifier.got.IssuerConnector != "https://consumer.example" || tt.verifier.got.ArtifactID != "art-a" {
				t.Errorf("verifier got %+v", tt.verifier.got)
			}
		})
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	t.Parallel()

	var seen string
	handler := RequestIDMiddleware(discardLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = r.Context().Value(RequestIDKey).(string)
		if LoggerFromContext(r.Context()) == slog.Default() {
			t.Error("request logger not stored in context")
		}
	}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/access", nil)
	req.Header.Set("X-Request-ID", "req-42")
	handler.ServeHTTP(rec, req)
	if seen != "req-42" || rec.Header().Get("X-Request-ID") != "req-42" {
		t.Errorf("request id = %q, header = %q", seen, rec.Header().Get("X-Request-ID"))
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/access", nil))
	if seen == "" || seen == "req-42" {
		t.Errorf("generated request id = %q", seen)
	}
}
