package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/Sentinel-Gate/Contractgate/internal/domain/contract"
	"github.com/Sentinel-Gate/Contractgate/internal/domain/usage"
	"github.com/Sentinel-Gate/Contractgate/internal/service"
)

// maxAccessBody caps the access request body.
const maxAccessBody = 64 << 10

// Verifier decides access attempts. service.AccessVerifier implements it.
type Verifier interface {
	Verify(ctx context.Context, req usage.AccessRequest) (service.AccessResult, error)
}

// AccessRequest is the body of POST /v1/access.
type AccessRequest struct {
	AgreementID     string `json:"agreement_id"`
	ArtifactID      string `json:"artifact_id"`
	IssuerConnector string `json:"issuer_connector"`
}

// DecisionView is one rule decision in an access response.
type DecisionView struct {
	Pattern string `json:"pattern,omitempty"`
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
	Detail  string `json:"detail,omitempty"`
}

// AccessResponse is the verdict returned by POST /v1/access.
type AccessResponse struct {
	Allowed   bool           `json:"allowed"`
	Reason    string         `json:"reason,omitempty"`
	Detail    string         `json:"detail,omitempty"`
	Guard     string         `json:"guard,omitempty"`
	Decisions []DecisionView `json:"decisions,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// AccessHandler serves POST /v1/access.
func AccessHandler(v Verifier) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger := LoggerFromContext(r.Context())

		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
			return
		}

		var body AccessRequest
		dec := json.NewDecoder(io.LimitReader(r.Body, maxAccessBody))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
			return
		}
		if body.AgreementID == "" || body.ArtifactID == "" || body.IssuerConnector == "" {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "agreement_id, artifact_id and issuer_connector are required"})
			return
		}

		result, err := v.Verify(r.Context(), usage.AccessRequest{
			AgreementID:     body.AgreementID,
			ArtifactID:      body.ArtifactID,
			IssuerConnector: body.IssuerConnector,
		})
		switch {
		case err == nil:
		case errors.Is(err, contract.ErrResourceNotFound):
			writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
			return
		case service.IsAccessDenied(err):
			logger.Info("access refused", "agreement_id", body.AgreementID, "artifact_id", body.ArtifactID, "error", err)
			writeJSON(w, http.StatusForbidden, errorResponse{Error: err.Error()})
			return
		default:
			logger.Error("access verification failed", "agreement_id", body.AgreementID, "error", err)
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
			return
		}

		resp := AccessResponse{
			Allowed: result.Allowed,
			Guard:   result.Guard,
		}
		if !result.Allowed {
			resp.Reason = string(result.Denial.Reason)
			resp.Detail = result.Denial.Detail
		}
		for _, d := range result.Decisions {
			resp.Decisions = append(resp.Decisions, DecisionView{
				Pattern: string(d.Pattern),
				Allowed: d.Allowed,
				Reason:  string(d.Reason),
				Detail:  d.Detail,
			})
		}
		logger.Debug("access decided", "agreement_id", body.AgreementID, "artifact_id", body.ArtifactID, "allowed", resp.Allowed, "reason", resp.Reason)
		writeJSON(w, http.StatusOK, resp)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
