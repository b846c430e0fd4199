package api

import (
	"encoding/json"
	"net/http"

	"github.com/semmidev/backuppilot/internal/domain"
)

// StatusFor maps an error kind to the HTTP status returned to clients.
func StatusFor(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindMisconfigured, domain.KindUnsupportedKind:
		return http.StatusBadRequest
	case domain.KindAuthenticationFailed:
		return http.StatusUnauthorized
	case domain.KindToolUnavailable:
		return http.StatusServiceUnavailable
	case domain.KindHostUnreachable:
		return http.StatusBadGateway
	case domain.KindPathNotWritable, domain.KindDumpFailed, domain.KindStorageFailed:
		return http.StatusBadGateway
	case domain.KindMetadataStoreUnwritable:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

type errorBody struct {
	Error       string `json:"error"`
	Kind        string `json:"kind"`
	Remediation string `json:"remediation,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError renders err as {"error","kind","remediation"}.
func writeError(w http.ResponseWriter, err error) {
	kind := domain.KindOf(err)
	writeJSON(w, StatusFor(kind), errorBody{
		Error:       err.Error(),
		Kind:        string(kind),
		Remediation: domain.RemediationOf(err),
	})
}

func badRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: message, Kind: string(domain.KindMisconfigured)})
}
