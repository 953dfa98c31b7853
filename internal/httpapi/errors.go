package httpapi

import (
	"encoding/json"
	"net/http"

	"peerprep/interview/internal/apperrors"
)

// errorBody is the wire shape of every non-2xx response: clients match on
// Kind, never on Message text (spec.md §7).
type errorBody struct {
	Kind    apperrors.Kind `json:"kind"`
	Message string         `json:"message"`
	Details any            `json:"details,omitempty"`
}

// statusFor is the single mapping function from apperrors.Kind to HTTP
// status the gateway boundary uses, per SPEC_FULL.md §7.
func statusFor(kind apperrors.Kind) int {
	switch kind {
	case apperrors.Unauthenticated, apperrors.TokenMissing, apperrors.TokenInvalid,
		apperrors.TokenExpired, apperrors.TokenWrongAudience, apperrors.TokenWrongSession,
		apperrors.TokenAlreadyUsed:
		return http.StatusUnauthorized
	case apperrors.InvalidState, apperrors.ChainBroken, apperrors.ValidationFailed:
		return http.StatusConflict
	case apperrors.NotFound:
		return http.StatusNotFound
	case apperrors.AlreadyExists, apperrors.AlreadyInFlight:
		return http.StatusConflict
	case apperrors.RateLimited:
		return http.StatusTooManyRequests
	case apperrors.ProviderUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	appErr, ok := apperrors.As(err)
	if !ok {
		appErr = apperrors.New(apperrors.Internal, "internal error")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusFor(appErr.Kind))
	_ = json.NewEncoder(w).Encode(errorBody{
		Kind:    appErr.Kind,
		Message: appErr.Message,
		Details: appErr.Details,
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
