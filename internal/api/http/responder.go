package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"library-ledger-backend/internal/domain"
	"library-ledger-backend/internal/logger"
	"library-ledger-backend/internal/service"
)

var (
	errBadRequestBody = errors.New("invalid request body")
	errMissingToken   = errors.New("authentication required")
	errInvalidToken   = errors.New("invalid or expired token")
	errAdminOnly      = errors.New("admin role required")
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func writeJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	if status == http.StatusNoContent || payload == nil {
		w.WriteHeader(status)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.ErrorContext(ctx, "Failed to encode response", "error", err)
	}
}

func writeError(ctx context.Context, w http.ResponseWriter, status int, err error) {
	writeJSON(ctx, w, status, errorResponse{Error: err.Error(), Code: errorCode(err)})
}

// handleServiceError maps a coordinator or query error onto a status code.
// Unknown errors are logged and reported as 500 without detail.
func handleServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.ErrorContext(ctx, "Request failed", "error", err)
		writeJSON(ctx, w, status, errorResponse{Error: "internal server error"})
		return
	}
	writeError(ctx, w, status, err)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrUnavailable),
		errors.Is(err, domain.ErrOverlap),
		errors.Is(err, domain.ErrAlreadyClosed),
		errors.Is(err, domain.ErrNotActive),
		errors.Is(err, domain.ErrDuplicate),
		errors.Is(err, service.ErrEmailTaken):
		return http.StatusConflict
	case errors.Is(err, domain.ErrNotEligible):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrInvalidWindow),
		errors.Is(err, service.ErrInvalidSignup),
		errors.Is(err, errBadRequestBody):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// errorCode gives clients a stable name for the ledger rejections.
func errorCode(err error) string {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, domain.ErrUnavailable):
		return "UNAVAILABLE"
	case errors.Is(err, domain.ErrOverlap):
		return "OVERLAP"
	case errors.Is(err, domain.ErrInvalidWindow):
		return "INVALID_WINDOW"
	case errors.Is(err, domain.ErrAlreadyClosed):
		return "ALREADY_CLOSED"
	case errors.Is(err, domain.ErrNotActive):
		return "NOT_ACTIVE"
	case errors.Is(err, domain.ErrNotEligible):
		return "NOT_ELIGIBLE"
	case errors.Is(err, domain.ErrUnauthorized):
		return "FORBIDDEN"
	}
	return ""
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errBadRequestBody
	}
	return nil
}
