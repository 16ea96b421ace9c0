package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/mategroup/sso/internal/auth"
	"github.com/mategroup/sso/internal/services"
)

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func userIDFromRequest(r *http.Request) (string, error) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok || claims.ID == "" {
		return "", errors.New("missing subject")
	}
	return claims.ID, nil
}

func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return errors.New("empty body")
	}
	return json.NewDecoder(r.Body).Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, status int, code services.Kind, message string) {
	writeJSON(w, status, ErrorResponse{Error: message, Code: string(code)})
}

// statusFor maps a service error kind onto its HTTP status. Conflicts travel
// as 400 so existing clients keep working; the code field tells them apart.
func statusFor(kind services.Kind) int {
	switch kind {
	case services.KindValidation, services.KindConflict:
		return http.StatusBadRequest
	case services.KindAuth:
		return http.StatusUnauthorized
	case services.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError converts err into the JSON error body. Unexpected errors
// get a generic message.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var svcErr *services.Error
	if !errors.As(err, &svcErr) {
		logger.ErrorContext(r.Context(), "unhandled error", "method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, services.KindInternal, "Internal server error")
		return
	}

	status := statusFor(svcErr.Kind)
	if status >= http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "request failed",
			"method", r.Method, "path", r.URL.Path, "kind", svcErr.Kind, "error", svcErr.Err)
	}
	writeError(w, status, svcErr.Kind, svcErr.Message)
}
