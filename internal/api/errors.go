package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rodolfodiegosilva/iot-system-api/internal/auth"
	"github.com/rodolfodiegosilva/iot-system-api/internal/device"
	"github.com/rodolfodiegosilva/iot-system-api/internal/monitoring"
)

// Error is the body of every non-2xx response.
type Error struct {
	Status    int    `json:"status"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// messageResponse acknowledges an operation without returning a resource.
type messageResponse struct {
	Status    int    `json:"status"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

const (
	msgInternal    = "internal server error"
	msgAuthFailure = "authentication error"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

func timestamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, Error{
		Status:    status,
		Message:   message,
		Timestamp: timestamp(),
	})
}

func writeMessage(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusOK, messageResponse{
		Status:    http.StatusOK,
		Message:   message,
		Timestamp: timestamp(),
	})
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, message)
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, message)
}

func writeInternalError(w http.ResponseWriter) {
	writeError(w, http.StatusInternalServerError, msgInternal)
}

// statusFor maps domain errors to HTTP status codes. Unknown errors are 500.
func statusFor(err error) int {
	switch {
	case errors.Is(err, auth.ErrAuthUnavailable):
		return http.StatusInternalServerError

	case errors.Is(err, auth.ErrMalformedToken),
		errors.Is(err, auth.ErrInvalidSignature),
		errors.Is(err, auth.ErrExpiredToken),
		errors.Is(err, auth.ErrRevokedToken),
		errors.Is(err, auth.ErrPrincipalNotFound),
		errors.Is(err, auth.ErrUnauthenticated),
		errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized

	case errors.Is(err, auth.ErrForbidden):
		return http.StatusForbidden

	case errors.Is(err, auth.ErrUserNotFound),
		errors.Is(err, device.ErrDeviceNotFound),
		errors.Is(err, monitoring.ErrMonitoringNotFound):
		return http.StatusNotFound

	case errors.Is(err, auth.ErrUsernameExists),
		errors.Is(err, auth.ErrEmailExists),
		errors.Is(err, device.ErrDeviceExists):
		return http.StatusConflict

	case errors.Is(err, auth.ErrInvalidRole),
		errors.Is(err, auth.ErrInvalidUsername),
		errors.Is(err, auth.ErrInvalidEmail),
		errors.Is(err, auth.ErrPasswordTooShort),
		errors.Is(err, auth.ErrNameRequired),
		errors.Is(err, device.ErrInvalidDevice),
		errors.Is(err, device.ErrInvalidName),
		errors.Is(err, device.ErrInvalidStatus),
		errors.Is(err, device.ErrInvalidOperation),
		errors.Is(err, device.ErrInvalidCommand),
		errors.Is(err, device.ErrUnknownMember),
		errors.Is(err, monitoring.ErrInvalidMonitoring),
		errors.Is(err, monitoring.ErrEmptyBatch):
		return http.StatusBadRequest

	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError writes err with its mapped status. Server-side
// failures are logged and reported without detail.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status < http.StatusInternalServerError {
		writeError(w, status, err.Error())
		return
	}

	s.logger.Error("request failed",
		"method", r.Method,
		"path", r.URL.Path,
		"request_id", requestIDFrom(r.Context()),
		"error", err,
	)
	if errors.Is(err, auth.ErrAuthUnavailable) {
		writeError(w, status, msgAuthFailure)
		return
	}
	writeInternalError(w)
}

// decodeJSON reads the request body into v. It writes a 400 and returns
// false when the body is not valid JSON.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		writeBadRequest(w, "invalid JSON body")
		return false
	}
	return true
}
