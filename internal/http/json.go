package httpx

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"

	apperrors "github.com/tensrai/dashboard-api/internal/errors"
)

const maxJSONBody = 1 << 20

// DecodeJSON decodes JSON from the request body into the destination and handles errors.
// Returns true if successful, false if there was an error (error response already written).
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_json", Err: err})
		return false
	}

	return true
}

// WriteJSON writes a JSON response with the given status code and data.
func WriteJSON(w http.ResponseWriter, code int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err := buf.WriteTo(w); err != nil {
		// Response writer errors (e.g., client disconnect) can't be recovered from here.
		return
	}
}

// ErrorParams groups parameters for WriteError.
type ErrorParams struct {
	Code    int
	ErrCode string
	Err     error
	Field   string
}

// WriteError writes a JSON error response using ErrorParams.
func WriteError(w http.ResponseWriter, p ErrorParams) {
	body := map[string]string{"error": p.ErrCode, "message": p.Err.Error()}
	if p.Field != "" {
		body["field"] = p.Field
	}
	WriteJSON(w, p.Code, body)
}

// statusFor maps an application error code onto an HTTP status.
func statusFor(code apperrors.ErrorCode) int {
	switch code {
	case apperrors.ErrCodeNotFound:
		return http.StatusNotFound
	case apperrors.ErrCodeConflict:
		return http.StatusConflict
	case apperrors.ErrCodeValidation:
		return http.StatusBadRequest
	case apperrors.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case apperrors.ErrCodeForbidden:
		return http.StatusForbidden
	case apperrors.ErrCodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError renders err for the JSON API. Only AppError messages reach the client;
// anything else is reported as a generic internal error.
func writeServiceError(w http.ResponseWriter, err error) {
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) || statusFor(appErr.Code) == http.StatusInternalServerError {
		WriteError(w, ErrorParams{
			Code:    http.StatusInternalServerError,
			ErrCode: "internal_error",
			Err:     errors.New("internal server error"),
		})
		return
	}
	WriteError(w, ErrorParams{
		Code:    statusFor(appErr.Code),
		ErrCode: string(appErr.Code),
		Err:     errors.New(appErr.Message),
		Field:   appErr.Field,
	})
}

// authEnvelope is the response shape used by the identity endpoints.
type authEnvelope struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
	Field   string `json:"field,omitempty"`
	Data    any    `json:"data,omitempty"`
}

const (
	authErrorCode    = "AUTH_ERROR"
	authErrorMessage = "Authentication service error"
)

// writeAuthFailure writes the stable 500 body returned when identity delegation fails.
func writeAuthFailure(w http.ResponseWriter) {
	WriteJSON(w, http.StatusInternalServerError, authEnvelope{
		Success: false,
		Error:   authErrorMessage,
		Code:    authErrorCode,
	})
}

func writeAuthOK(w http.ResponseWriter, data any) {
	WriteJSON(w, http.StatusOK, authEnvelope{Success: true, Data: data})
}

// authCodes maps application error codes onto the identity endpoint codes.
var authCodes = map[apperrors.ErrorCode]string{
	apperrors.ErrCodeNotFound:     "NOT_FOUND",
	apperrors.ErrCodeConflict:     "CONFLICT",
	apperrors.ErrCodeValidation:   "VALIDATION_ERROR",
	apperrors.ErrCodeUnauthorized: "UNAUTHORIZED",
	apperrors.ErrCodeForbidden:    "FORBIDDEN",
	apperrors.ErrCodeTimeout:      "TIMEOUT",
}

// writeAuthError renders a service error in the identity envelope. It reports false when err
// is not a client-facing AppError so the caller can escalate to the proxy failure path.
func writeAuthError(w http.ResponseWriter, err error) bool {
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		return false
	}
	code, ok := authCodes[appErr.Code]
	if !ok {
		return false
	}
	WriteJSON(w, statusFor(appErr.Code), authEnvelope{
		Success: false,
		Error:   appErr.Message,
		Code:    code,
		Field:   appErr.Field,
	})
	return true
}
