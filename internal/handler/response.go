package handler

// Every error response has the same shape, whatever the status:
//
//	{"error": "duplicate_account", "message": "an account with this email already exists"}
//
// "error" is the machine-readable kind, "message" is safe to show to a user.
// Causes (SQL errors, file paths) are logged, never sent.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/luciOnel/PCSHOP/internal/apperror"
)

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// errorKinds maps domain sentinels to status and kind. Order matters: a
// rejected login whose audit write also failed matches InvalidCredentials
// first, so the audit failure never changes the status.
var errorKinds = []struct {
	target error
	status int
	kind   string
}{
	{apperror.ErrInvalidInput, http.StatusBadRequest, "invalid_input"},
	{apperror.ErrWeakCredential, http.StatusBadRequest, "weak_credential"},
	{apperror.ErrDuplicateAccount, http.StatusConflict, "duplicate_account"},
	{apperror.ErrInvalidCredentials, http.StatusUnauthorized, "invalid_credentials"},
	{apperror.ErrStorage, http.StatusInternalServerError, "storage_error"},
}

const internalErrorMessage = "an internal error occurred"

// writeJSON sends data as JSON with the given status.
// Headers must be set before WriteHeader; the body comes last.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are already sent; logging is all that is left.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// writeError maps a domain error to its HTTP status and sends the uniform body.
// Anything unrecognised becomes a generic 500.
func writeError(w http.ResponseWriter, err error) {
	status, kind := classify(err)

	message := internalErrorMessage
	var appErr *apperror.AppError
	if kind != "internal_error" && errors.As(err, &appErr) {
		message = appErr.Message
	}

	writeJSON(w, status, ErrorResponse{Error: kind, Message: message})
}

func classify(err error) (int, string) {
	for _, k := range errorKinds {
		if errors.Is(err, k.target) {
			return k.status, k.kind
		}
	}
	return http.StatusInternalServerError, "internal_error"
}

// NotFound answers unknown API routes with the uniform error body.
func NotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, ErrorResponse{
		Error:   "not_found",
		Message: "no route for " + r.Method + " " + r.URL.Path,
	})
}

// MethodNotAllowed answers a known API path called with the wrong method.
func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusMethodNotAllowed, ErrorResponse{
		Error:   "method_not_allowed",
		Message: r.Method + " is not allowed on " + r.URL.Path,
	})
}
