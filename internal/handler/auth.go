package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/luciOnel/PCSHOP/internal/apperror"
	"github.com/luciOnel/PCSHOP/internal/model"
	"github.com/luciOnel/PCSHOP/internal/service"
)

// MaxBodyBytes caps the size of a JSON request body.
const MaxBodyBytes = 1 << 20

// Authenticator is the part of service.AuthService the handlers use.
type Authenticator interface {
	Register(ctx context.Context, in service.RegisterInput) (*model.User, error)
	Login(ctx context.Context, in service.LoginInput) (*model.User, error)
}

// UserResponse wraps the public view of a user. The password hash is never
// part of it (model.User omits it from JSON).
type UserResponse struct {
	User *model.User `json:"user"`
}

// AuthHandler exposes registration and login over HTTP.
//
//   - HandleRegister → POST /api/register
//   - HandleLogin    → POST /api/login
type AuthHandler struct {
	auth   Authenticator
	logger *slog.Logger
}

func NewAuthHandler(auth Authenticator, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{auth: auth, logger: logger}
}

// HandleRegister creates an account.
//
// REQUEST BODY:  {"name": "Ada", "email": "ada@example.com", "password": "secret1"}
// RESPONSE 201:  {"user": {"id": "...", "name": "Ada", "email": "ada@example.com", "createdAt": "..."}}
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var in service.RegisterInput
	if err := decodeJSON(w, r, &in); err != nil {
		h.logger.Warn("invalid register body", slog.String("error", err.Error()))
		writeError(w, apperror.InvalidInput("", "request body must be a JSON object"))
		return
	}

	user, err := h.auth.Register(r.Context(), in)
	if err != nil {
		h.logFailure(r, "register failed", err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, UserResponse{User: user})
}

// HandleLogin checks credentials.
//
// REQUEST BODY:  {"email": "ada@example.com", "password": "secret1"}
// RESPONSE 200:  {"user": {...}}
// RESPONSE 401:  {"error": "invalid_credentials", "message": "invalid email or password"}
//
// The same 401 body is sent for an unknown email and for a wrong password.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var in service.LoginInput
	if err := decodeJSON(w, r, &in); err != nil {
		h.logger.Warn("invalid login body", slog.String("error", err.Error()))
		writeError(w, apperror.InvalidInput("", "request body must be a JSON object"))
		return
	}

	user, err := h.auth.Login(r.Context(), in)
	if user != nil {
		// Authenticated. A non-nil err here can only be a failed audit write,
		// already logged by the service; the login still stands.
		writeJSON(w, http.StatusOK, UserResponse{User: user})
		return
	}

	h.logFailure(r, "login failed", err)
	writeError(w, err)
}

// logFailure logs client errors at warn and everything else at error.
func (h *AuthHandler) logFailure(r *http.Request, msg string, err error) {
	status, _ := classify(err)
	level := slog.LevelWarn
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	h.logger.Log(r.Context(), level, msg, slog.Int("status", status), slog.String("error", err.Error()))
}

// decodeJSON reads exactly one JSON object of at most MaxBodyBytes into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)

	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("request body must contain a single JSON object")
	}
	return nil
}
