// Package service holds the authentication business rules.
//
//	AuthHandler (HTTP) -> AuthService (rules, hashing, audit) -> CredentialStore (sqlite)
//
// AuthService keeps no state of its own between calls; everything durable lives
// in the injected store.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/luciOnel/PCSHOP/internal/apperror"
	"github.com/luciOnel/PCSHOP/internal/auth"
	"github.com/luciOnel/PCSHOP/internal/model"
	"github.com/luciOnel/PCSHOP/internal/repository"
)

// RegisterInput is the payload of a registration request.
type RegisterInput struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required,mailbox"`
	Password string `json:"password" validate:"required,password"`
}

// LoginInput is the payload of a login request.
type LoginInput struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// PasswordHasher hashes new passwords and checks presented ones.
// *auth.PasswordService is the production implementation; Verify returns
// auth.ErrMismatch for a wrong password.
type PasswordHasher interface {
	Hash(plaintext string) (string, error)
	Verify(hash, plaintext string) error
}

// AuthService registers and authenticates storefront users.
type AuthService struct {
	store     repository.CredentialStore
	passwords PasswordHasher
	validate  *validator.Validate
	logger    *slog.Logger
}

// NewAuthService wires an AuthService. Call it from the composition root.
func NewAuthService(
	store repository.CredentialStore,
	passwords PasswordHasher,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		store:     store,
		passwords: passwords,
		validate:  newValidator(),
		logger:    logger,
	}
}

// Register creates a new account.
//
// Checks run in a fixed order and the first failure wins:
//  1. name, email and password present            -> InvalidInput
//  2. normalized email shaped like local@domain.tld -> InvalidInput
//  3. password at least MinPasswordLength chars
//     and at most auth.MaxPasswordBytes bytes      -> WeakCredential
//  4. email not registered yet                     -> DuplicateAccount
//
// The existence check in step 4 only saves a bcrypt round for the common case.
// Two concurrent registrations can both pass it; the store's unique index then
// rejects the second insert and that is reported as DuplicateAccount too.
// Registration writes no audit row.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*model.User, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = NormalizeEmail(in.Email)

	if err := s.validate.Struct(in); err != nil {
		return nil, toAppError(err)
	}
	if len(in.Password) > auth.MaxPasswordBytes {
		return nil, apperror.WeakCredential("password", fmt.Sprintf("password must be %d bytes or fewer", auth.MaxPasswordBytes))
	}

	existing, err := s.store.FindUserByEmail(ctx, in.Email)
	if err != nil {
		return nil, s.storageError("look up user", err)
	}
	if existing != nil {
		return nil, apperror.DuplicateAccount()
	}

	hash, err := s.passwords.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.store.CreateUser(ctx, in.Name, in.Email, hash)
	if err != nil {
		if errors.Is(err, apperror.ErrConstraintViolation) {
			return nil, apperror.DuplicateAccount()
		}
		return nil, s.storageError("create user", err)
	}

	s.logger.InfoContext(ctx, "user registered", slog.String("userID", user.ID))
	return user, nil
}

// Login authenticates email and password.
//
// Every request that passes input validation leaves exactly one LoginAttempt,
// written before Login returns:
//   - unknown email   -> {userID: nil, success: false, "user not found"}, InvalidCredentials
//   - wrong password  -> {userID, success: false, "wrong password"}, InvalidCredentials
//   - match           -> {userID, success: true}, user
//
// Both failures return the same InvalidCredentials error.
//
// A failed audit write never changes the outcome. On a rejected login the
// returned error joins InvalidCredentials with apperror.ErrAuditWrite. On an
// accepted login the user is returned together with the audit error, so a
// non-nil user always means the credentials were valid.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (*model.User, error) {
	in.Email = NormalizeEmail(in.Email)

	if err := s.validate.Struct(in); err != nil {
		return nil, toAppError(err)
	}

	user, err := s.store.FindUserByEmail(ctx, in.Email)
	if err != nil {
		return nil, s.storageError("look up user", err)
	}

	if user == nil {
		auditErr := s.record(ctx, nil, in.Email, false, model.DetailUserNotFound)
		s.logger.InfoContext(ctx, "login rejected", slog.String("reason", model.DetailUserNotFound))
		return nil, rejected(auditErr)
	}

	if err := s.passwords.Verify(user.PasswordHash, in.Password); err != nil {
		if !errors.Is(err, auth.ErrMismatch) {
			// Undecodable hash: still a failed login for this user.
			s.logger.WarnContext(ctx, "stored password hash is unusable",
				slog.String("userID", user.ID),
				slog.String("error", err.Error()),
			)
		}
		auditErr := s.record(ctx, &user.ID, in.Email, false, model.DetailWrongPassword)
		s.logger.InfoContext(ctx, "login rejected",
			slog.String("userID", user.ID),
			slog.String("reason", model.DetailWrongPassword),
		)
		return nil, rejected(auditErr)
	}

	auditErr := s.record(ctx, &user.ID, in.Email, true, "")
	s.logger.InfoContext(ctx, "login accepted", slog.String("userID", user.ID))
	if auditErr != nil {
		return user, auditErr
	}
	return user, nil
}

// record writes one audit row. An empty details means "no details".
func (s *AuthService) record(ctx context.Context, userID *string, email string, success bool, details string) error {
	attempt := &model.LoginAttempt{
		UserID:  userID,
		Email:   email,
		Success: success,
	}
	if details != "" {
		attempt.Details = &details
	}

	if _, err := s.store.RecordLoginAttempt(ctx, attempt); err != nil {
		s.logger.ErrorContext(ctx, "recording login attempt failed",
			slog.Bool("success", success),
			slog.String("error", err.Error()),
		)
		if errors.Is(err, apperror.ErrAuditWrite) {
			return err
		}
		return apperror.AuditWrite(err)
	}
	return nil
}

// rejected builds the error for a refused login, keeping an audit failure
// visible without replacing the primary outcome.
func rejected(auditErr error) error {
	if auditErr == nil {
		return apperror.InvalidCredentials()
	}
	return errors.Join(apperror.InvalidCredentials(), auditErr)
}

// storageError makes sure every store failure reaching the caller is a
// StorageError, whatever the store returned.
func (s *AuthService) storageError(op string, err error) error {
	s.logger.Error("credential store failure", slog.String("op", op), slog.String("error", err.Error()))
	if errors.Is(err, apperror.ErrStorage) {
		return err
	}
	return apperror.Storage(op, err)
}
