// Package repository declares the credential store contract consumed by the
// service layer. Implementations live in sub-packages (see repository/sqlite).
package repository

import (
	"context"

	"github.com/luciOnel/PCSHOP/internal/model"
)

// UserRepository persists User records.
//
// Emails passed in must already be normalized (see service.NormalizeEmail).
type UserRepository interface {
	// FindUserByEmail returns (nil, nil) when no account matches.
	FindUserByEmail(ctx context.Context, email string) (*model.User, error)

	// CreateUser fails with apperror.ErrConstraintViolation when the email is
	// already taken. The check is made by the insert itself.
	CreateUser(ctx context.Context, name, email, passwordHash string) (*model.User, error)
}

// LoginHistoryRepository appends login audit rows.
type LoginHistoryRepository interface {
	// RecordLoginAttempt stores the attempt and returns its id. Failures match
	// apperror.ErrAuditWrite.
	RecordLoginAttempt(ctx context.Context, attempt *model.LoginAttempt) (string, error)
}

// CredentialStore is everything the authentication service needs.
type CredentialStore interface {
	UserRepository
	LoginHistoryRepository
}
