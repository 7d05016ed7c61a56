package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rs/xid"

	"github.com/luciOnel/PCSHOP/internal/apperror"
	"github.com/luciOnel/PCSHOP/internal/model"
	"github.com/luciOnel/PCSHOP/internal/repository"
)

// compile-time check that *DB implements the full credential store
var _ repository.CredentialStore = (*DB)(nil)

// FindUserByEmail looks a user up by normalized email.
// Returns (nil, nil) when no user matches.
func (db *DB) FindUserByEmail(ctx context.Context, email string) (*model.User, error) {
	ctx, cancel := db.withTimeout(ctx)
	defer cancel()

	var u model.User
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, name, email, password_hash, created_at
		 FROM users WHERE email = ?`,
		email,
	).Scan(
		&u.ID,
		&u.Name,
		&u.Email,
		&u.PasswordHash,
		&u.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, apperror.Storage("look up user", err)
	}

	return &u, nil
}

// CreateUser inserts a new user and returns it with its id and creation time.
//
// There is no existence check before the INSERT: the UNIQUE index on email is
// what decides between two concurrent registrations, and the loser gets
// apperror.ErrConstraintViolation.
func (db *DB) CreateUser(ctx context.Context, name, email, passwordHash string) (*model.User, error) {
	ctx, cancel := db.withTimeout(ctx)
	defer cancel()

	u := &model.User{
		ID:           xid.New().String(),
		Name:         name,
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
	}

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO users (id, name, email, password_hash, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		u.ID,
		u.Name,
		u.Email,
		u.PasswordHash,
		u.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, apperror.ConstraintViolation("email", email)
		}
		return nil, apperror.Storage("create user", err)
	}

	return u, nil
}
