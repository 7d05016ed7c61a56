package sqlite

import (
	"context"
	"time"

	"github.com/rs/xid"

	"github.com/luciOnel/PCSHOP/internal/apperror"
	"github.com/luciOnel/PCSHOP/internal/model"
)

// RecordLoginAttempt appends an audit row and returns its id.
//
// ID and LoginAt are assigned here and written back into attempt. If the
// referenced user no longer exists the row is stored with a NULL user_id:
// the reference is weak and must never block the audit trail.
func (db *DB) RecordLoginAttempt(ctx context.Context, attempt *model.LoginAttempt) (string, error) {
	ctx, cancel := db.withTimeout(ctx)
	defer cancel()

	attempt.ID = xid.New().String()
	attempt.LoginAt = time.Now().UTC()

	err := db.insertLoginAttempt(ctx, attempt)
	if err != nil && attempt.UserID != nil && isForeignKeyViolation(err) {
		attempt.UserID = nil
		err = db.insertLoginAttempt(ctx, attempt)
	}
	if err != nil {
		return "", apperror.AuditWrite(err)
	}

	return attempt.ID, nil
}

func (db *DB) insertLoginAttempt(ctx context.Context, a *model.LoginAttempt) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO login_history (id, user_id, email, success, details, login_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		a.ID,
		a.UserID,
		a.Email,
		a.Success,
		a.Details,
		a.LoginAt,
	)
	return err
}
