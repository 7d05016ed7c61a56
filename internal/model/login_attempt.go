package model

import "time"

// Reasons recorded in LoginAttempt.Details for failed logins.
const (
	DetailUserNotFound  = "user not found"
	DetailWrongPassword = "wrong password"
)

// LoginAttempt is one append-only audit row per evaluated login.
//
// UserID is nil when the email matched no account. It is a weak reference:
// the row outlives the user it points to.
// Details is nil on success.
type LoginAttempt struct {
	ID      string    `json:"id"`
	UserID  *string   `json:"userId,omitempty"`
	Email   string    `json:"email"`
	Success bool      `json:"success"`
	Details *string   `json:"details,omitempty"`
	LoginAt time.Time `json:"loginAt"`
}
