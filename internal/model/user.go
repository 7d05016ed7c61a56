// Package model defines the records owned by the credential store.
package model

import "time"

// User is a registered storefront account.
//
// Email is always stored normalized (trimmed, lower-cased) and is unique across
// the store. PasswordHash is a bcrypt hash; the `json:"-"` tag keeps it out of
// every API response.
type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}
