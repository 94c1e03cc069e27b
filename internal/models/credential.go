package models

import "time"

// Credential stores the password hash for a user. A nil PasswordHash marks the
// password unusable, which disables password login for the account.
type Credential struct {
	UserID       string    `db:"user_id" json:"user_id"`
	PasswordHash *string   `db:"password_hash" json:"-"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// Usable reports whether the credential can ever match a password.
func (c Credential) Usable() bool {
	return c.PasswordHash != nil && *c.PasswordHash != ""
}
