package domain

import "time"

// Record is one live refresh token. The token value itself is never stored, only its hash.
// ParentID names the record this one replaced during rotation; empty for a login-issued record.
type Record struct {
	ID        string
	OwnerID   string
	TokenHash string
	ParentID  string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Expired reports whether the record is past its expiry at now.
func (r *Record) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}
