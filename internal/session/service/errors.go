package service

import "errors"

// Sentinel errors for the session service; the HTTP handler maps them to statuses.
// Credential, secret-policy and storage failures surface as the owning package's sentinels.
var (
	ErrUnauthorized         = errors.New("unauthorized")
	ErrConfirmMismatch      = errors.New("new password and confirmation do not match")
	ErrInvalidCurrentSecret = errors.New("current password is incorrect")
	ErrNotFound             = errors.New("operator not found")
	ErrValidation           = errors.New("validation failed")
)
