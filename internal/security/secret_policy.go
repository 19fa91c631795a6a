package security

import (
	"errors"
	"strings"
	"unicode"
)

// ErrWeakSecret is returned when a candidate secret does not meet the SecretPolicy.
var ErrWeakSecret = errors.New("secret does not meet policy")

// WeakSecretError lists every rule a candidate secret failed. It unwraps to ErrWeakSecret.
type WeakSecretError struct {
	Reasons []string
}

func (e *WeakSecretError) Error() string {
	return ErrWeakSecret.Error() + ": " + strings.Join(e.Reasons, ", ")
}

func (e *WeakSecretError) Unwrap() error { return ErrWeakSecret }

// commonSecrets is compared case-insensitively.
var commonSecrets = []string{
	"password", "password1", "password123", "passw0rd", "p@ssw0rd", "p@ssword1", "p@$$w0rd",
	"qwerty123", "qwerty!23", "letmein1", "letmein!", "welcome1", "welcome1!", "admin123",
	"admin@123", "iloveyou1", "12345678", "123456789", "1q2w3e4r", "1qaz2wsx", "abc12345",
	"changeme", "changeme1", "changeme!", "trustno1", "monkey123", "dragon123", "sunshine1",
	"football1", "baseball1", "master123", "superman1", "summer2024!", "winter2024!",
}

// SecretPolicy is the minimum strength for operator secrets.
type SecretPolicy struct {
	MinLength int
	denylist  map[string]struct{}
}

// DefaultSecretPolicy requires 8 characters with upper, lower, digit and symbol, and rejects common secrets.
func DefaultSecretPolicy() *SecretPolicy {
	deny := make(map[string]struct{}, len(commonSecrets))
	for _, s := range commonSecrets {
		deny[strings.ToLower(s)] = struct{}{}
	}
	return &SecretPolicy{MinLength: 8, denylist: deny}
}

// Check returns nil when secret satisfies the policy, otherwise a *WeakSecretError.
func (p *SecretPolicy) Check(secret string) error {
	var reasons []string
	if len([]rune(secret)) < p.MinLength {
		reasons = append(reasons, "too short")
	}
	var upper, lower, digit, symbol bool
	for _, r := range secret {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r) || unicode.IsSpace(r):
			symbol = true
		}
	}
	if !upper {
		reasons = append(reasons, "missing upper-case letter")
	}
	if !lower {
		reasons = append(reasons, "missing lower-case letter")
	}
	if !digit {
		reasons = append(reasons, "missing digit")
	}
	if !symbol {
		reasons = append(reasons, "missing symbol")
	}
	if _, denied := p.denylist[strings.ToLower(secret)]; denied {
		reasons = append(reasons, "too common")
	}
	if len(reasons) > 0 {
		return &WeakSecretError{Reasons: reasons}
	}
	return nil
}
