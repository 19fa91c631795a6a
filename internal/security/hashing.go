package security

import (
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// Hasher hashes and verifies operator secrets using bcrypt. Callers must not log or
// persist plaintext secrets.
type Hasher struct {
	Cost int

	dummyOnce sync.Once
	dummyHash []byte
}

// NewHasher returns a Hasher at cost, clamped to bcrypt's range. Zero or negative selects bcrypt.DefaultCost.
func NewHasher(cost int) *Hasher {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	return &Hasher{Cost: min(max(cost, bcrypt.MinCost), bcrypt.MaxCost)}
}

// Hash returns the bcrypt digest of secret for the credential store.
func (h *Hasher) Hash(secret []byte) (string, error) {
	digest, err := bcrypt.GenerateFromPassword(secret, h.Cost)
	if err != nil {
		return "", err
	}
	return string(digest), nil
}

// Compare returns nil when secret matches hash, bcrypt.ErrMismatchedHashAndPassword when it does not,
// and another error for a malformed hash.
func (h *Hasher) Compare(hash string, secret []byte) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), secret)
}

// CompareDummy runs a comparison against a fixed hash at the configured cost so that a lookup miss
// costs the same as a real comparison. The result is always discarded.
func (h *Hasher) CompareDummy(secret []byte) {
	h.dummyOnce.Do(func() {
		b, err := bcrypt.GenerateFromPassword([]byte("opsgate-dummy-secret"), h.Cost)
		if err == nil {
			h.dummyHash = b
		}
	})
	if h.dummyHash == nil {
		return
	}
	_ = bcrypt.CompareHashAndPassword(h.dummyHash, secret)
}
