package security

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"time"
)

// GenerateTestKeyPair returns a fresh ECDSA P-256 key pair. For tests and in-memory development mode only.
func GenerateTestKeyPair() (KeyPair, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return KeyPair{}, err
	}
	return KeyPair{Private: key, Public: &key.PublicKey}, nil
}

// NewTestTokenIssuer returns a TokenIssuer with two freshly generated key pairs.
// For unit tests only. Callers must not use in production.
func NewTestTokenIssuer() (*TokenIssuer, error) {
	access, err := GenerateTestKeyPair()
	if err != nil {
		return nil, err
	}
	refresh, err := GenerateTestKeyPair()
	if err != nil {
		return nil, err
	}
	return NewTokenIssuer(access, refresh, "test-issuer", "test-audience", 15*time.Minute, 168*time.Hour)
}
