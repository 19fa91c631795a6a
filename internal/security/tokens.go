package security

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/rsa"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

var (
	// ErrTokenInvalid is returned when a token is malformed, badly signed, of the wrong class or audience.
	ErrTokenInvalid = errors.New("token invalid")
	// ErrTokenExpired is returned when a well-formed token is past its expiry.
	ErrTokenExpired = errors.New("token expired")
	// ErrSameSigningKey is returned when access and refresh tokens would share a key.
	ErrSameSigningKey = errors.New("access and refresh signing keys must differ")
)

// Principal is what an access token asserts about its bearer.
type Principal struct {
	OwnerID string
	Email   string
	Role    string
}

// AccessClaims holds JWT claims for the access token. Never persisted.
type AccessClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
	Role  string `json:"role"`
	Type  string `json:"typ"`
}

// OwnerID returns the operator id carried in sub.
func (c *AccessClaims) OwnerID() string { return c.Subject }

// RefreshClaims holds JWT claims for the refresh token. RecordID binds the token to one ledger record.
type RefreshClaims struct {
	jwt.RegisteredClaims
	RecordID string `json:"sid"`
	Type     string `json:"typ"`
}

// OwnerID returns the operator id carried in sub.
func (c *RefreshClaims) OwnerID() string { return c.Subject }

// TokenIssuer issues and verifies access and refresh JWTs. Each class has its own key pair (RS256 or ES256)
// and is verified only with its own public key.
type TokenIssuer struct {
	access     KeyPair
	refresh    KeyPair
	issuer     string
	audience   string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewTokenIssuer returns a TokenIssuer. Returns ErrInvalidKey for unsupported keys and ErrSameSigningKey
// when both classes would be verified by the same public key.
func NewTokenIssuer(access, refresh KeyPair, issuer, audience string, accessTTL, refreshTTL time.Duration) (*TokenIssuer, error) {
	for _, kp := range []KeyPair{access, refresh} {
		if kp.Private == nil || KeyAlg(kp.Public) == "" || KeyAlg(kp.Private.Public()) != KeyAlg(kp.Public) {
			return nil, ErrInvalidKey
		}
	}
	if samePublicKey(access.Public, refresh.Public) {
		return nil, ErrSameSigningKey
	}
	return &TokenIssuer{
		access:     access,
		refresh:    refresh,
		issuer:     issuer,
		audience:   audience,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}, nil
}

// SetClock replaces the time source used for issuing and verifying. For tests.
func (p *TokenIssuer) SetClock(now func() time.Time) {
	p.now = now
}

// AccessTTL returns the access token lifetime.
func (p *TokenIssuer) AccessTTL() time.Duration { return p.accessTTL }

// RefreshTTL returns the refresh token lifetime.
func (p *TokenIssuer) RefreshTTL() time.Duration { return p.refreshTTL }

// IssueAccess issues a short-lived access JWT for the principal.
func (p *TokenIssuer) IssueAccess(principal Principal) (token string, expiresAt time.Time, err error) {
	if principal.OwnerID == "" {
		return "", time.Time{}, ErrTokenInvalid
	}
	jti, err := generateJTI()
	if err != nil {
		return "", time.Time{}, err
	}
	now := p.now().UTC().Truncate(time.Second)
	expiresAt = now.Add(p.accessTTL)
	claims := AccessClaims{
		RegisteredClaims: p.registered(jti, principal.OwnerID, now, expiresAt),
		Email:            principal.Email,
		Role:             principal.Role,
		Type:             tokenTypeAccess,
	}
	token, err = sign(p.access.Private, claims)
	return token, expiresAt, err
}

// IssueRefresh issues a long-lived refresh JWT bound to the ledger record recordID.
func (p *TokenIssuer) IssueRefresh(ownerID, recordID string) (token string, expiresAt time.Time, err error) {
	if ownerID == "" || recordID == "" {
		return "", time.Time{}, ErrTokenInvalid
	}
	jti, err := generateJTI()
	if err != nil {
		return "", time.Time{}, err
	}
	now := p.now().UTC().Truncate(time.Second)
	expiresAt = now.Add(p.refreshTTL)
	claims := RefreshClaims{
		RegisteredClaims: p.registered(jti, ownerID, now, expiresAt),
		RecordID:         recordID,
		Type:             tokenTypeRefresh,
	}
	token, err = sign(p.refresh.Private, claims)
	return token, expiresAt, err
}

// VerifyAccess parses and validates an access token (signature, exp, iss, aud, typ).
// Returns ErrTokenExpired or ErrTokenInvalid.
func (p *TokenIssuer) VerifyAccess(tokenString string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := p.parse(tokenString, claims, p.access.Public); err != nil {
		return nil, err
	}
	if claims.Type != tokenTypeAccess || claims.Subject == "" {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// VerifyRefresh parses and validates a refresh token (signature, exp, iss, aud, typ).
// It does not consult the ledger. Returns ErrTokenExpired or ErrTokenInvalid.
func (p *TokenIssuer) VerifyRefresh(tokenString string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := p.parse(tokenString, claims, p.refresh.Public); err != nil {
		return nil, err
	}
	if claims.Type != tokenTypeRefresh || claims.Subject == "" || claims.RecordID == "" {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

func (p *TokenIssuer) registered(jti, subject string, now, expiresAt time.Time) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		ID:        jti,
		Subject:   subject,
		Issuer:    p.issuer,
		Audience:  jwt.ClaimStrings{p.audience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
}

func (p *TokenIssuer) parse(tokenString string, claims jwt.Claims, publicKey crypto.PublicKey) error {
	if tokenString == "" {
		return ErrTokenInvalid
	}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		switch token.Method.(type) {
		case *jwt.SigningMethodRSA:
			if _, ok := publicKey.(*rsa.PublicKey); ok {
				return publicKey, nil
			}
		case *jwt.SigningMethodECDSA:
			if _, ok := publicKey.(*ecdsa.PublicKey); ok {
				return publicKey, nil
			}
		}
		return nil, ErrTokenInvalid
	},
		jwt.WithValidMethods([]string{KeyAlg(publicKey)}),
		jwt.WithIssuer(p.issuer),
		jwt.WithAudience(p.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(p.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrTokenExpired
		}
		return ErrTokenInvalid
	}
	if !token.Valid {
		return ErrTokenInvalid
	}
	return nil
}

func sign(key crypto.Signer, claims jwt.Claims) (string, error) {
	var method jwt.SigningMethod
	switch key.Public().(type) {
	case *rsa.PublicKey:
		method = jwt.SigningMethodRS256
	case *ecdsa.PublicKey:
		method = jwt.SigningMethodES256
	default:
		return "", ErrInvalidKey
	}
	t := jwt.NewWithClaims(method, claims)
	return t.SignedString(key)
}

func samePublicKey(a, b crypto.PublicKey) bool {
	eq, ok := a.(interface{ Equal(crypto.PublicKey) bool })
	return ok && eq.Equal(b)
}

func generateJTI() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
