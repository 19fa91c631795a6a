// Package refreshtoken keeps the ledger of live refresh tokens and enforces single-use rotation.
package refreshtoken

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"opsgate/internal/refreshtoken/domain"
	"opsgate/internal/refreshtoken/repository"
	"opsgate/internal/security"
)

// ErrTokenReused is returned when a refresh token that was already rotated is presented again.
var ErrTokenReused = errors.New("refresh token reused")

// Rotation outcomes reported to the observer.
const (
	OutcomeRotated  = "rotated"
	OutcomeReused   = "reused"
	OutcomeInvalid  = "invalid"
	OutcomeExpired  = "expired"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

// RotateCheck runs inside a rotation, after the presented token is validated and before the
// replacement commits. A non-nil error aborts the rotation and is returned unchanged.
type RotateCheck func(ctx context.Context, ownerID string) error

// Issuer is the part of security.TokenIssuer the ledger needs.
type Issuer interface {
	IssueRefresh(ownerID, recordID string) (string, time.Time, error)
	VerifyRefresh(token string) (*security.RefreshClaims, error)
}

// Ledger issues, rotates and revokes refresh tokens.
type Ledger struct {
	repo    repository.Repository
	tokens  Issuer
	logger  *slog.Logger
	now     func() time.Time
	observe func(outcome string)
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithRotationObserver receives one outcome per Rotate call.
func WithRotationObserver(fn func(outcome string)) Option {
	return func(l *Ledger) { l.observe = fn }
}

// NewLedger returns a Ledger over repo.
func NewLedger(repo repository.Repository, tokens Issuer, logger *slog.Logger, opts ...Option) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Ledger{repo: repo, tokens: tokens, logger: logger, now: time.Now, observe: func(string) {}}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Issue creates a record for ownerID and returns it with its token value.
func (l *Ledger) Issue(ctx context.Context, ownerID string) (*domain.Record, string, error) {
	rec, token, err := l.newRecord(ownerID, "")
	if err != nil {
		return nil, "", err
	}
	if err := l.repo.Insert(ctx, rec); err != nil {
		return nil, "", err
	}
	return rec, token, nil
}

// Rotate consumes token and returns its replacement. A token value succeeds at most once:
// any later attempt, even after further rotations or a logout of the successor, fails with
// ErrTokenReused. Other failures are security.ErrTokenInvalid, security.ErrTokenExpired, the
// error returned by check, or a storage error. check may be nil.
func (l *Ledger) Rotate(ctx context.Context, token string, check RotateCheck) (*domain.Record, string, error) {
	claims, err := l.tokens.VerifyRefresh(token)
	if err != nil {
		l.report(err)
		return nil, "", err
	}

	var (
		nextToken string
		rejected  bool
	)
	next, err := l.repo.Rotate(ctx, claims.OwnerID(), claims.RecordID, func(ctx context.Context, old *domain.Record) (*domain.Record, error) {
		if old.OwnerID != claims.OwnerID() || !security.TokenHashEqual(token, old.TokenHash) {
			return nil, security.ErrTokenInvalid
		}
		if old.Expired(l.now()) {
			return nil, security.ErrTokenExpired
		}
		if check != nil {
			if err := check(ctx, old.OwnerID); err != nil {
				rejected = true
				return nil, err
			}
		}
		rec, tok, err := l.newRecord(old.OwnerID, old.ID)
		if err != nil {
			return nil, err
		}
		nextToken = tok
		return rec, nil
	})
	switch {
	case errors.Is(err, repository.ErrRecordConsumed):
		err = ErrTokenReused
	case errors.Is(err, repository.ErrRecordNotFound):
		err = security.ErrTokenInvalid
	}
	if rejected {
		l.observe(OutcomeRejected)
	} else {
		l.report(err)
	}
	if err != nil {
		if errors.Is(err, ErrTokenReused) {
			l.logger.WarnContext(ctx, "refresh token reuse detected", "owner_id", claims.OwnerID(), "record_id", claims.RecordID)
		}
		return nil, "", err
	}
	return next, nextToken, nil
}

// Revoke deletes the record behind token when it belongs to ownerID. Returns false when nothing matched.
// An expired token revokes nothing and is not an error.
func (l *Ledger) Revoke(ctx context.Context, token, ownerID string) (bool, error) {
	claims, err := l.tokens.VerifyRefresh(token)
	if errors.Is(err, security.ErrTokenExpired) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if claims.OwnerID() != ownerID {
		return false, nil
	}
	return l.repo.Delete(ctx, claims.RecordID, ownerID, security.HashToken(token))
}

// RevokeAll deletes every record of ownerID and returns how many were removed.
func (l *Ledger) RevokeAll(ctx context.Context, ownerID string) (int64, error) {
	return l.repo.DeleteByOwner(ctx, ownerID)
}

// SweepExpired deletes records whose expiry has passed, and forgets consumed ids past the same expiry.
func (l *Ledger) SweepExpired(ctx context.Context) (int64, error) {
	return l.repo.DeleteExpired(ctx, l.now().UTC())
}

// CountActive returns the number of live records for ownerID.
func (l *Ledger) CountActive(ctx context.Context, ownerID string) (int64, error) {
	return l.repo.CountActive(ctx, ownerID, l.now().UTC())
}

func (l *Ledger) newRecord(ownerID, parentID string) (*domain.Record, string, error) {
	id := uuid.New().String()
	token, expiresAt, err := l.tokens.IssueRefresh(ownerID, id)
	if err != nil {
		return nil, "", err
	}
	return &domain.Record{
		ID:        id,
		OwnerID:   ownerID,
		TokenHash: security.HashToken(token),
		ParentID:  parentID,
		IssuedAt:  l.now().UTC(),
		ExpiresAt: expiresAt,
	}, token, nil
}

func (l *Ledger) report(err error) {
	switch {
	case err == nil:
		l.observe(OutcomeRotated)
	case errors.Is(err, ErrTokenReused):
		l.observe(OutcomeReused)
	case errors.Is(err, security.ErrTokenExpired):
		l.observe(OutcomeExpired)
	case errors.Is(err, security.ErrTokenInvalid):
		l.observe(OutcomeInvalid)
	default:
		l.observe(OutcomeError)
	}
}
