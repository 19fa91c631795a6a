// Package service implements the operator session lifecycle: login, refresh rotation, logout,
// revocation and password change, each leaving an audit trail.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"opsgate/internal/audit"
	auditdomain "opsgate/internal/audit/domain"
	"opsgate/internal/credential"
	"opsgate/internal/db"
	opdomain "opsgate/internal/operator/domain"
	"opsgate/internal/refreshtoken"
	rtdomain "opsgate/internal/refreshtoken/domain"
	"opsgate/internal/security"
)

const tracerName = "opsgate/session"

// Credentials is the part of credential.Store the service needs.
type Credentials interface {
	Authenticate(ctx context.Context, email, secret string) (*opdomain.Operator, error)
	VerifySecret(ctx context.Context, id, secret string) (*opdomain.Operator, error)
	CheckSecret(secret string) error
	ChangeSecret(ctx context.Context, id, newSecret string) error
	Touch(ctx context.Context, id string, at time.Time) error
	Get(ctx context.Context, id string) (*opdomain.Operator, error)
}

// Ledger is the part of refreshtoken.Ledger the service needs.
type Ledger interface {
	Issue(ctx context.Context, ownerID string) (*rtdomain.Record, string, error)
	Rotate(ctx context.Context, token string, check refreshtoken.RotateCheck) (*rtdomain.Record, string, error)
	Revoke(ctx context.Context, token, ownerID string) (bool, error)
	RevokeAll(ctx context.Context, ownerID string) (int64, error)
	CountActive(ctx context.Context, ownerID string) (int64, error)
}

// Tokens is the part of security.TokenIssuer the service needs.
type Tokens interface {
	IssueAccess(principal security.Principal) (string, time.Time, error)
	VerifyRefresh(token string) (*security.RefreshClaims, error)
}

// Auditor is the part of audit.Recorder the service needs.
type Auditor interface {
	Append(ctx context.Context, e *auditdomain.Event) error
	Record(ctx context.Context, e *auditdomain.Event)
}

// ClientInfo describes the caller for audit purposes.
type ClientInfo struct {
	IP        string
	UserAgent string
}

// LoginResult is returned by Login.
type LoginResult struct {
	TokenPair
	Operator *opdomain.Operator
}

// TokenPair is a freshly issued access token and refresh token.
type TokenPair struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// Config holds service behavior switches.
type Config struct {
	// ReuseRevokesAll revokes every session of the owner when a rotated refresh token is presented again.
	ReuseRevokesAll bool
}

// Service orchestrates credential checks, token issuance and the refresh ledger.
type Service struct {
	creds  Credentials
	ledger Ledger
	tokens Tokens
	audit  Auditor
	tx     db.Transactor
	cfg    Config
	logger *slog.Logger
	tracer trace.Tracer
	now    func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithTracer overrides the tracer; the default comes from the global provider.
func WithTracer(t trace.Tracer) Option {
	return func(s *Service) { s.tracer = t }
}

// NewService returns a Service with the given dependencies.
func NewService(
	creds Credentials,
	ledger Ledger,
	tokens Tokens,
	auditor Auditor,
	tx db.Transactor,
	cfg Config,
	logger *slog.Logger,
	opts ...Option,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		creds:  creds,
		ledger: ledger,
		tokens: tokens,
		audit:  auditor,
		tx:     tx,
		cfg:    cfg,
		logger: logger,
		tracer: otel.Tracer(tracerName),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Login authenticates email and secret and opens a session. Every credential failure returns
// credential.ErrInvalidCredentials; the precise cause is only logged. Once authenticated, session
// creation is detached from request cancellation so a dropped client cannot leave it half done.
func (s *Service) Login(ctx context.Context, email, secret string, client ClientInfo) (_ *LoginResult, err error) {
	ctx, span := s.tracer.Start(ctx, "session.Login")
	defer func() { endSpan(span, err) }()

	if strings.TrimSpace(email) == "" || secret == "" {
		return nil, fmt.Errorf("%w: email and password are required", ErrValidation)
	}
	op, err := s.creds.Authenticate(ctx, email, secret)
	if err != nil {
		var authErr *credential.AuthError
		if !errors.As(err, &authErr) {
			return nil, err
		}
		s.logger.InfoContext(ctx, "login failed",
			"cause", string(authErr.Cause), "operator_id", authErr.OperatorID, "client_ip", client.IP)
		s.audit.Record(context.WithoutCancel(ctx), s.event(auditdomain.ActionLogin, authErr.OperatorID, "", client,
			"login failed", map[string]any{"email": opdomain.NormalizeEmail(email)}))
		return nil, credential.ErrInvalidCredentials
	}
	span.SetAttributes(attribute.String("operator.id", op.ID))

	ctx = context.WithoutCancel(ctx)
	pair, err := s.openSession(ctx, op)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	if err := s.creds.Touch(ctx, op.ID, now); err != nil {
		s.logger.WarnContext(ctx, "record last login failed", "operator_id", op.ID, "error", err)
	} else {
		op.LastLoginAt = &now
	}
	s.audit.Record(ctx, s.event(auditdomain.ActionLogin, op.ID, op.ID, client, "login succeeded", map[string]any{
		"lastLoginAt": now.Format(time.RFC3339),
		"client":      audit.DescribeClient(client.UserAgent),
	}))
	return &LoginResult{TokenPair: *pair, Operator: op}, nil
}

// Refresh rotates refreshToken and issues a new access token. Token failures return ErrUnauthorized
// wrapping the precise cause. Presenting an already rotated token is audited, and revokes every
// session of its owner when Config.ReuseRevokesAll is set.
func (s *Service) Refresh(ctx context.Context, refreshToken string, client ClientInfo) (_ *TokenPair, err error) {
	ctx, span := s.tracer.Start(ctx, "session.Refresh")
	defer func() { endSpan(span, err) }()

	if refreshToken == "" {
		return nil, fmt.Errorf("%w: %w", ErrUnauthorized, security.ErrTokenInvalid)
	}
	var (
		access    string
		accessExp time.Time
	)
	// The owner check and access token issue run inside the rotation so a rejected owner leaves no
	// committed successor behind.
	rec, token, err := s.ledger.Rotate(ctx, refreshToken, func(ctx context.Context, ownerID string) error {
		op, err := s.creds.Get(ctx, ownerID)
		if errors.Is(err, credential.ErrNotFound) {
			return fmt.Errorf("%w: owner no longer exists", ErrUnauthorized)
		}
		if err != nil {
			return err
		}
		if !op.Active {
			return fmt.Errorf("%w: %w", ErrUnauthorized, credential.ErrAccountDisabled)
		}
		access, accessExp, err = s.tokens.IssueAccess(principalOf(op))
		return err
	})
	switch {
	case err == nil:
	case errors.Is(err, refreshtoken.ErrTokenReused):
		s.handleReuse(context.WithoutCancel(ctx), refreshToken, client)
		return nil, fmt.Errorf("%w: %w", ErrUnauthorized, err)
	case errors.Is(err, security.ErrTokenInvalid), errors.Is(err, security.ErrTokenExpired):
		return nil, fmt.Errorf("%w: %w", ErrUnauthorized, err)
	default:
		return nil, err
	}
	return &TokenPair{
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     token,
		RefreshExpiresAt: rec.ExpiresAt,
	}, nil
}

// Logout revokes the session behind refreshToken when it belongs to ownerID. Repeating it, or
// presenting an expired or unknown token, succeeds without effect.
func (s *Service) Logout(ctx context.Context, refreshToken, ownerID string, client ClientInfo) (err error) {
	ctx, span := s.tracer.Start(ctx, "session.Logout")
	defer func() { endSpan(span, err) }()

	if refreshToken == "" {
		return fmt.Errorf("%w: refresh token is required", ErrValidation)
	}
	revoked, err := s.ledger.Revoke(ctx, refreshToken, ownerID)
	if errors.Is(err, security.ErrTokenInvalid) {
		return nil
	}
	if err != nil {
		return err
	}
	if revoked {
		s.audit.Record(context.WithoutCancel(ctx), s.event(auditdomain.ActionLogout, ownerID, ownerID, client, "logout", nil))
	}
	return nil
}

// RevokeAllSessions revokes every session of ownerID and records the revocation in the same unit of work.
func (s *Service) RevokeAllSessions(ctx context.Context, ownerID string, client ClientInfo) (revoked int64, err error) {
	ctx, span := s.tracer.Start(ctx, "session.RevokeAllSessions")
	defer func() { endSpan(span, err) }()

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		n, err := s.ledger.RevokeAll(ctx, ownerID)
		if err != nil {
			return err
		}
		revoked = n
		return s.audit.Append(ctx, s.event(auditdomain.ActionLogout, ownerID, ownerID, client,
			"all sessions revoked", map[string]any{"revokedCount": n}))
	})
	if err != nil {
		return 0, err
	}
	return revoked, nil
}

// ChangePassword replaces the operator's secret after checking the current one. The secret change,
// the revocation of every session and the audit event commit or roll back together.
func (s *Service) ChangePassword(ctx context.Context, ownerID, current, next, confirm string, client ClientInfo) (err error) {
	ctx, span := s.tracer.Start(ctx, "session.ChangePassword")
	defer func() { endSpan(span, err) }()

	if next != confirm {
		return ErrConfirmMismatch
	}
	if _, err := s.creds.VerifySecret(ctx, ownerID, current); err != nil {
		switch {
		case errors.Is(err, credential.ErrNotFound):
			return ErrNotFound
		case errors.Is(err, credential.ErrInvalidCredentials):
			return ErrInvalidCurrentSecret
		}
		return err
	}
	if err := s.creds.CheckSecret(next); err != nil {
		return err
	}
	if next == current {
		return &security.WeakSecretError{Reasons: []string{"same as current password"}}
	}

	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.creds.ChangeSecret(ctx, ownerID, next); err != nil {
			if errors.Is(err, credential.ErrNotFound) {
				return ErrNotFound
			}
			return err
		}
		n, err := s.ledger.RevokeAll(ctx, ownerID)
		if err != nil {
			return err
		}
		return s.audit.Append(ctx, s.event(auditdomain.ActionUpdate, ownerID, ownerID, client, "password changed",
			map[string]any{"passwordChanged": true, "sessionsRevoked": n}))
	})
}

// Profile returns the operator ownerID.
func (s *Service) Profile(ctx context.Context, ownerID string) (*opdomain.Operator, error) {
	op, err := s.creds.Get(ctx, ownerID)
	if errors.Is(err, credential.ErrNotFound) {
		return nil, ErrNotFound
	}
	return op, err
}

// ActiveSessions returns the number of live refresh tokens of ownerID.
func (s *Service) ActiveSessions(ctx context.Context, ownerID string) (int64, error) {
	return s.ledger.CountActive(ctx, ownerID)
}

// openSession signs the access token before persisting the refresh record, so a signing failure
// leaves nothing behind.
func (s *Service) openSession(ctx context.Context, op *opdomain.Operator) (*TokenPair, error) {
	access, accessExp, err := s.tokens.IssueAccess(principalOf(op))
	if err != nil {
		return nil, err
	}
	rec, refresh, err := s.ledger.Issue(ctx, op.ID)
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     refresh,
		RefreshExpiresAt: rec.ExpiresAt,
	}, nil
}

func (s *Service) handleReuse(ctx context.Context, refreshToken string, client ClientInfo) {
	claims, err := s.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		return
	}
	ownerID := claims.OwnerID()
	values := map[string]any{"recordId": claims.RecordID}
	if s.cfg.ReuseRevokesAll {
		n, err := s.ledger.RevokeAll(ctx, ownerID)
		if err != nil {
			s.logger.ErrorContext(ctx, "revoke sessions after token reuse failed", "operator_id", ownerID, "error", err)
		} else {
			values["sessionsRevoked"] = n
		}
	}
	s.audit.Record(ctx, s.event(auditdomain.ActionStatusChange, ownerID, "", client, "refresh token reuse detected", values))
}

func (s *Service) event(action auditdomain.Action, entityID, actorID string, client ClientInfo, desc string, values map[string]any) *auditdomain.Event {
	return &auditdomain.Event{
		Action:      action,
		EntityType:  auditdomain.EntityOperator,
		EntityID:    entityID,
		NewValues:   values,
		ActorID:     actorID,
		ClientIP:    client.IP,
		UserAgent:   client.UserAgent,
		Description: desc,
		CreatedAt:   s.now().UTC(),
	}
}

func principalOf(op *opdomain.Operator) security.Principal {
	return security.Principal{OwnerID: op.ID, Email: op.Email, Role: string(op.Role)}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
