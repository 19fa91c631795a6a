// Package handler exposes the session service over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"opsgate/internal/credential"
	"opsgate/internal/db"
	opdomain "opsgate/internal/operator/domain"
	"opsgate/internal/platform/httputil"
	"opsgate/internal/security"
	"opsgate/internal/server/interceptors"
	"opsgate/internal/session/service"
)

const maxBodyBytes = 64 << 10

const (
	codeInvalidCredentials = "invalid_credentials"
	msgInvalidCredentials  = "invalid email or password"
	storageRetryAfter      = 5
)

// SessionService is the surface of service.Service used by the handler.
type SessionService interface {
	Login(ctx context.Context, email, secret string, client service.ClientInfo) (*service.LoginResult, error)
	Refresh(ctx context.Context, refreshToken string, client service.ClientInfo) (*service.TokenPair, error)
	Logout(ctx context.Context, refreshToken, ownerID string, client service.ClientInfo) error
	RevokeAllSessions(ctx context.Context, ownerID string, client service.ClientInfo) (int64, error)
	ChangePassword(ctx context.Context, ownerID, current, next, confirm string, client service.ClientInfo) error
	Profile(ctx context.Context, ownerID string) (*opdomain.Operator, error)
	ActiveSessions(ctx context.Context, ownerID string) (int64, error)
}

// Handler serves the /auth routes.
type Handler struct {
	svc    SessionService
	logger *slog.Logger
}

// NewHandler returns a Handler.
func NewHandler(svc SessionService, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// Login handles POST /auth/login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.svc.Login(r.Context(), req.Email, req.Secret, clientOf(r))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, tokenResponse{
		AccessToken:  res.AccessToken,
		RefreshToken: res.RefreshToken,
		Operator:     summaryOf(res.Operator),
	})
}

// Refresh handles POST /auth/refresh.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !h.decode(w, r, &req) {
		return
	}
	pair, err := h.svc.Refresh(r.Context(), req.RefreshToken, clientOf(r))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, tokenResponse{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken})
}

// Logout handles POST /auth/logout. Revoking an unknown or foreign token still succeeds.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var req refreshRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.svc.Logout(r.Context(), req.RefreshToken, p.OwnerID, clientOf(r)); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, struct{}{})
}

// ChangePassword handles PUT /auth/change-password.
func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var req changePasswordRequest
	if !h.decode(w, r, &req) {
		return
	}
	err := h.svc.ChangePassword(r.Context(), p.OwnerID, req.CurrentSecret, req.NewSecret, req.ConfirmSecret, clientOf(r))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, struct{}{})
}

// Profile handles GET /auth/profile.
func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	op, err := h.svc.Profile(r.Context(), p.OwnerID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	active, err := h.svc.ActiveSessions(r.Context(), p.OwnerID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, profileResponse{
		ID:             op.ID,
		Email:          op.Email,
		Name:           op.DisplayName,
		Role:           string(op.Role),
		Active:         op.Active,
		LastLoginAt:    op.LastLoginAt,
		ActiveSessions: active,
	})
}

// RevokeAll handles POST /auth/sessions/revoke-all.
func (h *Handler) RevokeAll(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	n, err := h.svc.RevokeAllSessions(r.Context(), p.OwnerID, clientOf(r))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, revokeAllResponse{RevokedCount: n})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		httputil.WriteError(w, http.StatusBadRequest, httputil.CodeValidation, "malformed request body")
		return false
	}
	return true
}

// writeServiceError maps service errors to the fixed error envelope. Details go to the log only.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	var weak *security.WeakSecretError
	switch {
	case errors.Is(err, credential.ErrInvalidCredentials):
		httputil.WriteError(w, http.StatusUnauthorized, codeInvalidCredentials, msgInvalidCredentials)
	case errors.Is(err, service.ErrUnauthorized):
		httputil.WriteUnauthorized(w)
	case errors.Is(err, service.ErrInvalidCurrentSecret):
		httputil.WriteError(w, http.StatusUnauthorized, codeInvalidCredentials, "current password is incorrect")
	case errors.As(err, &weak):
		httputil.WriteError(w, http.StatusBadRequest, httputil.CodeValidation, weak.Error())
	case errors.Is(err, service.ErrConfirmMismatch):
		httputil.WriteError(w, http.StatusBadRequest, httputil.CodeValidation, service.ErrConfirmMismatch.Error())
	case errors.Is(err, service.ErrValidation):
		httputil.WriteError(w, http.StatusBadRequest, httputil.CodeValidation, "validation failed")
	case errors.Is(err, service.ErrNotFound):
		httputil.WriteError(w, http.StatusNotFound, httputil.CodeNotFound, "not found")
	case errors.Is(err, db.ErrStorageFailure):
		h.logger.ErrorContext(ctx, "storage failure", "error", err, "request_id", interceptors.GetRequestID(ctx))
		httputil.WriteRetryable(w, http.StatusServiceUnavailable, httputil.CodeUnavailable, "service unavailable", storageRetryAfter)
	default:
		h.logger.ErrorContext(ctx, "request failed", "error", err, "request_id", interceptors.GetRequestID(ctx))
		httputil.WriteInternal(w)
	}
}

func principal(w http.ResponseWriter, r *http.Request) (interceptors.Principal, bool) {
	p, ok := interceptors.GetPrincipal(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w)
	}
	return p, ok
}

func clientOf(r *http.Request) service.ClientInfo {
	c := interceptors.GetClient(r.Context())
	return service.ClientInfo{IP: c.IP, UserAgent: c.UserAgent}
}
