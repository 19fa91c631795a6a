//go:build integration

package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"opsgate/internal/audit"
	auditdomain "opsgate/internal/audit/domain"
	auditrepo "opsgate/internal/audit/repository"
	"opsgate/internal/credential"
	"opsgate/internal/db"
	"opsgate/internal/db/dbtest"
	oprepo "opsgate/internal/operator/repository"
	"opsgate/internal/refreshtoken"
	rtrepo "opsgate/internal/refreshtoken/repository"
	"opsgate/internal/security"
)

func TestChangePassword_RollsBackOnAuditFailure(t *testing.T) {
	conn := dbtest.NewPostgres(t)
	ctx := context.Background()
	timeout := 5 * time.Second

	tokens, err := security.NewTestTokenIssuer()
	require.NoError(t, err)
	store := credential.NewStore(oprepo.NewPostgresRepository(conn, timeout), security.NewHasher(bcrypt.MinCost), nil)
	op, err := store.Provision(ctx, testEmail, "Ops", testSecret)
	require.NoError(t, err)
	ledger := refreshtoken.NewLedger(rtrepo.NewPostgresRepository(conn, timeout), tokens, nil)
	tx := db.NewSQLTransactor(conn)

	good := NewService(store, ledger, tokens, audit.NewRecorder(auditrepo.NewPostgresRepository(conn, timeout), nil), tx, Config{}, nil)
	_, err = good.Login(ctx, testEmail, testSecret, client)
	require.NoError(t, err)

	broken := NewService(store, ledger, tokens, failingAuditor{}, tx, Config{}, nil)
	err = broken.ChangePassword(ctx, op.ID, testSecret, newSecret, newSecret, client)
	require.ErrorIs(t, err, db.ErrStorageFailure)

	n, err := ledger.CountActive(ctx, op.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "session revocation must roll back")
	_, err = store.Authenticate(ctx, testEmail, testSecret)
	assert.NoError(t, err, "old secret must still work after rollback")

	require.NoError(t, good.ChangePassword(ctx, op.ID, testSecret, newSecret, newSecret, client))
	n, err = ledger.CountActive(ctx, op.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
	events, err := auditrepo.NewPostgresRepository(conn, timeout).List(ctx, auditrepo.Filter{Action: auditdomain.ActionUpdate})
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestRevokeAllSessions_RacingRefreshLeavesNoSession(t *testing.T) {
	conn := dbtest.NewPostgres(t)
	ctx := context.Background()
	timeout := 5 * time.Second

	tokens, err := security.NewTestTokenIssuer()
	require.NoError(t, err)
	store := credential.NewStore(oprepo.NewPostgresRepository(conn, timeout), security.NewHasher(bcrypt.MinCost), nil)
	op, err := store.Provision(ctx, testEmail, "Ops", testSecret)
	require.NoError(t, err)
	ledger := refreshtoken.NewLedger(rtrepo.NewPostgresRepository(conn, timeout), tokens, nil)
	svc := NewService(store, ledger, tokens, audit.NewRecorder(auditrepo.NewPostgresRepository(conn, timeout), nil),
		db.NewSQLTransactor(conn), Config{}, nil)

	for i := 0; i < 20; i++ {
		res, err := svc.Login(ctx, testEmail, testSecret, client)
		require.NoError(t, err)

		var (
			wg      sync.WaitGroup
			pair    *TokenPair
			revoked error
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			pair, _ = svc.Refresh(ctx, res.RefreshToken, client)
		}()
		go func() {
			defer wg.Done()
			_, revoked = svc.RevokeAllSessions(ctx, op.ID, client)
		}()
		wg.Wait()
		require.NoError(t, revoked)

		n, err := ledger.CountActive(ctx, op.ID)
		require.NoError(t, err)
		require.Zero(t, n, "iteration %d left a live session", i)
		if pair != nil {
			_, err := svc.Refresh(ctx, pair.RefreshToken, client)
			require.ErrorIs(t, err, ErrUnauthorized)
		}
	}
}
