package session_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/userauth/internal/clock"
	"github.com/Skotchmaster/userauth/internal/db/dbtest"
	"github.com/Skotchmaster/userauth/internal/domain"
	"github.com/Skotchmaster/userauth/internal/repo"
	"github.com/Skotchmaster/userauth/internal/session"
	"github.com/Skotchmaster/userauth/internal/tokens"
)

func newManager(t *testing.T) (*session.Manager, *tokens.Service, *clock.Manual) {
	t.Helper()
	clk := clock.NewManual(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	tks, err := tokens.New(tokens.Config{
		AccessSecret:  []byte("access-secret"),
		RefreshSecret: []byte("refresh-secret"),
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    7 * 24 * time.Hour,
	}, repo.New(dbtest.New(t)), tokens.WithClock(clk))
	require.NoError(t, err)
	return session.NewManager(tks), tks, clk
}

func TestCreateSession(t *testing.T) {
	t.Parallel()
	m, tks, _ := newManager(t)
	ctx := context.Background()

	pair, err := m.CreateSession(ctx, 4)
	require.NoError(t, err)

	claims, err := tks.VerifyAccess(pair.AccessToken)
	require.NoError(t, err)
	id, err := claims.UserID()
	require.NoError(t, err)
	assert.Equal(t, uint(4), id)

	rc, err := tks.VerifyRefreshSignature(pair.RefreshToken)
	require.NoError(t, err)
	ok, err := tks.IsRefreshValid(ctx, rc.ID)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRefreshSession_SingleUse(t *testing.T) {
	t.Parallel()
	m, _, _ := newManager(t)
	ctx := context.Background()

	first, err := m.CreateSession(ctx, 4)
	require.NoError(t, err)

	second, err := m.RefreshSession(ctx, first.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)

	_, err = m.RefreshSession(ctx, first.RefreshToken)
	require.Error(t, err)
	assert.True(t, domain.IsUnauthorized(err))

	third, err := m.RefreshSession(ctx, second.RefreshToken)
	require.NoError(t, err)
	assert.NotEmpty(t, third.AccessToken)
}

func TestRefreshSession_Rejections(t *testing.T) {
	t.Parallel()
	m, _, clk := newManager(t)
	ctx := context.Background()

	pair, err := m.CreateSession(ctx, 4)
	require.NoError(t, err)

	_, err = m.RefreshSession(ctx, pair.AccessToken)
	assert.True(t, domain.IsUnauthorized(err), "access token must not refresh")

	_, err = m.RefreshSession(ctx, "garbage")
	assert.True(t, domain.IsUnauthorized(err))

	clk.Advance(7 * 24 * time.Hour)
	_, err = m.RefreshSession(ctx, pair.RefreshToken)
	assert.True(t, domain.IsUnauthorized(err))
}

func TestRefreshSession_AfterRevokeAll(t *testing.T) {
	t.Parallel()
	m, tks, _ := newManager(t)
	ctx := context.Background()

	a, err := m.CreateSession(ctx, 8)
	require.NoError(t, err)
	b, err := m.CreateSession(ctx, 8)
	require.NoError(t, err)

	require.NoError(t, tks.RevokeAllForUser(ctx, 8))

	for _, p := range []*session.Pair{a, b} {
		_, err := m.RefreshSession(ctx, p.RefreshToken)
		assert.ErrorIs(t, err, domain.ErrRevoked)
	}
}

func TestRefreshSession_ConcurrentExactlyOneWins(t *testing.T) {
	t.Parallel()
	m, _, _ := newManager(t)
	ctx := context.Background()

	pair, err := m.CreateSession(ctx, 4)
	require.NoError(t, err)

	const n = 5
	results := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = m.RefreshSession(ctx, pair.RefreshToken)
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range results {
		if err == nil {
			wins++
			continue
		}
		assert.True(t, domain.IsUnauthorized(err), "unexpected error: %v", err)
	}
	assert.Equal(t, 1, wins)
}

func TestTerminateSession(t *testing.T) {
	t.Parallel()
	m, _, _ := newManager(t)
	ctx := context.Background()

	pair, err := m.CreateSession(ctx, 4)
	require.NoError(t, err)

	require.NoError(t, m.TerminateSession(ctx, pair.RefreshToken))
	require.NoError(t, m.TerminateSession(ctx, pair.RefreshToken))

	_, err = m.RefreshSession(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, domain.ErrRevoked)

	assert.Error(t, m.TerminateSession(ctx, "garbage"))
}
