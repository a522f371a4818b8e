package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/Skotchmaster/userauth/internal/activation"
	"github.com/Skotchmaster/userauth/internal/clock"
	"github.com/Skotchmaster/userauth/internal/db/dbtest"
	"github.com/Skotchmaster/userauth/internal/domain"
	"github.com/Skotchmaster/userauth/internal/events"
	"github.com/Skotchmaster/userauth/internal/hash"
	"github.com/Skotchmaster/userauth/internal/repo"
	"github.com/Skotchmaster/userauth/internal/session"
	"github.com/Skotchmaster/userauth/internal/tokens"
	"github.com/Skotchmaster/userauth/internal/util"
)

type sentMail struct{ to, name, token string }

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (f *fakeMailer) SendActivation(_ context.Context, to, name, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMail{to, name, token})
	return f.err
}

func (f *fakeMailer) last(t *testing.T) sentMail {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.sent)
	return f.sent[len(f.sent)-1]
}

type fakePublisher struct {
	mu     sync.Mutex
	events []events.UserEvent
}

func (p *fakePublisher) PublishEvent(_ context.Context, _, _ string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if ev, ok := event.(events.UserEvent); ok {
		p.events = append(p.events, ev)
	}
	return nil
}

func (p *fakePublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Type)
	}
	return out
}

type testEnv struct {
	svc    *AccountService
	store  *repo.GormRepo
	clock  *clock.Manual
	mailer *fakeMailer
	pub    *fakePublisher
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	clk := clock.NewManual(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	store := repo.New(dbtest.New(t))
	tks, err := tokens.New(tokens.Config{
		AccessSecret:  []byte("test-access-secret"),
		RefreshSecret: []byte("test-refresh-secret"),
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    7 * 24 * time.Hour,
	}, store, tokens.WithClock(clk))
	require.NoError(t, err)

	env := &testEnv{store: store, clock: clk, mailer: &fakeMailer{}, pub: &fakePublisher{}}
	env.svc = &AccountService{
		Users:      store,
		Hasher:     hash.NewBcrypt(bcrypt.MinCost),
		Tokens:     tks,
		Sessions:   session.NewManager(tks),
		Activation: activation.New(store, clk, 24*time.Hour),
		Mailer:     env.mailer,
		Events:     env.pub,
		Clock:      clk,
	}
	return env
}

func (e *testEnv) register(t *testing.T, email string) *AuthResult {
	t.Helper()
	res, err := e.svc.Register(context.Background(), "User", email, "password")
	require.NoError(t, err)
	return res
}

func TestRegister(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	res, err := env.svc.Register(ctx, " Ann ", "  Ann@Example.COM ", "password")
	require.NoError(t, err)

	assert.NotZero(t, res.User.ID)
	assert.Equal(t, "Ann", res.User.Name)
	assert.Equal(t, "ann@example.com", res.User.Email)
	assert.Equal(t, domain.StatusUnverified, res.User.Status)
	assert.NotEqual(t, "password", res.User.PasswordHash)
	assert.NotEmpty(t, res.Pair.AccessToken)
	assert.NotEmpty(t, res.Pair.RefreshToken)

	mail := env.mailer.last(t)
	assert.Equal(t, "ann@example.com", mail.to)
	assert.NotEmpty(t, mail.token)
	assert.Contains(t, env.pub.types(), events.TypeUserRegistered)

	_, err = env.svc.Register(ctx, "Other", "ann@example.com", "password")
	require.ErrorIs(t, err, domain.ErrConflict)
}

func TestRegister_MailFailureIsNotFatal(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.mailer.err = errors.New("smtp down")

	res, err := env.svc.Register(context.Background(), "Bob", "bob@example.com", "password")
	require.NoError(t, err)
	assert.NotEmpty(t, res.Pair.AccessToken)
}

func TestLogin(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()
	reg := env.register(t, "carl@example.com")

	env.clock.Advance(time.Hour)
	res, err := env.svc.Login(ctx, "CARL@example.com", "password")
	require.NoError(t, err)
	assert.Equal(t, reg.User.ID, res.User.ID)
	require.NotNil(t, res.User.LastLoginTime)

	stored, err := env.store.FindUserByID(ctx, reg.User.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.LastLoginTime)
	assert.WithinDuration(t, env.clock.Now(), *stored.LastLoginTime, time.Second)

	_, err = env.svc.Login(ctx, "carl@example.com", "wrong")
	assert.ErrorIs(t, err, domain.ErrInvalidCredential)

	_, err = env.svc.Login(ctx, "nobody@example.com", "password")
	assert.ErrorIs(t, err, domain.ErrInvalidCredential)
}

func TestLogin_Blocked(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()
	reg := env.register(t, "dina@example.com")

	n, err := env.svc.UpdateStatusMany(ctx, []uint{reg.User.ID}, domain.StatusBlocked)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = env.svc.Login(ctx, "dina@example.com", "password")
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestActivate(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()
	reg := env.register(t, "eve@example.com")
	token := env.mailer.last(t).token

	require.NoError(t, env.svc.Activate(ctx, token))
	u, err := env.svc.Me(ctx, reg.User.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, u.Status)

	err = env.svc.Activate(ctx, token)
	var aerr *ActivationError
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, activation.ReasonAlreadyUsed, aerr.Reason)
	assert.ErrorIs(t, err, domain.ErrAlreadyUsed)

	err = env.svc.Activate(ctx, "unknown")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, "Token not found", err.Error())
}

func TestActivate_Expired(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()
	reg := env.register(t, "fay@example.com")
	token := env.mailer.last(t).token

	env.clock.Advance(24 * time.Hour)
	err := env.svc.Activate(ctx, token)
	assert.ErrorIs(t, err, domain.ErrExpired)

	u, err := env.svc.Me(ctx, reg.User.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusUnverified, u.Status)
}

func TestActivate_BlockedStaysBlocked(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()
	reg := env.register(t, "gus@example.com")
	token := env.mailer.last(t).token

	_, err := env.svc.UpdateStatusMany(ctx, []uint{reg.User.ID}, domain.StatusBlocked)
	require.NoError(t, err)

	require.NoError(t, env.svc.Activate(ctx, token))
	u, err := env.svc.Me(ctx, reg.User.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusBlocked, u.Status)
}

func TestList(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	for _, email := range []string{"b@example.com", "c@example.com", "a@example.com"} {
		env.register(t, email)
		env.clock.Advance(time.Minute)
	}

	users, err := env.svc.List(ctx, "email", "asc", util.Page{})
	require.NoError(t, err)
	require.Len(t, users, 3)
	assert.Equal(t, "a@example.com", users[0].Email)
	assert.Equal(t, "c@example.com", users[2].Email)

	users, err = env.svc.List(ctx, "email", "DESC", util.Page{})
	require.NoError(t, err)
	assert.Equal(t, "c@example.com", users[0].Email)

	users, err = env.svc.List(ctx, "password_hash; DROP TABLE users", "", util.Page{})
	require.NoError(t, err)
	assert.Len(t, users, 3)

	users, err = env.svc.List(ctx, "email", "asc", util.Page{Offset: 1, Limit: 1})
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "b@example.com", users[0].Email)
}

func TestDeleteMany(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.register(t, "a@example.com")
	b := env.register(t, "b@example.com")
	keep := env.register(t, "keep@example.com")

	n, err := env.svc.DeleteMany(ctx, []uint{a.User.ID, b.User.ID, 999})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	_, err = env.svc.Me(ctx, a.User.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = env.svc.Me(ctx, keep.User.ID)
	assert.NoError(t, err)

	_, err = env.svc.Refresh(ctx, a.Pair.RefreshToken)
	assert.True(t, domain.IsUnauthorized(err))
}

func TestDeleteUnverified(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()
	env.register(t, "a@example.com")
	active := env.register(t, "b@example.com")
	require.NoError(t, env.svc.Activate(ctx, env.mailer.last(t).token))

	n, err := env.svc.DeleteUnverified(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = env.svc.Me(ctx, active.User.ID)
	assert.NoError(t, err)
}

func TestUpdateStatusMany(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.register(t, "a@example.com")
	b := env.register(t, "b@example.com")
	ids := []uint{a.User.ID, b.User.ID}

	n, err := env.svc.UpdateStatusMany(ctx, ids, domain.StatusActive)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n, "only blocked users are unblocked")

	n, err = env.svc.UpdateStatusMany(ctx, []uint{a.User.ID}, domain.StatusBlocked)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = env.svc.UpdateStatusMany(ctx, ids, domain.StatusBlocked)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "already blocked users are skipped")

	for _, r := range []*AuthResult{a, b} {
		_, err := env.svc.Refresh(ctx, r.Pair.RefreshToken)
		assert.ErrorIs(t, err, domain.ErrRevoked)
	}

	n, err = env.svc.UpdateStatusMany(ctx, ids, domain.StatusActive)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	_, err = env.svc.UpdateStatusMany(ctx, ids, domain.UserStatus("DELETED"))
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Contains(t, env.pub.types(), events.TypeUsersStatusChanged)
}

func TestRefreshAndLogout(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()
	reg := env.register(t, "h@example.com")

	pair, err := env.svc.Refresh(ctx, reg.Pair.RefreshToken)
	require.NoError(t, err)

	require.NoError(t, env.svc.Logout(ctx, pair.RefreshToken))
	_, err = env.svc.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, domain.ErrRevoked)
}

func TestRefresh_BlockedUserRejected(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()
	reg := env.register(t, "ivy@example.com")

	_, err := env.svc.UpdateStatusMany(ctx, []uint{reg.User.ID}, domain.StatusBlocked)
	require.NoError(t, err)

	_, err = env.svc.Refresh(ctx, reg.Pair.RefreshToken)
	assert.ErrorIs(t, err, domain.ErrRevoked)

	// A session minted concurrently with the block survives RevokeAllForUser.
	late, err := env.svc.Sessions.CreateSession(ctx, reg.User.ID)
	require.NoError(t, err)

	_, err = env.svc.Refresh(ctx, late.RefreshToken)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	claims, err := env.svc.Tokens.VerifyRefreshSignature(late.RefreshToken)
	require.NoError(t, err)
	ok, err := env.svc.Tokens.IsRefreshValid(ctx, claims.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = env.svc.Refresh(ctx, late.RefreshToken)
	assert.ErrorIs(t, err, domain.ErrRevoked)
}

func TestRefresh_AfterRevokeAllNewSessionWorks(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()
	reg := env.register(t, "jon@example.com")

	require.NoError(t, env.svc.Tokens.RevokeAllForUser(ctx, reg.User.ID))
	_, err := env.svc.Refresh(ctx, reg.Pair.RefreshToken)
	assert.ErrorIs(t, err, domain.ErrRevoked)

	fresh, err := env.svc.Sessions.CreateSession(ctx, reg.User.ID)
	require.NoError(t, err)
	_, err = env.svc.Refresh(ctx, fresh.RefreshToken)
	assert.NoError(t, err)
}

func TestActivate_RetryAfterStatusWritten(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()
	reg := env.register(t, "kim@example.com")
	token := env.mailer.last(t).token

	// Status was written but the token was never consumed.
	changed, err := env.store.ActivateUser(ctx, reg.User.ID)
	require.NoError(t, err)
	require.True(t, changed)

	require.NoError(t, env.svc.Activate(ctx, token))
	u, err := env.svc.Me(ctx, reg.User.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, u.Status)

	err = env.svc.Activate(ctx, token)
	var aerr *ActivationError
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, activation.ReasonAlreadyUsed, aerr.Reason)
}
