// Package session pairs access and refresh tokens into login sessions.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/Skotchmaster/userauth/internal/domain"
	"github.com/Skotchmaster/userauth/internal/tokens"
)

type Pair struct {
	AccessToken      string
	RefreshToken     string
	RefreshExpiresAt time.Time
}

type Manager struct {
	tokens *tokens.Service
}

func NewManager(t *tokens.Service) *Manager {
	return &Manager{tokens: t}
}

func (m *Manager) CreateSession(ctx context.Context, userID uint) (*Pair, error) {
	access, err := m.tokens.SignAccess(userID)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}
	refresh, err := m.tokens.IssueRefresh(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &Pair{AccessToken: access, RefreshToken: refresh.Token, RefreshExpiresAt: refresh.ExpiresAt}, nil
}

// RefreshSession exchanges a refresh token for a new pair. The presented
// token is revoked in the same step, so it works at most once. Rejections
// satisfy domain.IsUnauthorized; anything else is a store failure.
// The owner's account status is not consulted here: a token issued while the
// owner was being blocked keeps rotating unless the caller checks status first.
func (m *Manager) RefreshSession(ctx context.Context, presented string) (*Pair, error) {
	claims, err := m.tokens.VerifyRefreshSignature(presented)
	if err != nil {
		return nil, err
	}
	userID, err := claims.UserID()
	if err != nil {
		return nil, err
	}

	ok, err := m.tokens.IsRefreshValid(ctx, claims.ID)
	if err != nil {
		return nil, fmt.Errorf("lookup refresh token: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("refresh token %s: %w", claims.ID, domain.ErrRevoked)
	}

	refresh, err := m.tokens.Rotate(ctx, claims.ID, userID)
	if err != nil {
		return nil, err
	}
	access, err := m.tokens.SignAccess(userID)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}
	return &Pair{AccessToken: access, RefreshToken: refresh.Token, RefreshExpiresAt: refresh.ExpiresAt}, nil
}

// TerminateSession revokes the presented refresh token. Logout always
// succeeds for the client; the error is returned for logging only.
func (m *Manager) TerminateSession(ctx context.Context, presented string) error {
	claims, err := m.tokens.VerifyRefreshSignature(presented)
	if err != nil {
		return err
	}
	return m.tokens.Revoke(ctx, claims.ID)
}
