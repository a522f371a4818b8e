// Package activation issues and redeems single-use email verification tokens.
package activation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Skotchmaster/userauth/internal/clock"
	"github.com/Skotchmaster/userauth/internal/domain"
	"github.com/Skotchmaster/userauth/internal/models"
)

// DefaultWindow is how long an activation link stays usable.
const DefaultWindow = 24 * time.Hour

type Store interface {
	CreateActivation(ctx context.Context, t *models.ActivationToken) error
	FindActivation(ctx context.Context, token string) (*models.ActivationToken, error)
	MarkActivationUsed(ctx context.Context, token string, at time.Time) error
}

type Reason int

const (
	ReasonNone Reason = iota
	ReasonNotFound
	ReasonAlreadyUsed
	ReasonExpired
)

func (r Reason) String() string {
	switch r {
	case ReasonNotFound:
		return "Token not found"
	case ReasonAlreadyUsed:
		return "Token already used"
	case ReasonExpired:
		return "Token expired"
	}
	return ""
}

// Err maps the reason onto the shared domain errors.
func (r Reason) Err() error {
	switch r {
	case ReasonNotFound:
		return domain.ErrNotFound
	case ReasonAlreadyUsed:
		return domain.ErrAlreadyUsed
	case ReasonExpired:
		return domain.ErrExpired
	}
	return nil
}

type Result struct {
	Valid  bool
	UserID uint
	Reason Reason
}

type Service struct {
	store  Store
	clock  clock.Clock
	window time.Duration
	newID  func() string
}

func New(store Store, clk clock.Clock, window time.Duration) *Service {
	if clk == nil {
		clk = clock.System{}
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &Service{store: store, clock: clk, window: window, newID: uuid.NewString}
}

// Issue stores a new pending token for userID. Earlier pending tokens stay
// valid.
func (s *Service) Issue(ctx context.Context, userID uint) (string, error) {
	now := s.clock.Now()
	t := &models.ActivationToken{
		Token:     s.newID(),
		UserID:    userID,
		ExpiresAt: now.Add(s.window),
		CreatedAt: now,
	}
	if err := s.store.CreateActivation(ctx, t); err != nil {
		return "", fmt.Errorf("store activation token: %w", err)
	}
	return t.Token, nil
}

// Verify classifies token without changing it. Checks run in order: unknown,
// already used, expired. A non-nil error is always a store failure.
func (s *Service) Verify(ctx context.Context, token string) (Result, error) {
	t, err := s.store.FindActivation(ctx, token)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return Result{Reason: ReasonNotFound}, nil
		}
		return Result{}, err
	}
	if t.UsedAt != nil {
		return Result{UserID: t.UserID, Reason: ReasonAlreadyUsed}, nil
	}
	if !s.clock.Now().Before(t.ExpiresAt) {
		return Result{UserID: t.UserID, Reason: ReasonExpired}, nil
	}
	return Result{Valid: true, UserID: t.UserID}, nil
}

// Consume marks token used. Only the first call succeeds; later ones get
// domain.ErrAlreadyUsed.
func (s *Service) Consume(ctx context.Context, token string) error {
	return s.store.MarkActivationUsed(ctx, token, s.clock.Now())
}
