// Package tokens signs and verifies access tokens and manages the stored
// refresh tokens that back them.
package tokens

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/Skotchmaster/userauth/internal/clock"
	"github.com/Skotchmaster/userauth/internal/domain"
	"github.com/Skotchmaster/userauth/internal/models"
)

var ErrMisconfigured = errors.New("tokens: misconfigured")

// RefreshStore persists refresh token records.
type RefreshStore interface {
	CreateRefresh(ctx context.Context, t *models.RefreshToken) error
	FindRefreshByJTI(ctx context.Context, jti string) (*models.RefreshToken, error)
	RevokeRefresh(ctx context.Context, jti string) error
	RevokeAllRefreshForUser(ctx context.Context, userID uint) error
	RotateRefresh(ctx context.Context, oldJTI string, next *models.RefreshToken, now time.Time) error
}

type Config struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

type Service struct {
	cfg        Config
	store      RefreshStore
	clock      clock.Clock
	newID      func() string
	parserOpts []jwt.ParserOption
}

type Option func(*Service)

func WithClock(c clock.Clock) Option {
	return func(s *Service) { s.clock = c }
}

// WithIDGenerator replaces the jti generator.
func WithIDGenerator(f func() string) Option {
	return func(s *Service) { s.newID = f }
}

// New validates cfg once; a Service that was built can always sign.
func New(cfg Config, store RefreshStore, opts ...Option) (*Service, error) {
	switch {
	case len(cfg.AccessSecret) == 0:
		return nil, fmt.Errorf("%w: access secret is empty", ErrMisconfigured)
	case len(cfg.RefreshSecret) == 0:
		return nil, fmt.Errorf("%w: refresh secret is empty", ErrMisconfigured)
	case bytes.Equal(cfg.AccessSecret, cfg.RefreshSecret):
		return nil, fmt.Errorf("%w: access and refresh secrets must differ", ErrMisconfigured)
	case store == nil:
		return nil, fmt.Errorf("%w: refresh store is nil", ErrMisconfigured)
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = DefaultLifetime
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = DefaultLifetime
	}

	s := &Service{
		cfg:   cfg,
		store: store,
		clock: clock.System{},
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.parserOpts = []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.clock.Now),
	}
	return s, nil
}

func (s *Service) AccessTTL() time.Duration  { return s.cfg.AccessTTL }
func (s *Service) RefreshTTL() time.Duration { return s.cfg.RefreshTTL }

func (s *Service) SignAccess(userID uint) (string, error) {
	now := s.clock.Now()
	claims := AccessClaims{
		Type: typeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject(userID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.AccessTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.cfg.AccessSecret)
}

// VerifyAccess is pure: signature, algorithm, expiry and type. It never
// touches the store.
func (s *Service) VerifyAccess(raw string) (*AccessClaims, error) {
	var claims AccessClaims
	if err := s.parse(raw, &claims, s.cfg.AccessSecret); err != nil {
		return nil, err
	}
	if err := checkType(claims.Type, typeAccess); err != nil {
		return nil, err
	}
	if _, err := claims.UserID(); err != nil {
		return nil, err
	}
	return &claims, nil
}

type IssuedRefresh struct {
	Token     string
	JTI       string
	ExpiresAt time.Time
}

func (s *Service) IssueRefresh(ctx context.Context, userID uint) (*IssuedRefresh, error) {
	issued, rec, err := s.newRefresh(userID)
	if err != nil {
		return nil, err
	}
	if err := s.store.CreateRefresh(ctx, rec); err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}
	return issued, nil
}

func (s *Service) newRefresh(userID uint) (*IssuedRefresh, *models.RefreshToken, error) {
	now := s.clock.Now()
	jti := s.newID()
	expiresAt := now.Add(s.cfg.RefreshTTL)
	claims := RefreshClaims{
		Type: typeRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   subject(userID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.cfg.RefreshSecret)
	if err != nil {
		return nil, nil, err
	}
	rec := &models.RefreshToken{
		JTI:       jti,
		UserID:    userID,
		ExpiresAt: expiresAt,
		CreatedAt: now,
	}
	return &IssuedRefresh{Token: token, JTI: jti, ExpiresAt: expiresAt}, rec, nil
}

// VerifyRefreshSignature checks the token itself only; whether the record is
// still usable is IsRefreshValid's job.
func (s *Service) VerifyRefreshSignature(raw string) (*RefreshClaims, error) {
	var claims RefreshClaims
	if err := s.parse(raw, &claims, s.cfg.RefreshSecret); err != nil {
		return nil, err
	}
	if err := checkType(claims.Type, typeRefresh); err != nil {
		return nil, err
	}
	if claims.ID == "" {
		return nil, fmt.Errorf("%w: missing jti", domain.ErrInvalidCredential)
	}
	if _, err := claims.UserID(); err != nil {
		return nil, err
	}
	return &claims, nil
}

func (s *Service) IsRefreshValid(ctx context.Context, jti string) (bool, error) {
	rec, err := s.store.FindRefreshByJTI(ctx, jti)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return rec.Active(s.clock.Now()), nil
}

// Revoke is idempotent and does nothing for an unknown jti.
func (s *Service) Revoke(ctx context.Context, jti string) error {
	return s.store.RevokeRefresh(ctx, jti)
}

// RevokeAllForUser ends every outstanding session of userID. It does not
// block concurrent issuance: a refresh token minted while this runs may
// survive it.
func (s *Service) RevokeAllForUser(ctx context.Context, userID uint) error {
	return s.store.RevokeAllRefreshForUser(ctx, userID)
}

// Rotate atomically revokes oldJTI and stores a fresh refresh token for
// userID. It fails with domain.ErrRevoked when oldJTI was no longer active,
// including when a concurrent Rotate of the same jti won.
func (s *Service) Rotate(ctx context.Context, oldJTI string, userID uint) (*IssuedRefresh, error) {
	issued, rec, err := s.newRefresh(userID)
	if err != nil {
		return nil, err
	}
	if err := s.store.RotateRefresh(ctx, oldJTI, rec, s.clock.Now()); err != nil {
		return nil, err
	}
	return issued, nil
}

func (s *Service) parse(raw string, claims jwt.Claims, secret []byte) error {
	tkn, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return secret, nil
	}, s.parserOpts...)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrInvalidCredential, err)
	}
	if !tkn.Valid {
		return domain.ErrInvalidCredential
	}
	return nil
}
