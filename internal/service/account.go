// Package service implements the account flows behind the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Skotchmaster/userauth/internal/activation"
	"github.com/Skotchmaster/userauth/internal/clock"
	"github.com/Skotchmaster/userauth/internal/domain"
	"github.com/Skotchmaster/userauth/internal/events"
	"github.com/Skotchmaster/userauth/internal/hash"
	"github.com/Skotchmaster/userauth/internal/logging"
	"github.com/Skotchmaster/userauth/internal/models"
	"github.com/Skotchmaster/userauth/internal/notify"
	"github.com/Skotchmaster/userauth/internal/session"
	"github.com/Skotchmaster/userauth/internal/tokens"
	"github.com/Skotchmaster/userauth/internal/util"
)

type UserStore interface {
	CreateUserIfNotExists(ctx context.Context, u *models.User) error
	FindUserByID(ctx context.Context, id uint) (*models.User, error)
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
	TouchLastLogin(ctx context.Context, id uint, at time.Time) error
	ListUsers(ctx context.Context, column string, desc bool, page util.Page) ([]models.User, error)
	DeleteUsers(ctx context.Context, ids []uint) (int64, error)
	DeleteUsersByStatus(ctx context.Context, status domain.UserStatus) (int64, error)
	UpdateStatus(ctx context.Context, ids []uint, status domain.UserStatus, from []domain.UserStatus) (int64, error)
	ActivateUser(ctx context.Context, id uint) (bool, error)
}

type AccountService struct {
	Users      UserStore
	Hasher     hash.Hasher
	Tokens     *tokens.Service
	Sessions   *session.Manager
	Activation *activation.Service
	Mailer     notify.ActivationSender
	Events     events.Publisher
	Clock      clock.Clock
}

type AuthResult struct {
	User *models.User
	Pair *session.Pair
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *AccountService) Register(ctx context.Context, name, email, password string) (*AuthResult, error) {
	l := logging.FromContext(ctx).With("svc", "account.register")

	pwHash, err := s.Hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	user := &models.User{
		Name:             strings.TrimSpace(name),
		Email:            normalizeEmail(email),
		PasswordHash:     pwHash,
		Status:           domain.StatusUnverified,
		RegistrationTime: s.Clock.Now(),
	}
	if err := s.Users.CreateUserIfNotExists(ctx, user); err != nil {
		return nil, err
	}

	token, err := s.Activation.Issue(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	if err := s.Mailer.SendActivation(ctx, user.Email, user.Name, token); err != nil {
		l.Error("activation_mail_failed", "user_id", user.ID, "error", err)
	}

	pair, err := s.Sessions.CreateSession(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.TypeUserRegistered, "", user.ID)
	l.Info("user_registered", "user_id", user.ID)
	return &AuthResult{User: user, Pair: pair}, nil
}

// Login fails with domain.ErrInvalidCredential for an unknown email or a
// wrong password and with domain.ErrForbidden for a blocked account.
func (s *AccountService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	user, err := s.Users.FindUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrInvalidCredential
		}
		return nil, err
	}

	ok, err := s.Hasher.Verify(user.PasswordHash, password)
	if err != nil {
		return nil, fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		return nil, domain.ErrInvalidCredential
	}
	if user.Status == domain.StatusBlocked {
		return nil, domain.ErrForbidden
	}

	now := s.Clock.Now()
	if err := s.Users.TouchLastLogin(ctx, user.ID, now); err != nil {
		return nil, err
	}
	user.LastLoginTime = &now

	pair, err := s.Sessions.CreateSession(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.TypeUserLoggedIn, "", user.ID)
	return &AuthResult{User: user, Pair: pair}, nil
}

// Refresh rotates the pair of a user who is not blocked. A still valid refresh
// token of a blocked user is revoked and the call fails with domain.ErrForbidden;
// this covers tokens minted while the block was being applied.
func (s *AccountService) Refresh(ctx context.Context, refreshToken string) (*session.Pair, error) {
	claims, err := s.Tokens.VerifyRefreshSignature(refreshToken)
	if err != nil {
		return nil, err
	}
	userID, err := claims.UserID()
	if err != nil {
		return nil, err
	}

	user, err := s.Users.FindUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("refresh for unknown user %d: %w", userID, domain.ErrInvalidCredential)
		}
		return nil, err
	}
	if user.Status == domain.StatusBlocked {
		ok, err := s.Tokens.IsRefreshValid(ctx, claims.ID)
		if err != nil {
			return nil, fmt.Errorf("lookup refresh token: %w", err)
		}
		if !ok {
			return nil, fmt.Errorf("refresh token %s: %w", claims.ID, domain.ErrRevoked)
		}
		if err := s.Tokens.Revoke(ctx, claims.ID); err != nil {
			logging.FromContext(ctx).Error("revoke_blocked_refresh_failed", "user_id", userID, "error", err)
		}
		return nil, domain.ErrForbidden
	}

	return s.Sessions.RefreshSession(ctx, refreshToken)
}

func (s *AccountService) Logout(ctx context.Context, refreshToken string) error {
	return s.Sessions.TerminateSession(ctx, refreshToken)
}

// ActivationError carries the reason an activation link was refused.
type ActivationError struct {
	Reason activation.Reason
}

func (e *ActivationError) Error() string { return e.Reason.String() }

func (e *ActivationError) Unwrap() error { return e.Reason.Err() }

// Activate redeems an activation token. The status moves to ACTIVE before the
// token is consumed, so a failure in between leaves a token that can simply
// be followed again. Blocked accounts stay blocked.
func (s *AccountService) Activate(ctx context.Context, token string) error {
	res, err := s.Activation.Verify(ctx, token)
	if err != nil {
		return err
	}
	if !res.Valid {
		return &ActivationError{Reason: res.Reason}
	}

	changed, err := s.Users.ActivateUser(ctx, res.UserID)
	if err != nil {
		return fmt.Errorf("activate user %d: %w", res.UserID, err)
	}
	if err := s.Activation.Consume(ctx, token); err != nil {
		if errors.Is(err, domain.ErrAlreadyUsed) {
			return &ActivationError{Reason: activation.ReasonAlreadyUsed}
		}
		return err
	}
	if changed {
		s.publish(ctx, events.TypeUserActivated, string(domain.StatusActive), res.UserID)
	}
	return nil
}

func (s *AccountService) Me(ctx context.Context, userID uint) (*models.User, error) {
	return s.Users.FindUserByID(ctx, userID)
}

var sortColumns = map[string]string{
	"name":             "name",
	"email":            "email",
	"status":           "status",
	"registrationTime": "registration_time",
	"lastLoginTime":    "last_login_time",
}

// List sorts by a whitelisted field. Unknown fields sort by registrationTime
// and any order other than "asc" is descending. A zero page lists everyone.
func (s *AccountService) List(ctx context.Context, sortBy, order string, page util.Page) ([]models.User, error) {
	column, ok := sortColumns[sortBy]
	if !ok {
		column = sortColumns["registrationTime"]
	}
	return s.Users.ListUsers(ctx, column, !strings.EqualFold(order, "asc"), page)
}

func (s *AccountService) DeleteMany(ctx context.Context, ids []uint) (int64, error) {
	n, err := s.Users.DeleteUsers(ctx, ids)
	if err != nil {
		return 0, err
	}
	s.publish(ctx, events.TypeUsersDeleted, "", ids...)
	return n, nil
}

func (s *AccountService) DeleteUnverified(ctx context.Context) (int64, error) {
	return s.Users.DeleteUsersByStatus(ctx, domain.StatusUnverified)
}

// UpdateStatusMany only unblocks blocked users and only blocks users that are
// not blocked yet. Blocking revokes every refresh token of the ids first.
func (s *AccountService) UpdateStatusMany(ctx context.Context, ids []uint, status domain.UserStatus) (int64, error) {
	if !status.Valid() {
		return 0, fmt.Errorf("%w: unknown status %q", domain.ErrValidation, status)
	}

	var from []domain.UserStatus
	switch status {
	case domain.StatusActive:
		from = []domain.UserStatus{domain.StatusBlocked}
	case domain.StatusBlocked:
		from = []domain.UserStatus{domain.StatusUnverified, domain.StatusActive}
		for _, id := range ids {
			if err := s.Tokens.RevokeAllForUser(ctx, id); err != nil {
				return 0, fmt.Errorf("revoke sessions of %d: %w", id, err)
			}
		}
	}

	n, err := s.Users.UpdateStatus(ctx, ids, status, from)
	if err != nil {
		return 0, err
	}
	s.publish(ctx, events.TypeUsersStatusChanged, string(status), ids...)
	return n, nil
}

func (s *AccountService) publish(ctx context.Context, typ, status string, ids ...uint) {
	ev := events.UserEvent{Type: typ, UserIDs: ids, Status: status, Occurred: s.Clock.Now()}
	key := ""
	if len(ids) == 1 {
		key = fmt.Sprint(ids[0])
	}
	if err := s.Events.PublishEvent(ctx, events.TopicUserEvents, key, ev); err != nil {
		logging.FromContext(ctx).Warn("publish_event_failed", "type", typ, "error", err)
	}
}
