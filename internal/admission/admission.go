// Package admission decides whether a request carrying an access token may
// proceed.
package admission

import (
	"context"
	"errors"
	"strings"

	"github.com/Skotchmaster/userauth/internal/domain"
	"github.com/Skotchmaster/userauth/internal/models"
	"github.com/Skotchmaster/userauth/internal/tokens"
)

type Mode int

const (
	// ModeSignatureOnly trusts a valid token until it expires.
	ModeSignatureOnly Mode = iota
	// ModeLiveStatus additionally reads the account status, so a block takes
	// effect on the next request instead of at token expiry.
	ModeLiveStatus
)

type Outcome int

const (
	Admitted Outcome = iota
	RejectedMissing
	RejectedInvalid
	RejectedForbidden
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Admitted:
		return "admitted"
	case RejectedMissing:
		return "missing_token"
	case RejectedInvalid:
		return "invalid_token"
	case RejectedForbidden:
		return "forbidden"
	case Failed:
		return "failed"
	}
	return "unknown"
}

type Decision struct {
	Outcome Outcome
	UserID  uint
	Err     error
}

type AccessVerifier interface {
	VerifyAccess(raw string) (*tokens.AccessClaims, error)
}

type UserDirectory interface {
	FindUserByID(ctx context.Context, id uint) (*models.User, error)
}

type Decider struct {
	Tokens AccessVerifier
	Users  UserDirectory
}

func New(verifier AccessVerifier, users UserDirectory) *Decider {
	return &Decider{Tokens: verifier, Users: users}
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func (d *Decider) Decide(ctx context.Context, authorization string, mode Mode) Decision {
	raw, ok := BearerToken(authorization)
	if !ok {
		return Decision{Outcome: RejectedMissing}
	}

	claims, err := d.Tokens.VerifyAccess(raw)
	if err != nil {
		return Decision{Outcome: RejectedInvalid, Err: err}
	}
	userID, err := claims.UserID()
	if err != nil {
		return Decision{Outcome: RejectedInvalid, Err: err}
	}

	if mode == ModeSignatureOnly {
		return Decision{Outcome: Admitted, UserID: userID}
	}

	user, err := d.Users.FindUserByID(ctx, userID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return Decision{Outcome: RejectedInvalid, UserID: userID, Err: err}
	case err != nil:
		return Decision{Outcome: Failed, UserID: userID, Err: err}
	case user.Status == domain.StatusBlocked:
		return Decision{Outcome: RejectedForbidden, UserID: userID, Err: domain.ErrForbidden}
	}
	return Decision{Outcome: Admitted, UserID: userID}
}
