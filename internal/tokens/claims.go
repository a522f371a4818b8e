package tokens

import (
	"fmt"
	"strconv"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Skotchmaster/userauth/internal/domain"
)

const (
	typeAccess  = "access"
	typeRefresh = "refresh"
)

type AccessClaims struct {
	Type string `json:"typ"`
	jwt.RegisteredClaims
}

// UserID decodes the subject claim.
func (c *AccessClaims) UserID() (uint, error) {
	return parseSubject(c.Subject)
}

type RefreshClaims struct {
	Type string `json:"typ"`
	jwt.RegisteredClaims
}

func (c *RefreshClaims) UserID() (uint, error) {
	return parseSubject(c.Subject)
}

func subject(userID uint) string {
	return strconv.FormatUint(uint64(userID), 10)
}

func parseSubject(sub string) (uint, error) {
	id, err := strconv.ParseUint(sub, 10, 0)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("%w: bad subject %q", domain.ErrInvalidCredential, sub)
	}
	return uint(id), nil
}

func checkType(got, want string) error {
	if got != want {
		return fmt.Errorf("%w: unexpected token type %q", domain.ErrInvalidCredential, got)
	}
	return nil
}
