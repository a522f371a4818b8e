package httpserver

import (
	"errors"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"

	"github.com/Skotchmaster/userauth/internal/domain"
)

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r *registerRequest) normalize() {
	r.Name = strings.TrimSpace(r.Name)
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
}

func (r registerRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required.Error("name is required"), validation.Length(1, 200)),
		validation.Field(&r.Email, validation.Required.Error("email is required"), validation.Length(3, 254), is.Email),
		validation.Field(&r.Password, validation.Required.Error("password is required"), validation.By(notBlank)),
	)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r *loginRequest) normalize() {
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
}

func (r loginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required.Error("email is required"), is.Email),
		validation.Field(&r.Password, validation.Required.Error("password is required"), validation.By(notBlank)),
	)
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (r refreshRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.RefreshToken, validation.Required.Error("refreshToken is required")),
	)
}

type idsRequest struct {
	IDs []int64 `json:"ids"`
}

func (r idsRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.IDs, validation.Required.Error("need to pass at least one id"), validation.By(uniquePositive)),
	)
}

func (r idsRequest) uintIDs() []uint {
	out := make([]uint, len(r.IDs))
	for i, id := range r.IDs {
		out[i] = uint(id)
	}
	return out
}

type statusRequest struct {
	IDs    []int64 `json:"ids"`
	Status string  `json:"status"`
}

func (r statusRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.IDs, validation.Required.Error("need to pass at least one id"), validation.By(uniquePositive)),
		validation.Field(&r.Status, validation.Required, validation.In(
			string(domain.StatusActive), string(domain.StatusBlocked), string(domain.StatusUnverified),
		)),
	)
}

func notBlank(value any) error {
	s, _ := value.(string)
	if strings.TrimSpace(s) == "" {
		return errors.New("must not be blank")
	}
	return nil
}

func uniquePositive(value any) error {
	ids, _ := value.([]int64)
	seen := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		if id <= 0 {
			return errors.New("ids must be positive")
		}
		if _, dup := seen[id]; dup {
			return errors.New("ids must be unique")
		}
		seen[id] = struct{}{}
	}
	return nil
}
