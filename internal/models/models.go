package models

import (
	"time"

	"github.com/Skotchmaster/userauth/internal/domain"
)

type User struct {
	ID               uint              `gorm:"primaryKey;autoIncrement"                 json:"id"`
	Name             string            `gorm:"not null"                                 json:"name"`
	Email            string            `gorm:"uniqueIndex;not null"                     json:"email"`
	PasswordHash     string            `gorm:"not null"                                 json:"-"`
	Status           domain.UserStatus `gorm:"type:varchar(16);not null;default:UNVERIFIED;index" json:"status"`
	RegistrationTime time.Time         `gorm:"not null;autoCreateTime"                  json:"registrationTime"`
	LastLoginTime    *time.Time        `                                                json:"lastLoginTime,omitempty"`

	RefreshTokens    []RefreshToken    `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	ActivationTokens []ActivationToken `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}

type RefreshToken struct {
	JTI       string    `gorm:"primaryKey;size:64" json:"jti"`
	UserID    uint      `gorm:"index;not null"     json:"user_id"`
	ExpiresAt time.Time `gorm:"not null"           json:"expires_at"`
	Revoked   bool      `gorm:"not null;default:false" json:"revoked"`
	CreatedAt time.Time `gorm:"not null"           json:"created_at"`
}

// Active reports whether the record can still be exchanged at now.
func (t *RefreshToken) Active(now time.Time) bool {
	return !t.Revoked && now.Before(t.ExpiresAt)
}

type ActivationToken struct {
	Token     string     `gorm:"primaryKey;size:64" json:"token"`
	UserID    uint       `gorm:"index;not null"     json:"user_id"`
	ExpiresAt time.Time  `gorm:"not null"           json:"expires_at"`
	UsedAt    *time.Time `                          json:"used_at,omitempty"`
	CreatedAt time.Time  `gorm:"not null"           json:"created_at"`
}

// All lists the models the service migrates.
func All() []any {
	return []any{&User{}, &RefreshToken{}, &ActivationToken{}}
}
