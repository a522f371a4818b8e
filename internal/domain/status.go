package domain

type UserStatus string

const (
	StatusUnverified UserStatus = "UNVERIFIED"
	StatusActive     UserStatus = "ACTIVE"
	StatusBlocked    UserStatus = "BLOCKED"
)

func (s UserStatus) Valid() bool {
	switch s {
	case StatusUnverified, StatusActive, StatusBlocked:
		return true
	}
	return false
}
