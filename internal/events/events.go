package events

import "time"

const (
	TopicUserEvents   = "user_events"
	TopicMailRequests = "mail_requests"
)

const (
	TypeUserRegistered      = "user_registered"
	TypeUserLoggedIn        = "user_logged_in"
	TypeUserActivated       = "user_activated"
	TypeUsersStatusChanged  = "users_status_changed"
	TypeUsersDeleted        = "users_deleted"
	TypeActivationRequested = "activation_requested"
)

type UserEvent struct {
	Type     string    `json:"type"`
	UserIDs  []uint    `json:"user_ids"`
	Status   string    `json:"status,omitempty"`
	Occurred time.Time `json:"occurred_at"`
}
