package domain

import "time"

// AuthEventType names an authentication outcome worth auditing.
type AuthEventType string

const (
	EventLoginSucceeded AuthEventType = "login_succeeded"
	EventLoginFailed    AuthEventType = "login_failed"
	EventLoginThrottled AuthEventType = "login_throttled"
	EventRegistered     AuthEventType = "registered"
	EventLoggedOut      AuthEventType = "logged_out"
	EventTokenRefreshed AuthEventType = "token_refreshed"
	EventAccessDenied   AuthEventType = "access_denied"
	EventAdminPromoted  AuthEventType = "admin_promoted"
)

// AuthEvent is an audit record of something that happened to a session.
type AuthEvent struct {
	Type      AuthEventType
	UserID    string // empty when the subject is not known (e.g. failed login)
	Email     string
	IP        string
	Path      string // set for guard denials
	Reason    string
	Timestamp time.Time
}

// ShardKey picks the field the dispatcher hashes on so events of one
// subject are recorded in order.
func (e AuthEvent) ShardKey() string {
	if e.Email != "" {
		return e.Email
	}
	if e.UserID != "" {
		return e.UserID
	}
	return e.IP
}
