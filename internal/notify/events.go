package notify

import "time"

// Event names pushed to clients.
const (
	EventForceLogout           = "force_logout"
	EventRegistrationConfirmed = "registration_confirmed"
)

// Forced logout reasons.
const (
	ReasonSuspended       = "suspended"
	ReasonUnsuspended     = "unsuspended"
	ReasonPasswordChanged = "password_changed"
	ReasonForced          = "forced"
)

var reasonMessages = map[string]string{
	ReasonSuspended:       "Your account has been suspended by an administrator",
	ReasonUnsuspended:     "Your account has been unsuspended. Please log in again.",
	ReasonPasswordChanged: "Your password has been changed. Please log in again with your new password.",
	ReasonForced:          "Your session was ended by an administrator. Please log in again.",
}

// ForceLogout is the payload of a force_logout event.
type ForceLogout struct {
	Reason    string `json:"reason"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
	UserID    int64  `json:"user_id"`
}

// NewForceLogout builds the payload for reason with its user-facing message.
func NewForceLogout(userID int64, reason string, now time.Time) ForceLogout {
	msg, ok := reasonMessages[reason]
	if !ok {
		msg = "Please log in again."
	}
	return ForceLogout{
		Reason:    reason,
		Message:   msg,
		Timestamp: now.Unix(),
		UserID:    userID,
	}
}

// RegistrationConfirmed is the payload sent when a connection is bound to
// an identity.
type RegistrationConfirmed struct {
	Username        string `json:"username"`
	Status          string `json:"status"`
	ConnectionToken string `json:"connection_token"`
}
