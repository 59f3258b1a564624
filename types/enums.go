package types

// SubStatus mirrors the derived subscription state used across the read
// path: a user is active while expires_at is in the future, churned once it
// has passed, and never if no subscriber row exists.
type SubStatus string

const (
	StatusActive  SubStatus = "active"
	StatusChurned SubStatus = "churned"
	StatusNever   SubStatus = "never"
)

func ParseSubStatus(s string) (SubStatus, bool) {
	switch SubStatus(s) {
	case StatusActive, StatusChurned, StatusNever:
		return SubStatus(s), true
	default:
		return "", false
	}
}

// Action names for the append-only activity log.
type Action string

const (
	ActionSubscriptionCreated Action = "subscription_created"
	ActionSubscriptionFailed  Action = "subscription_failed"
	ActionSubscriptionError   Action = "subscription_error"
	ActionAccessRevoked       Action = "access_revoked"
	ActionReminderSent        Action = "reminder_sent"
	ActionBroadcastSent       Action = "broadcast_sent"
)
