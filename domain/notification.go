package domain

const (
	PriorityHigh   = "high"
	PriorityMedium = "medium"
	PriorityLow    = "low"

	NotificationUnread = "unread"
	NotificationRead   = "read"
)

// Notification is an admin announcement shown on every dashboard. Status
// is a single global field; there is no per-user read ledger.
type Notification struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Message   string `json:"message"`
	Priority  string `json:"priority"`
	Status    string `json:"status"`
	CreatedAt int64  `json:"createdAt"`
}

// NewNotificationInput carries the admin-supplied fields for an announcement.
type NewNotificationInput struct {
	Title    string `json:"title"`
	Message  string `json:"message"`
	Priority string `json:"priority"`
}
