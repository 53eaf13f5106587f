package domain

// Collection names used across storage, change feed and subscriptions.
const (
	CollectionEvents        = "events"
	CollectionRegistrations = "registrations"
	CollectionMessages      = "messages"
	CollectionNotifications = "notifications"
)

// Change kinds.
const (
	ChangeAdded   = "added"
	ChangeUpdated = "updated"
	ChangeRemoved = "removed"
)

// Change is the record published after every committed write. Seq is
// monotonic per process, so subscribers observe per-collection changes
// in commit order. Subscribers do not patch from it; they refetch the
// full result set and replace their snapshot.
type Change struct {
	Collection string `json:"collection"`
	DocID      string `json:"docId"`
	Kind       string `json:"kind"`
	Seq        int64  `json:"seq"`
}
