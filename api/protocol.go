package api

const requestMaxSize = 64 * 1024 // 64 KiB

type registerRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type sendMessageRequest struct {
	Text         string `json:"text"`
	AuthorName   string `json:"authorName"`
	AuthorAvatar string `json:"authorAvatar,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type countResponse struct {
	Count int `json:"count"`
}

// cascadeFailureResponse reports a partially completed event delete so
// the operator can choose between retrying and manual reconciliation.
type cascadeFailureResponse struct {
	Error        string   `json:"error"`
	EventID      string   `json:"eventId"`
	Remaining    []string `json:"remaining,omitempty"`
	EventDeleted bool     `json:"eventDeleted"`
	RetryQueued  bool     `json:"retryQueued"`
}
