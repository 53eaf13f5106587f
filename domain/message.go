package domain

// Message is one entry of the append-only chat log. Messages are never
// updated or deleted; Timestamp is assigned by the store at write time.
type Message struct {
	ID           string `json:"id"`
	Text         string `json:"text"`
	AuthorID     string `json:"authorId"`
	AuthorName   string `json:"authorName"`
	AuthorAvatar string `json:"authorAvatar,omitempty"`
	Timestamp    int64  `json:"timestamp"`
}

// AuthorProfile is the denormalized sender snapshot stored on a message.
type AuthorProfile struct {
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
}
