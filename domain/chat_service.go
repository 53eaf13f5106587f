package domain

import "context"

// MessageStorage defines the store operations the chat log needs. The
// store assigns the message timestamp at write time from its own
// monotonic clock, never from the caller.
type MessageStorage interface {
	InsertMessage(ctx context.Context, msg Message) (Message, error)
	ListMessages(ctx context.Context) ([]Message, error)
}

// ChatService is the append-only message log. There is no update or
// delete path.
type ChatService struct {
	st MessageStorage
}

func NewChatService(st MessageStorage) ChatService { return ChatService{st: st} }

// Send appends one message authored by the given user.
func (s ChatService) Send(ctx context.Context, text, authorID string, profile AuthorProfile) (*Message, error) {
	if authorID == "" {
		return nil, ErrNotAuthenticated
	}
	msg, err := s.st.InsertMessage(ctx, Message{
		Text:         text,
		AuthorID:     authorID,
		AuthorName:   profile.Name,
		AuthorAvatar: profile.Avatar,
	})
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// History returns the full log in commit order, oldest first.
func (s ChatService) History(ctx context.Context) ([]Message, error) {
	return s.st.ListMessages(ctx)
}
