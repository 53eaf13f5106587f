package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// NotificationStorage defines the store operations announcements need.
type NotificationStorage interface {
	InsertNotification(ctx context.Context, n Notification) error
	ListNotifications(ctx context.Context) ([]Notification, error)
}

// NotificationService publishes admin announcements to every dashboard.
type NotificationService struct {
	st NotificationStorage
}

func NewNotificationService(st NotificationStorage) NotificationService {
	return NotificationService{st: st}
}

// Announce stores a new announcement, unread by default.
func (s NotificationService) Announce(ctx context.Context, in NewNotificationInput) (*Notification, error) {
	priority := in.Priority
	switch priority {
	case PriorityHigh, PriorityMedium, PriorityLow:
	default:
		priority = PriorityMedium
	}
	n := Notification{
		ID:        uuid.NewString(),
		Title:     in.Title,
		Message:   in.Message,
		Priority:  priority,
		Status:    NotificationUnread,
		CreatedAt: time.Now().UnixNano(),
	}
	if err := s.st.InsertNotification(ctx, n); err != nil {
		return nil, err
	}
	return &n, nil
}

// List returns all announcements, newest first.
func (s NotificationService) List(ctx context.Context) ([]Notification, error) {
	return s.st.ListNotifications(ctx)
}
