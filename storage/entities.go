package storage

import (
	"fmt"

	"portal-api/domain"
)

// Fixed partition keys. Events, messages and notifications each live in
// a single partition; registrations are partitioned by event id so a
// cascade delete scans exactly one partition.
const (
	eventsPartition        = "events"
	messagesPartition      = "messages"
	notificationsPartition = "notifications"
)

// Entity represents base table entity keys.
type Entity struct {
	PartitionKey string `json:"PartitionKey"`
	RowKey       string `json:"RowKey"`
	ETag         string `json:"odata.etag,omitempty"`
}

type eventEntity struct {
	Entity
	Title                string `json:"Title"`
	Description          string `json:"Description,omitempty"`
	Date                 string `json:"Date"`
	Time                 string `json:"Time,omitempty"`
	Venue                string `json:"Venue,omitempty"`
	RegistrationDeadline string `json:"RegistrationDeadline,omitempty"`
	Published            bool   `json:"Published"`
	RegistrationCount    int    `json:"RegistrationCount"`
	CreatedAt            int64  `json:"CreatedAt,string"`
	CreatedAtType        string `json:"CreatedAt@odata.type"`
}

type registrationEntity struct {
	Entity
	EventID          string `json:"EventId"`
	UserID           string `json:"UserId"`
	StudentName      string `json:"StudentName,omitempty"`
	StudentEmail     string `json:"StudentEmail,omitempty"`
	RegisteredAt     int64  `json:"RegisteredAt,string"`
	RegisteredAtType string `json:"RegisteredAt@odata.type"`
	Status           string `json:"Status"`
}

type messageEntity struct {
	Entity
	Text          string `json:"Text"`
	AuthorID      string `json:"AuthorId"`
	AuthorName    string `json:"AuthorName,omitempty"`
	AuthorAvatar  string `json:"AuthorAvatar,omitempty"`
	Timestamp     int64  `json:"Timestamp,string"`
	TimestampType string `json:"Timestamp@odata.type"`
}

type notificationEntity struct {
	Entity
	Title         string `json:"Title"`
	Message       string `json:"Message"`
	Priority      string `json:"Priority"`
	Status        string `json:"Status"`
	CreatedAt     int64  `json:"CreatedAt,string"`
	CreatedAtType string `json:"CreatedAt@odata.type"`
}

const edmInt64 = "Edm.Int64"

func eventToEntity(ev domain.Event) eventEntity {
	return eventEntity{
		Entity:               Entity{PartitionKey: eventsPartition, RowKey: ev.ID},
		Title:                ev.Title,
		Description:          ev.Description,
		Date:                 ev.Date,
		Time:                 ev.Time,
		Venue:                ev.Venue,
		RegistrationDeadline: ev.RegistrationDeadline,
		Published:            ev.Published,
		RegistrationCount:    ev.RegistrationCount,
		CreatedAt:            ev.CreatedAt,
		CreatedAtType:        edmInt64,
	}
}

func (e eventEntity) toDomain() domain.Event {
	return domain.Event{
		ID:                   e.RowKey,
		Title:                e.Title,
		Description:          e.Description,
		Date:                 e.Date,
		Time:                 e.Time,
		Venue:                e.Venue,
		RegistrationDeadline: e.RegistrationDeadline,
		Published:            e.Published,
		RegistrationCount:    e.RegistrationCount,
		CreatedAt:            e.CreatedAt,
	}
}

func registrationToEntity(reg domain.Registration) registrationEntity {
	return registrationEntity{
		Entity:           Entity{PartitionKey: reg.EventID, RowKey: reg.ID},
		EventID:          reg.EventID,
		UserID:           reg.UserID,
		StudentName:      reg.StudentName,
		StudentEmail:     reg.StudentEmail,
		RegisteredAt:     reg.RegisteredAt,
		RegisteredAtType: edmInt64,
		Status:           reg.Status,
	}
}

func (e registrationEntity) toDomain() domain.Registration {
	return domain.Registration{
		ID:           e.RowKey,
		EventID:      e.EventID,
		UserID:       e.UserID,
		StudentName:  e.StudentName,
		StudentEmail: e.StudentEmail,
		RegisteredAt: e.RegisteredAt,
		Status:       e.Status,
	}
}

func (e messageEntity) toDomain() domain.Message {
	return domain.Message{
		ID:           e.RowKey,
		Text:         e.Text,
		AuthorID:     e.AuthorID,
		AuthorName:   e.AuthorName,
		AuthorAvatar: e.AuthorAvatar,
		Timestamp:    e.Timestamp,
	}
}

func notificationToEntity(n domain.Notification) notificationEntity {
	return notificationEntity{
		Entity:        Entity{PartitionKey: notificationsPartition, RowKey: n.ID},
		Title:         n.Title,
		Message:       n.Message,
		Priority:      n.Priority,
		Status:        n.Status,
		CreatedAt:     n.CreatedAt,
		CreatedAtType: edmInt64,
	}
}

func (e notificationEntity) toDomain() domain.Notification {
	return domain.Notification{
		ID:        e.RowKey,
		Title:     e.Title,
		Message:   e.Message,
		Priority:  e.Priority,
		Status:    e.Status,
		CreatedAt: e.CreatedAt,
	}
}

// messageRowKey builds a row key that sorts ascending in commit order:
// the store-assigned timestamp zero-padded to 19 digits plus a suffix
// that breaks ties. Azure Tables returns rows in row-key order
// within a partition, so a partition scan yields the log already sorted.
func messageRowKey(timestamp int64, suffix string) string {
	return fmt.Sprintf("%019d-%s", timestamp, suffix)
}
