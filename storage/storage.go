package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"github.com/google/uuid"

	"portal-api/domain"
)

// Tables names the backing tables and queue.
type Tables struct {
	Events        string
	Registrations string
	Messages      string
	Notifications string
	RepairQueue   string
}

// Storage provides access to the underlying persistence mechanisms and
// publishes a change record after every committed write.
type Storage struct {
	events        *aztables.Client
	registrations *aztables.Client
	messages      *aztables.Client
	notifications *aztables.Client
	repairQueue   *azqueue.QueueClient
	publisher     *Publisher
}

// New creates a Storage instance from the given connection string.
func New(connStr string, tables Tables, publisher *Publisher) (*Storage, error) {
	tablesClientOptions := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &tablesClientOptions)
	if err != nil {
		return nil, err
	}
	queueClientOptions := azqueue.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    5,
				TryTimeout:    time.Minute * 5,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 60,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	rq, err := azqueue.NewQueueClientFromConnectionString(connStr, tables.RepairQueue, &queueClientOptions)
	if err != nil {
		return nil, err
	}
	return &Storage{
		events:        svc.NewClient(tables.Events),
		registrations: svc.NewClient(tables.Registrations),
		messages:      svc.NewClient(tables.Messages),
		notifications: svc.NewClient(tables.Notifications),
		repairQueue:   rq,
		publisher:     publisher,
	}, nil
}

func isStatus(err error, code int) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == code
}

// storeErr maps transport-level failures to StoreUnavailableError and
// leaves HTTP responses from the service untouched.
func storeErr(op string, err error) error {
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		return err
	}
	return &domain.StoreUnavailableError{Op: op, Err: err}
}

func (s *Storage) notify(ctx context.Context, collection, docID, kind string) {
	if s.publisher != nil {
		s.publisher.Publish(ctx, collection, docID, kind)
	}
}

// GetEvent retrieves an event document, nil when absent.
func (s *Storage) GetEvent(ctx context.Context, id string) (*domain.Event, error) {
	ent, err := s.events.GetEntity(ctx, eventsPartition, id, nil)
	if err != nil {
		if isStatus(err, 404) {
			return nil, nil
		}
		return nil, storeErr("get event", err)
	}
	var ee eventEntity
	if err := json.Unmarshal(ent.Value, &ee); err != nil {
		return nil, err
	}
	ev := ee.toDomain()
	return &ev, nil
}

// InsertEvent creates a new event document.
func (s *Storage) InsertEvent(ctx context.Context, ev domain.Event) error {
	payload, err := json.Marshal(eventToEntity(ev))
	if err != nil {
		return err
	}
	if _, err := s.events.AddEntity(ctx, payload, nil); err != nil {
		return storeErr("insert event", err)
	}
	s.notify(ctx, domain.CollectionEvents, ev.ID, domain.ChangeAdded)
	return nil
}

// DeleteEvent removes an event document. Deleting an absent document is
// a no-op.
func (s *Storage) DeleteEvent(ctx context.Context, id string) error {
	if _, err := s.events.DeleteEntity(ctx, eventsPartition, id, nil); err != nil {
		if isStatus(err, 404) {
			return nil
		}
		return storeErr("delete event", err)
	}
	s.notify(ctx, domain.CollectionEvents, id, domain.ChangeRemoved)
	return nil
}

// partitionFilter builds an OData equality filter on PartitionKey.
// Single quotes in the value are doubled per the OData literal rules.
func partitionFilter(pk string) string {
	return "PartitionKey eq '" + strings.ReplaceAll(pk, "'", "''") + "'"
}

// ListEvents returns all events, newest first.
func (s *Storage) ListEvents(ctx context.Context) ([]domain.Event, error) {
	filter := partitionFilter(eventsPartition)
	pager := s.events.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	events := []domain.Event{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, storeErr("list events", err)
		}
		for _, e := range resp.Entities {
			var ee eventEntity
			if err := json.Unmarshal(e, &ee); err != nil {
				return nil, err
			}
			events = append(events, ee.toDomain())
		}
	}
	// Row keys are uuids, so sort by creation time here.
	sort.Slice(events, func(i, j int) bool { return events[i].CreatedAt > events[j].CreatedAt })
	return events, nil
}

// counterRetryLimit bounds the compare-and-swap loop under heavy
// contention. Callers fall back to the repair queue when it is hit.
const counterRetryLimit = 10

// IncrementRegistrationCount atomically adjusts the denormalized counter
// on an event document via an ETag compare-and-swap loop. The result is
// clamped at zero.
func (s *Storage) IncrementRegistrationCount(ctx context.Context, eventID string, delta int) error {
	for attempt := 0; attempt < counterRetryLimit; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		ent, err := s.events.GetEntity(ctx, eventsPartition, eventID, nil)
		if err != nil {
			if isStatus(err, 404) {
				return fmt.Errorf("event %s: %w", eventID, domain.ErrNotFound)
			}
			return storeErr("increment counter", err)
		}
		var ee eventEntity
		if err := json.Unmarshal(ent.Value, &ee); err != nil {
			return err
		}
		count := ee.RegistrationCount + delta
		if count < 0 {
			count = 0
		}
		upd := struct {
			Entity
			RegistrationCount int `json:"RegistrationCount"`
		}{Entity: Entity{PartitionKey: eventsPartition, RowKey: eventID}, RegistrationCount: count}
		payload, err := json.Marshal(upd)
		if err != nil {
			return err
		}
		etag := azcore.ETag(ee.ETag)
		_, err = s.events.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{IfMatch: &etag, UpdateMode: aztables.UpdateModeMerge})
		if err == nil {
			s.notify(ctx, domain.CollectionEvents, eventID, domain.ChangeUpdated)
			return nil
		}
		if isStatus(err, 412) || isStatus(err, 409) {
			// Lost the race against a concurrent writer; reread and retry.
			continue
		}
		if isStatus(err, 404) {
			return fmt.Errorf("event %s: %w", eventID, domain.ErrNotFound)
		}
		return storeErr("increment counter", err)
	}
	return fmt.Errorf("event %s counter: %w", eventID, domain.ErrConcurrencyConflict)
}

// GetRegistration retrieves a ledger entry, nil when absent.
func (s *Storage) GetRegistration(ctx context.Context, eventID, userID string) (*domain.Registration, error) {
	ent, err := s.registrations.GetEntity(ctx, eventID, domain.RegistrationKey(eventID, userID), nil)
	if err != nil {
		if isStatus(err, 404) {
			return nil, nil
		}
		return nil, storeErr("get registration", err)
	}
	var re registrationEntity
	if err := json.Unmarshal(ent.Value, &re); err != nil {
		return nil, err
	}
	reg := re.toDomain()
	return &reg, nil
}

// InsertRegistration creates a ledger entry at its composite key. A
// document already present at that key reports ErrAlreadyRegistered.
func (s *Storage) InsertRegistration(ctx context.Context, reg domain.Registration) error {
	payload, err := json.Marshal(registrationToEntity(reg))
	if err != nil {
		return err
	}
	if _, err := s.registrations.AddEntity(ctx, payload, nil); err != nil {
		if isStatus(err, 409) {
			return domain.ErrAlreadyRegistered
		}
		return storeErr("insert registration", err)
	}
	s.notify(ctx, domain.CollectionRegistrations, reg.ID, domain.ChangeAdded)
	return nil
}

// DeleteRegistration removes a ledger entry. Absent documents are a
// no-op so cascade retries stay safe.
func (s *Storage) DeleteRegistration(ctx context.Context, eventID, regID string) error {
	if _, err := s.registrations.DeleteEntity(ctx, eventID, regID, nil); err != nil {
		if isStatus(err, 404) {
			return nil
		}
		return storeErr("delete registration", err)
	}
	s.notify(ctx, domain.CollectionRegistrations, regID, domain.ChangeRemoved)
	return nil
}

// ListEventRegistrations returns the ledger partition for one event.
func (s *Storage) ListEventRegistrations(ctx context.Context, eventID string) ([]domain.Registration, error) {
	filter := partitionFilter(eventID)
	pager := s.registrations.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	regs := []domain.Registration{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, storeErr("list registrations", err)
		}
		for _, e := range resp.Entities {
			var re registrationEntity
			if err := json.Unmarshal(e, &re); err != nil {
				return nil, err
			}
			regs = append(regs, re.toDomain())
		}
	}
	return regs, nil
}

// CountEventRegistrations reports the authoritative ledger size for one
// event, independent of the denormalized counter.
func (s *Storage) CountEventRegistrations(ctx context.Context, eventID string) (int, error) {
	regs, err := s.ListEventRegistrations(ctx, eventID)
	if err != nil {
		return 0, err
	}
	return len(regs), nil
}

// ListRegistrations returns the whole ledger across events.
func (s *Storage) ListRegistrations(ctx context.Context) ([]domain.Registration, error) {
	pager := s.registrations.NewListEntitiesPager(nil)
	regs := []domain.Registration{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, storeErr("list registrations", err)
		}
		for _, e := range resp.Entities {
			var re registrationEntity
			if err := json.Unmarshal(e, &re); err != nil {
				return nil, err
			}
			regs = append(regs, re.toDomain())
		}
	}
	return regs, nil
}

// InsertMessage appends one chat message. The timestamp is assigned here
// from the store's monotonic clock, never taken from the caller, so
// concurrent senders are ordered by commit regardless of client clocks.
func (s *Storage) InsertMessage(ctx context.Context, msg domain.Message) (domain.Message, error) {
	msg.Timestamp = nextTimestamp()
	msg.ID = messageRowKey(msg.Timestamp, uuid.NewString()[:8])
	ent := messageEntity{
		Entity:        Entity{PartitionKey: messagesPartition, RowKey: msg.ID},
		Text:          msg.Text,
		AuthorID:      msg.AuthorID,
		AuthorName:    msg.AuthorName,
		AuthorAvatar:  msg.AuthorAvatar,
		Timestamp:     msg.Timestamp,
		TimestampType: edmInt64,
	}
	payload, err := json.Marshal(ent)
	if err != nil {
		return domain.Message{}, err
	}
	if _, err := s.messages.AddEntity(ctx, payload, nil); err != nil {
		return domain.Message{}, storeErr("insert message", err)
	}
	s.notify(ctx, domain.CollectionMessages, msg.ID, domain.ChangeAdded)
	return msg, nil
}

// ListMessages returns the log oldest first. Row keys encode the
// store-assigned timestamp, so partition order is already commit order.
func (s *Storage) ListMessages(ctx context.Context) ([]domain.Message, error) {
	filter := partitionFilter(messagesPartition)
	pager := s.messages.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	msgs := []domain.Message{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, storeErr("list messages", err)
		}
		for _, e := range resp.Entities {
			var me messageEntity
			if err := json.Unmarshal(e, &me); err != nil {
				return nil, err
			}
			msgs = append(msgs, me.toDomain())
		}
	}
	return msgs, nil
}

// InsertNotification stores an announcement.
func (s *Storage) InsertNotification(ctx context.Context, n domain.Notification) error {
	payload, err := json.Marshal(notificationToEntity(n))
	if err != nil {
		return err
	}
	if _, err := s.notifications.AddEntity(ctx, payload, nil); err != nil {
		return storeErr("insert notification", err)
	}
	s.notify(ctx, domain.CollectionNotifications, n.ID, domain.ChangeAdded)
	return nil
}

// ListNotifications returns all announcements, newest first.
func (s *Storage) ListNotifications(ctx context.Context) ([]domain.Notification, error) {
	filter := partitionFilter(notificationsPartition)
	pager := s.notifications.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	ns := []domain.Notification{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, storeErr("list notifications", err)
		}
		for _, e := range resp.Entities {
			var ne notificationEntity
			if err := json.Unmarshal(e, &ne); err != nil {
				return nil, err
			}
			ns = append(ns, ne.toDomain())
		}
	}
	sort.Slice(ns, func(i, j int) bool { return ns[i].CreatedAt > ns[j].CreatedAt })
	return ns, nil
}

// EnqueueRepair sends a compensating command to the repair queue.
func (s *Storage) EnqueueRepair(ctx context.Context, cmd domain.RepairCommand) error {
	data, err := json.Marshal(cmd)
	if err != nil {
		return err
	}
	if _, err := s.repairQueue.EnqueueMessage(ctx, string(data), nil); err != nil {
		return storeErr("enqueue repair", err)
	}
	return nil
}

// DequeueRepair retrieves a single repair message, nil when the queue is
// empty.
func (s *Storage) DequeueRepair(ctx context.Context) (*azqueue.DequeuedMessage, error) {
	resp, err := s.repairQueue.DequeueMessage(ctx, nil)
	if err != nil {
		return nil, storeErr("dequeue repair", err)
	}
	if len(resp.Messages) == 0 {
		return nil, nil
	}
	return resp.Messages[0], nil
}

// DeleteRepair removes a processed message from the repair queue.
func (s *Storage) DeleteRepair(ctx context.Context, id, receipt string) error {
	if _, err := s.repairQueue.DeleteMessage(ctx, id, receipt, nil); err != nil {
		return storeErr("delete repair", err)
	}
	return nil
}

// FetchSnapshot serializes the full current result set of a collection
// for live query delivery.
func (s *Storage) FetchSnapshot(ctx context.Context, collection string) ([]byte, error) {
	switch collection {
	case domain.CollectionEvents:
		evs, err := s.ListEvents(ctx)
		if err != nil {
			return nil, err
		}
		return json.Marshal(evs)
	case domain.CollectionRegistrations:
		regs, err := s.ListRegistrations(ctx)
		if err != nil {
			return nil, err
		}
		return json.Marshal(regs)
	case domain.CollectionMessages:
		msgs, err := s.ListMessages(ctx)
		if err != nil {
			return nil, err
		}
		return json.Marshal(msgs)
	case domain.CollectionNotifications:
		ns, err := s.ListNotifications(ctx)
		if err != nil {
			return nil, err
		}
		return json.Marshal(ns)
	default:
		return nil, fmt.Errorf("unknown collection %s", collection)
	}
}
