package domain

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// EventStorage defines the store operations event management needs.
type EventStorage interface {
	GetEvent(ctx context.Context, id string) (*Event, error)
	InsertEvent(ctx context.Context, ev Event) error
	DeleteEvent(ctx context.Context, id string) error
	ListEvents(ctx context.Context) ([]Event, error)
}

// EventService owns the event lifecycle: admin creation and the cascade
// that removes an event together with every registration referencing it.
type EventService struct {
	st      EventStorage
	regs    RegistrationStorage
	repairs RepairEnqueuer
}

func NewEventService(st EventStorage, regs RegistrationStorage, repairs RepairEnqueuer) EventService {
	return EventService{st: st, regs: regs, repairs: repairs}
}

// Create stores a new event with a zero registration counter.
func (s EventService) Create(ctx context.Context, in NewEventInput) (*Event, error) {
	ev := Event{
		ID:                   uuid.NewString(),
		Title:                in.Title,
		Description:          in.Description,
		Date:                 in.Date,
		Time:                 in.Time,
		Venue:                in.Venue,
		RegistrationDeadline: in.RegistrationDeadline,
		Published:            in.Published,
		RegistrationCount:    0,
		CreatedAt:            time.Now().UnixNano(),
	}
	if err := s.st.InsertEvent(ctx, ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

// Get returns a single event.
func (s EventService) Get(ctx context.Context, id string) (*Event, error) {
	return s.st.GetEvent(ctx, id)
}

// List returns all events, newest first.
func (s EventService) List(ctx context.Context) ([]Event, error) {
	return s.st.ListEvents(ctx)
}

// Delete removes an event and all of its registrations. The sequence is
// not transactional: registrations are deleted first (concurrently, with
// absent documents treated as no-ops), then the event document. Partial
// failure yields a PartialCascadeError and a queued retry; rerunning the
// whole cascade is always safe.
func (s EventService) Delete(ctx context.Context, eventID string) error {
	regs, err := s.regs.ListEventRegistrations(ctx, eventID)
	if err != nil {
		return err
	}

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		failed []string
		lastEr error
	)
	for _, reg := range regs {
		wg.Add(1)
		go func(regID string) {
			defer wg.Done()
			if err := s.regs.DeleteRegistration(ctx, eventID, regID); err != nil {
				mu.Lock()
				failed = append(failed, regID)
				lastEr = err
				mu.Unlock()
			}
		}(reg.ID)
	}
	wg.Wait()

	if len(failed) > 0 {
		s.enqueueRetry(ctx, eventID)
		return &PartialCascadeError{EventID: eventID, Remaining: failed, EventDeleted: false, Err: lastEr}
	}

	if err := s.st.DeleteEvent(ctx, eventID); err != nil {
		s.enqueueRetry(ctx, eventID)
		return &PartialCascadeError{EventID: eventID, EventDeleted: false, Err: err}
	}
	return nil
}

func (s EventService) enqueueRetry(ctx context.Context, eventID string) {
	if s.repairs == nil {
		return
	}
	cmd := RepairCommand{Type: RepairCascadeRetry, EventID: eventID}
	if err := s.repairs.EnqueueRepair(ctx, cmd); err != nil {
		log.WithField("event", eventID).Errorf("enqueue cascade retry: %v", err)
	}
}
