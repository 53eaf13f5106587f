package domain

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"
)

// RegistrationStorage defines the store operations the ledger needs.
type RegistrationStorage interface {
	GetRegistration(ctx context.Context, eventID, userID string) (*Registration, error)
	InsertRegistration(ctx context.Context, reg Registration) error
	DeleteRegistration(ctx context.Context, eventID, regID string) error
	ListEventRegistrations(ctx context.Context, eventID string) ([]Registration, error)
	CountEventRegistrations(ctx context.Context, eventID string) (int, error)
	IncrementRegistrationCount(ctx context.Context, eventID string, delta int) error
}

// Deduper guards against duplicate in-flight submissions. Add returns
// true when the key was newly recorded.
type Deduper interface {
	Add(ctx context.Context, userID, key string) (bool, error)
	Remove(ctx context.Context, userID, key string) error
}

// RepairEnqueuer accepts compensating commands for later retry.
type RepairEnqueuer interface {
	EnqueueRepair(ctx context.Context, cmd RepairCommand) error
}

// RegistrationService records and queries "is user U registered for
// event E" with at most one ledger entry per pair.
type RegistrationService struct {
	st      RegistrationStorage
	deduper Deduper
	repairs RepairEnqueuer
}

func NewRegistrationService(st RegistrationStorage, deduper Deduper, repairs RepairEnqueuer) RegistrationService {
	return RegistrationService{st: st, deduper: deduper, repairs: repairs}
}

// Register creates the ledger entry for (eventID, userID) and bumps the
// event's denormalized counter. The ledger write and the counter write
// are independent: a failed counter increment leaves the registration
// standing and enqueues a repair command instead of failing the call.
func (s RegistrationService) Register(ctx context.Context, eventID, userID string, profile StudentProfile) (*Registration, error) {
	if userID == "" {
		return nil, ErrNotAuthenticated
	}
	key := RegistrationKey(eventID, userID)

	// Duplicate-tap guard: a second submission racing the first resolves
	// here without issuing a store write.
	if s.deduper != nil {
		added, err := s.deduper.Add(ctx, userID, key)
		if err != nil {
			log.WithFields(log.Fields{"event": eventID, "user": userID}).Warnf("deduper unavailable, falling through to store: %v", err)
		} else if !added {
			return nil, ErrAlreadyRegistered
		}
	}

	reg := Registration{
		ID:           key,
		EventID:      eventID,
		UserID:       userID,
		StudentName:  profile.Name,
		StudentEmail: profile.Email,
		RegisteredAt: time.Now().UnixNano(),
		Status:       RegistrationConfirmed,
	}
	if err := s.st.InsertRegistration(ctx, reg); err != nil {
		if errors.Is(err, ErrAlreadyRegistered) {
			return nil, ErrAlreadyRegistered
		}
		// Release the guard so the user may retry after a transient failure.
		if s.deduper != nil {
			if rmErr := s.deduper.Remove(ctx, userID, key); rmErr != nil {
				log.WithField("key", key).Errorf("deduper remove: %v", rmErr)
			}
		}
		return nil, err
	}

	if err := s.st.IncrementRegistrationCount(ctx, eventID, 1); err != nil {
		// Ledger is authoritative and already written; the counter is
		// advisory and will be repaired asynchronously.
		log.WithFields(log.Fields{"event": eventID, "user": userID}).Errorf("counter increment failed: %v", err)
		if s.repairs != nil {
			cmd := RepairCommand{Type: RepairCounterAdjust, EventID: eventID, Delta: 1, Key: key + ":count"}
			if qErr := s.repairs.EnqueueRepair(ctx, cmd); qErr != nil {
				log.WithField("event", eventID).Errorf("enqueue counter repair: %v", qErr)
			}
		}
	}
	return &reg, nil
}

// IsRegistered reports whether the ledger holds an entry for the pair.
func (s RegistrationService) IsRegistered(ctx context.Context, eventID, userID string) (bool, error) {
	reg, err := s.st.GetRegistration(ctx, eventID, userID)
	if err != nil {
		return false, err
	}
	return reg != nil, nil
}

// Roster returns the authoritative registration list for an event.
func (s RegistrationService) Roster(ctx context.Context, eventID string) ([]Registration, error) {
	return s.st.ListEventRegistrations(ctx, eventID)
}

// Count returns the ledger size for an event. Authoritative, unlike the
// denormalized counter on the event document.
func (s RegistrationService) Count(ctx context.Context, eventID string) (int, error) {
	return s.st.CountEventRegistrations(ctx, eventID)
}
