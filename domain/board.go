package domain

import (
	"context"
	"sync"
)

// EventView is one event as a dashboard sees it: the read-model document
// plus whether the viewing user is registered.
type EventView struct {
	Event
	IsRegistered bool `json:"isRegistered"`
}

// BoardState is the dashboard projection optimistic mutations run
// against. It is a value; Apply returns a new state and never mutates
// its input, so a rollback always composes against whatever state is
// current at failure time rather than a captured copy.
type BoardState struct {
	Events map[string]EventView
}

// Action is a state transition applied to a BoardState.
type Action interface{ isAction() }

// RegisterOptimistic speculatively marks the user registered before the
// store round-trip completes.
type RegisterOptimistic struct{ EventID string }

// RegisterRollback undoes a speculative registration after the
// underlying write failed.
type RegisterRollback struct{ EventID string }

// SnapshotArrived replaces the projection with the authoritative result
// set delivered by a live query. Idempotent on top of an optimistic
// patch for the same registration.
type SnapshotArrived struct {
	Events        []Event
	Registrations []Registration
	UserID        string
}

func (RegisterOptimistic) isAction() {}
func (RegisterRollback) isAction()   {}
func (SnapshotArrived) isAction()    {}

// Apply computes the next board state for an action.
func Apply(state BoardState, action Action) BoardState {
	switch a := action.(type) {
	case RegisterOptimistic:
		next := cloneEvents(state)
		if ev, ok := next.Events[a.EventID]; ok {
			ev.RegistrationCount++
			ev.IsRegistered = true
			next.Events[a.EventID] = ev
		}
		return next
	case RegisterRollback:
		next := cloneEvents(state)
		if ev, ok := next.Events[a.EventID]; ok {
			if ev.RegistrationCount > 0 {
				ev.RegistrationCount--
			}
			ev.IsRegistered = false
			next.Events[a.EventID] = ev
		}
		return next
	case SnapshotArrived:
		registered := make(map[string]bool, len(a.Registrations))
		for _, reg := range a.Registrations {
			if reg.UserID == a.UserID {
				registered[reg.EventID] = true
			}
		}
		next := BoardState{Events: make(map[string]EventView, len(a.Events))}
		for _, ev := range a.Events {
			next.Events[ev.ID] = EventView{Event: ev, IsRegistered: registered[ev.ID]}
		}
		return next
	default:
		return state
	}
}

func cloneEvents(state BoardState) BoardState {
	next := BoardState{Events: make(map[string]EventView, len(state.Events))}
	for id, ev := range state.Events {
		next.Events[id] = ev
	}
	return next
}

// Registrar issues the real registration write behind an optimistic patch.
type Registrar interface {
	Register(ctx context.Context, eventID, userID string, profile StudentProfile) (*Registration, error)
}

// Board holds the live dashboard state for one user and serializes
// transitions through the reducer.
type Board struct {
	registrar Registrar
	userID    string

	mu    sync.Mutex
	state BoardState
}

func NewBoard(registrar Registrar, userID string) *Board {
	return &Board{registrar: registrar, userID: userID, state: BoardState{Events: map[string]EventView{}}}
}

// Dispatch applies an action to the current state.
func (b *Board) Dispatch(action Action) {
	b.mu.Lock()
	b.state = Apply(b.state, action)
	b.mu.Unlock()
}

// State returns a copy of the current projection.
func (b *Board) State() BoardState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return cloneEvents(b.state)
}

// Register applies the speculative patch, issues the real write, and
// rolls back against the then-current state when the write fails. The
// live query snapshot delivers the authoritative result either way.
func (b *Board) Register(ctx context.Context, eventID string, profile StudentProfile) error {
	b.Dispatch(RegisterOptimistic{EventID: eventID})
	if _, err := b.registrar.Register(ctx, eventID, b.userID, profile); err != nil {
		b.Dispatch(RegisterRollback{EventID: eventID})
		return err
	}
	return nil
}
