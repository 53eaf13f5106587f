package domain

import (
	"context"
	"errors"
	"testing"
)

func boardStateWith(events ...Event) BoardState {
	state := BoardState{Events: map[string]EventView{}}
	for _, ev := range events {
		state.Events[ev.ID] = EventView{Event: ev}
	}
	return state
}

func TestApplyRegisterOptimistic(t *testing.T) {
	state := boardStateWith(Event{ID: "ev1", RegistrationCount: 4})

	next := Apply(state, RegisterOptimistic{EventID: "ev1"})
	view := next.Events["ev1"]
	if view.RegistrationCount != 5 || !view.IsRegistered {
		t.Fatalf("view after optimistic = %+v", view)
	}
	if state.Events["ev1"].RegistrationCount != 4 {
		t.Fatal("input state mutated")
	}
}

func TestApplyRollbackClampsAtZero(t *testing.T) {
	state := boardStateWith(Event{ID: "ev1", RegistrationCount: 0})

	next := Apply(state, RegisterRollback{EventID: "ev1"})
	if got := next.Events["ev1"].RegistrationCount; got != 0 {
		t.Fatalf("count = %d, want 0", got)
	}
}

func TestApplyUnknownEventIsNoop(t *testing.T) {
	state := boardStateWith(Event{ID: "ev1", RegistrationCount: 2})
	next := Apply(state, RegisterOptimistic{EventID: "missing"})
	if got := next.Events["ev1"].RegistrationCount; got != 2 {
		t.Fatalf("count = %d, want 2", got)
	}
}

func TestApplySnapshotOverwritesOptimisticPatch(t *testing.T) {
	state := boardStateWith(Event{ID: "ev1", RegistrationCount: 4})
	state = Apply(state, RegisterOptimistic{EventID: "ev1"})

	// The authoritative snapshot already reflects the registration, so
	// applying it on top of the patch must not double count.
	snapshot := SnapshotArrived{
		Events:        []Event{{ID: "ev1", RegistrationCount: 5}},
		Registrations: []Registration{{ID: "ev1_u1", EventID: "ev1", UserID: "u1"}},
		UserID:        "u1",
	}
	next := Apply(state, snapshot)
	view := next.Events["ev1"]
	if view.RegistrationCount != 5 || !view.IsRegistered {
		t.Fatalf("view after snapshot = %+v", view)
	}
}

func TestApplySnapshotIgnoresOtherUsersRegistrations(t *testing.T) {
	snapshot := SnapshotArrived{
		Events:        []Event{{ID: "ev1", RegistrationCount: 1}},
		Registrations: []Registration{{ID: "ev1_u2", EventID: "ev1", UserID: "u2"}},
		UserID:        "u1",
	}
	next := Apply(BoardState{}, snapshot)
	if next.Events["ev1"].IsRegistered {
		t.Fatal("registered flag set from another user's entry")
	}
}

type scriptedRegistrar struct {
	err    error
	before func()
}

func (r *scriptedRegistrar) Register(ctx context.Context, eventID, userID string, profile StudentProfile) (*Registration, error) {
	if r.before != nil {
		r.before()
	}
	if r.err != nil {
		return nil, r.err
	}
	return &Registration{ID: RegistrationKey(eventID, userID), EventID: eventID, UserID: userID}, nil
}

func TestBoardRegisterKeepsPatchOnSuccess(t *testing.T) {
	board := NewBoard(&scriptedRegistrar{}, "u1")
	board.Dispatch(SnapshotArrived{Events: []Event{{ID: "ev1", RegistrationCount: 2}}, UserID: "u1"})

	if err := board.Register(context.Background(), "ev1", StudentProfile{}); err != nil {
		t.Fatalf("register: %v", err)
	}
	view := board.State().Events["ev1"]
	if view.RegistrationCount != 3 || !view.IsRegistered {
		t.Fatalf("view = %+v", view)
	}
}

func TestBoardRegisterRollsBackOnFailure(t *testing.T) {
	board := NewBoard(&scriptedRegistrar{err: errStoreDown}, "u1")
	board.Dispatch(SnapshotArrived{Events: []Event{{ID: "ev1", RegistrationCount: 2}}, UserID: "u1"})

	if err := board.Register(context.Background(), "ev1", StudentProfile{}); !errors.Is(err, errStoreDown) {
		t.Fatalf("expected write failure, got %v", err)
	}
	view := board.State().Events["ev1"]
	if view.RegistrationCount != 2 || view.IsRegistered {
		t.Fatalf("view after rollback = %+v", view)
	}
}

func TestBoardRollbackComposesWithLaterState(t *testing.T) {
	// A snapshot lands between the optimistic patch and the failed write.
	// The rollback must apply to that newer state, not to a stale copy
	// captured when the patch went out.
	reg := &scriptedRegistrar{err: errStoreDown}
	board := NewBoard(reg, "u1")
	board.Dispatch(SnapshotArrived{Events: []Event{{ID: "ev1", RegistrationCount: 2}}, UserID: "u1"})

	reg.before = func() {
		board.Dispatch(SnapshotArrived{Events: []Event{{ID: "ev1", RegistrationCount: 7}}, UserID: "u1"})
	}
	if err := board.Register(context.Background(), "ev1", StudentProfile{}); !errors.Is(err, errStoreDown) {
		t.Fatalf("expected write failure, got %v", err)
	}
	view := board.State().Events["ev1"]
	if view.RegistrationCount != 6 {
		t.Fatalf("count = %d, want 6", view.RegistrationCount)
	}
}
