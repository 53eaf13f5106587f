package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestCreateEventStartsAtZero(t *testing.T) {
	st := newFakeStore()
	svc := NewEventService(st, st, nil)

	ev, err := svc.Create(context.Background(), NewEventInput{Title: "Tech Talk", Date: "2026-10-01", Published: true})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if ev.ID == "" {
		t.Fatal("event ID not assigned")
	}
	if ev.RegistrationCount != 0 {
		t.Fatalf("count = %d, want 0", ev.RegistrationCount)
	}
	got, err := svc.Get(context.Background(), ev.ID)
	if err != nil || got == nil {
		t.Fatalf("get after create: %v, %v", got, err)
	}
}

func TestDeleteCascadeRemovesAllRegistrations(t *testing.T) {
	for _, n := range []int{0, 1, 50} {
		t.Run(fmt.Sprintf("registrations_%d", n), func(t *testing.T) {
			st := newFakeStore()
			seedEvent(st, "ev1")
			regSvc := NewRegistrationService(st, nil, nil)
			for i := 0; i < n; i++ {
				if _, err := regSvc.Register(context.Background(), "ev1", fmt.Sprintf("u%d", i), StudentProfile{}); err != nil {
					t.Fatalf("seed registration %d: %v", i, err)
				}
			}
			svc := NewEventService(st, st, &fakeRepairQueue{})

			if err := svc.Delete(context.Background(), "ev1"); err != nil {
				t.Fatalf("delete: %v", err)
			}
			if got := st.registrationCount("ev1"); got != 0 {
				t.Fatalf("registrations left = %d", got)
			}
			ev, err := svc.Get(context.Background(), "ev1")
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if ev != nil {
				t.Fatal("event document still present")
			}
		})
	}
}

func TestDeleteCascadeRerunIsIdempotent(t *testing.T) {
	st := newFakeStore()
	seedEvent(st, "ev1")
	regSvc := NewRegistrationService(st, nil, nil)
	if _, err := regSvc.Register(context.Background(), "ev1", "u1", StudentProfile{}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	svc := NewEventService(st, st, &fakeRepairQueue{})

	if err := svc.Delete(context.Background(), "ev1"); err != nil {
		t.Fatalf("first delete: %v", err)
	}
	if err := svc.Delete(context.Background(), "ev1"); err != nil {
		t.Fatalf("rerun delete: %v", err)
	}
}

func TestDeleteCascadePartialFailure(t *testing.T) {
	st := newFakeStore()
	seedEvent(st, "ev1")
	regSvc := NewRegistrationService(st, nil, nil)
	for _, u := range []string{"u1", "u2", "u3"} {
		if _, err := regSvc.Register(context.Background(), "ev1", u, StudentProfile{}); err != nil {
			t.Fatalf("seed %s: %v", u, err)
		}
	}
	st.failDeleteRegs["ev1_u2"] = errStoreDown
	queue := &fakeRepairQueue{}
	svc := NewEventService(st, st, queue)

	err := svc.Delete(context.Background(), "ev1")
	var partial *PartialCascadeError
	if !errors.As(err, &partial) {
		t.Fatalf("expected PartialCascadeError, got %v", err)
	}
	if partial.EventDeleted {
		t.Fatal("event reported deleted despite surviving registrations")
	}
	if len(partial.Remaining) != 1 || partial.Remaining[0] != "ev1_u2" {
		t.Fatalf("remaining = %v", partial.Remaining)
	}
	if ev, _ := svc.Get(context.Background(), "ev1"); ev == nil {
		t.Fatal("event document removed before cascade completed")
	}

	cmds := queue.queued()
	if len(cmds) != 1 || cmds[0].Type != RepairCascadeRetry || cmds[0].EventID != "ev1" {
		t.Fatalf("unexpected retry queue %+v", cmds)
	}

	// The interrupted cascade completes on rerun once the store recovers.
	delete(st.failDeleteRegs, "ev1_u2")
	if err := svc.Delete(context.Background(), "ev1"); err != nil {
		t.Fatalf("rerun after recovery: %v", err)
	}
	if got := st.registrationCount("ev1"); got != 0 {
		t.Fatalf("registrations left = %d", got)
	}
}

func TestDeleteEventDocumentFailureQueuesRetry(t *testing.T) {
	st := newFakeStore()
	seedEvent(st, "ev1")
	st.failDeleteEvent = errStoreDown
	queue := &fakeRepairQueue{}
	svc := NewEventService(st, st, queue)

	err := svc.Delete(context.Background(), "ev1")
	var partial *PartialCascadeError
	if !errors.As(err, &partial) {
		t.Fatalf("expected PartialCascadeError, got %v", err)
	}
	if len(queue.queued()) != 1 {
		t.Fatalf("retry not queued")
	}
}
