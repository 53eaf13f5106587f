package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestSendAssignsIncreasingTimestamps(t *testing.T) {
	st := newFakeStore()
	svc := NewChatService(st)

	var last int64
	for i := 0; i < 5; i++ {
		msg, err := svc.Send(context.Background(), fmt.Sprintf("hello %d", i), "u1", AuthorProfile{Name: "Asha"})
		if err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
		if msg.Timestamp <= last {
			t.Fatalf("timestamp %d not after %d", msg.Timestamp, last)
		}
		last = msg.Timestamp
	}

	history, err := svc.History(context.Background())
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 5 {
		t.Fatalf("history size = %d", len(history))
	}
	for i := 1; i < len(history); i++ {
		if history[i].Timestamp <= history[i-1].Timestamp {
			t.Fatalf("history out of order at %d", i)
		}
	}
}

func TestSendUnauthenticated(t *testing.T) {
	svc := NewChatService(newFakeStore())
	if _, err := svc.Send(context.Background(), "hi", "", AuthorProfile{}); !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("expected ErrNotAuthenticated, got %v", err)
	}
}

func TestSendCarriesAuthorSnapshot(t *testing.T) {
	st := newFakeStore()
	svc := NewChatService(st)

	msg, err := svc.Send(context.Background(), "hi", "u1", AuthorProfile{Name: "Asha", Avatar: "a.png"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if msg.AuthorID != "u1" || msg.AuthorName != "Asha" || msg.AuthorAvatar != "a.png" {
		t.Fatalf("author fields = %+v", msg)
	}
}
