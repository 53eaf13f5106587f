package storage

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"portal-api/domain"
)

func TestPublishEmitsChangeRecord(t *testing.T) {
	m, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer m.Close()
	rc := redis.NewClient(&redis.Options{Addr: m.Addr()})
	ctx := context.Background()

	pubsub := rc.Subscribe(ctx, ChangeChannel(domain.CollectionEvents))
	defer pubsub.Close()
	if _, err := pubsub.Receive(ctx); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	done := make(chan string, 1)
	go func() {
		msg := <-pubsub.Channel()
		done <- msg.Payload
	}()

	p := NewPublisher(rc)
	p.Publish(ctx, domain.CollectionEvents, "ev1", domain.ChangeAdded)

	select {
	case payload := <-done:
		var change domain.Change
		if err := json.Unmarshal([]byte(payload), &change); err != nil {
			t.Fatalf("parse change: %v", err)
		}
		if change.Collection != domain.CollectionEvents || change.DocID != "ev1" || change.Kind != domain.ChangeAdded {
			t.Fatalf("unexpected change %+v", change)
		}
		if change.Seq == 0 {
			t.Fatal("seq not assigned")
		}
	case <-time.After(time.Second):
		t.Fatal("no change received")
	}
}

func TestPublishSequencesFollowCommitOrder(t *testing.T) {
	m, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer m.Close()
	rc := redis.NewClient(&redis.Options{Addr: m.Addr()})
	ctx := context.Background()

	pubsub := rc.Subscribe(ctx, ChangeChannel(domain.CollectionMessages))
	defer pubsub.Close()
	if _, err := pubsub.Receive(ctx); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	p := NewPublisher(rc)
	const n = 5
	for i := 0; i < n; i++ {
		p.Publish(ctx, domain.CollectionMessages, "m", domain.ChangeAdded)
	}

	var last int64
	for i := 0; i < n; i++ {
		select {
		case msg := <-pubsub.Channel():
			var change domain.Change
			if err := json.Unmarshal([]byte(msg.Payload), &change); err != nil {
				t.Fatalf("parse change: %v", err)
			}
			if change.Seq <= last {
				t.Fatalf("seq %d not after %d", change.Seq, last)
			}
			last = change.Seq
		case <-time.After(time.Second):
			t.Fatalf("change %d not received", i)
		}
	}
}
