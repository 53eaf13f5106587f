package repair

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	log "github.com/sirupsen/logrus"

	"portal-api/domain"
)

// Queue is the repair queue surface the worker drains.
type Queue interface {
	DequeueRepair(ctx context.Context) (*azqueue.DequeuedMessage, error)
	DeleteRepair(ctx context.Context, id, receipt string) error
}

type applier interface {
	Apply(ctx context.Context, cmd domain.RepairCommand) error
}

// Worker drains the repair queue, applying compensating commands for
// the two-write sequences that failed halfway. Failed commands are left
// on the queue for redelivery; a message that keeps failing past
// maxAttempts is dropped as poison.
type Worker struct {
	queue        Queue
	orchestrator applier
	idle         time.Duration
	maxAttempts  int64
}

func NewWorker(queue Queue, orchestrator applier) *Worker {
	return &Worker{queue: queue, orchestrator: orchestrator, idle: time.Second, maxAttempts: 5}
}

// Run processes messages until the context ends.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		processed, err := w.ProcessOne(ctx)
		if err != nil {
			log.Errorf("repair: %v", err)
		}
		if !processed {
			select {
			case <-ctx.Done():
				return
			case <-time.After(w.idle):
			}
		}
	}
}

// ProcessOne handles a single queue message. It reports whether a
// message was available.
func (w *Worker) ProcessOne(ctx context.Context) (bool, error) {
	msg, err := w.queue.DequeueRepair(ctx)
	if err != nil {
		return false, err
	}
	if msg == nil {
		return false, nil
	}

	var cmd domain.RepairCommand
	if err := json.Unmarshal([]byte(deref(msg.MessageText)), &cmd); err != nil {
		log.Errorf("repair: unparsable message dropped: %v", err)
		return true, w.queue.DeleteRepair(ctx, deref(msg.MessageID), deref(msg.PopReceipt))
	}

	if err := w.orchestrator.Apply(ctx, cmd); err != nil {
		if msg.DequeueCount != nil && *msg.DequeueCount >= w.maxAttempts {
			log.WithFields(log.Fields{"type": cmd.Type, "event": cmd.EventID}).Errorf("repair: dropping poison message after %d attempts: %v", *msg.DequeueCount, err)
			return true, w.queue.DeleteRepair(ctx, deref(msg.MessageID), deref(msg.PopReceipt))
		}
		// Leave the message for redelivery after its visibility timeout.
		return true, err
	}
	return true, w.queue.DeleteRepair(ctx, deref(msg.MessageID), deref(msg.PopReceipt))
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
