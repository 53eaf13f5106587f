package repair

import (
	"context"
	"fmt"

	"portal-api/domain"
)

// CounterStorage applies deferred counter adjustments.
type CounterStorage interface {
	IncrementRegistrationCount(ctx context.Context, eventID string, delta int) error
}

// CascadeDeleter re-runs an interrupted cascade delete.
type CascadeDeleter interface {
	Delete(ctx context.Context, eventID string) error
}

// Orchestrator routes repair commands to the appropriate handler.
type Orchestrator struct {
	counters CounterStorage
	cascades CascadeDeleter
	deduper  domain.Deduper
}

func NewOrchestrator(counters CounterStorage, cascades CascadeDeleter, deduper domain.Deduper) Orchestrator {
	return Orchestrator{counters: counters, cascades: cascades, deduper: deduper}
}

// dedupOwner namespaces repair keys in the deduper.
const dedupOwner = "repair"

// Apply executes one repair command. Counter adjustments are
// deduplicated by key, so a redelivered message never applies twice.
func (o Orchestrator) Apply(ctx context.Context, cmd domain.RepairCommand) error {
	switch cmd.Type {
	case domain.RepairCounterAdjust:
		if o.deduper != nil && cmd.Key != "" {
			added, err := o.deduper.Add(ctx, dedupOwner, cmd.Key)
			if err != nil {
				return err
			}
			if !added {
				return nil
			}
		}
		if err := o.counters.IncrementRegistrationCount(ctx, cmd.EventID, cmd.Delta); err != nil {
			if o.deduper != nil && cmd.Key != "" {
				_ = o.deduper.Remove(ctx, dedupOwner, cmd.Key)
			}
			return err
		}
		return nil
	case domain.RepairCascadeRetry:
		return o.cascades.Delete(ctx, cmd.EventID)
	default:
		return fmt.Errorf("unknown repair command type %s", cmd.Type)
	}
}
