package domain

// Repair command types.
const (
	RepairCounterAdjust = "counter-adjust"
	RepairCascadeRetry  = "cascade-retry"
)

// RepairCommand is a compensating action queued when the second write of
// a two-write sequence fails. Key deduplicates retries so a repair never
// applies twice.
type RepairCommand struct {
	Type    string `json:"type"`
	EventID string `json:"eventId"`
	Delta   int    `json:"delta,omitempty"`
	Key     string `json:"key,omitempty"`
}
