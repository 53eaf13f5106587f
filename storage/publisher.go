package storage

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"portal-api/domain"
)

// ChannelPrefix namespaces the per-collection change channels.
const ChannelPrefix = "changes:"

// ChangeChannel returns the Redis channel carrying a collection's
// change feed.
func ChangeChannel(collection string) string {
	return ChannelPrefix + collection
}

// Publisher fans committed writes out to live query subscribers over
// Redis pub/sub. Sequence numbers come from the monotonic store clock,
// so per-collection delivery follows commit order.
type Publisher struct {
	rc *redis.Client
}

func NewPublisher(rc *redis.Client) *Publisher {
	return &Publisher{rc: rc}
}

// Publish emits one change record. A publish failure is logged, not
// returned: the write already committed and subscribers recover on the
// next change or resubscribe.
func (p *Publisher) Publish(ctx context.Context, collection, docID, kind string) {
	change := domain.Change{
		Collection: collection,
		DocID:      docID,
		Kind:       kind,
		Seq:        nextTimestamp(),
	}
	payload, err := json.Marshal(change)
	if err != nil {
		log.Errorf("marshal change: %v", err)
		return
	}
	if err := p.rc.Publish(ctx, ChangeChannel(collection), payload).Err(); err != nil {
		log.WithFields(log.Fields{"collection": collection, "doc": docID}).Errorf("publish change: %v", err)
	}
}
