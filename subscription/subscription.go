package subscription

import (
	"context"
	"encoding/json"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"portal-api/domain"
	"portal-api/storage"
)

// Fetcher loads the full current result set of a collection.
type Fetcher interface {
	FetchSnapshot(ctx context.Context, collection string) ([]byte, error)
}

// Snapshot is one complete result set delivered to a subscriber. Seq is
// the sequence of the change that produced it (0 for the initial set and
// for reconnect refreshes).
type Snapshot struct {
	Collection string
	Seq        int64
	Data       []byte
}

// Manager owns one change-feed loop per subscribed collection and hands
// out subscriptions with explicit lifetimes. Every subscriber receives
// the initial result set immediately, then a fresh full snapshot after
// each committed change, in commit order per collection. Callers must
// Unsubscribe; the last unsubscribe of a collection stops its loop.
type Manager struct {
	ctx     context.Context
	rc      *redis.Client
	fetcher Fetcher

	epoch         func() int64
	checkInterval time.Duration

	mu    sync.Mutex
	loops map[string]*feedLoop
}

func NewManager(ctx context.Context, rc *redis.Client, fetcher Fetcher) *Manager {
	m := &Manager{
		ctx:           ctx,
		rc:            rc,
		fetcher:       fetcher,
		checkInterval: 15 * time.Second,
		loops:         make(map[string]*feedLoop),
	}
	if rc != nil {
		e := &connEpoch{}
		rc.AddHook(e)
		m.epoch = e.value
	} else {
		m.epoch = func() int64 { return 0 }
	}
	return m
}

// connEpoch counts successful dials on the Redis client. go-redis
// reconnects a dropped pub/sub connection transparently but loses
// anything published while it was down, so the feed loops watch the
// dial count to catch reconnects that never surface as a channel close.
type connEpoch struct {
	dials atomic.Int64
}

func (e *connEpoch) value() int64 { return e.dials.Load() }

func (e *connEpoch) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		conn, err := next(ctx, network, addr)
		if err == nil {
			e.dials.Add(1)
		}
		return conn, err
	}
}

func (e *connEpoch) ProcessHook(next redis.ProcessHook) redis.ProcessHook { return next }

func (e *connEpoch) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return next
}

// Subscription is a live query over one collection.
type Subscription struct {
	collection string
	ch         chan Snapshot
	mgr        *Manager
	loop       *feedLoop
	once       sync.Once
}

// Snapshots returns the delivery channel. It is closed by Unsubscribe.
func (s *Subscription) Snapshots() <-chan Snapshot { return s.ch }

// Unsubscribe releases the subscription. Mandatory: an abandoned
// subscription would otherwise hold its slot in the loop forever.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.mgr.release(s)
	})
}

// Subscribe opens a live query over the named collection and delivers
// the initial result set before returning. The subscriber is attached
// to the change feed before the initial fetch, so a change committed
// while the fetch is in flight is broadcast to it rather than lost; the
// loop then delivers whichever snapshot is newer.
func (m *Manager) Subscribe(ctx context.Context, collection string) (*Subscription, error) {
	switch collection {
	case domain.CollectionEvents, domain.CollectionRegistrations, domain.CollectionMessages, domain.CollectionNotifications:
	default:
		return nil, &UnknownCollectionError{Collection: collection}
	}

	sub := &Subscription{collection: collection, ch: make(chan Snapshot, 1), mgr: m}

	m.mu.Lock()
	l, ok := m.loops[collection]
	if !ok {
		l = newFeedLoop(collection)
		m.loops[collection] = l
		go l.run(m.ctx, m)
	}
	sub.loop = l
	m.mu.Unlock()

	attachedAt := l.add(sub)

	initial, err := m.fetcher.FetchSnapshot(ctx, collection)
	if err != nil {
		m.release(sub)
		return nil, err
	}
	l.deliverInitial(sub, attachedAt, Snapshot{Collection: collection, Data: initial})
	return sub, nil
}

func (m *Manager) release(sub *Subscription) {
	m.mu.Lock()
	empty := sub.loop.remove(sub)
	if empty {
		delete(m.loops, sub.collection)
	}
	m.mu.Unlock()
	if empty {
		sub.loop.stop()
	}
	close(sub.ch)
}

// UnknownCollectionError reports a subscribe against a collection the
// store does not have.
type UnknownCollectionError struct{ Collection string }

func (e *UnknownCollectionError) Error() string {
	return "unknown collection " + e.Collection
}

// deliver hands a snapshot to the subscriber, coalescing to the latest
// when the subscriber is slow. The loop never blocks on one client.
func (s *Subscription) deliver(snap Snapshot) {
	for {
		select {
		case s.ch <- snap:
			return
		default:
		}
		select {
		case <-s.ch:
		default:
		}
	}
}

type feedLoop struct {
	collection string
	stopCh     chan struct{}
	stopOnce   sync.Once

	mu      sync.Mutex
	subs    map[*Subscription]struct{}
	version uint64
	last    Snapshot
}

func newFeedLoop(collection string) *feedLoop {
	return &feedLoop{collection: collection, stopCh: make(chan struct{}), subs: make(map[*Subscription]struct{})}
}

// add attaches a subscriber and returns the broadcast version at attach
// time, used to detect broadcasts that overtake the initial fetch.
func (l *feedLoop) add(sub *Subscription) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.subs[sub] = struct{}{}
	return l.version
}

func (l *feedLoop) remove(sub *Subscription) bool {
	l.mu.Lock()
	delete(l.subs, sub)
	empty := len(l.subs) == 0
	l.mu.Unlock()
	return empty
}

func (l *feedLoop) stop() {
	l.stopOnce.Do(func() { close(l.stopCh) })
}

func (l *feedLoop) broadcast(snap Snapshot) {
	l.mu.Lock()
	l.version++
	l.last = snap
	for sub := range l.subs {
		sub.deliver(snap)
	}
	l.mu.Unlock()
}

// deliverInitial hands the freshly fetched result set to a new
// subscriber. If a broadcast landed since the subscriber attached, its
// fetch may predate that change, so the broadcast snapshot is delivered
// instead. Serialized against broadcast, so the stale initial can never
// overwrite a newer snapshot already in the channel.
func (l *feedLoop) deliverInitial(sub *Subscription, attachedAt uint64, initial Snapshot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.version != attachedAt {
		sub.deliver(l.last)
		return
	}
	sub.deliver(initial)
}

// run consumes the collection's change feed and rebroadcasts full
// snapshots. A dropped pub/sub connection is logged and retried with a
// fresh snapshot pushed after resubscribe, so subscribers never stall
// silently.
func (l *feedLoop) run(ctx context.Context, m *Manager) {
	first := true
	for {
		select {
		case <-ctx.Done():
			return
		case <-l.stopCh:
			return
		default:
		}
		if !first {
			log.WithField("collection", l.collection).Error("change feed interrupted, resubscribing")
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return
			case <-l.stopCh:
				return
			}
		}
		first = false

		sub := m.rc.Subscribe(ctx, storage.ChangeChannel(l.collection))
		if _, err := sub.Receive(ctx); err != nil {
			_ = sub.Close()
			continue
		}
		if !l.consume(ctx, sub, m) {
			_ = sub.Close()
			return
		}
		_ = sub.Close()
		// Deliver what was missed while disconnected.
		if data, err := m.fetcher.FetchSnapshot(ctx, l.collection); err == nil {
			l.broadcast(Snapshot{Collection: l.collection, Data: data})
		}
	}
}

// consume pumps one pub/sub session. It returns true when the session
// ended abnormally and should be retried. Because go-redis redials a
// dropped connection without closing the message channel, the loop also
// polls the client's dial count; a moved count means messages may have
// been lost in between, so a fresh snapshot is fetched and broadcast.
func (l *feedLoop) consume(ctx context.Context, sub *redis.PubSub, m *Manager) bool {
	ch := sub.Channel()
	base := m.epoch()
	ticker := time.NewTicker(m.checkInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return false
		case <-l.stopCh:
			return false
		case <-ticker.C:
			e := m.epoch()
			if e == base {
				continue
			}
			base = e
			log.WithField("collection", l.collection).Warn("redis connection re-established, refreshing snapshot")
			data, err := m.fetcher.FetchSnapshot(ctx, l.collection)
			if err != nil {
				log.WithField("collection", l.collection).Errorf("fetch snapshot: %v", err)
				continue
			}
			l.broadcast(Snapshot{Collection: l.collection, Data: data})
		case msg, ok := <-ch:
			if !ok {
				return true
			}
			var change domain.Change
			if err := json.Unmarshal([]byte(msg.Payload), &change); err != nil {
				log.Errorf("unable to parse change: %v", err)
				continue
			}
			data, err := m.fetcher.FetchSnapshot(ctx, l.collection)
			if err != nil {
				log.WithField("collection", l.collection).Errorf("fetch snapshot: %v", err)
				continue
			}
			l.broadcast(Snapshot{Collection: l.collection, Seq: change.Seq, Data: data})
		}
	}
}
