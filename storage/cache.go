package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"portal-api/domain"
)

const (
	eventsCacheKey        = "snapshot:events"
	notificationsCacheKey = "snapshot:notifications"
)

type backend interface {
	ListEvents(ctx context.Context) ([]domain.Event, error)
	ListNotifications(ctx context.Context) ([]domain.Notification, error)
	InsertEvent(ctx context.Context, ev domain.Event) error
	DeleteEvent(ctx context.Context, id string) error
	IncrementRegistrationCount(ctx context.Context, eventID string, delta int) error
	InsertNotification(ctx context.Context, n domain.Notification) error
}

// Cache wraps a Storage instance with Redis-backed caching for the list
// views rendered on every dashboard. Writes evict; the live query feed
// keeps clients current in between.
type Cache struct {
	*Storage
	base  backend
	redis *redis.Client
	ttl   time.Duration
}

// NewCache creates a caching Storage wrapper using the provided Redis
// client and TTL.
func NewCache(base backend, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base storage is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	c := &Cache{base: base, redis: client, ttl: ttl}
	if s, ok := base.(*Storage); ok {
		c.Storage = s
	}
	return c
}

func (c *Cache) ListEvents(ctx context.Context) ([]domain.Event, error) {
	if events, ok := loadCached[domain.Event](ctx, c.redis, eventsCacheKey); ok {
		return events, nil
	}
	events, err := c.base.ListEvents(ctx)
	if err != nil {
		return nil, err
	}
	c.store(ctx, eventsCacheKey, events)
	return events, nil
}

func (c *Cache) ListNotifications(ctx context.Context) ([]domain.Notification, error) {
	if ns, ok := loadCached[domain.Notification](ctx, c.redis, notificationsCacheKey); ok {
		return ns, nil
	}
	ns, err := c.base.ListNotifications(ctx)
	if err != nil {
		return nil, err
	}
	c.store(ctx, notificationsCacheKey, ns)
	return ns, nil
}

func (c *Cache) InsertEvent(ctx context.Context, ev domain.Event) error {
	if err := c.base.InsertEvent(ctx, ev); err != nil {
		return err
	}
	c.evict(ctx, eventsCacheKey)
	return nil
}

func (c *Cache) DeleteEvent(ctx context.Context, id string) error {
	if err := c.base.DeleteEvent(ctx, id); err != nil {
		return err
	}
	c.evict(ctx, eventsCacheKey)
	return nil
}

func (c *Cache) IncrementRegistrationCount(ctx context.Context, eventID string, delta int) error {
	if err := c.base.IncrementRegistrationCount(ctx, eventID, delta); err != nil {
		return err
	}
	c.evict(ctx, eventsCacheKey)
	return nil
}

func (c *Cache) InsertNotification(ctx context.Context, n domain.Notification) error {
	if err := c.base.InsertNotification(ctx, n); err != nil {
		return err
	}
	c.evict(ctx, notificationsCacheKey)
	return nil
}

func loadCached[T any](ctx context.Context, client *redis.Client, key string) ([]T, bool) {
	if client == nil {
		return nil, false
	}
	data, err := client.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the backing storage without failing.
			_ = client.Del(ctx, key).Err()
		}
		return nil, false
	}
	var items []T
	if err := json.Unmarshal(data, &items); err != nil {
		_ = client.Del(ctx, key).Err()
		return nil, false
	}
	return items, true
}

func (c *Cache) store(ctx context.Context, key string, items any) {
	if c.redis == nil {
		return
	}
	data, err := json.Marshal(items)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, key, data, c.ttl).Err()
}

func (c *Cache) evict(ctx context.Context, key string) {
	if c.redis == nil {
		return
	}
	_ = c.redis.Del(ctx, key).Err()
}
