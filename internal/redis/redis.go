package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	redisclient "github.com/go-redis/redis/v8"
	"github.com/resq-app/resq-backend/internal/constants"
	"github.com/resq-app/resq-backend/internal/logging"
)

//Deduper Remembers which emergencies were already handled.
type Deduper interface {
	// First reports whether id is seen for the first time within the TTL.
	First(ctx context.Context, id string) (bool, error)
	// Forget drops id so the next First for it succeeds again.
	Forget(ctx context.Context, id string) error
}

//Client Real Redis deduper
type Client struct {
	inner *redisclient.Client
	ttl   time.Duration
}

//Connect Connects to Redis at addr and checks the connection.
func Connect(ctx context.Context, addr string, db int, ttl time.Duration) (*Client, error) {
	logger := logging.FromContext(ctx).Named("redis.Connect")

	logger.Debug("Connecting to Redis")

	inner := redisclient.NewClient(&redisclient.Options{
		Addr: addr,
		DB:   db,
	})

	if _, err := inner.Ping(ctx).Result(); err != nil {
		_ = inner.Close()
		return nil, fmt.Errorf("Connection to Redis failed:%v", err)
	}

	logger.Debugf("Connected to Redis at %v", addr)

	return &Client{inner: inner, ttl: ttl}, nil
}

//First Marks id as seen. TTL value 0 means forever.
func (r *Client) First(ctx context.Context, id string) (bool, error) {
	return r.inner.SetNX(ctx, constants.DedupeKeyPrefix+id, 1, r.ttl).Result()
}

//Forget Deletes the mark of id.
func (r *Client) Forget(ctx context.Context, id string) error {
	return r.inner.Del(ctx, constants.DedupeKeyPrefix+id).Err()
}

//Close Closes the connection.
func (r *Client) Close() error {
	return r.inner.Close()
}

//Noop Deduper used when Redis is not configured: every id is new.
type Noop struct{}

//First Always true.
func (Noop) First(context.Context, string) (bool, error) { return true, nil }

//Forget Does nothing.
func (Noop) Forget(context.Context, string) error { return nil }

//MockClient In-memory deduper for unit tests (no expiration).
type MockClient struct {
	mu   sync.Mutex
	seen map[string]bool
	Err  error
}

//First Marks id as seen.
func (m *MockClient) First(_ context.Context, id string) (bool, error) {
	if m.Err != nil {
		return false, m.Err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.seen == nil {
		m.seen = map[string]bool{}
	}
	if m.seen[id] {
		return false, nil
	}
	m.seen[id] = true
	return true, nil
}

//Forget Drops the mark of id.
func (m *MockClient) Forget(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.seen, id)
	return nil
}
