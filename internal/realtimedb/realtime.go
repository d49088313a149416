package realtimedb

import (
	"context"
	"encoding/json"
	"sync"

	"firebase.google.com/go/db"
	"github.com/resq-app/resq-backend/internal/constants"
	"github.com/resq-app/resq-backend/internal/firebase/structs"
	"github.com/resq-app/resq-backend/internal/logging"
	"github.com/resq-app/resq-backend/internal/utils"
)

// RealtimeDB is a Realtime DB abstraction layer interface
type RealtimeDB interface {
	RunTransaction(ctx context.Context, path string, f db.UpdateFn) error
}

// Client to interact with storage API
type Client struct {
	inner *db.Client
}

// New wraps the Firebase Realtime DB client.
func New(inner *db.Client) Client {
	return Client{inner: inner}
}

// NewRef returns a reference to path in Realtime DB
func (i Client) NewRef(path string) *db.Ref {
	return i.inner.NewRef(path)
}

// RunTransaction runs f in a transaction at given path in Realtime DB
func (i Client) RunTransaction(ctx context.Context, path string, f db.UpdateFn) (err error) {
	return i.inner.NewRef(path).Transaction(ctx, f)
}

// AlertCounters keeps the daily and total alert counters.
type AlertCounters struct {
	db RealtimeDB
}

// NewAlertCounters creates counters stored in the given DB.
func NewAlertCounters(db RealtimeDB) *AlertCounters {
	return &AlertCounters{db: db}
}

// Record counts one raised alert with its delivery results, both for today and in total.
func (c *AlertCounters) Record(ctx context.Context, delivered, failed int) error {
	logger := logging.FromContext(ctx).Named("realtimedb.AlertCounters.Record")

	date := utils.FormatDate(utils.GetTimeNow())

	for _, key := range []string{date, "total"} {
		path := constants.DbAlertCountersPath + "/" + key

		err := c.db.RunTransaction(ctx, path, func(tn db.TransactionNode) (interface{}, error) {
			var state structs.AlertCounters

			if err := tn.Unmarshal(&state); err != nil {
				return nil, err
			}

			logger.Debugf("Found counter state, key %v: %+v", key, state)

			state.AlertsCount++
			state.DeliveredCount += delivered
			state.FailedCount += failed

			return state, nil
		})
		if err != nil {
			return err
		}
	}

	return nil
}

// MockClient mocks storage client functionality for unit tests. Values are kept as JSON, as the real DB does.
type MockClient struct {
	mu   sync.Mutex
	data map[string][]byte
}

type mockNode []byte

func (n mockNode) Unmarshal(v interface{}) error {
	if len(n) == 0 {
		return nil
	}
	return json.Unmarshal(n, v)
}

// RunTransaction runs f against the in-memory value at path
func (i *MockClient) RunTransaction(ctx context.Context, path string, f db.UpdateFn) (err error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.data == nil {
		i.data = map[string][]byte{}
	}

	value, err := f(mockNode(i.data[path]))
	if err != nil {
		return err
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	i.data[path] = raw
	return nil
}

// Get decodes the value at path into v.
func (i *MockClient) Get(path string, v interface{}) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	return mockNode(i.data[path]).Unmarshal(v)
}
