package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/resq-app/resq-backend/internal/messaging"
	"github.com/resq-app/resq-backend/internal/subscriptions"
	v1 "github.com/resq-app/resq-backend/pkg/api/v1"
)

type fakeSubscriptions struct {
	subs []subscriptions.Subscription
	err  error
}

func (f *fakeSubscriptions) ListEnabled(_ context.Context, userID string) ([]subscriptions.Subscription, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []subscriptions.Subscription
	for _, s := range f.subs {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	return out, nil
}

func subsFor(user string, endpoints ...string) []subscriptions.Subscription {
	out := make([]subscriptions.Subscription, 0, len(endpoints))
	for _, e := range endpoints {
		out = append(out, subscriptions.Subscription{
			UserID:   user,
			Endpoint: e,
			Keys:     subscriptions.Keys{P256dh: "p-" + e, Auth: "a-" + e},
			Enabled:  true,
		})
	}
	return out
}

var payload = v1.AlertPayload{
	Title: "Fall detected",
	Data:  map[string]string{v1.DataEmergencyID: "em-1"},
}

func TestPublishOneFailureOfThree(t *testing.T) {
	store := &fakeSubscriptions{subs: subsFor("u1", "e1", "e2", "e3")}
	relay := &messaging.MockClient{Fail: map[string]error{"e2": errors.New("connection reset")}}

	report, err := New(store, relay, Options{}).Publish(context.Background(), "u1", payload)
	require.NoError(t, err)

	want := &DeliveryReport{
		UserID:    "u1",
		Delivered: 2,
		Failed:    1,
		Outcomes: []Outcome{
			{Endpoint: "e1", Status: StatusDelivered},
			{Endpoint: "e2", Status: StatusFailed, Error: "connection reset"},
			{Endpoint: "e3", Status: StatusDelivered},
		},
	}
	if diff := cmp.Diff(want, report); diff != "" {
		t.Errorf("report mismatch (-want +got):\n%s", diff)
	}

	deliveries := relay.Deliveries()
	require.Len(t, deliveries, 2)
	for _, d := range deliveries {
		assert.Equal(t, "p-"+d.Target.Endpoint, d.Target.P256dh)
		assert.Equal(t, "em-1", d.Payload.EmergencyID())
	}
}

func TestPublishNoSubscriptions(t *testing.T) {
	report, err := New(&fakeSubscriptions{}, &messaging.MockClient{}, Options{}).Publish(context.Background(), "u1", payload)
	require.NoError(t, err)

	assert.Equal(t, 0, report.Delivered)
	assert.Equal(t, 0, report.Failed)
	assert.Empty(t, report.Outcomes)
}

func TestPublishLookupFailure(t *testing.T) {
	store := &fakeSubscriptions{err: errors.New("db down")}

	report, err := New(store, &messaging.MockClient{}, Options{}).Publish(context.Background(), "u1", payload)
	assert.Error(t, err)
	assert.Nil(t, report)
}

func TestPublishReportsGone(t *testing.T) {
	store := &fakeSubscriptions{subs: subsFor("u1", "e1", "e2")}
	relay := &messaging.MockClient{Fail: map[string]error{
		"e1": &messaging.DeliveryError{StatusCode: 410, Gone: true, Msg: "expired"},
	}}

	report, err := New(store, relay, Options{}).Publish(context.Background(), "u1", payload)
	require.NoError(t, err)

	assert.True(t, report.Outcomes[0].Gone)
	assert.Equal(t, StatusFailed, report.Outcomes[0].Status)
	assert.False(t, report.Outcomes[1].Gone)

	// the gone endpoint is still listed: pruning is up to the caller
	report, err = New(store, relay, Options{}).Publish(context.Background(), "u1", payload)
	require.NoError(t, err)
	assert.Len(t, report.Outcomes, 2)
}

type slowRelay struct {
	inFlight int32
	peak     int32
	delay    time.Duration
}

func (s *slowRelay) Send(ctx context.Context, target messaging.Target, _ v1.AlertPayload) error {
	n := atomic.AddInt32(&s.inFlight, 1)
	defer atomic.AddInt32(&s.inFlight, -1)

	for {
		peak := atomic.LoadInt32(&s.peak)
		if n <= peak || atomic.CompareAndSwapInt32(&s.peak, peak, n) {
			break
		}
	}

	select {
	case <-time.After(s.delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestPublishBoundsConcurrency(t *testing.T) {
	endpoints := make([]string, 20)
	for i := range endpoints {
		endpoints[i] = fmt.Sprintf("e%02d", i)
	}
	store := &fakeSubscriptions{subs: subsFor("u1", endpoints...)}
	relay := &slowRelay{delay: 10 * time.Millisecond}

	report, err := New(store, relay, Options{Concurrency: 3}).Publish(context.Background(), "u1", payload)
	require.NoError(t, err)

	assert.Equal(t, 20, report.Delivered)
	assert.LessOrEqual(t, atomic.LoadInt32(&relay.peak), int32(3))
}

func TestPublishTimeoutFailsOnlyThatEndpoint(t *testing.T) {
	store := &fakeSubscriptions{subs: subsFor("u1", "e1")}
	relay := &slowRelay{delay: time.Second}

	report, err := New(store, relay, Options{Timeout: 20 * time.Millisecond}).Publish(context.Background(), "u1", payload)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, context.DeadlineExceeded.Error(), report.Outcomes[0].Error)
}

func TestPublishThroughFCMConcurrently(t *testing.T) {
	endpoints := make([]string, 20)
	for i := range endpoints {
		endpoints[i] = fmt.Sprintf("token-%d", i)
	}
	store := &fakeSubscriptions{subs: subsFor("u1", endpoints...)}
	sender := &messaging.MockSender{}

	report, err := New(store, messaging.NewFCM(sender), Options{Concurrency: 8}).Publish(context.Background(), "u1", payload)
	require.NoError(t, err)

	assert.Equal(t, 20, report.Delivered)
	assert.Len(t, sender.Messages(), 20)
}
