package messaging

import (
	"context"
	"errors"
	"fmt"
	"sync"

	v1 "github.com/resq-app/resq-backend/pkg/api/v1"
)

//Target Delivery target of a push message.
type Target struct {
	Endpoint string
	P256dh   string
	Auth     string
}

//Relay Delivers one alert payload to one push target. Implementations own their timeouts and retries.
type Relay interface {
	Send(ctx context.Context, target Target, payload v1.AlertPayload) error
}

//DeliveryError Failure reported by the push service.
type DeliveryError struct {
	StatusCode int
	// Gone marks an expired or unknown subscription that should be removed.
	Gone bool
	Msg  string
}

func (e *DeliveryError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("push service answered %d: %v", e.StatusCode, e.Msg)
	}
	return e.Msg
}

//IsGone Whether the error says the subscription no longer exists.
func IsGone(err error) bool {
	var de *DeliveryError
	return errors.As(err, &de) && de.Gone
}

//MockClient Records the deliveries, failing targets listed in Fail.
type MockClient struct {
	mu   sync.Mutex
	Fail map[string]error
	Sent []MockDelivery
}

//MockDelivery One recorded delivery.
type MockDelivery struct {
	Target  Target
	Payload v1.AlertPayload
}

//Send Records the delivery or returns the configured failure.
func (m *MockClient) Send(ctx context.Context, target Target, payload v1.AlertPayload) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err, ok := m.Fail[target.Endpoint]; ok {
		return err
	}
	m.Sent = append(m.Sent, MockDelivery{Target: target, Payload: payload})
	return nil
}

//Deliveries Returns a copy of the recorded deliveries.
func (m *MockClient) Deliveries() []MockDelivery {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]MockDelivery, len(m.Sent))
	copy(out, m.Sent)
	return out
}
