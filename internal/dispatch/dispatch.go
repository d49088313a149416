// Package dispatch fans an alert out to every enabled push subscription of a user.
package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/resq-app/resq-backend/internal/logging"
	"github.com/resq-app/resq-backend/internal/messaging"
	"github.com/resq-app/resq-backend/internal/subscriptions"
	v1 "github.com/resq-app/resq-backend/pkg/api/v1"
	"golang.org/x/sync/errgroup"
)

const (
	// StatusDelivered indicates the push was accepted by the relay.
	StatusDelivered = "delivered"
	// StatusFailed indicates the delivery to this endpoint failed.
	StatusFailed = "failed"
)

// Defaults of Options.
const (
	DefaultConcurrency = 8
	DefaultTimeout     = 10 * time.Second
)

// Outcome is the delivery result of one endpoint.
type Outcome struct {
	Endpoint string `json:"endpoint"`
	Status   string `json:"status"`
	Error    string `json:"error,omitempty"`
	Gone     bool   `json:"gone,omitempty"`
}

// DeliveryReport aggregates the outcomes of one Publish call, in subscription order.
type DeliveryReport struct {
	UserID    string    `json:"userId"`
	Delivered int       `json:"delivered"`
	Failed    int       `json:"failed"`
	Outcomes  []Outcome `json:"outcomes"`
}

// Subscriptions is the read side of the subscription store. The dispatcher never writes to it.
type Subscriptions interface {
	ListEnabled(ctx context.Context, userID string) ([]subscriptions.Subscription, error)
}

// Options tune the fan-out.
type Options struct {
	// Concurrency bounds the parallel deliveries.
	Concurrency int
	// Timeout bounds every single delivery attempt.
	Timeout time.Duration
}

// Dispatcher delivers alert payloads through a relay.
type Dispatcher struct {
	subs  Subscriptions
	relay messaging.Relay
	opts  Options
}

// New creates a dispatcher. Zero options fall back to the defaults.
func New(subs Subscriptions, relay messaging.Relay, opts Options) *Dispatcher {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	return &Dispatcher{subs: subs, relay: relay, opts: opts}
}

// Publish delivers payload to every enabled subscription of userID. Delivery failures are recorded in the
// report; the error is returned only when the subscriptions could not be listed.
func (d *Dispatcher) Publish(ctx context.Context, userID string, payload v1.AlertPayload) (*DeliveryReport, error) {
	logger := logging.FromContext(ctx).Named("dispatch.Publish")

	subs, err := d.subs.ListEnabled(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions of %v: %w", userID, err)
	}

	report := &DeliveryReport{
		UserID:   userID,
		Outcomes: make([]Outcome, len(subs)),
	}

	var g errgroup.Group
	g.SetLimit(d.opts.Concurrency)

	for i, sub := range subs {
		i, sub := i, sub
		g.Go(func() error {
			report.Outcomes[i] = d.deliver(ctx, sub, payload)
			return nil
		})
	}
	_ = g.Wait()

	for _, o := range report.Outcomes {
		if o.Status == StatusDelivered {
			report.Delivered++
		} else {
			report.Failed++
		}
	}

	logger.Infof("Alert %v for user %v: %d delivered, %d failed", payload.EmergencyID(), userID, report.Delivered, report.Failed)

	return report, nil
}

func (d *Dispatcher) deliver(ctx context.Context, sub subscriptions.Subscription, payload v1.AlertPayload) Outcome {
	logger := logging.FromContext(ctx).Named("dispatch.deliver")

	sendCtx, cancel := context.WithTimeout(ctx, d.opts.Timeout)
	defer cancel()

	target := messaging.Target{
		Endpoint: sub.Endpoint,
		P256dh:   sub.Keys.P256dh,
		Auth:     sub.Keys.Auth,
	}

	err := d.relay.Send(sendCtx, target, payload)
	if err == nil {
		return Outcome{Endpoint: sub.Endpoint, Status: StatusDelivered}
	}

	logger.Warnf("Delivery to %v failed: %v", sub.Endpoint, err)

	return Outcome{
		Endpoint: sub.Endpoint,
		Status:   StatusFailed,
		Error:    err.Error(),
		Gone:     messaging.IsGone(err),
	}
}
