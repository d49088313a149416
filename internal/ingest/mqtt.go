package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/resq-app/resq-backend/internal/logging"
	httputils "github.com/resq-app/resq-backend/internal/utils/http"
	v1 "github.com/resq-app/resq-backend/pkg/api/v1"
)

const connectTimeout = 10 * time.Second

// Feeder accepts sample batches.
type Feeder interface {
	Feed(ctx context.Context, batch Batch) int
}

// MQTTOptions of the broker connection.
type MQTTOptions struct {
	Broker   string
	ClientID string
	Topic    string
}

// Subscriber feeds samples published to `resq/device/{userId}/{deviceId}/accel` into a Feeder.
type Subscriber struct {
	client mqtt.Client
	topic  string
	feeder Feeder
}

// NewSubscriber connects to the broker and subscribes. The subscription is renewed on every reconnect.
func NewSubscriber(ctx context.Context, opts MQTTOptions, feeder Feeder) (*Subscriber, error) {
	logger := logging.FromContext(ctx).Named("ingest.NewSubscriber")

	s := &Subscriber{topic: opts.Topic, feeder: feeder}

	clientOpts := mqtt.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetOrderMatters(true).
		SetOnConnectHandler(func(c mqtt.Client) {
			logger.Debugf("Connected to %v, subscribing %v", opts.Broker, opts.Topic)
			if token := c.Subscribe(opts.Topic, 1, s.Handle(ctx)); token.Wait() && token.Error() != nil {
				logger.Errorf("Could not subscribe %v: %v", opts.Topic, token.Error())
			}
		}).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			logger.Warnf("Connection to %v lost: %v", opts.Broker, err)
		})

	s.client = mqtt.NewClient(clientOpts)

	token := s.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("timeout while connecting to %v", opts.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("could not connect to %v: %w", opts.Broker, err)
	}

	return s, nil
}

// Handle returns the message handler. Malformed messages are logged and dropped.
func (s *Subscriber) Handle(ctx context.Context) mqtt.MessageHandler {
	logger := logging.FromContext(ctx).Named("ingest.Handle")

	return func(_ mqtt.Client, msg mqtt.Message) {
		userID, deviceID, ok := ParseTopic(msg.Topic())
		if !ok {
			logger.Debugf("Ignoring message on topic %v", msg.Topic())
			return
		}

		var req v1.SensorSamplesRequest
		if err := json.Unmarshal(msg.Payload(), &req); err != nil {
			logger.Debugf("Invalid payload on %v: %v", msg.Topic(), err)
			return
		}
		req.DeviceID = deviceID

		if err := httputils.ValidateRequest(&req); err != nil {
			logger.Debugf("Invalid payload on %v: %v", msg.Topic(), err)
			return
		}

		s.feeder.Feed(ctx, FromRequest(userID, req))
	}
}

// Close disconnects from the broker.
func (s *Subscriber) Close() {
	s.client.Unsubscribe(s.topic).WaitTimeout(time.Second)
	s.client.Disconnect(250)
}

// ParseTopic extracts user and device id from `resq/device/{userId}/{deviceId}/accel`.
func ParseTopic(topic string) (userID, deviceID string, ok bool) {
	parts := strings.Split(topic, "/")
	if len(parts) != 5 || parts[0] != "resq" || parts[1] != "device" || parts[4] != "accel" {
		return "", "", false
	}
	if parts[2] == "" || parts[3] == "" {
		return "", "", false
	}
	return parts[2], parts[3], true
}

// SampleTopic is the topic a device publishes its samples to.
func SampleTopic(userID, deviceID string) string {
	return fmt.Sprintf("resq/device/%s/%s/accel", userID, deviceID)
}
