package messaging

import (
	"context"
	"sync"

	"firebase.google.com/go/messaging"
	"github.com/resq-app/resq-backend/internal/logging"
	v1 "github.com/resq-app/resq-backend/pkg/api/v1"
)

//PushSender Interface for FB messaging client
type PushSender interface {
	Send(ctx context.Context, msg *messaging.Message) error
}

//Client Real implementation of FB messaging client
type Client struct {
	inner *messaging.Client
}

//NewClient Wraps the Firebase messaging client.
func NewClient(inner *messaging.Client) Client {
	return Client{inner: inner}
}

//Send Sends the message
func (c Client) Send(ctx context.Context, msg *messaging.Message) error {
	_, err := c.inner.Send(ctx, msg)
	return err
}

//FCM Relay delivering through Firebase Cloud Messaging. The subscription endpoint is the FCM registration token.
type FCM struct {
	sender PushSender
}

//NewFCM Creates the relay.
func NewFCM(sender PushSender) *FCM {
	return &FCM{sender: sender}
}

//Send Maps the payload to a Webpush notification and sends it.
func (f *FCM) Send(ctx context.Context, target Target, payload v1.AlertPayload) error {
	logger := logging.FromContext(ctx).Named("messaging.FCM.Send")

	msg := BuildFCMMessage(target.Endpoint, payload)

	if err := f.sender.Send(ctx, msg); err != nil {
		if messaging.IsRegistrationTokenNotRegistered(err) {
			return &DeliveryError{Gone: true, Msg: err.Error()}
		}
		return err
	}

	logger.Debugf("FCM accepted message for token %v", target.Endpoint)
	return nil
}

//BuildFCMMessage Creates the FCM message for given registration token.
func BuildFCMMessage(token string, payload v1.AlertPayload) *messaging.Message {
	requireInteraction := payload.RequireInteraction == nil || *payload.RequireInteraction

	tag := payload.EmergencyID()
	if tag == "" {
		tag = v1.DefaultAlertTag
	}

	return &messaging.Message{
		Token: token,
		Data:  payload.Data,
		Webpush: &messaging.WebpushConfig{
			Notification: &messaging.WebpushNotification{
				Title:              payload.Title,
				Body:               payload.Body,
				Icon:               payload.Icon,
				Badge:              payload.Badge,
				Tag:                tag,
				RequireInteraction: requireInteraction,
			},
		},
	}
}

//MockSender Records FCM messages. Safe for concurrent use.
type MockSender struct {
	Err error

	mu       sync.Mutex
	messages []*messaging.Message
}

//Send Records the message.
func (m *MockSender) Send(_ context.Context, msg *messaging.Message) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
	return nil
}

//Messages Returns the recorded messages.
func (m *MockSender) Messages() []*messaging.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*messaging.Message(nil), m.messages...)
}
