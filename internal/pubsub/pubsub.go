package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"cloud.google.com/go/pubsub"
	"github.com/resq-app/resq-backend/internal/logging"
)

// Message is the payload of a Pub/Sub event.
type Message struct {
	Data []byte `json:"data"`
}

//DecodeJSONEvent Decodes JSON payload of the message into v.
func DecodeJSONEvent(m Message, v interface{}) error {
	return json.Unmarshal(m.Data, v)
}

//Handler Consumes one event. Returned error means the event will be redelivered.
type Handler func(ctx context.Context, m Message) error

//EventPublisher is an abstraction over PubSub
type EventPublisher interface {
	Publish(ctx context.Context, topic string, msg interface{}) error
}

//Client Real PubSub client.
type Client struct {
	inner *pubsub.Client
}

//NewClient Connects to PubSub of given project.
func NewClient(ctx context.Context, projectID string) (*Client, error) {
	inner, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub.NewClient: %w", err)
	}
	return &Client{inner: inner}, nil
}

//Publish Publish message to some topic.
func (c *Client) Publish(ctx context.Context, topic string, msg interface{}) error {
	var t = c.inner.Topic(topic)
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	result := t.Publish(ctx, &pubsub.Message{Data: payload})

	// The Get method blocks until a server-generated ID or
	// an error is returned for the published message.
	_, err = result.Get(ctx)
	return err
}

//Receive Consumes the subscription until ctx is done. Messages are acked when handler succeeds.
func (c *Client) Receive(ctx context.Context, subscription string, handler Handler) error {
	logger := logging.FromContext(ctx).Named("pubsub.Receive")

	sub := c.inner.Subscription(subscription)

	logger.Debugf("Receiving from %v", subscription)

	return sub.Receive(ctx, func(ctx context.Context, m *pubsub.Message) {
		if err := handler(ctx, Message{Data: m.Data}); err != nil {
			logger.Warnf("Handling of message %v failed, will be redelivered: %v", m.ID, err)
			m.Nack()
			return
		}
		m.Ack()
	})
}

//Close Closes the client.
func (c *Client) Close() error {
	return c.inner.Close()
}

//Published Message captured by MockClient.
type Published struct {
	Topic string
	Data  []byte
}

//MockClient In-memory PubSub client. When Handler is set, published messages are delivered to it synchronously.
type MockClient struct {
	Handler Handler
	Err     error

	mu        sync.Mutex
	published []Published
}

//Publish Publish message to some topic.
func (c *MockClient) Publish(ctx context.Context, topic string, msg interface{}) error {
	if c.Err != nil {
		return c.Err
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.published = append(c.published, Published{Topic: topic, Data: payload})
	c.mu.Unlock()

	if c.Handler != nil {
		return c.Handler(ctx, Message{Data: payload})
	}
	return nil
}

//Messages Returns what has been published so far.
func (c *MockClient) Messages() []Published {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Published(nil), c.published...)
}
