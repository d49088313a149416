// Package pushclient registers a device for alert pushes against the HTTP API.
package pushclient

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"strings"
	"sync"

	"github.com/resq-app/resq-backend/internal/logging"
	httputils "github.com/resq-app/resq-backend/internal/utils/http"
	v1 "github.com/resq-app/resq-backend/pkg/api/v1"
)

// Failure messages of Result.
const (
	ErrNotReady         = "Push notifications not supported or not ready"
	ErrPermissionDenied = "Notification permission denied"
	ErrNoSubscription   = "No active subscription"
)

// Result of every API call. Failures never surface as Go errors.
type Result struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

func failed(msg string) Result {
	return Result{Success: false, Error: msg}
}

// Capabilities of the runtime the client runs in.
type Capabilities struct {
	ServiceWorker bool
	PushManager   bool
	Notification  bool
}

// Supported whether push notifications can work at all.
func (c Capabilities) Supported() bool {
	return c.ServiceWorker && c.PushManager && c.Notification
}

// Permission state of notifications.
type Permission string

// Permission states.
const (
	PermissionGranted Permission = "granted"
	PermissionDenied  Permission = "denied"
	PermissionDefault Permission = "default"
)

// Permissions asks the user for the notification permission.
type Permissions interface {
	Request(ctx context.Context) (Permission, error)
}

// PushSubscription is what the push service handed out for this device.
type PushSubscription struct {
	Endpoint string
	P256dh   []byte
	Auth     []byte
}

// PushManager creates push subscriptions with the push service.
type PushManager interface {
	Subscribe(ctx context.Context, applicationServerKey []byte) (*PushSubscription, error)
	Unsubscribe(ctx context.Context, sub *PushSubscription) error
}

// Config of the client.
type Config struct {
	BaseURL      string
	Token        string
	HTTPClient   *http.Client
	Capabilities Capabilities
	Permissions  Permissions
	Manager      PushManager
}

// Client talks to the push endpoints of the API.
type Client struct {
	config Config

	mu        sync.Mutex
	publicKey string
	current   *PushSubscription
}

// New creates the client. A nil HTTPClient gets the throttling aware default.
func New(ctx context.Context, config Config) *Client {
	if config.HTTPClient == nil {
		logger := logging.FromContext(ctx).Named("pushclient")
		config.HTTPClient = httputils.NewThrottlingAwareClient(&http.Client{}, logger.Debugf)
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	return &Client{config: config}
}

// Subscribed whether this client holds an active subscription.
func (c *Client) Subscribed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current != nil
}

// VapidKey fetches (once) the application server key.
func (c *Client) VapidKey(ctx context.Context) (string, error) {
	c.mu.Lock()
	key := c.publicKey
	c.mu.Unlock()
	if key != "" {
		return key, nil
	}

	var resp v1.VapidKeyResponse
	if err := c.call(ctx, http.MethodGet, "/user/push/vapid-key", nil, &resp); err != nil {
		return "", err
	}
	if resp.PublicKey == "" {
		return "", fmt.Errorf("server returned no public key")
	}

	c.mu.Lock()
	c.publicKey = resp.PublicKey
	c.mu.Unlock()
	return resp.PublicKey, nil
}

// Subscribe asks for permission, subscribes with the push service and registers the subscription.
func (c *Client) Subscribe(ctx context.Context) Result {
	logger := logging.FromContext(ctx).Named("pushclient.Subscribe")

	if !c.config.Capabilities.Supported() || c.config.Token == "" || c.config.Manager == nil {
		return failed(ErrNotReady)
	}

	key, err := c.VapidKey(ctx)
	if err != nil {
		logger.Debugf("Failed to get VAPID key: %v", err)
		return failed(ErrNotReady)
	}

	if c.config.Permissions != nil {
		permission, err := c.config.Permissions.Request(ctx)
		if err != nil {
			return failed(err.Error())
		}
		if permission != PermissionGranted {
			return failed(ErrPermissionDenied)
		}
	}

	serverKey, err := DecodeKey(key)
	if err != nil {
		return failed(fmt.Sprintf("invalid VAPID key: %v", err))
	}

	sub, err := c.config.Manager.Subscribe(ctx, serverKey)
	if err != nil {
		return failed(err.Error())
	}

	req := v1.PushSubscribeRequest{
		Endpoint: sub.Endpoint,
		Keys: v1.PushKeys{
			P256dh: base64.StdEncoding.EncodeToString(sub.P256dh),
			Auth:   base64.StdEncoding.EncodeToString(sub.Auth),
		},
	}

	var resp Result
	if err := c.call(ctx, http.MethodPost, "/user/push/subscribe", req, &resp); err != nil {
		return failed(err.Error())
	}
	if !resp.Success {
		return failed(orDefault(resp.Error, "Failed to subscribe"))
	}

	c.mu.Lock()
	c.current = sub
	c.mu.Unlock()

	logger.Debugf("Subscribed %v", sub.Endpoint)
	return Result{Success: true}
}

// Unsubscribe drops the active subscription both at the push service and at the API.
func (c *Client) Unsubscribe(ctx context.Context) Result {
	c.mu.Lock()
	sub := c.current
	c.mu.Unlock()

	if sub == nil {
		return failed(ErrNoSubscription)
	}

	if err := c.config.Manager.Unsubscribe(ctx, sub); err != nil {
		return failed(err.Error())
	}

	var resp Result
	if err := c.call(ctx, http.MethodPost, "/user/push/unsubscribe", v1.PushUnsubscribeRequest{Endpoint: sub.Endpoint}, &resp); err != nil {
		return failed(err.Error())
	}
	if !resp.Success {
		return failed(orDefault(resp.Error, "Failed to unsubscribe"))
	}

	c.mu.Lock()
	c.current = nil
	c.mu.Unlock()
	return Result{Success: true}
}

// Toggle enables or disables delivery to all of the user's subscriptions.
func (c *Client) Toggle(ctx context.Context, enabled bool) Result {
	var resp Result
	if err := c.call(ctx, http.MethodPut, "/user/push/toggle", v1.PushToggleRequest{Enabled: &enabled}, &resp); err != nil {
		return failed(err.Error())
	}
	if !resp.Success {
		return failed(orDefault(resp.Error, "Failed to toggle"))
	}
	return Result{Success: true}
}

// apiError reads both `"error": "msg"` and `"error": {"message": "msg"}`.
type apiError struct {
	Error json.RawMessage `json:"error"`
}

func (e apiError) message() string {
	if len(e.Error) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(e.Error, &s); err == nil {
		return s
	}
	var obj struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(e.Error, &obj); err == nil {
		return obj.Message
	}
	return string(e.Error)
}

func (c *Client) call(ctx context.Context, method, path string, body interface{}, dst interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.Token)
	}

	resp, err := c.config.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := ioutil.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}

	if resp.StatusCode >= 400 {
		var e apiError
		if json.Unmarshal(raw, &e) == nil && e.message() != "" {
			return fmt.Errorf("%v", e.message())
		}
		return fmt.Errorf("server answered %v", resp.Status)
	}

	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("could not decode response: %w", err)
	}
	return nil
}

// DecodeKey decodes a base64url (padded or not) application server key.
func DecodeKey(key string) ([]byte, error) {
	key = strings.TrimRight(strings.TrimSpace(key), "=")
	return base64.RawURLEncoding.DecodeString(key)
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
