package messaging

import (
	"context"
	"encoding/json"
	"io"
	"io/ioutil"
	"net/http"
	"strings"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/resq-app/resq-backend/internal/logging"
	httputils "github.com/resq-app/resq-backend/internal/utils/http"
	v1 "github.com/resq-app/resq-backend/pkg/api/v1"
)

const maxErrorBody = 512

//WebPushOptions VAPID identity and delivery settings.
type WebPushOptions struct {
	PublicKey  string
	PrivateKey string
	// Subscriber is the contact (mailto: or https:) announced to the push services.
	Subscriber string
	TTL        int
	HTTPClient *http.Client
}

//WebPush Relay speaking the Web Push protocol with VAPID authentication.
type WebPush struct {
	opts WebPushOptions
}

//NewWebPush Creates the relay. A nil HTTPClient gets the throttling aware default.
func NewWebPush(ctx context.Context, opts WebPushOptions) *WebPush {
	if opts.HTTPClient == nil {
		logger := logging.FromContext(ctx).Named("messaging.WebPush")
		opts.HTTPClient = httputils.NewThrottlingAwareClient(&http.Client{}, logger.Debugf)
	}
	return &WebPush{opts: opts}
}

//PublicKey The VAPID public key clients subscribe with.
func (w *WebPush) PublicKey() string {
	return w.opts.PublicKey
}

//Send Encrypts and posts the payload to the target endpoint.
func (w *WebPush) Send(ctx context.Context, target Target, payload v1.AlertPayload) error {
	logger := logging.FromContext(ctx).Named("messaging.WebPush.Send")

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	sub := &webpush.Subscription{
		Endpoint: target.Endpoint,
		Keys: webpush.Keys{
			Auth:   target.Auth,
			P256dh: target.P256dh,
		},
	}

	resp, err := webpush.SendNotificationWithContext(ctx, body, sub, &webpush.Options{
		HTTPClient:      w.opts.HTTPClient,
		Subscriber:      w.opts.Subscriber,
		TTL:             w.opts.TTL,
		Urgency:         webpush.UrgencyHigh,
		VAPIDPublicKey:  w.opts.PublicKey,
		VAPIDPrivateKey: w.opts.PrivateKey,
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg, _ := ioutil.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &DeliveryError{
			StatusCode: resp.StatusCode,
			Gone:       resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone,
			Msg:        strings.TrimSpace(string(msg)),
		}
	}

	logger.Debugf("Push service accepted message for %v with status %d", target.Endpoint, resp.StatusCode)
	return nil
}

//GenerateVAPIDKeys Generates a new VAPID key pair.
func GenerateVAPIDKeys() (privateKey, publicKey string, err error) {
	return webpush.GenerateVAPIDKeys()
}
