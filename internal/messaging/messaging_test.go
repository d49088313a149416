package messaging

import (
	"context"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	v1 "github.com/resq-app/resq-backend/pkg/api/v1"
)

func testTarget(t *testing.T, endpoint string) Target {
	t.Helper()

	_, x, y, err := elliptic.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	auth := make([]byte, 16)
	_, err = rand.Read(auth)
	require.NoError(t, err)

	return Target{
		Endpoint: endpoint,
		P256dh:   base64.RawURLEncoding.EncodeToString(elliptic.Marshal(elliptic.P256(), x, y)),
		Auth:     base64.RawURLEncoding.EncodeToString(auth),
	}
}

func testWebPush(t *testing.T, client *http.Client) *WebPush {
	t.Helper()

	private, public, err := GenerateVAPIDKeys()
	require.NoError(t, err)

	return NewWebPush(context.Background(), WebPushOptions{
		PublicKey:  public,
		PrivateKey: private,
		Subscriber: "ops@resq.example",
		TTL:        60,
		HTTPClient: client,
	})
}

func TestWebPushDelivers(t *testing.T) {
	var got *http.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	relay := testWebPush(t, srv.Client())
	err := relay.Send(context.Background(), testTarget(t, srv.URL+"/push/abc"), v1.AlertPayload{
		Title: "Fall detected",
		Data:  map[string]string{v1.DataEmergencyID: "em-1"},
	})
	require.NoError(t, err)

	require.NotNil(t, got)
	assert.Equal(t, "/push/abc", got.URL.Path)
	assert.Equal(t, "high", got.Header.Get("Urgency"))
	assert.Equal(t, "60", got.Header.Get("TTL"))
	assert.Equal(t, "aes128gcm", got.Header.Get("Content-Encoding"))
	assert.True(t, strings.HasPrefix(got.Header.Get("Authorization"), "vapid "))
	assert.NotEmpty(t, relay.PublicKey())
}

func TestWebPushFailures(t *testing.T) {
	cases := map[string]struct {
		status int
		gone   bool
	}{
		"gone":      {status: http.StatusGone, gone: true},
		"not found": {status: http.StatusNotFound, gone: true},
		"server":    {status: http.StatusInternalServerError},
		"too large": {status: http.StatusRequestEntityTooLarge},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte("nope\n"))
			}))
			defer srv.Close()

			err := testWebPush(t, srv.Client()).Send(context.Background(), testTarget(t, srv.URL), v1.AlertPayload{})

			var de *DeliveryError
			require.True(t, errors.As(err, &de), "got %v", err)
			assert.Equal(t, tc.status, de.StatusCode)
			assert.Equal(t, "nope", de.Msg)
			assert.Equal(t, tc.gone, IsGone(err))
		})
	}
}

func TestWebPushBadKeys(t *testing.T) {
	relay := testWebPush(t, http.DefaultClient)

	err := relay.Send(context.Background(), Target{Endpoint: "http://127.0.0.1:1", P256dh: "x", Auth: "y"}, v1.AlertPayload{})
	assert.Error(t, err)
	assert.False(t, IsGone(err))
}

func TestBuildFCMMessage(t *testing.T) {
	no := false
	msg := BuildFCMMessage("token-1", v1.AlertPayload{
		Title:              "t",
		Body:               "b",
		RequireInteraction: &no,
		Data:               map[string]string{v1.DataEmergencyID: "em-7"},
	})

	assert.Equal(t, "token-1", msg.Token)
	assert.Equal(t, "em-7", msg.Data[v1.DataEmergencyID])
	require.NotNil(t, msg.Webpush)
	assert.Equal(t, "em-7", msg.Webpush.Notification.Tag)
	assert.Equal(t, "t", msg.Webpush.Notification.Title)
	assert.False(t, msg.Webpush.Notification.RequireInteraction)

	msg = BuildFCMMessage("token-2", v1.AlertPayload{})
	assert.Equal(t, v1.DefaultAlertTag, msg.Webpush.Notification.Tag)
	assert.True(t, msg.Webpush.Notification.RequireInteraction)
}

func TestFCMSend(t *testing.T) {
	sender := &MockSender{}
	relay := NewFCM(sender)

	require.NoError(t, relay.Send(context.Background(), Target{Endpoint: "tok"}, v1.AlertPayload{Title: "x"}))
	messages := sender.Messages()
	require.Len(t, messages, 1)
	assert.Equal(t, "tok", messages[0].Token)

	sender.Err = errors.New("unavailable")
	err := relay.Send(context.Background(), Target{Endpoint: "tok"}, v1.AlertPayload{})
	assert.EqualError(t, err, "unavailable")
	assert.False(t, IsGone(err))
}

func TestMockClient(t *testing.T) {
	mock := &MockClient{Fail: map[string]error{"bad": &DeliveryError{StatusCode: 410, Gone: true}}}

	assert.NoError(t, mock.Send(context.Background(), Target{Endpoint: "good"}, v1.AlertPayload{}))
	assert.True(t, IsGone(mock.Send(context.Background(), Target{Endpoint: "bad"}, v1.AlertPayload{})))
	assert.Len(t, mock.Deliveries(), 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, mock.Send(ctx, Target{Endpoint: "good"}, v1.AlertPayload{}))
}
