package alerts

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/resq-app/resq-backend/internal/constants"
	"github.com/resq-app/resq-backend/internal/dispatch"
	"github.com/resq-app/resq-backend/internal/falldetect"
	"github.com/resq-app/resq-backend/internal/firebase/structs"
	"github.com/resq-app/resq-backend/internal/geo"
	"github.com/resq-app/resq-backend/internal/ingest"
	"github.com/resq-app/resq-backend/internal/messaging"
	"github.com/resq-app/resq-backend/internal/pubsub"
	"github.com/resq-app/resq-backend/internal/realtimedb"
	"github.com/resq-app/resq-backend/internal/redis"
	"github.com/resq-app/resq-backend/internal/subscriptions"
	"github.com/resq-app/resq-backend/internal/utils"
	v1 "github.com/resq-app/resq-backend/pkg/api/v1"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const aeds = `{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature", "geometry": {"type": "Point", "coordinates": [103.80, 1.30]},
     "properties": {"AED_ID": "near", "AED_LOCATION_DESCRIPTION": "Lobby", "AED_LOCATION_FLOOR_LEVEL": "1"}},
    {"type": "Feature", "geometry": {"type": "Point", "coordinates": [104.50, 1.90]},
     "properties": {"AED_ID": "far", "AED_LOCATION_DESCRIPTION": "Station"}}
  ]
}`

type fakeDispatcher struct {
	mu       sync.Mutex
	payloads []v1.AlertPayload
	users    []string
	err      error
}

func (d *fakeDispatcher) Publish(_ context.Context, userID string, payload v1.AlertPayload) (*dispatch.DeliveryReport, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.err != nil {
		return nil, d.err
	}
	d.users = append(d.users, userID)
	d.payloads = append(d.payloads, payload)
	return &dispatch.DeliveryReport{UserID: userID, Delivered: 2, Failed: 1}, nil
}

type memoryLog struct {
	saved []structs.Emergency
}

func (l *memoryLog) Save(_ context.Context, e structs.Emergency) error {
	l.saved = append(l.saved, e)
	return nil
}

type fixture struct {
	service    *Service
	dispatcher *fakeDispatcher
	counters   *realtimedb.MockClient
	log        *memoryLog
	dedupe     *redis.MockClient
}

func newFixture() *fixture {
	f := &fixture{
		dispatcher: &fakeDispatcher{},
		counters:   &realtimedb.MockClient{},
		log:        &memoryLog{},
		dedupe:     &redis.MockClient{},
	}
	f.service = NewService(Deps{
		Dispatcher: f.dispatcher,
		Nearest:    geo.NewResolver(geo.NewIndex(geo.BytesSource(aeds)), 0),
		Counters:   realtimedb.NewAlertCounters(f.counters),
		Log:        f.log,
		Dedupe:     f.dedupe,
	}, Config{})
	return f
}

func float(v float64) *float64 {
	return &v
}

func TestRaiseManualDefaults(t *testing.T) {
	f := newFixture()

	res, err := f.service.Raise(context.Background(), Emergency{UserID: "user-1"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.EmergencyID)
	assert.False(t, res.Duplicate)
	assert.Equal(t, 2, res.Report.Delivered)

	require.Len(t, f.dispatcher.payloads, 1)
	payload := f.dispatcher.payloads[0]
	requireInteraction := true
	expected := v1.AlertPayload{
		Title:              v1.DefaultAlertTitle,
		Body:               v1.DefaultAlertBody,
		Icon:               v1.DefaultAlertIcon,
		Badge:              v1.DefaultAlertIcon,
		RequireInteraction: &requireInteraction,
		Data: map[string]string{
			v1.DataEmergencyID: res.EmergencyID,
			v1.DataKind:        v1.KindManual,
		},
	}
	if diff := cmp.Diff(expected, payload); diff != "" {
		t.Errorf("payload mismatch (-want +got):\n%s", diff)
	}

	require.Len(t, f.log.saved, 1)
	assert.Equal(t, "user-1", f.log.saved[0].UserID)
	assert.Equal(t, 2, f.log.saved[0].Delivered)
	assert.Equal(t, 1, f.log.saved[0].Failed)
	assert.Empty(t, f.log.saved[0].NearestAedID)

	var counters structs.AlertCounters
	require.NoError(t, f.counters.Get(constants.DbAlertCountersPath+"/total", &counters))
	assert.Equal(t, structs.AlertCounters{AlertsCount: 1, DeliveredCount: 2, FailedCount: 1}, counters)
}

func TestRaiseIncludesNearestAed(t *testing.T) {
	f := newFixture()

	res, err := f.service.Raise(context.Background(), Emergency{
		UserID:    "user-1",
		Kind:      v1.KindFall,
		Latitude:  float(1.3001),
		Longitude: float(103.8001),
	})
	require.NoError(t, err)

	payload := f.dispatcher.payloads[0]
	assert.Equal(t, FallTitle, payload.Title)
	assert.Equal(t, "near", payload.Data[v1.DataAedID])
	assert.Equal(t, "Lobby", payload.Data[v1.DataAedDesc])
	assert.Equal(t, "1", payload.Data[v1.DataAedFloorLevel])
	assert.Equal(t, "16", payload.Data[v1.DataAedDistanceM])
	assert.Equal(t, "1.3001", payload.Data[v1.DataLatitude])
	assert.Contains(t, payload.Body, "Nearest AED: Lobby (floor 1), 16 m away.")
	assert.Equal(t, res.EmergencyID, payload.EmergencyID())

	assert.Equal(t, "near", f.log.saved[0].NearestAedID)
}

func TestRaiseDuplicate(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.service.Raise(ctx, Emergency{EmergencyID: "e-1", UserID: "u"})
	require.NoError(t, err)

	res, err := f.service.Raise(ctx, Emergency{EmergencyID: "e-1", UserID: "u"})
	require.NoError(t, err)
	assert.True(t, res.Duplicate)
	assert.Nil(t, res.Report)
	assert.Len(t, f.dispatcher.payloads, 1)
}

func TestRaiseLookupFailureAllowsRetry(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.dispatcher.err = errors.New("store down")
	_, err := f.service.Raise(ctx, Emergency{EmergencyID: "e-1", UserID: "u"})
	assert.Error(t, err)
	assert.Empty(t, f.log.saved)

	f.dispatcher.err = nil
	res, err := f.service.Raise(ctx, Emergency{EmergencyID: "e-1", UserID: "u"})
	require.NoError(t, err)
	assert.False(t, res.Duplicate)
}

func TestRaiseDedupeFailureStillRaises(t *testing.T) {
	f := newFixture()
	f.dedupe.Err = errors.New("redis down")

	res, err := f.service.Raise(context.Background(), Emergency{UserID: "u"})
	require.NoError(t, err)
	assert.False(t, res.Duplicate)
	assert.Len(t, f.dispatcher.payloads, 1)
}

func TestBuildPayloadFall(t *testing.T) {
	payload := BuildPayload(Emergency{EmergencyID: "e", Kind: v1.KindFall, MagnitudeG: 4.257}, nil, Config{Icon: "/i.png", Badge: "/b.png"})

	assert.Equal(t, FallTitle, payload.Title)
	assert.Equal(t, "A fall with an impact of 4.3 g was detected.", payload.Body)
	assert.Equal(t, "4.26", payload.Data[v1.DataMagnitudeG])
	assert.Equal(t, "/i.png", payload.Icon)
	assert.Equal(t, "/b.png", payload.Badge)
	_, hasLat := payload.Data[v1.DataLatitude]
	assert.False(t, hasLat)
}

func TestFallsThroughPubSub(t *testing.T) {
	f := newFixture()
	bus := &pubsub.MockClient{Handler: f.service.Aftermath}

	onFall := OnFall(PubSubRaiser{Publisher: bus, Topic: constants.TopicFallDetected})
	onFall(context.Background(), ingest.Fall{
		UserID:   "user-1",
		DeviceID: "watch",
		Event:    falldetect.FallEvent{MagnitudeG: 4, TimestampMs: 99},
		Location: &ingest.Location{Latitude: 1.3, Longitude: 103.8},
	})

	messages := bus.Messages()
	require.Len(t, messages, 1)
	assert.Equal(t, constants.TopicFallDetected, messages[0].Topic)

	var msg v1.FallDetectedMessage
	require.NoError(t, json.Unmarshal(messages[0].Data, &msg))
	assert.Equal(t, "watch", msg.DeviceID)
	assert.Equal(t, int64(99), msg.TimestampMs)

	require.Len(t, f.dispatcher.payloads, 1)
	assert.Equal(t, msg.EmergencyID, f.dispatcher.payloads[0].EmergencyID())
	assert.Equal(t, "near", f.dispatcher.payloads[0].Data[v1.DataAedID])

	// redelivery of the same event
	require.NoError(t, f.service.Aftermath(context.Background(), pubsub.Message{Data: messages[0].Data}))
	assert.Len(t, f.dispatcher.payloads, 1)
}

func TestAftermathDropsMalformed(t *testing.T) {
	f := newFixture()

	assert.NoError(t, f.service.Aftermath(context.Background(), pubsub.Message{Data: []byte("{")}))
	assert.NoError(t, f.service.Aftermath(context.Background(), pubsub.Message{Data: []byte(`{"emergencyId":"e"}`)}))
	assert.Empty(t, f.dispatcher.payloads)
}

func TestAftermathFailureIsRedelivered(t *testing.T) {
	f := newFixture()
	f.dispatcher.err = errors.New("store down")

	data, err := json.Marshal(v1.FallDetectedMessage{EmergencyID: utils.GenerateEmergencyID(), UserID: "u"})
	require.NoError(t, err)

	assert.Error(t, f.service.Aftermath(context.Background(), pubsub.Message{Data: data}))
}

func TestDirectRaiser(t *testing.T) {
	f := newFixture()

	err := DirectRaiser{Service: f.service}.RaiseFall(context.Background(), v1.FallDetectedMessage{EmergencyID: "e", UserID: "u", MagnitudeG: 3.9})
	require.NoError(t, err)
	require.Len(t, f.dispatcher.payloads, 1)
	assert.Equal(t, v1.KindFall, f.dispatcher.payloads[0].Data[v1.DataKind])
	assert.Equal(t, []string{"u"}, f.dispatcher.users)
}

func TestRaisePrunesGoneSubscriptions(t *testing.T) {
	ctx := context.Background()

	store, err := subscriptions.OpenSQLite(ctx, ":memory:")
	require.NoError(t, err)
	defer store.Close()

	for _, endpoint := range []string{"https://push.example/gone", "https://push.example/live"} {
		_, err := store.Subscribe(ctx, "user-1", endpoint, subscriptions.Keys{P256dh: "p", Auth: "a"})
		require.NoError(t, err)
	}

	relay := &messaging.MockClient{Fail: map[string]error{
		"https://push.example/gone": &messaging.DeliveryError{StatusCode: 410, Gone: true, Msg: "expired"},
	}}

	service := NewService(Deps{
		Dispatcher: dispatch.New(store, relay, dispatch.Options{}),
		Prune:      store,
	}, Config{})

	res, err := service.Raise(ctx, Emergency{UserID: "user-1"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Report.Delivered)
	assert.Equal(t, 1, res.Report.Failed)

	subs, err := store.ListEnabled(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, "https://push.example/live", subs[0].Endpoint)
}

func TestRaiseWithoutPrunerKeepsGoneSubscriptions(t *testing.T) {
	ctx := context.Background()

	store, err := subscriptions.OpenSQLite(ctx, ":memory:")
	require.NoError(t, err)
	defer store.Close()

	_, err = store.Subscribe(ctx, "user-1", "https://push.example/gone", subscriptions.Keys{P256dh: "p", Auth: "a"})
	require.NoError(t, err)

	relay := &messaging.MockClient{Fail: map[string]error{
		"https://push.example/gone": &messaging.DeliveryError{StatusCode: 404, Gone: true, Msg: "not found"},
	}}

	service := NewService(Deps{Dispatcher: dispatch.New(store, relay, dispatch.Options{})}, Config{})

	_, err = service.Raise(ctx, Emergency{UserID: "user-1"})
	require.NoError(t, err)

	subs, err := store.ListEnabled(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, subs, 1)
}
