package sensorsamples

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/resq-app/resq-backend/internal/auth"
	"github.com/resq-app/resq-backend/internal/ingest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFeeder struct {
	batches []ingest.Batch
}

func (f *fakeFeeder) Feed(_ context.Context, batch ingest.Batch) int {
	f.batches = append(f.batches, batch)
	return len(batch.Samples)
}

func post(handler http.HandlerFunc, body, userID string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("POST", "/user/sensor/samples", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req = req.WithContext(auth.WithUserID(req.Context(), userID))
	}
	rr := httptest.NewRecorder()
	handler(rr, req)
	return rr
}

func TestSensorSamples(t *testing.T) {
	feeder := &fakeFeeder{}
	handler := Handler(feeder)

	body := `{"deviceId":"watch","samples":[{"x":0,"y":0,"z":9.8,"timestampMs":1},{"x":0,"y":0,"z":1,"timestampMs":2}],"latitude":1.3,"longitude":103.8}`
	rr := post(handler, body, "user-1")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"success":true,"accepted":2}`, rr.Body.String())

	require.Len(t, feeder.batches, 1)
	batch := feeder.batches[0]
	assert.Equal(t, "user-1", batch.UserID)
	assert.Equal(t, "watch", batch.DeviceID)
	assert.Equal(t, &ingest.Location{Latitude: 1.3, Longitude: 103.8}, batch.Location)
}

func TestSensorSamplesValidation(t *testing.T) {
	feeder := &fakeFeeder{}
	handler := Handler(feeder)

	assert.Equal(t, http.StatusUnauthorized, post(handler, `{"samples":[{"z":1}]}`, "").Code)
	assert.Equal(t, http.StatusBadRequest, post(handler, `{"samples":[]}`, "user-1").Code)
	assert.Equal(t, http.StatusBadRequest, post(handler, `{"samples":[{"z":1,"timestampMs":-1}]}`, "user-1").Code)
	assert.Equal(t, http.StatusBadRequest, post(handler, `{"samples":[{"z":1}],"latitude":-91}`, "user-1").Code)
	assert.Empty(t, feeder.batches)
}
