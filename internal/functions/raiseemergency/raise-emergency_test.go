package raiseemergency

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/resq-app/resq-backend/internal/alerts"
	"github.com/resq-app/resq-backend/internal/auth"
	"github.com/resq-app/resq-backend/internal/dispatch"
	v1 "github.com/resq-app/resq-backend/pkg/api/v1"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRaiser struct {
	raised []alerts.Emergency
	err    error
}

func (f *fakeRaiser) Raise(_ context.Context, e alerts.Emergency) (*alerts.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.raised = append(f.raised, e)
	return &alerts.Result{
		EmergencyID: "e-1",
		Report:      &dispatch.DeliveryReport{UserID: e.UserID, Delivered: 2, Failed: 1},
	}, nil
}

func post(handler http.HandlerFunc, body, userID string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("POST", "/user/emergency", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req = req.WithContext(auth.WithUserID(req.Context(), userID))
	}
	rr := httptest.NewRecorder()
	handler(rr, req)
	return rr
}

func TestRaiseEmergency(t *testing.T) {
	raiser := &fakeRaiser{}
	handler := Handler(raiser)

	rr := post(handler, `{"title":"Help","latitude":1.3,"longitude":103.8}`, "user-1")
	require.Equal(t, http.StatusOK, rr.Code)

	var resp v1.EmergencyResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, v1.EmergencyResponse{Success: true, EmergencyID: "e-1", Delivered: 2, Failed: 1}, resp)

	require.Len(t, raiser.raised, 1)
	raised := raiser.raised[0]
	assert.Equal(t, "user-1", raised.UserID)
	assert.Equal(t, v1.KindManual, raised.Kind)
	assert.Equal(t, "Help", raised.Title)
	require.NotNil(t, raised.Latitude)
	assert.Equal(t, 1.3, *raised.Latitude)
}

func TestRaiseEmergencyErrors(t *testing.T) {
	raiser := &fakeRaiser{}
	handler := Handler(raiser)

	assert.Equal(t, http.StatusUnauthorized, post(handler, `{}`, "").Code)
	assert.Equal(t, http.StatusBadRequest, post(handler, `{"latitude":100}`, "user-1").Code)
	assert.Empty(t, raiser.raised)

	raiser.err = errors.New("store down")
	rr := post(handler, `{}`, "user-1")
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.JSONEq(t, `{"success":false,"error":"Unknown error"}`, rr.Body.String())
}
