package v1

import (
	"github.com/resq-app/resq-backend/internal/geo"
)

/*
This files contains request/response structs for all endpoints. The structs have to be changed in
backward-compatible way and when it's not possible, copied to `v2` and changed there.
*/

//SuccessResponse Plain success response
type SuccessResponse struct {
	Success bool `json:"success"`
}

//ErrorResponse Response of every failed call
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

//VapidKeyResponse Response for VapidKey function
type VapidKeyResponse struct {
	PublicKey string `json:"publicKey"`
}

//PushKeys Client encryption keys of a push subscription
type PushKeys struct {
	P256dh string `json:"p256dh" validate:"required"`
	Auth   string `json:"auth" validate:"required"`
}

//PushSubscribeRequest Request for PushSubscribe function
type PushSubscribeRequest struct {
	Endpoint string   `json:"endpoint" validate:"required,max=2048"`
	Keys     PushKeys `json:"keys"`
}

//PushUnsubscribeRequest Request for PushUnsubscribe function
type PushUnsubscribeRequest struct {
	Endpoint string `json:"endpoint" validate:"required"`
}

//PushUnsubscribeResponse Response for PushUnsubscribe function
type PushUnsubscribeResponse struct {
	Success bool `json:"success"`
	Removed bool `json:"removed"`
}

//PushToggleRequest Request for PushToggle function. Empty endpoint toggles all of the user's subscriptions.
type PushToggleRequest struct {
	Enabled  *bool  `json:"enabled" validate:"required"`
	Endpoint string `json:"endpoint"`
}

//PushToggleResponse Response for PushToggle function
type PushToggleResponse struct {
	Success bool `json:"success"`
	Updated bool `json:"updated"`
}

//NearestAedResponse Response for NearestAed function
type NearestAedResponse struct {
	Results []geo.RankedResult `json:"results"`
}

//EmergencyRequest Request for Emergency function
type EmergencyRequest struct {
	Title     string   `json:"title" validate:"max=200"`
	Body      string   `json:"body" validate:"max=1000"`
	Latitude  *float64 `json:"latitude" validate:"omitempty,min=-90,max=90"`
	Longitude *float64 `json:"longitude" validate:"omitempty,min=-180,max=180"`
}

//EmergencyResponse Response for Emergency function
type EmergencyResponse struct {
	Success     bool   `json:"success"`
	EmergencyID string `json:"emergencyId"`
	Delivered   int    `json:"delivered"`
	Failed      int    `json:"failed"`
	Duplicate   bool   `json:"duplicate,omitempty"`
}

//SensorSample One accelerometer reading in m/s²
type SensorSample struct {
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	Z           float64 `json:"z"`
	TimestampMs int64   `json:"timestampMs" validate:"min=0"`
}

//SensorSamplesRequest Batch of accelerometer readings of one device, optionally with its last known location
type SensorSamplesRequest struct {
	DeviceID  string         `json:"deviceId" validate:"max=128"`
	Samples   []SensorSample `json:"samples" validate:"required,min=1,max=2000,dive"`
	Latitude  *float64       `json:"latitude" validate:"omitempty,min=-90,max=90"`
	Longitude *float64       `json:"longitude" validate:"omitempty,min=-180,max=180"`
}

//SensorSamplesResponse Response for SensorSamples function
type SensorSamplesResponse struct {
	Success  bool `json:"success"`
	Accepted int  `json:"accepted"`
}
