package v1

/*
This files contains the alert payload delivered to the clients and the fall messages exchanged over Pub/Sub.
*/

// Defaults applied by the clients to missing payload fields.
const (
	DefaultAlertTitle = "Emergency Alert"
	DefaultAlertBody  = "You have a new emergency alert"
	DefaultAlertIcon  = "/vite.svg"
	DefaultAlertTag   = "emergency"
	LandingRoute      = "/main"
)

// Data keys of AlertPayload.Data.
const (
	DataEmergencyID   = "emergencyId"
	DataKind          = "kind"
	DataMagnitudeG    = "magnitudeG"
	DataLatitude      = "latitude"
	DataLongitude     = "longitude"
	DataAedID         = "aedId"
	DataAedDistanceM  = "aedDistanceMeters"
	DataAedDesc       = "aedDescription"
	DataAedFloorLevel = "aedFloorLevel"
)

// Alert kinds.
const (
	KindFall   = "fall"
	KindManual = "manual"
)

//AlertPayload Push message body. All fields are optional for the receiving client.
type AlertPayload struct {
	Title              string            `json:"title,omitempty"`
	Body               string            `json:"body,omitempty"`
	Icon               string            `json:"icon,omitempty"`
	Badge              string            `json:"badge,omitempty"`
	RequireInteraction *bool             `json:"requireInteraction,omitempty"`
	Data               map[string]string `json:"data,omitempty"`
}

//EmergencyID Returns the emergency id carried in the data map.
func (p AlertPayload) EmergencyID() string {
	return p.Data[DataEmergencyID]
}

//FallDetectedMessage Published to the fall topic for every confirmed fall.
type FallDetectedMessage struct {
	EmergencyID string   `json:"emergencyId"`
	UserID      string   `json:"userId"`
	DeviceID    string   `json:"deviceId"`
	MagnitudeG  float64  `json:"magnitudeG"`
	TimestampMs int64    `json:"timestampMs"`
	Latitude    *float64 `json:"latitude,omitempty"`
	Longitude   *float64 `json:"longitude,omitempty"`
}
