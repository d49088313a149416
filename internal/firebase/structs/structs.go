package structs

//Emergency DB entity for a raised emergency.
type Emergency struct {
	EmergencyID  string   `firestore:"emergencyId" json:"emergencyId"`
	UserID       string   `firestore:"userId" json:"userId"`
	Kind         string   `firestore:"kind" json:"kind"`
	MagnitudeG   float64  `firestore:"magnitudeG,omitempty" json:"magnitudeG,omitempty"`
	Latitude     *float64 `firestore:"latitude,omitempty" json:"latitude,omitempty"`
	Longitude    *float64 `firestore:"longitude,omitempty" json:"longitude,omitempty"`
	NearestAedID string   `firestore:"nearestAedId,omitempty" json:"nearestAedId,omitempty"`
	Delivered    int      `firestore:"delivered" json:"delivered"`
	Failed       int      `firestore:"failed" json:"failed"`
	CreatedAt    int64    `firestore:"createdAt" json:"createdAt"`
}

//AlertCounters Daily counters of raised alerts and their deliveries, kept in Realtime DB.
type AlertCounters struct {
	AlertsCount    int `json:"alertsCount"`
	DeliveredCount int `json:"deliveredCount"`
	FailedCount    int `json:"failedCount"`
}
