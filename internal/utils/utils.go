package utils

import (
	"time"

	"github.com/google/uuid"
	"gopkg.in/go-playground/validator.v9"
)

//Validate -_-
var Validate *validator.Validate

func init() {
	Validate = validator.New()
}

//GenerateEmergencyID generates new emergency id
func GenerateEmergencyID() string {
	return uuid.New().String()
}

// GetTimeNow Gets current time in UTC
func GetTimeNow() time.Time {
	return time.Now().UTC()
}

// FormatDate Formats the day of t as yyyymmdd, used for daily counters.
func FormatDate(t time.Time) string {
	return t.UTC().Format("20060102")
}
