// Package subscriptions persists web push subscriptions, unique per (user, endpoint).
package subscriptions

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/resq-app/resq-backend/internal/utils"
)

// Keys are the client encryption keys of a push subscription.
type Keys struct {
	P256dh string `json:"p256dh" validate:"required"`
	Auth   string `json:"auth" validate:"required"`
}

// Subscription is one registered push endpoint of a user.
type Subscription struct {
	UserID    string    `json:"userId"`
	Endpoint  string    `json:"endpoint"`
	Keys      Keys      `json:"keys"`
	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// AllEndpoints selects every subscription of a user in SetEnabled.
const AllEndpoints = ""

// Store is the subscription persistence interface. Implementations enforce (UserID, Endpoint) uniqueness
// with the backend's own upsert primitive.
type Store interface {
	// Subscribe inserts a new enabled record or replaces the keys of the existing one.
	Subscribe(ctx context.Context, userID, endpoint string, keys Keys) (*Subscription, error)
	// Unsubscribe removes the record and reports whether one existed.
	Unsubscribe(ctx context.Context, userID, endpoint string) (bool, error)
	// SetEnabled toggles one record, or all of the user's records for AllEndpoints, and reports whether any matched.
	SetEnabled(ctx context.Context, userID, endpoint string, enabled bool) (bool, error)
	// ListEnabled returns the user's enabled records ordered by endpoint.
	ListEnabled(ctx context.Context, userID string) ([]Subscription, error)
	Close() error
}

func checkUser(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("user id is required")
	}
	return nil
}

func checkKey(userID, endpoint string) error {
	if err := checkUser(userID); err != nil {
		return err
	}
	if strings.TrimSpace(endpoint) == "" {
		return fmt.Errorf("endpoint is required")
	}
	return nil
}

func checkKeys(keys Keys) error {
	if keys.P256dh == "" || keys.Auth == "" {
		return fmt.Errorf("subscription keys p256dh and auth are required")
	}
	return nil
}

var timeNow = utils.GetTimeNow
