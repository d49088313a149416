package utils

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	config, err := LoadConfig(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "8080", config.Server.Port)
	assert.Equal(t, "sqlite", config.Store.Driver)
	assert.Equal(t, "webpush", config.Relay.Driver)
	assert.Equal(t, 0.5, config.Fall.FreefallG)
	assert.Equal(t, 3.5, config.Fall.ImpactG)
	assert.Equal(t, time.Second, config.Fall.Timeout)
	assert.Equal(t, 5, config.Geo.DefaultK)
	assert.Equal(t, 10*time.Minute, config.Alert.DedupeTTL)
	assert.False(t, config.Firebase.FirebaseEnabled())
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("FALL_IMPACT_G", "2.75")
	t.Setenv("PROJECT_ID", "resq-prod")
	t.Setenv("INGEST_IDLE_TIMEOUT", "30s")

	config, err := LoadConfig(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "9090", config.Server.Port)
	assert.Equal(t, 2.75, config.Fall.ImpactG)
	assert.Equal(t, 30*time.Second, config.Ingest.IdleTimeout)
	assert.True(t, config.Firebase.FirebaseEnabled())
}

func TestLoadConfigInvalid(t *testing.T) {
	t.Setenv("RELAY_CONCURRENCY", "many")

	_, err := LoadConfig(context.Background())
	assert.Error(t, err)
}
