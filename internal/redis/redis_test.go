package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseDeduper(t *testing.T, d Deduper) {
	ctx := context.Background()
	id := uuid.New().String()

	first, err := d.First(ctx, id)
	require.NoError(t, err)
	assert.True(t, first)

	first, err = d.First(ctx, id)
	require.NoError(t, err)
	assert.False(t, first, "redelivery is a duplicate")

	require.NoError(t, d.Forget(ctx, id))

	first, err = d.First(ctx, id)
	require.NoError(t, err)
	assert.True(t, first, "forgotten id is new again")
}

func TestMockClient(t *testing.T) {
	exerciseDeduper(t, &MockClient{})
}

func TestNoop(t *testing.T) {
	first, err := Noop{}.First(context.Background(), "x")
	require.NoError(t, err)
	assert.True(t, first)

	first, err = Noop{}.First(context.Background(), "x")
	require.NoError(t, err)
	assert.True(t, first)
}

func TestRedisClient(t *testing.T) {
	addr, ok := os.LookupEnv("REDIS_TEST_ADDR")
	if !ok {
		t.Skip("REDIS_TEST_ADDR not set")
	}

	client, err := Connect(context.Background(), addr, 0, time.Minute)
	require.NoError(t, err)
	defer client.Close()

	exerciseDeduper(t, client)
}
