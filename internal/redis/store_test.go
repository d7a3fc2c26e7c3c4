package redis_test

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleetops/internal/redis"
)

// newClient connects to TEST_REDIS_ADDR or skips the test.
func newClient(t *testing.T) *goredis.Client {
	t.Helper()

	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	client := goredis.NewClient(&goredis.Options{Addr: addr})
	require.NoError(t, client.Ping(context.Background()).Err())
	t.Cleanup(func() { client.Close() })
	return client
}

func TestZoneStore_ZonesNear(t *testing.T) {
	store := redis.NewZoneStore(newClient(t))
	ctx := context.Background()
	tripID := uuid.NewString()
	t.Cleanup(func() { _ = store.Clear(ctx, tripID) })

	require.NoError(t, store.PutZones(ctx, tripID, []redis.Zone{
		{Name: "pickup", Lat: -1.2921, Lng: 36.8219},
		{Name: "dropoff", Lat: -1.3000, Lng: 36.9000},
	}))

	names, err := store.ZonesNear(ctx, tripID, -1.2922, 36.8220, 150)
	require.NoError(t, err)
	assert.Equal(t, []string{"pickup"}, names)

	names, err = store.ZonesNear(ctx, tripID, 0, 0, 150)
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestZoneStore_EnterLeave(t *testing.T) {
	store := redis.NewZoneStore(newClient(t))
	ctx := context.Background()
	tripID := uuid.NewString()
	t.Cleanup(func() { _ = store.Clear(ctx, tripID) })

	require.NoError(t, store.Enter(ctx, tripID, "pickup"))
	require.NoError(t, store.Enter(ctx, tripID, "pickup"))
	require.NoError(t, store.Enter(ctx, tripID, "dropoff"))
	require.NoError(t, store.Leave(ctx, tripID, "pickup"))

	inside, err := store.Inside(ctx, tripID)
	require.NoError(t, err)
	assert.Equal(t, []string{"dropoff"}, inside)

	require.NoError(t, store.Leave(ctx, tripID, "dropoff"))
	inside, err = store.Inside(ctx, tripID)
	require.NoError(t, err)
	assert.Empty(t, inside)
}

func TestFingerprintIndex_Claim(t *testing.T) {
	index := redis.NewFingerprintIndex(newClient(t))
	ctx := context.Background()
	fp := uuid.NewString()
	t.Cleanup(func() { _ = index.Release(ctx, fp) })

	key, fresh, err := index.Claim(ctx, fp, "first")
	require.NoError(t, err)
	assert.True(t, fresh)
	assert.Equal(t, "first", key)

	key, fresh, err = index.Claim(ctx, fp, "second")
	require.NoError(t, err)
	assert.False(t, fresh)
	assert.Equal(t, "first", key)

	require.NoError(t, index.Release(ctx, fp))
	key, fresh, err = index.Claim(ctx, fp, "third")
	require.NoError(t, err)
	assert.True(t, fresh)
	assert.Equal(t, "third", key)
}
