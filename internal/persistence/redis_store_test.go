package persistence

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/petrijr/herald/internal/testutil"
)

func newMiniredisClient(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRedisStore(t *testing.T) {
	runStoreTests(t, NewRedisPersistence(newMiniredisClient(t), "herald:test:"))
}

func TestRedisStore_Container(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	client := redis.NewClient(&redis.Options{Addr: testutil.GetRedisAddress(t)})
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	require.NoError(t, client.Ping(ctx).Err())

	const prefix = "herald:container:"
	iter := client.Scan(ctx, 0, prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		require.NoError(t, client.Del(ctx, iter.Val()).Err())
	}
	require.NoError(t, iter.Err())

	runStoreTests(t, NewRedisPersistence(client, prefix))
}
