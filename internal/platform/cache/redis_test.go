package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestAcquireLock(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := New(context.Background(), mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	ctx := context.Background()

	ok, release, err := AcquireLock(ctx, client, "jobs:lock:test", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, mr.Exists("jobs:lock:test"))

	ok, second, err := AcquireLock(ctx, client, "jobs:lock:test", time.Minute)
	require.NoError(t, err)
	require.False(t, ok)
	second()
	require.True(t, mr.Exists("jobs:lock:test"), "a refused lock must not release the holder")

	release()
	require.False(t, mr.Exists("jobs:lock:test"))

	ok, release, err = AcquireLock(ctx, client, "jobs:lock:test", time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	mr.FastForward(2 * time.Second)
	require.False(t, mr.Exists("jobs:lock:test"))
	release()
}

func TestAcquireLockWithoutClient(t *testing.T) {
	ok, release, err := AcquireLock(context.Background(), nil, "k", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	release()
}

func TestNewReportsPingFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()
	client, err := New(context.Background(), addr)
	require.Error(t, err)
	require.IsType(t, &redis.Client{}, client)
	_ = client.Close()
}
