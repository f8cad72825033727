//go:build integration

package schedule

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/teranos/prism/errors"
)

func TestRedisMarkerAgainstServer(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	url, err := container.ConnectionString(ctx)
	require.NoError(t, err)
	client, err := DialRedis(ctx, url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	marker := NewRedisMarker(client, "")

	wm, err := marker.Watermark(ctx)
	require.NoError(t, err)
	assert.True(t, wm.IsZero())

	require.NoError(t, marker.Acquire(ctx, "host-a", time.Minute))
	assert.True(t, errors.Is(marker.Acquire(ctx, "host-b", time.Minute), errors.ErrMarkerHeld))

	// Only the holder can release
	assert.True(t, errors.Is(marker.Release(ctx, "host-b", time.Now()), errors.ErrMarkerHeld))

	runStart := time.Date(2024, 6, 1, 10, 0, 0, 123, time.UTC)
	require.NoError(t, marker.Release(ctx, "host-a", runStart))

	wm, err = marker.Watermark(ctx)
	require.NoError(t, err)
	assert.True(t, wm.Equal(runStart))

	// A failed run leaves the watermark alone
	require.NoError(t, marker.Acquire(ctx, "host-b", time.Minute))
	require.NoError(t, marker.Release(ctx, "host-b", time.Time{}))
	wm, err = marker.Watermark(ctx)
	require.NoError(t, err)
	assert.True(t, wm.Equal(runStart))

	// Leases expire
	require.NoError(t, marker.Acquire(ctx, "crashed", 50*time.Millisecond))
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, marker.Acquire(ctx, "next", time.Minute))
}
