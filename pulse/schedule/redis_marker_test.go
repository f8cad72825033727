package schedule

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/prism/errors"
)

func TestRedisMarkerKeys(t *testing.T) {
	m := NewRedisMarker(nil, "")
	assert.Equal(t, "prism:marker:reconcile:lock", m.lockKey())
	assert.Equal(t, "prism:marker:reconcile:watermark", m.watermarkKey())
}

func TestRedisMarkerUnreachable(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()
	m := NewRedisMarker(client, "")
	ctx := context.Background()

	err := m.Acquire(ctx, "a", time.Minute)
	require.Error(t, err)
	assert.True(t, errors.IsStoreUnavailable(err))
	assert.False(t, errors.Is(err, errors.ErrMarkerHeld))

	_, err = m.Watermark(ctx)
	assert.True(t, errors.IsStoreUnavailable(err))

	err = m.Release(ctx, "a", time.Now())
	assert.True(t, errors.IsStoreUnavailable(err))
}

func TestDialRedisBadURL(t *testing.T) {
	_, err := DialRedis(context.Background(), "not-a-url")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse redis URL")
}
