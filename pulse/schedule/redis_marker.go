package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/teranos/prism/errors"
)

// releaseScript deletes the lock only if holder still owns it, and writes the
// watermark in the same step.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) ~= ARGV[1] then
	return 0
end
if ARGV[2] ~= "" then
	redis.call("SET", KEYS[2], ARGV[2])
end
return redis.call("DEL", KEYS[1])
`)

// RedisMarker keeps the marker in Redis for deployments where several hosts run
// pulse against separate job databases. The lock is a SET NX PX key; the
// watermark lives in its own key without expiry.
type RedisMarker struct {
	client *redis.Client
	name   string
}

// NewRedisMarker creates a marker on client under name
func NewRedisMarker(client *redis.Client, name string) *RedisMarker {
	if name == "" {
		name = DefaultMarkerName
	}
	return &RedisMarker{client: client, name: name}
}

// DialRedis parses url and verifies the server answers
func DialRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(err, "parse redis URL")
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, errors.Unavailable(err, "redis ping failed")
	}
	return client, nil
}

func (m *RedisMarker) lockKey() string      { return "prism:marker:" + m.name + ":lock" }
func (m *RedisMarker) watermarkKey() string { return "prism:marker:" + m.name + ":watermark" }

// Acquire takes the lock key unless it exists
func (m *RedisMarker) Acquire(ctx context.Context, holder string, ttl time.Duration) error {
	ok, err := m.client.SetNX(ctx, m.lockKey(), holder, ttl).Result()
	if err != nil {
		return errors.Unavailable(err, "failed to acquire marker %s", m.name)
	}
	if !ok {
		return errors.WithDetail(errors.Wrapf(errors.ErrMarkerHeld, "marker %s", m.name),
			fmt.Sprintf("Requested by: %s", holder))
	}
	return nil
}

// Watermark reads the watermark key
func (m *RedisMarker) Watermark(ctx context.Context) (time.Time, error) {
	raw, err := m.client.Get(ctx, m.watermarkKey()).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, errors.Unavailable(err, "failed to read watermark of %s", m.name)
	}

	wm, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "malformed watermark %q", raw)
	}
	return wm.UTC(), nil
}

// Release deletes the lock if holder still owns it and optionally advances the watermark
func (m *RedisMarker) Release(ctx context.Context, holder string, advance time.Time) error {
	wm := ""
	if !advance.IsZero() {
		wm = advance.UTC().Format(time.RFC3339Nano)
	}

	n, err := releaseScript.Run(ctx, m.client, []string{m.lockKey(), m.watermarkKey()}, holder, wm).Int()
	if err != nil {
		return errors.Unavailable(err, "failed to release marker %s", m.name)
	}
	if n == 0 {
		err := errors.Wrapf(errors.ErrMarkerHeld, "marker %s no longer held by %s", m.name, holder)
		return errors.WithHint(err, "the run outlived reconcile.lock_ttl_seconds; raise it above the longest scan")
	}
	return nil
}
