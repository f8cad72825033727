package am

import "github.com/teranos/prism/errors"

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	switch c.Source.Driver {
	case DriverSQLite, DriverPostgres:
	default:
		return errors.Newf("source.driver must be %q or %q, got %q", DriverSQLite, DriverPostgres, c.Source.Driver)
	}
	if c.Source.DSN == "" {
		return errors.New("source.dsn cannot be empty")
	}

	if c.Search.Enabled() && c.Search.Namespace == "" {
		return errors.New("search.namespace cannot be empty when search.url is set")
	}
	if c.Search.Enabled() && c.Search.Database == "" {
		return errors.New("search.database cannot be empty when search.url is set")
	}

	// Pulse workers: 0 = no background workers, negative = invalid
	if c.Pulse.Workers < 0 {
		return errors.Newf("pulse.workers must be >= 0, got %d", c.Pulse.Workers)
	}
	if c.Pulse.PollIntervalMS < 0 {
		return errors.Newf("pulse.poll_interval_ms must be >= 0, got %d", c.Pulse.PollIntervalMS)
	}
	if c.Pulse.MaxRetries < 0 {
		return errors.Newf("pulse.max_retries must be >= 0, got %d", c.Pulse.MaxRetries)
	}
	if c.Pulse.RetryBackoffSeconds < 0 {
		return errors.Newf("pulse.retry_backoff_seconds must be >= 0, got %d", c.Pulse.RetryBackoffSeconds)
	}
	if c.Pulse.JobTimeoutSeconds < 0 || c.Pulse.BulkJobTimeoutSeconds < 0 {
		return errors.New("pulse job timeouts must be >= 0 (0 = unbounded)")
	}
	if c.Pulse.DeleteSettleSeconds < 0 || c.Pulse.DeleteSettleAttempts < 0 {
		return errors.New("pulse delete settle values must be >= 0")
	}
	if c.Pulse.MemoryLimitPercent < 0 || c.Pulse.MemoryLimitPercent > 100 {
		return errors.Newf("pulse.memory_limit_percent must be within 0-100, got %f", c.Pulse.MemoryLimitPercent)
	}

	switch c.Reconcile.Marker {
	case MarkerSQL:
	case MarkerRedis:
		if c.Reconcile.RedisURL == "" {
			return errors.New("reconcile.redis_url cannot be empty when reconcile.marker is redis")
		}
	default:
		return errors.Newf("reconcile.marker must be %q or %q, got %q", MarkerSQL, MarkerRedis, c.Reconcile.Marker)
	}
	// Interval 0 = no periodic reconcile, negative = invalid
	if c.Reconcile.IntervalSeconds < 0 {
		return errors.Newf("reconcile.interval_seconds must be >= 0, got %d", c.Reconcile.IntervalSeconds)
	}
	if c.Reconcile.LockTTLSeconds <= 0 {
		return errors.Newf("reconcile.lock_ttl_seconds must be > 0, got %d", c.Reconcile.LockTTLSeconds)
	}
	if c.Reconcile.PageSize <= 0 {
		return errors.Newf("reconcile.page_size must be > 0, got %d", c.Reconcile.PageSize)
	}
	if c.Reconcile.OverlapSeconds < 0 {
		return errors.Newf("reconcile.overlap_seconds must be >= 0, got %d", c.Reconcile.OverlapSeconds)
	}

	if c.Reindex.PageSize <= 0 {
		return errors.Newf("reindex.page_size must be > 0, got %d", c.Reindex.PageSize)
	}
	if c.Reindex.RatePerSecond < 0 {
		return errors.Newf("reindex.rate_per_second must be >= 0, got %f", c.Reindex.RatePerSecond)
	}

	return nil
}
