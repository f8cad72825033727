package am

import "time"

// Config represents the prism configuration
type Config struct {
	Database  DatabaseConfig  `mapstructure:"database" toml:"database" json:"database"`
	Source    SourceConfig    `mapstructure:"source" toml:"source" json:"source"`
	Search    SearchConfig    `mapstructure:"search" toml:"search" json:"search"`
	Graph     GraphConfig     `mapstructure:"graph" toml:"graph" json:"graph"`
	Pulse     PulseConfig     `mapstructure:"pulse" toml:"pulse" json:"pulse"`
	Reconcile ReconcileConfig `mapstructure:"reconcile" toml:"reconcile" json:"reconcile"`
	Reindex   ReindexConfig   `mapstructure:"reindex" toml:"reindex" json:"reindex"`
	Metrics   MetricsConfig   `mapstructure:"metrics" toml:"metrics" json:"metrics"`
	Tracing   TracingConfig   `mapstructure:"tracing" toml:"tracing" json:"tracing"`
}

// DatabaseConfig configures the SQLite database holding the job queue and reconcile marker
type DatabaseConfig struct {
	Path string `mapstructure:"path" toml:"path" json:"path"`
}

// SourceConfig configures the relational source of truth
type SourceConfig struct {
	Driver string `mapstructure:"driver" toml:"driver" json:"driver"` // sqlite3 or pgx
	DSN    string `mapstructure:"dsn" toml:"dsn" json:"dsn"`
}

// SearchConfig configures the SurrealDB document store. An empty URL disables the store.
type SearchConfig struct {
	URL       string `mapstructure:"url" toml:"url" json:"url"` // e.g. ws://localhost:8000/rpc
	Namespace string `mapstructure:"namespace" toml:"namespace" json:"namespace"`
	Database  string `mapstructure:"database" toml:"database" json:"database"`
	Username  string `mapstructure:"username" toml:"username" json:"username"`
	Password  string `mapstructure:"password" toml:"password" json:"password"`
}

// Enabled reports whether the search store is configured
func (c SearchConfig) Enabled() bool { return c.URL != "" }

// GraphConfig configures the Neo4j property-graph store. An empty URI disables the store.
type GraphConfig struct {
	URI      string `mapstructure:"uri" toml:"uri" json:"uri"` // e.g. neo4j://localhost:7687
	Username string `mapstructure:"username" toml:"username" json:"username"`
	Password string `mapstructure:"password" toml:"password" json:"password"`
	Database string `mapstructure:"database" toml:"database" json:"database"` // empty = server default
}

// Enabled reports whether the graph store is configured
func (c GraphConfig) Enabled() bool { return c.URI != "" }

// PulseConfig configures the async job system
type PulseConfig struct {
	Workers               int `mapstructure:"workers" toml:"workers" json:"workers"`                                                    // workers per queue; 0 = no background workers
	PollIntervalMS        int `mapstructure:"poll_interval_ms" toml:"poll_interval_ms" json:"poll_interval_ms"`                         // how often idle workers look for jobs
	MaxRetries            int `mapstructure:"max_retries" toml:"max_retries" json:"max_retries"`                                        // attempts after the first failure
	RetryBackoffSeconds   int `mapstructure:"retry_backoff_seconds" toml:"retry_backoff_seconds" json:"retry_backoff_seconds"`          // delay multiplied by attempt number
	JobTimeoutSeconds     int `mapstructure:"job_timeout_seconds" toml:"job_timeout_seconds" json:"job_timeout_seconds"`                // 0 = unbounded
	BulkJobTimeoutSeconds int `mapstructure:"bulk_job_timeout_seconds" toml:"bulk_job_timeout_seconds" json:"bulk_job_timeout_seconds"` // used by reindex; 0 = unbounded
	RetentionDays         int `mapstructure:"retention_days" toml:"retention_days" json:"retention_days"`                               // completed/failed jobs older than this are pruned
	DeleteSettleSeconds   int `mapstructure:"delete_settle_seconds" toml:"delete_settle_seconds" json:"delete_settle_seconds"`          // wait between checks while a deleted row is still present
	DeleteSettleAttempts  int `mapstructure:"delete_settle_attempts" toml:"delete_settle_attempts" json:"delete_settle_attempts"`       // checks before re-rendering instead; 0 = re-render at once

	MemoryLimitPercent float64 `mapstructure:"memory_limit_percent" toml:"memory_limit_percent" json:"memory_limit_percent"` // skip polling above this host memory use; 0 = never
}

// PollInterval returns the worker poll interval as a duration
func (c PulseConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMS) * time.Millisecond
}

// RetentionPeriod returns how long finished jobs are kept
func (c PulseConfig) RetentionPeriod() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

// ReconcileConfig configures the periodic catch-up driver
type ReconcileConfig struct {
	IntervalSeconds int    `mapstructure:"interval_seconds" toml:"interval_seconds" json:"interval_seconds"` // 0 = no periodic run
	Marker          string `mapstructure:"marker" toml:"marker" json:"marker"`           // sql or redis
	RedisURL        string `mapstructure:"redis_url" toml:"redis_url" json:"redis_url"`
	LockTTLSeconds  int    `mapstructure:"lock_ttl_seconds" toml:"lock_ttl_seconds" json:"lock_ttl_seconds"`
	PageSize        int    `mapstructure:"page_size" toml:"page_size" json:"page_size"`
	OverlapSeconds  int    `mapstructure:"overlap_seconds" toml:"overlap_seconds" json:"overlap_seconds"` // rescan window before the watermark, for clock skew
}

// ReindexConfig configures full re-indexing runs
type ReindexConfig struct {
	PageSize      int     `mapstructure:"page_size" toml:"page_size" json:"page_size"`
	RatePerSecond float64 `mapstructure:"rate_per_second" toml:"rate_per_second" json:"rate_per_second"` // 0 = unthrottled
}

// MetricsConfig configures the Prometheus endpoint
type MetricsConfig struct {
	Addr string `mapstructure:"addr" toml:"addr" json:"addr"` // empty = disabled
}

// TracingConfig configures OpenTelemetry export
type TracingConfig struct {
	Endpoint string `mapstructure:"endpoint" toml:"endpoint" json:"endpoint"` // OTLP/HTTP URL; empty = disabled
}

// Marker backends
const (
	MarkerSQL   = "sql"
	MarkerRedis = "redis"
)

// Source drivers
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "pgx"
)

// File system constants
const (
	DefaultDirPermissions = 0755
)
