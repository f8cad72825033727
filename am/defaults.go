package am

import (
	"github.com/spf13/viper"
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	v.SetDefault("database.path", "prism.db")

	v.SetDefault("source.driver", DriverSQLite)
	v.SetDefault("source.dsn", "source.db")

	// Stores stay disabled until a URL is given
	v.SetDefault("search.url", "")
	v.SetDefault("search.namespace", "prism")
	v.SetDefault("search.database", "prism")
	v.SetDefault("search.username", "root")
	v.SetDefault("search.password", "")
	v.SetDefault("graph.uri", "")
	v.SetDefault("graph.username", "neo4j")
	v.SetDefault("graph.password", "")
	v.SetDefault("graph.database", "")

	v.SetDefault("pulse.workers", 2)
	v.SetDefault("pulse.poll_interval_ms", 500)
	v.SetDefault("pulse.max_retries", 5)
	v.SetDefault("pulse.retry_backoff_seconds", 10)
	v.SetDefault("pulse.job_timeout_seconds", 60)
	v.SetDefault("pulse.bulk_job_timeout_seconds", 0)
	v.SetDefault("pulse.retention_days", 7)
	v.SetDefault("pulse.delete_settle_seconds", 5)
	v.SetDefault("pulse.delete_settle_attempts", 12)
	v.SetDefault("pulse.memory_limit_percent", 95.0)

	v.SetDefault("reconcile.interval_seconds", 300)
	v.SetDefault("reconcile.marker", MarkerSQL)
	v.SetDefault("reconcile.redis_url", "")
	v.SetDefault("reconcile.lock_ttl_seconds", 900)
	v.SetDefault("reconcile.page_size", 500)
	v.SetDefault("reconcile.overlap_seconds", 30)

	v.SetDefault("reindex.page_size", 1000)
	v.SetDefault("reindex.rate_per_second", 200.0)

	v.SetDefault("metrics.addr", ":9464")
	v.SetDefault("tracing.endpoint", "")
}

// BindSensitiveEnvVars explicitly binds credentials to environment variables
func BindSensitiveEnvVars(v *viper.Viper) {
	_ = v.BindEnv("search.password", "PRISM_SEARCH_PASSWORD")
	_ = v.BindEnv("graph.password", "PRISM_GRAPH_PASSWORD")
	_ = v.BindEnv("source.dsn", "PRISM_SOURCE_DSN")
	_ = v.BindEnv("reconcile.redis_url", "PRISM_REDIS_URL")
}
