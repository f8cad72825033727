package commands

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/teranos/prism/am"
	"github.com/teranos/prism/display"
	"github.com/teranos/prism/errors"
	"github.com/teranos/prism/logger"
	"github.com/teranos/prism/pulse/async"
	"github.com/teranos/prism/pulse/schedule"
	"github.com/teranos/prism/tracing"
)

// PulseCmd represents the pulse command - the sync daemon
var PulseCmd = &cobra.Command{
	Use:   "pulse",
	Short: logger.SymPulse + " Manage Pulse daemon (sync workers + reconcile ticker)",
	Long: logger.SymPulse + ` Pulse daemon - keeps the search and graph stores in step with the source.

The Pulse daemon provides:
- One worker pool per queue (fanout, search, graph)
- A periodic reconcile pass that re-triggers rows changed since the last run
- Pruning of finished jobs past their retention
- Prometheus metrics and optional OTLP tracing
- GRACE shutdown (completes current jobs before exit)

Example:
  prism pulse start              # Start daemon in foreground
  prism pulse start --workers 4  # Start with 4 workers per queue
  prism pulse status             # Show queue depths`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// PulseStartCmd starts the Pulse daemon
var PulseStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the Pulse daemon",
	Long: `Start the Pulse daemon in foreground mode.

The daemon will:
- Start a worker pool for each queue
- Start the reconcile ticker when reconcile.interval_seconds > 0
- Serve /metrics when metrics.addr is set
- Run until interrupted (Ctrl+C) with GRACE shutdown`,
	RunE: runPulseStart,
}

var pulseStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show job counts per queue",
	RunE:  runPulseStatus,
}

func init() {
	PulseStartCmd.Flags().Int("workers", 0, "Workers per store queue, fanout runs one (overrides pulse.workers)")
	PulseStartCmd.Flags().Bool("ensure-schema", false, "Define store schemas before starting workers")
	pulseStatusCmd.Flags().Bool("json", false, "Output as JSON")
	PulseCmd.AddCommand(PulseStartCmd)
	PulseCmd.AddCommand(pulseStatusCmd)
}

func runPulseStart(cmd *cobra.Command, args []string) error {
	cfg, err := am.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cmd.Flags().Changed("workers") {
		cfg.Pulse.Workers, _ = cmd.Flags().GetInt("workers")
	}

	fmt.Printf("%s Starting Pulse daemon with %d worker(s) per queue...\n", logger.SymPulse, cfg.Pulse.Workers)

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := tracing.Setup(ctx, cfg.Tracing.Endpoint)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warnw("Failed to flush traces", logger.FieldError, err)
		}
	}()

	s, err := openStack(ctx, cfg, logger.Logger)
	if err != nil {
		return err
	}
	defer s.Close(context.Background())

	if ensure, _ := cmd.Flags().GetBool("ensure-schema"); ensure {
		if err := ensureSchemas(ctx, s); err != nil {
			return err
		}
	}

	registry := async.NewHandlerRegistry()
	s.orch.Register(registry)

	var pools []*async.WorkerPool
	if cfg.Pulse.Workers > 0 {
		for _, queue := range async.Queues {
			pool := async.NewWorkerPool(ctx, s.queue, async.PoolConfigFor(queue, cfg.Pulse), registry,
				logger.ComponentLogger("pulse."+queue))
			pool.SetObserver(s.metrics)
			pool.Start()
			pools = append(pools, pool)
		}
	} else {
		display.Warning("pulse.workers is 0: jobs will queue but nothing processes them")
	}

	var ticker *schedule.Ticker
	if cfg.Reconcile.IntervalSeconds > 0 {
		reconciler, closeMarker, err := s.newReconciler(ctx, logger.Logger)
		if err != nil {
			stopPools(pools)
			return err
		}
		defer closeMarker()
		ticker = schedule.NewTicker(ctx, reconciler, s.queue, pools, schedule.TickerConfig{
			Interval:  time.Duration(cfg.Reconcile.IntervalSeconds) * time.Second,
			Retention: cfg.Pulse.RetentionPeriod(),
		}, logger.Logger)
		ticker.Start()
	}

	var metricsServer *http.Server
	if cfg.Metrics.Addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", s.metrics.Handler())
		metricsServer = &http.Server{Addr: cfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Errorw("Metrics endpoint stopped", logger.FieldError, err)
			}
		}()
	}

	fmt.Printf("%s Pulse daemon started\n", logger.SymPulse)
	fmt.Printf("  Workers per queue: %d\n", cfg.Pulse.Workers)
	fmt.Printf("  Poll interval: %v\n", cfg.Pulse.PollInterval())
	fmt.Printf("  Search store: %s\n", enabledLabel(s.search.Enabled()))
	fmt.Printf("  Graph store: %s\n", enabledLabel(s.graph.Enabled()))
	if ticker != nil {
		fmt.Printf("  Reconcile interval: %ds (%s marker)\n", cfg.Reconcile.IntervalSeconds, cfg.Reconcile.Marker)
	} else {
		fmt.Printf("  Reconcile: disabled\n")
	}
	if metricsServer != nil {
		fmt.Printf("  Metrics: http://%s/metrics\n", cfg.Metrics.Addr)
	}
	fmt.Printf("\n%s Press Ctrl+C for graceful shutdown\n\n", logger.SymPulse)

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	fmt.Printf("\n%s Initiating GRACE shutdown...\n", logger.SymPulse)

	// Stop components in reverse order of startup
	if metricsServer != nil {
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		_ = metricsServer.Shutdown(shutdownCtx)
		done()
	}
	if ticker != nil {
		ticker.Stop()
	}
	stopPools(pools)

	cancel()

	fmt.Printf("%s Pulse daemon stopped\n", logger.SymPulse)
	return nil
}

func stopPools(pools []*async.WorkerPool) {
	for _, pool := range pools {
		pool.Stop()
	}
}

func enabledLabel(enabled bool) string {
	if enabled {
		return "enabled"
	}
	return "disabled"
}

func runPulseStatus(cmd *cobra.Command, args []string) error {
	database, err := openDatabase("")
	if err != nil {
		return err
	}
	defer database.Close()

	queue := async.NewQueue(database, async.RetryPolicy{})
	var stats []*async.QueueStats
	for _, name := range async.Queues {
		st, err := queue.GetStats(name)
		if err != nil {
			return err
		}
		stats = append(stats, st)
	}

	if display.ShouldOutputJSON(cmd) {
		return display.OutputJSON(stats)
	}

	rows := make([][]string, 0, len(stats))
	for _, st := range stats {
		rows = append(rows, []string{
			st.Queue,
			strconv.Itoa(st.Queued),
			strconv.Itoa(st.Running),
			strconv.Itoa(st.Completed),
			strconv.Itoa(st.Failed),
			strconv.Itoa(st.Total),
		})
	}
	fmt.Printf("%s Queue status\n\n", logger.SymPulse)
	return display.Table([]string{"Queue", "Queued", "Running", "Completed", "Failed", "Total"}, rows)
}
