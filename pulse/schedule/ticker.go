package schedule

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/prism/errors"
	"github.com/teranos/prism/logger"
	"github.com/teranos/prism/pulse/async"
)

// Runner is one reconcile pass
type Runner interface {
	Run(ctx context.Context) error
}

// Ticker runs the reconcile pass at a fixed interval and prunes finished jobs
type Ticker struct {
	runner          Runner
	queue           *async.Queue
	pools           []*async.WorkerPool // For system metrics in ticker display
	interval        time.Duration
	retention       time.Duration
	ctx             context.Context
	cancel          context.CancelFunc
	wg              sync.WaitGroup
	pulseLog        *zap.SugaredLogger // Logger with Pulse symbol pre-attached
	mu              sync.Mutex
	lastTickAt      time.Time
	lastRunErr      error
	ticksSinceStart int64
	lastActiveWork  int // Track last active work count to detect changes
}

// TickerConfig contains configuration for the Pulse ticker
type TickerConfig struct {
	Interval  time.Duration // How often to reconcile
	Retention time.Duration // Finished jobs older than this are pruned; 0 = keep forever
}

// DefaultTickerConfig returns sensible defaults
func DefaultTickerConfig() TickerConfig {
	return TickerConfig{
		Interval:  5 * time.Minute,
		Retention: 7 * 24 * time.Hour,
	}
}

// NewTicker creates a ticker bound to ctx. pools may be empty.
func NewTicker(ctx context.Context, runner Runner, queue *async.Queue, pools []*async.WorkerPool, cfg TickerConfig, log *zap.SugaredLogger) *Ticker {
	tickerCtx, cancel := context.WithCancel(ctx)
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultTickerConfig().Interval
	}

	return &Ticker{
		runner:         runner,
		queue:          queue,
		pools:          pools,
		interval:       cfg.Interval,
		retention:      cfg.Retention,
		ctx:            tickerCtx,
		cancel:         cancel,
		pulseLog:       logger.AddPulseSymbol(log),
		lastActiveWork: -1,
	}
}

// Start begins the ticker loop
func (t *Ticker) Start() {
	t.wg.Add(1)
	go t.run()
	t.pulseLog.Infow("Pulse ticker started", "interval", t.interval, "retention", t.retention)
}

// Stop gracefully stops the ticker, waiting for a running pass to notice cancellation
func (t *Ticker) Stop() {
	t.cancel()
	t.wg.Wait()
	t.pulseLog.Infow("Pulse ticker stopped")
}

// run is the main ticker loop
func (t *Ticker) run() {
	defer t.wg.Done()

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-t.ctx.Done():
			return
		case tickTime := <-ticker.C:
			t.tick(tickTime)
		}
	}
}

// tick runs one reconcile pass and one cleanup
func (t *Ticker) tick(now time.Time) {
	t.mu.Lock()
	t.lastTickAt = now
	t.ticksSinceStart++
	tick := t.ticksSinceStart
	t.mu.Unlock()

	t.logActivity()

	err := t.runner.Run(t.ctx)
	switch {
	case err == nil:
	case errors.Is(err, errors.ErrMarkerHeld):
		t.pulseLog.Infow("Reconcile skipped - marker held by another run", "tick", tick)
	case errors.Is(err, context.Canceled):
	default:
		t.pulseLog.Warnw("Reconcile failed, watermark not advanced", logger.FieldError, err, "tick", tick)
	}

	t.mu.Lock()
	t.lastRunErr = err
	t.mu.Unlock()

	t.cleanup()
}

// cleanup prunes old finished jobs
func (t *Ticker) cleanup() {
	if t.retention <= 0 || t.queue == nil {
		return
	}
	removed, err := t.queue.Cleanup(t.retention)
	if err != nil {
		t.pulseLog.Warnw("Failed to prune finished jobs", logger.FieldError, err)
		return
	}
	if removed > 0 {
		t.pulseLog.Infow("Pruned finished jobs", logger.FieldCount, removed, "older_than", t.retention)
	}
}

// logActivity logs queue activity when it changed since the last tick
func (t *Ticker) logActivity() {
	if t.queue == nil {
		return
	}
	stats, err := t.queue.GetStats("")
	if err != nil {
		t.pulseLog.Warnw("Failed to get queue stats", logger.FieldError, err)
		return
	}

	activeWork := stats.Queued + stats.Running

	t.mu.Lock()
	hasChanged := activeWork != t.lastActiveWork
	t.lastActiveWork = activeWork
	t.mu.Unlock()

	if !hasChanged {
		return
	}

	// 1 symbol per 5 jobs, capped at 60
	pulseIndicator := ""
	if activeWork > 0 {
		numSymbols := min((activeWork/5)+1, 60)
		pulseIndicator = strings.Repeat(logger.SymPulse+" ", numSymbols)
	}

	msg := fmt.Sprintf("%sPulse - %d jobs active, %d failed", pulseIndicator, activeWork, stats.Failed)
	for _, pool := range t.pools {
		m := pool.GetSystemMetrics()
		msg += fmt.Sprintf(" │ %s: %d/%d workers, %d queued", m.Queue, m.WorkersActive, m.WorkersTotal, m.JobsQueued)
	}
	if len(t.pools) > 0 {
		m := t.pools[0].GetSystemMetrics()
		msg += fmt.Sprintf(" │ Mem: %.1f/%.1fGB (%.0f%%)", m.MemoryUsedGB, m.MemoryTotalGB, m.MemoryPercent)
	}

	t.pulseLog.Infow(msg)
}

// GetStats returns ticker statistics
func (t *Ticker) GetStats() map[string]interface{} {
	t.mu.Lock()
	defer t.mu.Unlock()

	stats := map[string]interface{}{
		"last_tick_at":      t.lastTickAt,
		"ticks_since_start": t.ticksSinceStart,
		"interval":          t.interval,
	}
	if t.lastRunErr != nil {
		stats["last_error"] = t.lastRunErr.Error()
	}
	return stats
}
