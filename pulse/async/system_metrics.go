package async

import (
	"fmt"

	"github.com/shirou/gopsutil/v3/mem"

	"github.com/teranos/prism/errors"
)

// SystemMetrics tracks resource usage for worker pool monitoring
type SystemMetrics struct {
	Queue         string  `json:"queue"`
	WorkersActive int     `json:"workers_active"`  // Number of workers currently executing jobs
	WorkersTotal  int     `json:"workers_total"`   // Total configured workers
	MemoryUsedGB  float64 `json:"memory_used_gb"`  // Current memory usage in GB
	MemoryTotalGB float64 `json:"memory_total_gb"` // Total system memory in GB
	MemoryPercent float64 `json:"memory_percent"`  // Memory utilization percentage
	JobsQueued    int     `json:"jobs_queued"`     // Jobs waiting in queue
	JobsRunning   int     `json:"jobs_running"`    // Jobs currently executing
}

// getMemoryStats returns current host memory in bytes
func getMemoryStats() (total uint64, available uint64, err error) {
	v, err := mem.VirtualMemory()
	if err != nil {
		return 0, 0, errors.Wrap(err, "failed to get memory stats")
	}

	return v.Total, v.Available, nil
}

func usedPercent(total, available uint64) float64 {
	if total == 0 {
		return 0
	}
	return float64(total-available) / float64(total) * 100
}

// GetSystemMetrics returns current system resource usage
func (wp *WorkerPool) GetSystemMetrics() SystemMetrics {
	total, available, err := wp.memStats()

	var memUsedGB, memTotalGB, memPercent float64
	if err == nil && total > 0 {
		memTotalGB = float64(total) / 1024 / 1024 / 1024
		memUsedGB = float64(total-available) / 1024 / 1024 / 1024
		memPercent = usedPercent(total, available)
	}

	queued, running, err := wp.queue.GetJobCounts(wp.poolConfig.Queue)
	if err != nil {
		queued, running = 0, 0
	}

	wp.mu.Lock()
	activeWorkers := wp.activeWorkers
	wp.mu.Unlock()

	return SystemMetrics{
		Queue:         wp.poolConfig.Queue,
		WorkersActive: activeWorkers,
		WorkersTotal:  wp.poolConfig.Workers,
		MemoryUsedGB:  memUsedGB,
		MemoryTotalGB: memTotalGB,
		MemoryPercent: memPercent,
		JobsQueued:    queued,
		JobsRunning:   running,
	}
}

// checkMemoryPressure reports host memory already above the pool's limit at startup.
// Returns an empty string if OK or unknown.
func (wp *WorkerPool) checkMemoryPressure() string {
	if wp.poolConfig.MemoryLimitPercent <= 0 {
		return ""
	}
	total, available, err := wp.memStats()
	if err != nil {
		return ""
	}

	percent := usedPercent(total, available)
	if percent >= wp.poolConfig.MemoryLimitPercent {
		return fmt.Sprintf(
			"Host memory at %.1f%% exceeds the %.1f%% limit; workers will idle until it drops",
			percent, wp.poolConfig.MemoryLimitPercent)
	}
	return ""
}

// underMemoryPressure reports whether workers should skip this poll
func (wp *WorkerPool) underMemoryPressure() bool {
	if wp.poolConfig.MemoryLimitPercent <= 0 {
		return false
	}
	total, available, err := wp.memStats()
	if err != nil {
		return false
	}

	percent := usedPercent(total, available)
	if percent < wp.poolConfig.MemoryLimitPercent {
		return false
	}
	wp.logger.Debugw("Skipping poll under memory pressure",
		"memory_percent", percent,
		"limit_percent", wp.poolConfig.MemoryLimitPercent)
	return true
}
