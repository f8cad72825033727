package logger

import (
	"go.uber.org/zap"
)

// Standard field names for structured logging across prism.
// Use these constants instead of raw strings so log queries stay stable.
const (
	// Jobs
	FieldJobID     = "job_id"
	FieldQueue     = "queue"
	FieldHandler   = "handler"
	FieldAttempt   = "attempt"
	FieldWorkerID  = "worker_id"
	FieldComponent = "component"

	// Projection
	FieldKind     = "kind"
	FieldVariant  = "variant"
	FieldStore    = "store"
	FieldModel    = "model"
	FieldRecordID = "record_id"
	FieldOp       = "op"
	FieldUnits    = "units"

	// Timing
	FieldDurationMS = "duration_ms"
	FieldWatermark  = "watermark"

	// Errors
	FieldError     = "error"
	FieldErrorCode = "error_code"

	// Counts
	FieldCount     = "count"
	FieldBatchSize = "batch_size"

	// Status
	FieldStatus = "status"

	// Segment symbol (꩜ pulse, ⊔ db, ⟁ sync)
	FieldSymbol = "symbol"
)

// ComponentLogger returns a named logger for a specific component.
// This is the preferred way to get a logger for dependency injection:
//
//	pool := async.NewWorkerPool(ctx, queue, cfg, registry, logger.ComponentLogger("pulse.search"))
func ComponentLogger(name string) *zap.SugaredLogger {
	return Logger.Named(name)
}
