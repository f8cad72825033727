package logger

import (
	"go.uber.org/zap"
)

// Segment symbols attached as a structured field, never in the message, so
// logs stay queryable by segment.
const (
	SymPulse = "꩜" // async queue and worker pools
	SymDB    = "⊔" // job store, markers, source reads
	SymSync  = "⟁" // projection into search and graph stores
)

// AddPulseSymbol wraps an instance logger with the Pulse symbol
func AddPulseSymbol(l *zap.SugaredLogger) *zap.SugaredLogger {
	return l.With(FieldSymbol, SymPulse)
}

// AddDBSymbol wraps an instance logger with the DB symbol
func AddDBSymbol(l *zap.SugaredLogger) *zap.SugaredLogger {
	return l.With(FieldSymbol, SymDB)
}

// AddSyncSymbol wraps an instance logger with the Sync symbol
func AddSyncSymbol(l *zap.SugaredLogger) *zap.SugaredLogger {
	return l.With(FieldSymbol, SymSync)
}
