package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestInitialize(t *testing.T) {
	tests := []struct {
		name       string
		jsonOutput bool
	}{
		{name: "JSON output mode", jsonOutput: true},
		{name: "Console output mode", jsonOutput: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			Logger = nil
			JSONOutput = false

			if err := Initialize(tt.jsonOutput, VerbosityInfo); err != nil {
				t.Fatalf("Initialize() error = %v", err)
			}
			if Logger == nil {
				t.Fatal("Initialize() did not set global Logger")
			}
			if JSONOutput != tt.jsonOutput {
				t.Errorf("Initialize() JSONOutput = %v, want %v", JSONOutput, tt.jsonOutput)
			}

			Logger = zap.NewNop().Sugar()
		})
	}
}

func TestVerbosityToLevel(t *testing.T) {
	assert.Equal(t, zapcore.WarnLevel, VerbosityToLevel(0))
	assert.Equal(t, zapcore.WarnLevel, VerbosityToLevel(-1))
	assert.Equal(t, zapcore.InfoLevel, VerbosityToLevel(1))
	assert.Equal(t, zapcore.DebugLevel, VerbosityToLevel(2))
	assert.Equal(t, zapcore.DebugLevel, VerbosityToLevel(5))
}

func TestSymbolHelpers(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	prev := Logger
	Logger = zap.New(core).Sugar()
	defer func() { Logger = prev }()

	AddPulseSymbol(Logger).Infow("Worker pool started", FieldQueue, "search")
	AddDBSymbol(Logger).Infow("Migrations applied", FieldCount, 3)
	AddSyncSymbol(Logger).Infow("Document written", FieldKind, "entity")

	entries := logs.All()
	if assert.Len(t, entries, 3) {
		assert.Equal(t, SymPulse, entries[0].ContextMap()[FieldSymbol])
		assert.Equal(t, "search", entries[0].ContextMap()[FieldQueue])
		assert.Equal(t, SymDB, entries[1].ContextMap()[FieldSymbol])
		assert.Equal(t, SymSync, entries[2].ContextMap()[FieldSymbol])
	}
}

func TestHelpersWithNilLogger(t *testing.T) {
	prev := Logger
	Logger = nil
	defer func() { Logger = prev }()

	// None of these may panic before Initialize
	Infow("x")
	Warnw("x")
	Errorw("x")
	Debugw("x")
	Cleanup()
}

