// Package pulse holds what the queue packages and their callers share.
package pulse

// ProgressEmitter receives progress of long-running bulk operations such as a
// full reindex. Stages run concurrently, so implementations must be safe for
// concurrent use.
type ProgressEmitter interface {
	// EmitStage announces the start of a stage
	EmitStage(stage string, message string)

	// EmitProgress reports the running count of a stage
	EmitProgress(stage string, count int)

	// EmitComplete announces a finished stage with its summary
	EmitComplete(stage string, summary map[string]interface{})

	// EmitError announces that a stage stopped
	EmitError(stage string, err error)
}

// NopProgress discards every event
type NopProgress struct{}

func (NopProgress) EmitStage(string, string)                   {}
func (NopProgress) EmitProgress(string, int)                   {}
func (NopProgress) EmitComplete(string, map[string]interface{}) {}
func (NopProgress) EmitError(string, error)                    {}

var _ ProgressEmitter = NopProgress{}
