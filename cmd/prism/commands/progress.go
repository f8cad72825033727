package commands

import (
	"sync"

	"github.com/pterm/pterm"

	"github.com/teranos/prism/pulse"
)

// termProgress prints reindex progress, one line per event
type termProgress struct {
	mu sync.Mutex
}

func (p *termProgress) EmitStage(stage string, message string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pterm.Printf("  %s %s %s\n", pterm.Gray("→"), pterm.LightCyan(stage), pterm.Gray(message))
}

func (p *termProgress) EmitProgress(stage string, count int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pterm.Printf("  %s %s %d\n", pterm.Gray("·"), stage, count)
}

func (p *termProgress) EmitComplete(stage string, summary map[string]interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pterm.Printf("  %s %s %v\n", pterm.LightGreen("✓"), pterm.White(stage), summary["enqueued"])
}

func (p *termProgress) EmitError(stage string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pterm.Printf("  %s %s %s\n", pterm.Red("✗"), stage, err)
}

var _ pulse.ProgressEmitter = (*termProgress)(nil)
