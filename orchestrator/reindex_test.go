package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/prism/errors"
	"github.com/teranos/prism/projection"
	"github.com/teranos/prism/pulse/async"
)

type fakeProgress struct {
	mu        sync.Mutex
	stages    []string
	completed map[string]interface{}
	failed    []string
}

func newFakeProgress() *fakeProgress {
	return &fakeProgress{completed: map[string]interface{}{}}
}

func (p *fakeProgress) EmitStage(stage string, _ string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stages = append(p.stages, stage)
}

func (p *fakeProgress) EmitProgress(string, int) {}

func (p *fakeProgress) EmitComplete(stage string, summary map[string]interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.completed[stage] = summary["enqueued"]
}

func (p *fakeProgress) EmitError(stage string, _ error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failed = append(p.failed, stage)
}

func TestReindexEnqueuesEveryRow(t *testing.T) {
	f := newFixture(t)
	progress := newFakeProgress()
	r := NewReindexer(f.o, ReindexConfig{PageSize: 1, Timeout: time.Hour, Progress: progress}, nil)

	counts, err := r.Run(context.Background(), projection.KindEntity, projection.KindConnection)
	require.NoError(t, err)
	assert.Equal(t, map[projection.Kind]int{projection.KindEntity: 2, projection.KindConnection: 1}, counts)

	search := f.queued(t, async.QueueSearch)
	assert.Len(t, search, 3)
	for _, job := range search {
		assert.Equal(t, time.Hour, job.Timeout)
	}
	assert.Len(t, f.queued(t, async.QueueGraph), 3)
	assert.Empty(t, f.queued(t, async.QueueFanout), "reindex bypasses fan-out")

	assert.ElementsMatch(t, []string{"entity", "connection"}, progress.stages)
	assert.Equal(t, 2, progress.completed["entity"])
	assert.Empty(t, progress.failed)
}

func TestReindexAllKindsByDefault(t *testing.T) {
	f := newFixture(t)
	counts, err := NewReindexer(f.o, ReindexConfig{}, nil).Run(context.Background())
	require.NoError(t, err)

	assert.Len(t, counts, len(projection.Kinds))
	assert.Equal(t, 2, counts[projection.KindAttribute])
	assert.Equal(t, 1, counts[projection.KindCodebookValue])
	assert.Zero(t, counts[projection.KindAttributeValueChange])
}

func TestReindexRejectsUnknownKind(t *testing.T) {
	f := newFixture(t)
	_, err := NewReindexer(f.o, ReindexConfig{}, nil).Run(context.Background(), projection.Kind("widget"))
	assert.True(t, errors.IsInvalidRequestError(err))
}

func TestReindexStopsOnCancel(t *testing.T) {
	f := newFixture(t)
	progress := newFakeProgress()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewReindexer(f.o, ReindexConfig{RatePerSecond: 1, Progress: progress}, nil).
		Run(ctx, projection.KindEntity)
	require.Error(t, err)
	assert.Equal(t, []string{"entity"}, progress.failed)
	assert.Empty(t, f.queued(t, async.QueueSearch))
}
