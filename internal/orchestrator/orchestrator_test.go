package orchestrator_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"graphmind/internal/orchestrator"
	"graphmind/internal/session"
	"graphmind/internal/stage"
)

// fakeStage is a minimal stage.Stage used to drive the orchestrator without
// any real graph store or reasoning dependency.
type fakeStage struct {
	name       string
	calls      int
	failTimes  int // number of leading Execute calls that fail before succeeding
	panicOnce  bool
	cleanupErr error
	update     map[string]interface{}
}

func (f *fakeStage) Name() string { return f.name }

func (f *fakeStage) Execute(ctx context.Context, sess *session.Session) stage.StageOutput {
	f.calls++
	if f.panicOnce {
		f.panicOnce = false
		panic("boom")
	}
	if f.calls <= f.failTimes {
		return stage.Failure(f.name + " failed")
	}
	return stage.StageOutput{Success: true, Summary: f.name + " ok", ContextUpdate: f.update}
}

func (f *fakeStage) Cleanup() error { return f.cleanupErr }

func newSess() *session.Session {
	return session.New("sess-1", "what is the meaning of this", nil)
}

func TestProcessQueryRunsAllStagesInOrder(t *testing.T) {
	var order []string
	var mu sync.Mutex
	record := func(name string) map[string]interface{} {
		mu.Lock()
		order = append(order, name)
		mu.Unlock()
		return map[string]interface{}{name: "done"}
	}

	stages := []stage.Stage{
		&trackingStage{name: "one", record: record},
		&trackingStage{name: "two", record: record},
		&trackingStage{name: "three", record: record},
	}

	orch := orchestrator.New(stages, orchestrator.AlwaysAvailable{})
	sess := newSess()

	err := orch.ProcessQuery(context.Background(), sess)
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two", "three"}, order)
	assert.Len(t, sess.Trace, 3)
	assert.True(t, sess.Finalized)
}

type trackingStage struct {
	name   string
	record func(string) map[string]interface{}
}

func (t *trackingStage) Name() string { return t.name }
func (t *trackingStage) Execute(ctx context.Context, sess *session.Session) stage.StageOutput {
	return stage.StageOutput{Success: true, Summary: t.name, ContextUpdate: t.record(t.name)}
}
func (t *trackingStage) Cleanup() error { return nil }

func TestProcessQueryExclusivity(t *testing.T) {
	blocker := make(chan struct{})
	slow := &blockingStage{unblock: blocker}
	orch := orchestrator.New([]stage.Stage{slow}, orchestrator.AlwaysAvailable{})

	done := make(chan error, 1)
	go func() {
		done <- orch.ProcessQuery(context.Background(), newSess())
	}()

	// Give the goroutine a chance to claim the orchestrator.
	time.Sleep(50 * time.Millisecond)

	err := orch.ProcessQuery(context.Background(), newSess())
	require.Error(t, err)
	var busyErr *orchestrator.ErrBusy
	assert.ErrorAs(t, err, &busyErr)

	close(blocker)
	require.NoError(t, <-done)
}

type blockingStage struct {
	unblock chan struct{}
}

func (b *blockingStage) Name() string { return "blocking" }
func (b *blockingStage) Execute(ctx context.Context, sess *session.Session) stage.StageOutput {
	<-b.unblock
	return stage.StageOutput{Success: true}
}
func (b *blockingStage) Cleanup() error { return nil }

func TestProcessQueryRetriesFailedStage(t *testing.T) {
	flaky := &fakeStage{name: "flaky", failTimes: 2, update: map[string]interface{}{"flaky": true}}
	orch := orchestrator.New([]stage.Stage{flaky}, orchestrator.AlwaysAvailable{})

	err := orch.ProcessQuery(context.Background(), newSess())
	require.NoError(t, err)
	assert.Equal(t, 3, flaky.calls)
}

func TestProcessQueryRecoversFromPanic(t *testing.T) {
	panicky := &fakeStage{name: "panicky", panicOnce: true}
	orch := orchestrator.New([]stage.Stage{panicky}, orchestrator.AlwaysAvailable{})

	err := orch.ProcessQuery(context.Background(), newSess())
	require.NoError(t, err)
	require.GreaterOrEqual(t, panicky.calls, 1)
}

func TestProcessQueryHaltsOnCriticalError(t *testing.T) {
	critical := &criticalStage{}
	after := &fakeStage{name: "after"}
	orch := orchestrator.New([]stage.Stage{critical, after}, orchestrator.AlwaysAvailable{})

	sess := newSess()
	err := orch.ProcessQuery(context.Background(), sess)
	require.NoError(t, err)
	assert.Equal(t, 0, after.calls)
	assert.Contains(t, sess.FinalAnswer, "critical error")
}

type criticalStage struct{}

func (c *criticalStage) Name() string { return "critical" }
func (c *criticalStage) Execute(ctx context.Context, sess *session.Session) stage.StageOutput {
	return stage.Failure("database connection failed: timeout")
}
func (c *criticalStage) Cleanup() error { return nil }

type neverAvailable struct{}

func (neverAvailable) CheckResources() bool { return false }

func TestProcessQueryHaltsWhenResourcesUnavailable(t *testing.T) {
	s := &fakeStage{name: "never-runs"}
	orch := orchestrator.New([]stage.Stage{s}, neverAvailable{})

	sess := newSess()
	err := orch.ProcessQuery(context.Background(), sess)
	require.NoError(t, err)
	assert.Equal(t, 0, s.calls)
	assert.Contains(t, sess.FinalAnswer, "resource limits")
}

func TestProcessQueryAbortsOnContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := &fakeStage{name: "unreached"}
	orch := orchestrator.New([]stage.Stage{s}, orchestrator.AlwaysAvailable{})

	sess := newSess()
	err := orch.ProcessQuery(ctx, sess)
	require.Error(t, err)
	assert.Equal(t, 0, s.calls)
}

func TestShutdownReleasesStageResources(t *testing.T) {
	s := &fakeStage{name: "closer"}
	orch := orchestrator.New([]stage.Stage{s}, orchestrator.AlwaysAvailable{})
	orch.Shutdown()

	// Shutdown should not panic or leave the orchestrator stuck busy; a
	// subsequent ProcessQuery must still be able to claim it.
	err := orch.ProcessQuery(context.Background(), newSess())
	require.NoError(t, err)
}
