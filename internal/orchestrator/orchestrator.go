// Package orchestrator sequences the eight reasoning stages in declared
// order against a session, guarding concurrency with a busy flag,
// checkpointing and rolling back on integrity failures, retrying transient
// stage errors with back-off, and finalizing the session's answer and
// confidence vector.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"graphmind/internal/metrics"
	"graphmind/internal/session"
	"graphmind/internal/stage"
	"graphmind/internal/types"
)

const (
	checkpointRingSize = 10
	rollbackStackSize  = 5
	maxAttempts        = 3
)

// criticalPatterns are matched case-insensitively against a stage's error
// message; a match halts the pipeline with a cautionary final answer.
var criticalPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)database.*connection.*failed`),
	regexp.MustCompile(`(?i)out of memory`),
	regexp.MustCompile(`(?i)stack overflow`),
	regexp.MustCompile(`(?i)critical.*system.*error`),
	regexp.MustCompile(`(?i)authentication.*failed`),
	regexp.MustCompile(`(?i)permission.*denied`),
}

// ResourceMonitor reports whether the orchestrator has headroom to continue
// processing. An implementation backed by real OS metrics can be plugged in;
// the zero value always permits continuation.
type ResourceMonitor interface {
	CheckResources() bool
}

// AlwaysAvailable is the default ResourceMonitor: never halts for resource
// pressure.
type AlwaysAvailable struct{}

func (AlwaysAvailable) CheckResources() bool { return true }

type checkpoint struct {
	stageIndex int
	session    *session.Session
	takenAt    time.Time
}

// Orchestrator drives one session at a time through the stage list.
type Orchestrator struct {
	mu       sync.RWMutex
	stages   []stage.Stage
	monitor  ResourceMonitor
	metrics  *metrics.Collector
	log      *slog.Logger
	busy     bool
	busyWith string

	ring     []checkpoint
	rollback []checkpoint
}

// New constructs an orchestrator over the given ordered stage list.
func New(stages []stage.Stage, monitor ResourceMonitor) *Orchestrator {
	if monitor == nil {
		monitor = AlwaysAvailable{}
	}
	return &Orchestrator{
		stages:  stages,
		monitor: monitor,
		metrics: metrics.NewCollector(),
		log:     slog.Default().With("component", "orchestrator"),
	}
}

// ErrBusy is returned when ProcessQuery is called while another session is
// already running on this orchestrator instance.
type ErrBusy struct{ SessionID string }

func (e *ErrBusy) Error() string {
	return fmt.Sprintf("already processing session %s", e.SessionID)
}

// ProcessQuery drives sess through every stage in order, enforcing single-
// session exclusivity per orchestrator instance.
func (o *Orchestrator) ProcessQuery(ctx context.Context, sess *session.Session) error {
	if err := o.claim(sess.ID); err != nil {
		return err
	}
	defer o.release()

	o.ring = nil
	o.rollback = nil

	start := time.Now()
	stagesExecuted := 0

	for i := 0; i < len(o.stages); i++ {
		if !o.monitor.CheckResources() {
			o.finalizeHalted(sess, stagesExecuted, start)
			return nil
		}

		select {
		case <-ctx.Done():
			o.finalizeAborted(sess, stagesExecuted, start)
			return ctx.Err()
		default:
		}

		o.saveCheckpoint(i, sess)

		if !sess.Valid() {
			if o.rollbackOnce(sess) {
				i--
				continue
			}
			return fmt.Errorf("orchestrator: session integrity broken at stage %d and rollback unavailable", i)
		}

		st := o.stages[i]
		output, critical := o.executeWithRecovery(ctx, st, sess, i)
		stagesExecuted++

		if critical {
			o.finalizeCritical(sess, stagesExecuted, start)
			return nil
		}

		sess.MergeContextUpdate(output.ContextUpdate)
	}

	o.finalize(sess, stagesExecuted, start)
	return nil
}

func (o *Orchestrator) claim(sessionID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.busy {
		return &ErrBusy{SessionID: o.busyWith}
	}
	o.busy = true
	o.busyWith = sessionID
	return nil
}

func (o *Orchestrator) release() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.busy = false
	o.busyWith = ""
}

func (o *Orchestrator) saveCheckpoint(stageIndex int, sess *session.Session) {
	cp := checkpoint{stageIndex: stageIndex, session: sess.Clone(), takenAt: time.Now()}
	o.ring = append(o.ring, cp)
	if len(o.ring) > checkpointRingSize {
		o.ring = o.ring[len(o.ring)-checkpointRingSize:]
	}
	o.rollback = append(o.rollback, cp)
	if len(o.rollback) > rollbackStackSize {
		o.rollback = o.rollback[len(o.rollback)-rollbackStackSize:]
	}
}

func (o *Orchestrator) checkpointForStage(stageIndex int) *checkpoint {
	for i := len(o.ring) - 1; i >= 0; i-- {
		if o.ring[i].stageIndex == stageIndex {
			return &o.ring[i]
		}
	}
	return nil
}

func (o *Orchestrator) rollbackOnce(sess *session.Session) bool {
	if len(o.rollback) == 0 {
		return false
	}
	last := o.rollback[len(o.rollback)-1]
	o.rollback = o.rollback[:len(o.rollback)-1]
	sess.Restore(last.session)
	return true
}

// executeWithRecovery runs a stage with up to maxAttempts attempts and
// progressive 1000*attempt ms back-off between retries, restoring from the
// prior stage's checkpoint between attempts. Returns whether a critical
// error pattern was matched.
func (o *Orchestrator) executeWithRecovery(ctx context.Context, st stage.Stage, sess *session.Session, stageIndex int) (stage.StageOutput, bool) {
	var output stage.StageOutput
	started := time.Now()

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		output = o.runOnce(ctx, st, sess)
		if output.Success {
			break
		}
		if attempt < maxAttempts {
			if cp := o.checkpointForStage(stageIndex - 1); cp != nil {
				sess.Restore(cp.session)
			}
			time.Sleep(time.Duration(1000*attempt) * time.Millisecond)
		}
	}

	duration := time.Since(started)
	o.metrics.RecordStageOutcome(st.Name(), duration.Milliseconds(), output.Success)

	record := session.TraceRecord{
		StageNumber: stageIndex,
		StageName:   st.Name(),
		DurationMS:  duration.Milliseconds(),
		Summary:     output.Summary,
		Timestamp:   time.Now(),
		Error:       output.ErrorMessage,
		Metrics:     output.Metrics,
	}
	sess.AppendTrace(record)

	critical := output.ErrorMessage != "" && matchesCriticalPattern(output.ErrorMessage)
	return output, critical
}

func (o *Orchestrator) runOnce(ctx context.Context, st stage.Stage, sess *session.Session) (output stage.StageOutput) {
	defer func() {
		if err := st.Cleanup(); err != nil {
			o.log.Warn("stage cleanup failed", "stage", st.Name(), "error", err)
		}
		if r := recover(); r != nil {
			output = stage.Failure(fmt.Sprintf("stage %s panicked: %v", st.Name(), r))
		}
	}()
	return st.Execute(ctx, sess)
}

func matchesCriticalPattern(message string) bool {
	for _, p := range criticalPatterns {
		if p.MatchString(message) {
			return true
		}
	}
	return false
}

func (o *Orchestrator) finalize(sess *session.Session, stagesExecuted int, start time.Time) {
	if sess.FinalAnswer == "" {
		composedRaw, ok := sess.ContextSlot("composition")
		if ok {
			if composedCtx, ok := composedRaw.(map[string]interface{}); ok {
				sess.FinalAnswer = summarizeComposedOutput(composedCtx)
			}
		}
	}
	if sess.FinalAnswer == "" {
		sess.FinalAnswer = "Processing completed, but no final answer was generated."
	}
	if !sess.Valid() {
		sess.FinalConfidence = types.ConfidenceVector{EmpiricalSupport: 0.5, TheoreticalBasis: 0.5, MethodologicalRigor: 0.5, ConsensusAlignment: 0.5}
	}
	sess.Finalized = true
	o.recordProcessingMetadata(sess, stagesExecuted, start)
}

func summarizeComposedOutput(composedCtx map[string]interface{}) string {
	raw, ok := composedCtx["composed_output"]
	if !ok {
		return ""
	}
	composed, ok := raw.(stage.ComposedOutput)
	if !ok {
		return ""
	}
	return fmt.Sprintf("%s\n\n%s", composed.Title, composed.ExecutiveSummary)
}

func (o *Orchestrator) finalizeHalted(sess *session.Session, stagesExecuted int, start time.Time) {
	sess.FinalAnswer = "Processing halted due to server resource limits"
	sess.FinalConfidence = types.ConfidenceVector{}
	sess.Finalized = true
	o.recordProcessingMetadata(sess, stagesExecuted, start)
}

func (o *Orchestrator) finalizeAborted(sess *session.Session, stagesExecuted int, start time.Time) {
	sess.FinalAnswer = "Processing aborted before completion."
	sess.FinalConfidence = types.ConfidenceVector{}
	sess.Finalized = true
	o.recordProcessingMetadata(sess, stagesExecuted, start)
}

func (o *Orchestrator) finalizeCritical(sess *session.Session, stagesExecuted int, start time.Time) {
	sess.FinalAnswer = "A critical error halted processing; please retry later."
	sess.FinalConfidence = types.ConfidenceVector{}
	sess.Finalized = true
	o.recordProcessingMetadata(sess, stagesExecuted, start)
}

func (o *Orchestrator) recordProcessingMetadata(sess *session.Session, stagesExecuted int, start time.Time) {
	success := !containsFailureWord(sess.FinalAnswer)
	sess.AccumulatedContext["processing_metadata"] = map[string]interface{}{
		"total_duration_ms": time.Since(start).Milliseconds(),
		"stages_executed":   stagesExecuted,
		"completion_time":   time.Now(),
		"success":           success,
	}
}

func containsFailureWord(answer string) bool {
	lower := strings.ToLower(answer)
	return strings.Contains(lower, "error") || strings.Contains(lower, "failed")
}

// Shutdown releases every stage's resources and clears the orchestrator's
// checkpoint state. If called while a session is in progress it logs a
// warning and proceeds anyway.
func (o *Orchestrator) Shutdown() {
	o.mu.Lock()
	busy := o.busy
	o.mu.Unlock()
	if busy {
		o.log.Warn("shutdown called while orchestrator busy", "session", o.busyWith)
	}
	for _, st := range o.stages {
		if err := st.Cleanup(); err != nil {
			o.log.Warn("stage cleanup failed during shutdown", "stage", st.Name(), "error", err)
		}
	}
	o.mu.Lock()
	o.ring = nil
	o.rollback = nil
	o.mu.Unlock()
}
