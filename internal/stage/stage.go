// Package stage defines the execute/cleanup contract every reasoning stage
// implements and the eight concrete stages the orchestrator drives in
// declared order: Initialization, Decomposition, Hypothesis, Evidence,
// PruningMerging, SubgraphExtraction, Composition, Reflection.
//
// Every stage takes the one shared session object, mutates it, and returns
// a StageOutput; the stage set is fixed at build time.
package stage

import (
	"context"

	"graphmind/internal/session"
)

// StageOutput is what every stage returns: success flag, a human summary,
// the payload to merge into the session's accumulated_context under the
// stage's own name, and optional error/metrics detail.
type StageOutput struct {
	Success       bool
	Summary       string
	ContextUpdate map[string]interface{}
	ErrorMessage  string
	Metrics       map[string]interface{}
}

// Failure builds a StageOutput for a hard stage failure.
func Failure(message string) StageOutput {
	return StageOutput{Success: false, ErrorMessage: message}
}

// Stage is the contract every pipeline stage implements. Cleanup releases
// any per-stage resources (adapter clients, etc); the orchestrator always
// calls it after Execute whether Execute succeeded or returned an error.
type Stage interface {
	Name() string
	Execute(ctx context.Context, sess *session.Session) StageOutput
	Cleanup() error
}

// contextSlot is a tiny helper every stage uses to build its single-key
// contextUpdate map.
func contextSlot(key string, payload interface{}) map[string]interface{} {
	return map[string]interface{}{key: payload}
}
