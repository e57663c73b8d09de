// Package metrics provides quality measurement and tracking for the GraphMind
// reasoning pipeline.
package metrics

import (
	"sync"
	"time"
)

// MetricType represents different categories of pipeline metrics.
type MetricType string

const (
	MetricStageDuration   MetricType = "stage_duration"
	MetricStageSuccess    MetricType = "stage_success"
	MetricEvidenceYield   MetricType = "evidence_yield"
	MetricConfidenceDelta MetricType = "confidence_delta"
	MetricPruneCount      MetricType = "prune_count"
	MetricRetryCount      MetricType = "retry_count"
)

// MetricValue represents a single metric measurement.
type MetricValue struct {
	Type      MetricType             `json:"type"`
	Stage     string                 `json:"stage"`
	Value     float64                `json:"value"`
	Target    float64                `json:"target"`
	Timestamp time.Time              `json:"timestamp"`
	Context   map[string]interface{} `json:"context,omitempty"`
}

// Collector manages metric collection for a pipeline run.
type Collector struct {
	mu              sync.RWMutex
	metrics         []MetricValue
	stageUsage      map[string]int
	alertThresholds map[string]float64
}

// NewCollector creates a new metrics collector.
func NewCollector() *Collector {
	return &Collector{
		metrics:    make([]MetricValue, 0),
		stageUsage: make(map[string]int),
		alertThresholds: map[string]float64{
			"stage_success": 0.90,
			"retry_count":   2,
		},
	}
}

// RecordMetric records a new metric value.
func (c *Collector) RecordMetric(metric MetricValue) {
	c.mu.Lock()
	defer c.mu.Unlock()

	metric.Timestamp = time.Now()
	c.metrics = append(c.metrics, metric)

	if metric.Stage != "" {
		c.stageUsage[metric.Stage]++
	}
}

// RecordStageOutcome records a stage's duration and success flag in one call,
// the shape the orchestrator emits after every stage execution.
func (c *Collector) RecordStageOutcome(stage string, durationMS int64, success bool) {
	successValue := 0.0
	if success {
		successValue = 1.0
	}
	c.RecordMetric(MetricValue{
		Type:  MetricStageDuration,
		Stage: stage,
		Value: float64(durationMS),
	})
	c.RecordMetric(MetricValue{
		Type:   MetricStageSuccess,
		Stage:  stage,
		Value:  successValue,
		Target: c.alertThresholds["stage_success"],
	})
}

// StageUsage returns how many metric records were attributed to each stage.
func (c *Collector) StageUsage() map[string]int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]int, len(c.stageUsage))
	for k, v := range c.stageUsage {
		out[k] = v
	}
	return out
}

// Snapshot returns a copy of every recorded metric.
func (c *Collector) Snapshot() []MetricValue {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]MetricValue, len(c.metrics))
	copy(out, c.metrics)
	return out
}
