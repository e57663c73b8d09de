package retrieval

import (
	"fmt"
	"log/slog"
)

// AdapterConfig carries the per-adapter connection settings the Evidence
// stage's retrieval layer is built from.
type AdapterConfig struct {
	BiomedicalBaseURL string
	BiomedicalAPIKey  string
	ScholarlyBaseURL  string
	ScholarlyAPIKey   string
	WebSearchBaseURL  string
	WebSearchAPIKey   string
	VoyageAPIKey      string
	VoyageModel       string
	MaxConcurrency    int
}

// AdapterSet is the three constructed adapters plus the shared bounded
// semaphore an EvidenceStage instance holds for its lifetime.
type AdapterSet struct {
	Adapters  []Adapter
	Semaphore *Semaphore
	cache     *ResponseCache
}

// NewAdapterSet constructs all three adapters and wraps each with the
// shared response cache. Construction failure of an
// individual adapter is non-fatal; construction is only fatal to stage
// setup when every adapter fails.
func NewAdapterSet(cfg AdapterConfig) (*AdapterSet, error) {
	log := slog.With("component", "retrieval.set")

	respCache, err := NewResponseCache(cfg.VoyageAPIKey, cfg.VoyageModel)
	if err != nil {
		log.Warn("response cache unavailable, adapters will hit the network on every call", "error", err)
		respCache = nil
	}

	var adapters []Adapter
	var failures int

	tryBuild := func(name string, build func() Adapter) {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Warn("adapter construction panicked", "adapter", name, "panic", r)
					failures++
				}
			}()
			a := build()
			if a == nil {
				failures++
				return
			}
			adapters = append(adapters, WithCache(a, respCache))
		}()
	}

	tryBuild("biomedical", func() Adapter { return NewBiomedicalAdapter(cfg.BiomedicalBaseURL, cfg.BiomedicalAPIKey) })
	tryBuild("scholarly", func() Adapter { return NewScholarlyAdapter(cfg.ScholarlyBaseURL, cfg.ScholarlyAPIKey) })
	tryBuild("web_search", func() Adapter { return NewWebSearchAdapter(cfg.WebSearchBaseURL, cfg.WebSearchAPIKey) })

	if failures == 3 {
		return nil, fmt.Errorf("retrieval: all three evidence adapters failed to construct")
	}

	max := cfg.MaxConcurrency
	if max < 1 {
		max = 3
	}

	return &AdapterSet{Adapters: adapters, Semaphore: NewSemaphore(max), cache: respCache}, nil
}

// Close releases every adapter's resources; safe to call even on a partially
// constructed set.
func (s *AdapterSet) Close() error {
	var firstErr error
	for _, a := range s.Adapters {
		if err := a.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
