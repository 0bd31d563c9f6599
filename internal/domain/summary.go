package domain

import (
	"fmt"
	"time"
)

// SourceState is the lifecycle stage of one source within a run.
type SourceState int

const (
	StateIdle SourceState = iota
	StateDiscovering
	StateDispatching
	StateDraining
	StateSummarized
)

func (s SourceState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDiscovering:
		return "discovering"
	case StateDispatching:
		return "dispatching"
	case StateDraining:
		return "draining"
	case StateSummarized:
		return "summarized"
	default:
		return "unknown"
	}
}

// MarshalText renders the state name in JSON summaries.
func (s SourceState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Transition moves from s to next. Only forward moves are allowed; skipping
// intermediate stages is permitted so an empty source can go straight to
// summarized.
func (s SourceState) Transition(next SourceState) (SourceState, error) {
	if next <= s || next > StateSummarized {
		return s, fmt.Errorf("invalid source state transition %s -> %s", s, next)
	}
	return next, nil
}

// SourceSummary reports the outcome of crawling a single source.
type SourceSummary struct {
	Source               string              `json:"source"`
	State                SourceState         `json:"state"`
	Skipped              bool                `json:"skipped,omitempty"`
	SkipReason           string              `json:"skip_reason,omitempty"`
	Discovered           int                 `json:"discovered"`
	Succeeded            int                 `json:"succeeded"`
	FailedRetryExhausted int                 `json:"failed_retryable_exhausted"`
	FailedTerminal       int                 `json:"failed_terminal"`
	Persisted            int                 `json:"persisted"`
	Merged               int                 `json:"merged"`
	DuplicateSkipped     int                 `json:"duplicate_skipped"`
	PersistFailed        int                 `json:"persist_failed"`
	NotDispatched        int                 `json:"not_dispatched"`
	FailuresByKind       map[FailureKind]int `json:"failures_by_kind,omitempty"`
	DiscoveryIssues      []string            `json:"discovery_issues,omitempty"`
	Interrupted          bool                `json:"interrupted,omitempty"`
	Duration             time.Duration       `json:"duration"`
}

// Failed is the total of terminal task failures. Tasks dropped unstarted after
// cancellation are counted in NotDispatched instead.
func (s SourceSummary) Failed() int {
	return s.FailedRetryExhausted + s.FailedTerminal
}

// RecordFailure counts a terminal task failure by kind and retry outcome.
func (s *SourceSummary) RecordFailure(f *Failure) {
	if s.FailuresByKind == nil {
		s.FailuresByKind = map[FailureKind]int{}
	}
	s.FailuresByKind[f.Kind]++
	if f.Retryable && f.Exhausted {
		s.FailedRetryExhausted++
		return
	}
	s.FailedTerminal++
}

// RunSummary aggregates all sources of one run.
type RunSummary struct {
	RunID       string          `json:"run_id"`
	StartedAt   time.Time       `json:"started_at"`
	Duration    time.Duration   `json:"duration"`
	Interrupted bool            `json:"interrupted,omitempty"`
	Sources     []SourceSummary `json:"sources"`
	Totals      SourceSummary   `json:"totals"`
}

// Aggregate recomputes Totals from Sources.
func (r *RunSummary) Aggregate() {
	totals := SourceSummary{Source: "all", State: StateSummarized}
	for _, s := range r.Sources {
		totals.Discovered += s.Discovered
		totals.Succeeded += s.Succeeded
		totals.FailedRetryExhausted += s.FailedRetryExhausted
		totals.FailedTerminal += s.FailedTerminal
		totals.Persisted += s.Persisted
		totals.Merged += s.Merged
		totals.DuplicateSkipped += s.DuplicateSkipped
		totals.PersistFailed += s.PersistFailed
		totals.NotDispatched += s.NotDispatched
		for kind, n := range s.FailuresByKind {
			if totals.FailuresByKind == nil {
				totals.FailuresByKind = map[FailureKind]int{}
			}
			totals.FailuresByKind[kind] += n
		}
		if s.Interrupted {
			totals.Interrupted = true
		}
	}
	totals.Duration = r.Duration
	r.Totals = totals
	r.Interrupted = r.Interrupted || totals.Interrupted
}
