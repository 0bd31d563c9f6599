package usecase

import (
	"context"
	"fmt"
	"sync"

	"NewsBot/internal/domain"
)

// Strategy selects how crawl tasks are spread over workers.
type Strategy string

const (
	// StrategyShared runs workers that fold results into one mutex-guarded tally.
	StrategyShared Strategy = "shared"
	// StrategyMessage runs workers that only send results over a channel to a
	// single collector.
	StrategyMessage Strategy = "message"
)

const (
	defaultSharedWorkers  = 5
	defaultMessageWorkers = 4
)

// processFunc runs one task to completion and never panics.
type processFunc func(domain.CrawlTask) taskResult

// executor consumes tasks until the channel is closed and returns the task
// counters of the batch. Tasks received after ctx is done are dropped unstarted
// and counted as NotDispatched.
type executor interface {
	execute(ctx context.Context, tasks <-chan domain.CrawlTask, process processFunc) domain.SourceSummary
	workers() int
}

func newExecutor(strategy Strategy, workers int) (executor, error) {
	switch strategy {
	case StrategyShared, "":
		if workers <= 0 {
			workers = defaultSharedWorkers
		}
		return sharedPool{size: workers}, nil
	case StrategyMessage:
		if workers <= 0 {
			workers = defaultMessageWorkers
		}
		return messagePool{size: workers}, nil
	default:
		return nil, fmt.Errorf("unknown execution strategy %q", strategy)
	}
}

type sharedPool struct {
	size int
}

func (p sharedPool) workers() int { return p.size }

func (p sharedPool) execute(ctx context.Context, tasks <-chan domain.CrawlTask, process processFunc) domain.SourceSummary {
	var (
		mu    sync.Mutex
		tally domain.SourceSummary
		wg    sync.WaitGroup
	)

	for range p.size {
		wg.Go(func() {
			for task := range tasks {
				result := taskResult{url: task.URL, dropped: true}
				if ctx.Err() == nil {
					result = process(task)
				}

				mu.Lock()
				result.applyTo(&tally)
				mu.Unlock()
			}
		})
	}
	wg.Wait()

	return tally
}

type messagePool struct {
	size int
}

func (p messagePool) workers() int { return p.size }

func (p messagePool) execute(ctx context.Context, tasks <-chan domain.CrawlTask, process processFunc) domain.SourceSummary {
	results := make(chan taskResult, p.size)

	var wg sync.WaitGroup
	for range p.size {
		wg.Go(func() {
			for task := range tasks {
				if ctx.Err() != nil {
					results <- taskResult{url: task.URL, dropped: true}
					continue
				}
				results <- process(task)
			}
		})
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	var tally domain.SourceSummary
	for result := range results {
		result.applyTo(&tally)
	}
	return tally
}

// taskResult is the outcome of one task as seen by the collector.
type taskResult struct {
	url        string
	dropped    bool
	failure    *domain.Failure
	persisted  bool
	ack        domain.UpsertAck
	persistErr error
}

func (r taskResult) applyTo(s *domain.SourceSummary) {
	if r.dropped {
		s.NotDispatched++
		return
	}
	if r.failure != nil {
		s.RecordFailure(r.failure)
		return
	}
	s.Succeeded++
	switch {
	case r.persistErr != nil:
		s.PersistFailed++
	case r.persisted:
		s.Persisted++
		if !r.ack.Inserted {
			s.Merged++
		}
	}
}

// addTaskCounts folds a batch tally into the source summary.
func addTaskCounts(dst *domain.SourceSummary, tally domain.SourceSummary) {
	dst.Succeeded += tally.Succeeded
	dst.FailedRetryExhausted += tally.FailedRetryExhausted
	dst.FailedTerminal += tally.FailedTerminal
	dst.Persisted += tally.Persisted
	dst.Merged += tally.Merged
	dst.PersistFailed += tally.PersistFailed
	dst.NotDispatched += tally.NotDispatched
	for kind, n := range tally.FailuresByKind {
		if dst.FailuresByKind == nil {
			dst.FailuresByKind = map[domain.FailureKind]int{}
		}
		dst.FailuresByKind[kind] += n
	}
}
