package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"NewsBot/internal/ports"
)

// Printfer is satisfied by *log.Logger.
type Printfer interface {
	Printf(format string, v ...any)
}

// CronScheduler triggers jobs on a standard five-field cron expression.
// Overlapping triggers are skipped while a run is still in progress.
type CronScheduler struct {
	spec       string
	location   *time.Location
	logger     cron.Logger
	runOnStart bool

	mu   sync.Mutex
	cron *cron.Cron
}

var _ ports.Scheduler = (*CronScheduler)(nil)

// NewCronScheduler builds a scheduler configured via cron expression string.
// With runOnStart the job also fires once right after Start.
func NewCronScheduler(spec string, loc *time.Location, log Printfer, runOnStart bool) *CronScheduler {
	if loc == nil {
		loc = time.UTC
	}
	logger := cron.DiscardLogger
	if log != nil {
		logger = cron.PrintfLogger(log)
	}
	return &CronScheduler{spec: spec, location: loc, logger: logger, runOnStart: runOnStart}
}

// Start registers job and starts the cron loop. The loop stops when ctx is done.
func (c *CronScheduler) Start(ctx context.Context, job func(time.Time)) error {
	if job == nil {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cron != nil {
		return nil
	}

	cr := cron.New(cron.WithLocation(c.location), cron.WithLogger(c.logger))
	// One chain instance so the start-up run and scheduled runs never overlap.
	wrapped := cron.NewChain(cron.Recover(c.logger), cron.SkipIfStillRunning(c.logger)).
		Then(cron.FuncJob(func() { job(time.Now().In(c.location)) }))

	if _, err := cr.AddJob(c.spec, wrapped); err != nil {
		return fmt.Errorf("parse cron spec %q: %w", c.spec, err)
	}
	c.cron = cr
	cr.Start()

	if c.runOnStart {
		go wrapped.Run()
	}

	go func() {
		<-ctx.Done()
		_ = c.Stop(context.Background())
	}()

	return nil
}

// Stop halts the cron loop and waits for a running job or ctx, whichever
// comes first.
func (c *CronScheduler) Stop(ctx context.Context) error {
	c.mu.Lock()
	cr := c.cron
	c.cron = nil
	c.mu.Unlock()

	if cr == nil {
		return nil
	}

	select {
	case <-cr.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
