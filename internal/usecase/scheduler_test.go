package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"NewsBot/internal/domain"
	"NewsBot/internal/scanner"
)

type captureDriver struct {
	job     func(time.Time)
	stopped bool
}

func (d *captureDriver) Start(_ context.Context, job func(time.Time)) error {
	d.job = job
	return nil
}

func (d *captureDriver) Stop(context.Context) error {
	d.stopped = true
	return nil
}

func TestSchedulerRunsOrchestrator(t *testing.T) {
	repo := newFlakyRepository(nil)
	o := fixture{
		repo:     repo,
		registry: scanner.NewRegistry(stubDiscoverer{name: scanner.Sitemap, urls: articleURLs("cron.example", 2)}),
	}.orchestrator(t, OrchestratorOptions{})

	driver := &captureDriver{}
	s := NewScheduler(driver, o, []domain.SourceConfig{testSource("cron")}, nil)

	require.NoError(t, s.Start(context.Background()))
	require.NotNil(t, driver.job)

	driver.job(time.Now())
	assert.Equal(t, 2, repo.Len())

	require.NoError(t, s.Stop(context.Background()))
	assert.True(t, driver.stopped)
}

func TestSchedulerWithoutDriverIsNoop(t *testing.T) {
	s := NewScheduler(nil, nil, nil, nil)
	assert.NoError(t, s.Start(context.Background()))
	assert.NoError(t, s.Stop(context.Background()))
}
