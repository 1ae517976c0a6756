package scheduler

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"ddp-dispatch/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingLauncher struct {
	mu       sync.Mutex
	launches map[string]int
}

func (l *countingLauncher) Launch(_ context.Context, job *domain.TrainingJob) (*domain.RunRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.launches[job.Name]++
	return &domain.RunRecord{ID: "run", JobName: job.Name}, nil
}

func (l *countingLauncher) count(name string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.launches[name]
}

func newTestScheduler() (*cronScheduler, *countingLauncher) {
	launcher := &countingLauncher{launches: make(map[string]int)}
	s := NewCronScheduler(launcher, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return s.(*cronScheduler), launcher
}

func TestParserAcceptsSecondsAndDescriptors(t *testing.T) {
	for _, expr := range []string{"*/5 * * * *", "0 */5 * * * *", "@daily", "@every 30s"} {
		_, err := Parser.Parse(expr)
		assert.NoError(t, err, expr)
	}
	_, err := Parser.Parse("not a schedule")
	assert.Error(t, err)
}

func TestCronSchedulerLaunchesDueJobs(t *testing.T) {
	s, launcher := newTestScheduler()
	require.NoError(t, s.AddJob(&domain.TrainingJob{Name: "every-second", Entrypoint: "shell", CronExpr: "* * * * * *"}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	require.Eventually(t, func() bool {
		return launcher.count("every-second") > 0
	}, 3*time.Second, 20*time.Millisecond)

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}

func TestCronSchedulerAddJobRejectsUnscheduled(t *testing.T) {
	s, _ := newTestScheduler()
	require.Error(t, s.AddJob(&domain.TrainingJob{Name: "manual", Entrypoint: "shell"}))
	assert.Empty(t, s.jobs)
}

func TestCronSchedulerReplaceAndRemove(t *testing.T) {
	s, _ := newTestScheduler()
	job := &domain.TrainingJob{Name: "j", Entrypoint: "shell", CronExpr: "@hourly"}

	require.NoError(t, s.AddJob(job))
	require.NoError(t, s.AddJob(job))
	assert.Len(t, s.jobs, 1)
	assert.Len(t, s.cron.Entries(), 1)

	require.NoError(t, s.RemoveJob("j"))
	require.NoError(t, s.RemoveJob("unknown"))
	assert.Empty(t, s.jobs)
	assert.Empty(t, s.cron.Entries())
}

func TestCronSchedulerStopDropsEntries(t *testing.T) {
	s, _ := newTestScheduler()
	require.NoError(t, s.AddJob(&domain.TrainingJob{Name: "a", Entrypoint: "shell", CronExpr: "@daily"}))
	require.NoError(t, s.AddJob(&domain.TrainingJob{Name: "b", Entrypoint: "shell", CronExpr: "@weekly"}))

	s.Stop()
	assert.Empty(t, s.jobs)
	assert.Empty(t, s.cron.Entries())
}
