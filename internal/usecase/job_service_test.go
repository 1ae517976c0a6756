package usecase

import (
	"context"
	"testing"

	"ddp-dispatch/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestJobService() (*JobService, *memJobRepo, *recordingScheduler, *RunService) {
	repo := newMemJobRepo()
	sched := &recordingScheduler{}
	runs := NewRunService(&stubCluster{info: twoWorkers()}, newMemRunRepo(), newMemLocker(), discardLogger())
	return NewJobService(repo, runs, sched, discardLogger()), repo, sched, runs
}

func TestJobServiceSaveSchedulesCronJobs(t *testing.T) {
	svc, repo, sched, _ := newTestJobService()

	job := &domain.TrainingJob{Name: "nightly", Entrypoint: "shell", CronExpr: "@daily"}
	require.NoError(t, svc.Save(context.Background(), job))

	assert.NotEmpty(t, job.ID)
	assert.False(t, job.CreatedAt.IsZero())
	assert.Equal(t, domain.ConcurrencyPolicyAllow, job.ConcurrencyPolicy)
	assert.Equal(t, []string{"nightly"}, sched.added)

	stored, err := repo.Get(context.Background(), "nightly")
	require.NoError(t, err)
	assert.Equal(t, job.ID, stored.ID)
}

func TestJobServiceSaveKeepsIdentityOnUpdate(t *testing.T) {
	svc, _, sched, _ := newTestJobService()
	ctx := context.Background()

	first := &domain.TrainingJob{Name: "j", Entrypoint: "shell", CronExpr: "*/5 * * * *"}
	require.NoError(t, svc.Save(ctx, first))

	update := &domain.TrainingJob{Name: "j", Entrypoint: "http"}
	require.NoError(t, svc.Save(ctx, update))

	assert.Equal(t, first.ID, update.ID)
	assert.Equal(t, first.CreatedAt, update.CreatedAt)
	assert.Equal(t, []string{"j"}, sched.removed, "dropping the cron expression unschedules the job")
}

func TestJobServiceSaveRejectsInvalidJobs(t *testing.T) {
	svc, repo, _, _ := newTestJobService()
	ctx := context.Background()

	tests := []struct {
		name string
		job  domain.TrainingJob
	}{
		{"missing name", domain.TrainingJob{Entrypoint: "shell"}},
		{"missing entrypoint", domain.TrainingJob{Name: "j"}},
		{"dot-dot name", domain.TrainingJob{Name: "..", Entrypoint: "shell"}},
		{"nested name", domain.TrainingJob{Name: "a/b", Entrypoint: "shell"}},
		{"bad cron", domain.TrainingJob{Name: "j", Entrypoint: "shell", CronExpr: "every tuesday"}},
		{"bad policy", domain.TrainingJob{Name: "j", Entrypoint: "shell", ConcurrencyPolicy: "Replace"}},
		{"bad port", domain.TrainingJob{Name: "j", Entrypoint: "shell", MasterPort: 70000}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := tt.job
			require.Error(t, svc.Save(ctx, &job))
		})
	}
	assert.Empty(t, repo.jobs)
}

func TestJobServiceDelete(t *testing.T) {
	svc, repo, sched, _ := newTestJobService()
	ctx := context.Background()

	require.NoError(t, svc.Save(ctx, &domain.TrainingJob{Name: "j", Entrypoint: "shell"}))
	require.NoError(t, svc.Delete(ctx, "j"))
	assert.Contains(t, sched.removed, "j")
	assert.Empty(t, repo.jobs)

	require.ErrorIs(t, svc.Delete(ctx, "j"), domain.ErrJobNotFound)
}

func TestJobServiceLaunch(t *testing.T) {
	svc, _, _, runs := newTestJobService()
	ctx := context.Background()

	require.NoError(t, svc.Save(ctx, &domain.TrainingJob{Name: "j", Entrypoint: "shell"}))
	record, err := svc.Launch(ctx, "j")
	require.NoError(t, err)
	assert.Equal(t, "j", record.JobName)
	runs.Wait()

	_, err = svc.Launch(ctx, "missing")
	require.ErrorIs(t, err, domain.ErrJobNotFound)
}
