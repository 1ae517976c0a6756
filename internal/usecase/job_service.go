package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"ddp-dispatch/internal/domain"
	"ddp-dispatch/internal/scheduler"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// JobService manages training job definitions.
type JobService struct {
	repo      domain.JobRepository
	runs      *RunService
	scheduler domain.Schedular
	logger    *slog.Logger
	tracer    trace.Tracer
}

// NewJobService creates a new JobService instance.
func NewJobService(repo domain.JobRepository, runs *RunService, scheduler domain.Schedular, logger *slog.Logger) *JobService {
	return &JobService{
		repo:      repo,
		runs:      runs,
		scheduler: scheduler,
		logger:    logger.With("component", "job-service"),
		tracer:    otel.Tracer("ddp-dispatch-usecase"),
	}
}

// Save validates and stores a job, then (un)schedules it to match its cron expression.
func (s *JobService) Save(ctx context.Context, job *domain.TrainingJob) error {
	ctx, span := s.tracer.Start(ctx, "service.Save")
	defer span.End()

	if err := job.Validate(); err != nil {
		return err
	}
	if job.Scheduled() {
		if _, err := scheduler.Parser.Parse(job.CronExpr); err != nil {
			return fmt.Errorf("invalid cron expression %q: %w", job.CronExpr, err)
		}
	}

	now := time.Now()
	if existing, err := s.repo.Get(ctx, job.Name); err == nil {
		job.ID = existing.ID
		job.CreatedAt = existing.CreatedAt
	}
	if job.ID == "" {
		job.ID = uuid.New().String()
		job.CreatedAt = now
	}
	job.UpdatedAt = now
	span.SetAttributes(attribute.String("job.id", job.ID), attribute.String("job.name", job.Name))

	if err := s.repo.Save(ctx, job); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to save job to repository")
		return err
	}

	var err error
	if job.Scheduled() {
		err = s.scheduler.AddJob(job)
	} else {
		err = s.scheduler.RemoveJob(job.Name)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to update scheduler")
		return err
	}
	return nil
}

// Delete unschedules a job and removes it with its run history.
func (s *JobService) Delete(ctx context.Context, name string) error {
	ctx, span := s.tracer.Start(ctx, "service.Delete")
	defer span.End()
	span.SetAttributes(attribute.String("job.name", name))

	if _, err := s.repo.Get(ctx, name); err != nil {
		return err
	}
	if err := s.scheduler.RemoveJob(name); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to remove job from scheduler")
		return err
	}
	if err := s.repo.Delete(ctx, name); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to delete job from repository")
		return err
	}
	return nil
}

// Get returns a job by name.
func (s *JobService) Get(ctx context.Context, name string) (*domain.TrainingJob, error) {
	ctx, span := s.tracer.Start(ctx, "service.Get")
	defer span.End()
	span.SetAttributes(attribute.String("job.name", name))

	job, err := s.repo.Get(ctx, name)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to get job from repository")
	}
	return job, err
}

// List returns every job.
func (s *JobService) List(ctx context.Context) ([]*domain.TrainingJob, error) {
	ctx, span := s.tracer.Start(ctx, "service.List")
	defer span.End()

	jobs, err := s.repo.List(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to list jobs from repository")
	}
	return jobs, err
}

// Launch starts a run of the named job now.
func (s *JobService) Launch(ctx context.Context, name string) (*domain.RunRecord, error) {
	job, err := s.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	return s.runs.Launch(ctx, job)
}
