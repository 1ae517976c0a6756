package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"ddp-dispatch/internal/domain"

	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Parser accepts six-field cron expressions (with seconds) and descriptors such as @daily.
var Parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// cronScheduler triggers training runs at their scheduled time.
type cronScheduler struct {
	cron     *cron.Cron
	launcher domain.Launcher
	jobs     map[string]cron.EntryID
	mu       sync.Mutex
	logger   *slog.Logger
	tracer   trace.Tracer
}

// NewCronScheduler creates a scheduler that hands due jobs to the launcher.
func NewCronScheduler(launcher domain.Launcher, logger *slog.Logger) domain.Schedular {
	return &cronScheduler{
		cron:     cron.New(cron.WithParser(Parser)),
		launcher: launcher,
		jobs:     make(map[string]cron.EntryID),
		logger:   logger.With("component", "cron-scheduler"),
		tracer:   otel.Tracer("ddp-dispatch-scheduler"),
	}
}

func (s *cronScheduler) Start(ctx context.Context) error {
	s.logger.Info("cron scheduler started")
	s.cron.Start()
	<-ctx.Done()
	s.logger.Info("cron scheduler stopping...")
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	s.logger.Info("cron scheduler stopped")
	return ctx.Err()
}

// Stop drops every entry; a new leader reloads them from the repository.
func (s *cronScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, id := range s.jobs {
		s.cron.Remove(id)
		delete(s.jobs, name)
	}
}

// AddJob schedules a job, replacing an earlier entry with the same name.
func (s *cronScheduler) AddJob(job *domain.TrainingJob) error {
	if !job.Scheduled() {
		return fmt.Errorf("job %s has no cron expression", job.Name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if entryID, ok := s.jobs[job.Name]; ok {
		s.cron.Remove(entryID)
		delete(s.jobs, job.Name)
	}

	wrapper := &cronJobWrapper{
		job:      job,
		launcher: s.launcher,
		logger:   s.logger.With("job_name", job.Name),
		tracer:   s.tracer,
	}
	entryID, err := s.cron.AddJob(job.CronExpr, wrapper)
	if err != nil {
		s.logger.Error("failed to add job to cron", "job_name", job.Name, "error", err)
		return err
	}

	s.jobs[job.Name] = entryID
	s.logger.Info("added job to scheduler", "job_name", job.Name, "schedule", job.CronExpr)
	return nil
}

// RemoveJob unschedules a job. Unknown names are ignored.
func (s *cronScheduler) RemoveJob(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entryID, ok := s.jobs[name]; ok {
		s.cron.Remove(entryID)
		delete(s.jobs, name)
		s.logger.Info("removed job from scheduler", "job_name", name)
	}
	return nil
}

type cronJobWrapper struct {
	job      *domain.TrainingJob
	launcher domain.Launcher
	logger   *slog.Logger
	tracer   trace.Tracer
}

// Run is called by the cron library when the job is due.
func (w *cronJobWrapper) Run() {
	ctx, span := w.tracer.Start(context.Background(), "scheduler.Launch",
		trace.WithAttributes(
			attribute.String("job.name", w.job.Name),
			attribute.String("job.id", w.job.ID),
		))
	defer span.End()

	w.logger.Info("launching scheduled job")
	record, err := w.launcher.Launch(ctx, w.job)
	if err != nil {
		w.logger.Error("failed to launch scheduled job", "error", err)
		span.RecordError(err)
		return
	}
	span.SetAttributes(attribute.String("run.id", record.ID))
}
