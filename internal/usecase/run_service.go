package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"ddp-dispatch/internal/dispatch"
	"ddp-dispatch/internal/domain"
	"ddp-dispatch/internal/metrics"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// RunService launches training jobs across the cluster and records their runs.
type RunService struct {
	cluster domain.ClusterClient
	runRepo domain.RunRepository
	locker  domain.Locker
	logger  *slog.Logger
	tracer  trace.Tracer
	wg      sync.WaitGroup

	defaultPort int
}

// NewRunService creates a new RunService instance.
func NewRunService(cluster domain.ClusterClient, runRepo domain.RunRepository, locker domain.Locker, logger *slog.Logger) *RunService {
	return &RunService{
		cluster: cluster,
		runRepo: runRepo,
		locker:  locker,
		logger:  logger.With("component", "run-service"),
		tracer:  otel.Tracer("ddp-dispatch-usecase"),

		defaultPort: dispatch.DefaultMasterPort,
	}
}

// SetDefaultMasterPort sets the port used by jobs that do not name one.
func (s *RunService) SetDefaultMasterPort(port int) {
	if port > 0 {
		s.defaultPort = port
	}
}

// snapshotClient pins the worker registry a run was planned with.
type snapshotClient struct {
	domain.ClusterClient
	info domain.SchedulerInfo
}

func (c snapshotClient) SchedulerInfo(context.Context) (domain.SchedulerInfo, error) {
	return c.info, nil
}

// Launch starts a run of the job on every registered worker and returns the
// record in running state. The run continues in the background; its final
// state is written to the run repository.
func (s *RunService) Launch(ctx context.Context, job *domain.TrainingJob) (*domain.RunRecord, error) {
	ctx, span := s.tracer.Start(ctx, "service.Launch", trace.WithAttributes(attribute.String("job.name", job.Name)))
	defer span.End()

	var lock domain.Lock
	if job.ConcurrencyPolicy == domain.ConcurrencyPolicyForbid {
		l, err := s.locker.Lock(ctx, job.Name)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "job lock not acquired")
			return nil, fmt.Errorf("job %s: %w", job.Name, err)
		}
		lock = l
	}
	release := func() {
		if lock == nil {
			return
		}
		unlockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := lock.Unlock(unlockCtx); err != nil {
			s.logger.Error("failed to unlock job", "job_name", job.Name, "error", err)
		}
	}

	info, err := s.cluster.SchedulerInfo(ctx)
	if err != nil {
		release()
		span.RecordError(err)
		return nil, fmt.Errorf("failed to read scheduler info: %w", err)
	}
	masterHost, err := dispatch.MasterHost(info)
	if err != nil {
		release()
		span.RecordError(err)
		return nil, err
	}

	port := job.MasterPort
	if port == 0 {
		port = s.defaultPort
	}
	record := &domain.RunRecord{
		ID:         uuid.NewString(),
		JobName:    job.Name,
		MasterHost: masterHost,
		MasterPort: port,
		WorldSize:  len(info.Workers),
		Status:     domain.RunStatusRunning,
		StartTime:  time.Now(),
	}
	span.SetAttributes(attribute.String("run.id", record.ID), attribute.Int("world_size", record.WorldSize))

	if err := s.runRepo.Save(ctx, record); err != nil {
		release()
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to save run record")
		return nil, err
	}

	s.logger.Info("launching training run", "job_name", job.Name, "run_id", record.ID, "world_size", record.WorldSize, "master_host", masterHost)
	metrics.WorldSize.WithLabelValues(job.Name).Set(float64(record.WorldSize))

	started := *record
	runCtx := context.WithoutCancel(ctx)
	client := snapshotClient{ClusterClient: s.cluster, info: info}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer release()
		s.execute(runCtx, client, job, record)
	}()
	return &started, nil
}

func (s *RunService) execute(ctx context.Context, client domain.ClusterClient, job *domain.TrainingJob, record *domain.RunRecord) {
	ctx, span := s.tracer.Start(ctx, "service.ExecuteRun", trace.WithAttributes(
		attribute.String("job.name", job.Name),
		attribute.String("run.id", record.ID),
	))
	defer span.End()
	logger := s.logger.With("job_name", job.Name, "run_id", record.ID)

	results, err := dispatch.Run(ctx, client, job.Entrypoint, domain.Call{
		Args:   job.Args,
		Kwargs: job.Kwargs,
	}, dispatch.WithMasterPort(record.MasterPort), dispatch.WithRunID(record.ID))

	record.EndTime = time.Now()
	record.Results = results
	if err != nil {
		record.Status = domain.RunStatusFailed
		record.Error = err.Error()
		metrics.RunsTotal.WithLabelValues(job.Name, "failed").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "training run failed")
		logger.Error("training run failed", "error", err)
	} else {
		record.Status = domain.RunStatusSuccess
		metrics.RunsTotal.WithLabelValues(job.Name, "success").Inc()
		span.SetStatus(codes.Ok, "training run succeeded")
		logger.Info("training run finished", "duration", record.EndTime.Sub(record.StartTime))
	}

	if err := s.runRepo.Save(ctx, record); err != nil {
		logger.Error("failed to save final run record", "error", err)
		span.RecordError(err)
	}
}

// Wait blocks until every launched run has finished.
func (s *RunService) Wait() {
	s.wg.Wait()
}

// ListRuns lists the runs of a job, newest first.
func (s *RunService) ListRuns(ctx context.Context, jobName string, page, pageSize int) ([]*domain.RunRecord, error) {
	ctx, span := s.tracer.Start(ctx, "service.ListRuns")
	defer span.End()
	span.SetAttributes(
		attribute.String("job.name", jobName),
		attribute.Int("page", page),
		attribute.Int("page_size", pageSize),
	)

	records, err := s.runRepo.ListByJobName(ctx, jobName, page, pageSize)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to list runs from repository")
	}
	return records, err
}

// GetRun returns one run of a job.
func (s *RunService) GetRun(ctx context.Context, jobName, runID string) (*domain.RunRecord, error) {
	ctx, span := s.tracer.Start(ctx, "service.GetRun")
	defer span.End()

	record, err := s.runRepo.Get(ctx, jobName, runID)
	if err != nil && !errors.Is(err, domain.ErrRunNotFound) {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to get run from repository")
	}
	return record, err
}

// Cluster returns the worker registry runs are planned against.
func (s *RunService) Cluster(ctx context.Context) (domain.SchedulerInfo, error) {
	return s.cluster.SchedulerInfo(ctx)
}
