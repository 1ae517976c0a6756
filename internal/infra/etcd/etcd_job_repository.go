package etcd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path"

	"ddp-dispatch/internal/domain"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	JobSaveDir = "/ddp/jobs/"
)

type etcdJobRepository struct {
	client *clientv3.Client
	logger *slog.Logger
	tracer trace.Tracer
}

// NewEtcdJobRepository creates a repository for training jobs backed by etcd.
func NewEtcdJobRepository(client *clientv3.Client, logger *slog.Logger) domain.JobRepository {
	return &etcdJobRepository{
		client: client,
		logger: logger,
		tracer: otel.Tracer("ddp-dispatch-etcd-job-repo"),
	}
}

// Save persists the training job under /ddp/jobs/{name}.
func (r *etcdJobRepository) Save(ctx context.Context, job *domain.TrainingJob) error {
	ctx, span := r.tracer.Start(ctx, "repo.etcd.SaveJob")
	defer span.End()

	if err := domain.ValidateJobName(job.Name); err != nil {
		return err
	}
	jobJSON, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job to JSON: %w", err)
	}

	key := path.Join(JobSaveDir, job.Name)
	span.SetAttributes(
		attribute.String("job.name", job.Name),
		attribute.String("etcd.key", key),
	)

	_, err = r.client.Put(ctx, key, string(jobJSON))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to put job to etcd")
		return fmt.Errorf("failed to save job %s to etcd: %w", job.Name, err)
	}
	return nil
}

// Delete removes a job together with its run history.
func (r *etcdJobRepository) Delete(ctx context.Context, name string) error {
	ctx, span := r.tracer.Start(ctx, "repo.etcd.DeleteJob")
	defer span.End()
	span.SetAttributes(attribute.String("job.name", name))

	if err := domain.ValidateJobName(name); err != nil {
		return err
	}
	_, err := r.client.Txn(ctx).Then(
		clientv3.OpDelete(path.Join(JobSaveDir, name)),
		clientv3.OpDelete(path.Join(RunHistoryDir, name)+"/", clientv3.WithPrefix()),
	).Commit()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to delete job from etcd")
		return fmt.Errorf("failed to delete job %s from etcd: %w", name, err)
	}
	return nil
}

// Get retrieves a job from etcd.
func (r *etcdJobRepository) Get(ctx context.Context, name string) (*domain.TrainingJob, error) {
	ctx, span := r.tracer.Start(ctx, "repo.etcd.GetJob")
	defer span.End()
	span.SetAttributes(attribute.String("job.name", name))

	key := path.Join(JobSaveDir, name)
	resp, err := r.client.Get(ctx, key)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to get job from etcd")
		return nil, fmt.Errorf("failed to get job %s from etcd: %w", name, err)
	}

	if len(resp.Kvs) == 0 {
		return nil, domain.ErrJobNotFound
	}

	var job domain.TrainingJob
	if err := json.Unmarshal(resp.Kvs[0].Value, &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job %s from JSON: %w", name, err)
	}
	return &job, nil
}

// List retrieves all jobs from etcd.
func (r *etcdJobRepository) List(ctx context.Context) ([]*domain.TrainingJob, error) {
	ctx, span := r.tracer.Start(ctx, "repo.etcd.ListJobs")
	defer span.End()

	resp, err := r.client.Get(ctx, JobSaveDir, clientv3.WithPrefix())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to list jobs from etcd")
		return nil, fmt.Errorf("failed to list jobs from etcd: %w", err)
	}
	span.SetAttributes(attribute.Int("etcd.kv_count", len(resp.Kvs)))

	jobs := make([]*domain.TrainingJob, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var job domain.TrainingJob
		if err := json.Unmarshal(kv.Value, &job); err != nil {
			r.logger.Warn("failed to unmarshal job from etcd", "key", string(kv.Key), "error", err)
			continue
		}
		jobs = append(jobs, &job)
	}
	return jobs, nil
}