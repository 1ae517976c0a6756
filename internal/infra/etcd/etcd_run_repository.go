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
	RunHistoryDir = "/ddp/runs/"
)

type etcdRunRepository struct {
	client *clientv3.Client
	logger *slog.Logger
	tracer trace.Tracer
}

// NewEtcdRunRepository creates a repository for run records backed by etcd.
func NewEtcdRunRepository(client *clientv3.Client, logger *slog.Logger) domain.RunRepository {
	return &etcdRunRepository{
		client: client,
		logger: logger,
		tracer: otel.Tracer("ddp-dispatch-etcd-run-repo"),
	}
}

// Save persists a run record under /ddp/runs/{jobName}/{runID}.
func (r *etcdRunRepository) Save(ctx context.Context, record *domain.RunRecord) error {
	ctx, span := r.tracer.Start(ctx, "repo.etcd.SaveRun")
	defer span.End()

	if err := record.Validate(); err != nil {
		return err
	}

	recordJSON, err := json.Marshal(record)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to marshal run record")
		return fmt.Errorf("failed to marshal run record %s to JSON: %w", record.ID, err)
	}

	key := path.Join(RunHistoryDir, record.JobName, record.ID)
	span.SetAttributes(
		attribute.String("run.id", record.ID),
		attribute.String("job.name", record.JobName),
		attribute.String("etcd.key", key),
	)

	if _, err = r.client.Put(ctx, key, string(recordJSON)); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to put run record to etcd")
		return fmt.Errorf("failed to save run record %s to etcd: %w", record.ID, err)
	}
	return nil
}

// Get retrieves a single run record.
func (r *etcdRunRepository) Get(ctx context.Context, jobName, runID string) (*domain.RunRecord, error) {
	ctx, span := r.tracer.Start(ctx, "repo.etcd.GetRun")
	defer span.End()
	span.SetAttributes(
		attribute.String("job.name", jobName),
		attribute.String("run.id", runID),
	)

	key := path.Join(RunHistoryDir, jobName, runID)
	resp, err := r.client.Get(ctx, key)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to get run record from etcd")
		return nil, fmt.Errorf("failed to get run record %s/%s from etcd: %w", jobName, runID, err)
	}
	if len(resp.Kvs) == 0 {
		return nil, domain.ErrRunNotFound
	}

	var record domain.RunRecord
	if err := json.Unmarshal(resp.Kvs[0].Value, &record); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to unmarshal run record %s/%s from JSON: %w", jobName, runID, err)
	}
	return &record, nil
}

// ListByJobName returns run records of a job, newest first.
func (r *etcdRunRepository) ListByJobName(ctx context.Context, jobName string, page, pageSize int) ([]*domain.RunRecord, error) {
	ctx, span := r.tracer.Start(ctx, "repo.etcd.ListRuns")
	defer span.End()
	span.SetAttributes(
		attribute.String("job.name", jobName),
		attribute.Int("page", page),
		attribute.Int("page_size", pageSize),
	)

	prefix := path.Join(RunHistoryDir, jobName) + "/"
	resp, err := r.client.Get(ctx, prefix,
		clientv3.WithPrefix(),
		clientv3.WithSort(clientv3.SortByCreateRevision, clientv3.SortDescend),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to list run records from etcd")
		return nil, fmt.Errorf("failed to list run records for job %s from etcd: %w", jobName, err)
	}

	// etcd has no offset, so pages are cut client side.
	startIdx, endIdx := pageBounds(page, pageSize, len(resp.Kvs))
	records := make([]*domain.RunRecord, 0, endIdx-startIdx)
	for _, kv := range resp.Kvs[startIdx:endIdx] {
		var record domain.RunRecord
		if err := json.Unmarshal(kv.Value, &record); err != nil {
			r.logger.Warn("failed to unmarshal run record from etcd", "key", string(kv.Key), "error", err)
			continue
		}
		records = append(records, &record)
	}
	span.SetAttributes(attribute.Int("records_returned", len(records)))
	return records, nil
}

// pageBounds returns the [start, end) slice bounds of a 1-based page.
func pageBounds(page, pageSize, total int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		return 0, 0
	}
	start := (page - 1) * pageSize
	if start > total {
		start = total
	}
	end := start + pageSize
	if end > total {
		end = total
	}
	return start, end
}
