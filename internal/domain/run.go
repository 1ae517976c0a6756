package domain

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrRunNotFound is returned when a run record does not exist.
var ErrRunNotFound = errors.New("run not found")

// RunStatus defines the status of a training run.
type RunStatus string

const (
	RunStatusRunning RunStatus = "running"
	RunStatusSuccess RunStatus = "success"
	RunStatusFailed  RunStatus = "failed"
)

// RunRecord represents one cluster-wide launch of a training job.
type RunRecord struct {
	ID         string    `json:"id"`
	JobName    string    `json:"job_name"`
	MasterHost string    `json:"master_host,omitempty"`
	MasterPort int       `json:"master_port,omitempty"`
	WorldSize  int       `json:"world_size"`
	Status     RunStatus `json:"status"`
	Results    []any     `json:"results,omitempty"` // per-worker results in completion order
	Error      string    `json:"error,omitempty"`
	StartTime  time.Time `json:"start_time"`
	EndTime    time.Time `json:"end_time,omitempty"`
}

// Validate checks if the run record is valid.
func (r *RunRecord) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("run record ID cannot be empty")
	}
	if r.JobName == "" {
		return fmt.Errorf("run record job name cannot be empty")
	}
	if r.StartTime.IsZero() {
		return fmt.Errorf("run record start time cannot be zero")
	}
	if r.Status == "" {
		return fmt.Errorf("run record status cannot be empty")
	}
	return nil
}

// RunRepository persists and retrieves run records.
type RunRepository interface {
	Save(ctx context.Context, record *RunRecord) error
	// ListByJobName returns records of a job newest first, paginated from page 1.
	ListByJobName(ctx context.Context, jobName string, page, pageSize int) ([]*RunRecord, error)
	Get(ctx context.Context, jobName, runID string) (*RunRecord, error)
}
