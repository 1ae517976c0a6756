package domain

import (
	"context"
	"errors"
)

// ErrJobNotFound is a sentinel error returned when a job is not found.
var ErrJobNotFound = errors.New("job not found")

// JobRepository defines the interface for persisting and retrieving training jobs.
type JobRepository interface {
	Save(ctx context.Context, job *TrainingJob) error
	Delete(ctx context.Context, name string) error
	Get(ctx context.Context, name string) (*TrainingJob, error)
	List(ctx context.Context) ([]*TrainingJob, error)
}
