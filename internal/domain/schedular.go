package domain

import "context"

// Schedular launches training jobs on their cron schedule.
type Schedular interface {
	Start(ctx context.Context) error
	Stop()

	AddJob(job *TrainingJob) error
	RemoveJob(name string) error
}

// Launcher starts a run of a job across the cluster.
type Launcher interface {
	Launch(ctx context.Context, job *TrainingJob) (*RunRecord, error)
}
