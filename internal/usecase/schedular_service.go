package usecase

import (
	"context"
	"log/slog"
	"time"

	"ddp-dispatch/internal/domain"
)

// SchedularService runs the cron scheduler on whichever master holds leadership.
type SchedularService struct {
	leaderManager domain.LeaderElectionManager
	schedular     domain.Schedular
	jobRepo       domain.JobRepository
	nodeID        string
	retryInterval time.Duration
	logger        *slog.Logger
}

func NewSchedularService(leaderManager domain.LeaderElectionManager, schedular domain.Schedular, jobRepo domain.JobRepository, nodeID string, logger *slog.Logger) *SchedularService {
	return &SchedularService{
		leaderManager: leaderManager,
		schedular:     schedular,
		jobRepo:       jobRepo,
		nodeID:        nodeID,
		retryInterval: 5 * time.Second,
		logger:        logger.With("component", "schedular-service", "node_id", nodeID),
	}
}

// Start campaigns for leadership until ctx is done. While leader, the
// scheduler runs with every scheduled job loaded.
func (s *SchedularService) Start(ctx context.Context) error {
	s.logger.Info("scheduler service starting")

	for {
		if ctx.Err() != nil {
			s.logger.Info("scheduler service shutting down")
			return ctx.Err()
		}

		s.logger.Info("campaigning for leadership")
		lostLeadershipCh, err := s.leaderManager.Campaign(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			s.logger.Error("leadership campaign failed, retrying", "error", err, "retry_in", s.retryInterval)
			select {
			case <-time.After(s.retryInterval):
			case <-ctx.Done():
			}
			continue
		}

		s.logger.Info("became the leader, starting the scheduler")
		leaderCtx, cancel := context.WithCancel(ctx)
		stopped := s.runSchedular(leaderCtx)

		select {
		case <-lostLeadershipCh:
			s.logger.Warn("lost leadership, stopping the scheduler")
		case <-ctx.Done():
		}
		cancel()
		<-stopped
		s.schedular.Stop()

		resignCtx, resignCancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := s.leaderManager.Resign(resignCtx); err != nil {
			s.logger.Warn("failed to resign leadership", "error", err)
		}
		resignCancel()
	}
}

// runSchedular loads the scheduled jobs and runs the scheduler until ctx is
// done. The returned channel closes once the scheduler stopped.
func (s *SchedularService) runSchedular(ctx context.Context) <-chan struct{} {
	stopped := make(chan struct{})

	jobs, err := s.jobRepo.List(ctx)
	if err != nil {
		s.logger.Error("failed to load jobs for scheduler", "error", err)
	}
	for _, job := range jobs {
		if !job.Scheduled() {
			continue
		}
		if err := s.schedular.AddJob(job); err != nil {
			s.logger.Error("failed to schedule job", "job_name", job.Name, "error", err)
		}
	}

	go func() {
		defer close(stopped)
		_ = s.schedular.Start(ctx)
	}()
	return stopped
}
