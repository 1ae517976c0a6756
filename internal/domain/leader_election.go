package domain

import "context"

// LeaderElectionManager elects the single master that runs scheduled launches.
type LeaderElectionManager interface {
	// Campaign blocks until leadership is won; the returned channel closes when it is lost.
	Campaign(ctx context.Context) (<-chan struct{}, error)
	Resign(ctx context.Context) error
	IsLeader() bool
}
