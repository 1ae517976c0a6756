package domain

import "context"

// Future is the pending result of a submitted invocation.
type Future interface {
	// Done is closed once the result is available.
	Done() <-chan struct{}
	// Result blocks until the invocation finished and returns its outcome.
	Result(ctx context.Context) (any, error)
}

// ClusterClient is the view of the cluster the launcher needs.
type ClusterClient interface {
	// SchedulerInfo returns the current worker registry.
	SchedulerInfo(ctx context.Context) (SchedulerInfo, error)
	// Submit sends the invocation to the worker at the given address.
	Submit(ctx context.Context, worker string, inv Invocation) (Future, error)
}
