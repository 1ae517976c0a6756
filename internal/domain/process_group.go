package domain

import "context"

// ProcessGroup is a collective communication context among the ranks of a run.
type ProcessGroup interface {
	// Init joins the group. It returns once every rank of the world has joined.
	Init(ctx context.Context, rv Rendezvous) error
	// Destroy leaves the group and releases its resources.
	Destroy(ctx context.Context) error
}
