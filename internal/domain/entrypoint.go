package domain

import (
	"context"
	"errors"
)

// ErrUnknownEntrypoint is returned by a worker asked to run an entrypoint it does not know.
var ErrUnknownEntrypoint = errors.New("unknown entrypoint")

// Call carries the forwarded arguments of a training function together with
// the environment prepared for it.
type Call struct {
	Args   []any
	Kwargs map[string]any
	// Env holds KEY=VALUE pairs the function should run with, the
	// rendezvous variables included.
	Env []string
}

// TrainFunc is a training function registered on a worker under an entrypoint name.
type TrainFunc func(ctx context.Context, call Call) (any, error)
