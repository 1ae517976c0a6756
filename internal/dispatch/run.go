package dispatch

import (
	"context"
	"fmt"

	"ddp-dispatch/internal/domain"

	"github.com/google/uuid"
)

// Options tune a launch.
type Options struct {
	MasterPort int
	// RunID names the process group of the launch; a fresh UUID by default.
	RunID string
}

// Option configures Options.
type Option func(*Options)

// WithMasterPort overrides DefaultMasterPort.
func WithMasterPort(port int) Option {
	return func(o *Options) {
		if port > 0 {
			o.MasterPort = port
		}
	}
}

// WithRunID sets the run identity shared by every rank of the launch.
func WithRunID(id string) Option {
	return func(o *Options) {
		if id != "" {
			o.RunID = id
		}
	}
}

func newOptions(opts []Option) Options {
	o := Options{MasterPort: DefaultMasterPort}
	for _, opt := range opts {
		opt(&o)
	}
	if o.RunID == "" {
		o.RunID = uuid.NewString()
	}
	return o
}

// Submit launches the entrypoint on every registered worker and returns the
// pending futures in rank order without waiting for them.
func Submit(ctx context.Context, client domain.ClusterClient, entrypoint string, call domain.Call, opts ...Option) ([]domain.Future, error) {
	o := newOptions(opts)

	info, err := client.SchedulerInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read scheduler info: %w", err)
	}
	plan := Plan(info)
	if len(plan) == 0 {
		return nil, ErrNoWorkers
	}
	worldSize := len(plan)
	masterHost := plan[0].Host

	futures := make([]domain.Future, 0, worldSize)
	for _, a := range plan {
		inv := domain.Invocation{
			RunID:      o.RunID,
			Entrypoint: entrypoint,
			MasterAddr: masterHost,
			MasterPort: o.MasterPort,
			Rank:       a.Rank,
			WorldSize:  worldSize,
			Args:       call.Args,
			Kwargs:     call.Kwargs,
		}
		f, err := client.Submit(ctx, a.Address, inv)
		if err != nil {
			return futures, fmt.Errorf("failed to submit rank %d to %s: %w", a.Rank, a.Address, err)
		}
		futures = append(futures, f)
	}
	return futures, nil
}

// Run launches the entrypoint on every registered worker and waits for all of
// them. Results are returned in completion order. The first failed rank ends
// the wait and its error is returned unchanged.
func Run(ctx context.Context, client domain.ClusterClient, entrypoint string, call domain.Call, opts ...Option) ([]any, error) {
	futures, err := Submit(ctx, client, entrypoint, call, opts...)
	if err != nil {
		return nil, err
	}
	return Gather(ctx, futures)
}

// Gather drains the futures in completion order.
func Gather(ctx context.Context, futures []domain.Future) ([]any, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make([]any, 0, len(futures))
	for f := range AsCompleted(ctx, futures) {
		// f is done; its outcome must not lose a race against ctx.
		r, err := f.Result(context.WithoutCancel(ctx))
		if err != nil {
			return results, err
		}
		results = append(results, r)
	}
	if len(results) < len(futures) {
		return results, ctx.Err()
	}
	return results, nil
}
