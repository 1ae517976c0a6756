package dispatch

import (
	"context"
	"fmt"
	"strconv"

	"ddp-dispatch/internal/domain"
)

// DispatchWithDDP is the worker-side entry point of a run. It writes the
// rendezvous variables into env, joins the process group, calls fn with the
// forwarded arguments and leaves the group again. The group is destroyed on
// every exit path once Init succeeded.
func DispatchWithDDP(ctx context.Context, env Environ, pg domain.ProcessGroup, fn domain.TrainFunc, inv domain.Invocation) (result any, err error) {
	vars := [...][2]string{
		{EnvMasterAddr, inv.MasterAddr},
		{EnvMasterPort, strconv.Itoa(inv.MasterPort)},
		{EnvRank, strconv.Itoa(inv.Rank)},
		{EnvWorldSize, strconv.Itoa(inv.WorldSize)},
	}
	for _, kv := range vars {
		if err := env.Setenv(kv[0], kv[1]); err != nil {
			return nil, fmt.Errorf("failed to set %s: %w", kv[0], err)
		}
	}

	if err := pg.Init(ctx, inv.Rendezvous()); err != nil {
		return nil, fmt.Errorf("failed to init process group at %s: %w", inv.Rendezvous().Endpoint(), err)
	}
	defer func() {
		// The run's context may already be canceled; leaving the group must still happen.
		if derr := pg.Destroy(context.WithoutCancel(ctx)); derr != nil && err == nil {
			err = fmt.Errorf("failed to destroy process group: %w", derr)
		}
	}()

	return fn(ctx, domain.Call{
		Args:   inv.Args,
		Kwargs: inv.Kwargs,
		Env:    env.Environ(),
	})
}
