package master_test

import (
	"context"
	"testing"
	"time"

	"ddp-dispatch/internal/domain"
	"ddp-dispatch/internal/infra/etcd/etcdtest"
	"ddp-dispatch/internal/master"
	"ddp-dispatch/internal/worker"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscoveryFollowsRegistrations(t *testing.T) {
	cli := etcdtest.Start(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Registered before the watch starts: found by the initial load.
	early := worker.NewRegistry(cli, discard())
	require.NoError(t, early.Register(ctx, domain.WorkerInfo{ID: "w1", Address: "tcp://10.0.0.1:8786", Host: "10.0.0.1"}, 10))

	// Malformed values are skipped.
	_, err := cli.Put(ctx, master.WorkerRegistryPrefix+"broken", "not json")
	require.NoError(t, err)

	discovery := master.NewWorkerDiscovery(cli, discard())
	watching := make(chan struct{})
	go func() {
		defer close(watching)
		discovery.WatchWorkers(ctx)
	}()

	addresses := func() []string {
		var out []string
		for addr := range discovery.SchedulerInfo().Workers {
			out = append(out, addr)
		}
		return out
	}
	require.Eventually(t, func() bool { return len(addresses()) == 1 }, 5*time.Second, 10*time.Millisecond)

	late := worker.NewRegistry(cli, discard())
	require.NoError(t, late.Register(ctx, domain.WorkerInfo{ID: "w2", Address: "tcp://10.0.0.2:8786", Host: "10.0.0.2"}, 10))
	require.Eventually(t, func() bool { return len(addresses()) == 2 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, "10.0.0.2", discovery.SchedulerInfo().Workers["tcp://10.0.0.2:8786"].Host)

	require.NoError(t, early.Deregister(ctx))
	require.Eventually(t, func() bool {
		a := addresses()
		return len(a) == 1 && a[0] == "tcp://10.0.0.2:8786"
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, late.Deregister(ctx))
	cancel()
	<-watching
}
