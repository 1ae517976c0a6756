package etcd

import (
	"context"
	"testing"
	"time"

	"ddp-dispatch/internal/domain"
	"ddp-dispatch/internal/infra/etcd/etcdtest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clientv3 "go.etcd.io/etcd/client/v3"
)

func TestJobRepository(t *testing.T) {
	cli := etcdtest.Start(t)
	ctx := context.Background()
	jobs := NewEtcdJobRepository(cli, discardLogger())
	runs := NewEtcdRunRepository(cli, discardLogger())

	require.NoError(t, jobs.Save(ctx, &domain.TrainingJob{ID: "1", Name: "bert", Entrypoint: "shell"}))
	require.NoError(t, jobs.Save(ctx, &domain.TrainingJob{ID: "2", Name: "resnet", Entrypoint: "http", CronExpr: "@daily"}))

	got, err := jobs.Get(ctx, "resnet")
	require.NoError(t, err)
	assert.Equal(t, "http", got.Entrypoint)
	assert.Equal(t, "@daily", got.CronExpr)

	all, err := jobs.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "bert", all[0].Name)

	require.NoError(t, runs.Save(ctx, &domain.RunRecord{ID: "r1", JobName: "resnet", Status: domain.RunStatusSuccess, StartTime: time.Now()}))
	require.NoError(t, runs.Save(ctx, &domain.RunRecord{ID: "r1", JobName: "resnet-v2", Status: domain.RunStatusSuccess, StartTime: time.Now()}))

	require.NoError(t, jobs.Delete(ctx, "resnet"))
	_, err = jobs.Get(ctx, "resnet")
	require.ErrorIs(t, err, domain.ErrJobNotFound)
	_, err = runs.Get(ctx, "resnet", "r1")
	require.ErrorIs(t, err, domain.ErrRunNotFound, "run history goes with the job")
	_, err = runs.Get(ctx, "resnet-v2", "r1")
	require.NoError(t, err, "a job whose name extends the deleted one keeps its history")
}

func TestJobRepositoryRefusesDotNames(t *testing.T) {
	cli := etcdtest.Start(t)
	ctx := context.Background()
	jobs := NewEtcdJobRepository(cli, discardLogger())

	_, err := cli.Put(ctx, "/ddp/workers/w1", "{}")
	require.NoError(t, err)

	require.Error(t, jobs.Save(ctx, &domain.TrainingJob{Name: "..", Entrypoint: "shell"}))
	require.Error(t, jobs.Delete(ctx, ".."))
	require.Error(t, jobs.Delete(ctx, "."))

	resp, err := cli.Get(ctx, "/ddp/", clientv3.WithPrefix(), clientv3.WithCountOnly())
	require.NoError(t, err)
	assert.EqualValues(t, 1, resp.Count)
}

func TestRunRepositoryPagesNewestFirst(t *testing.T) {
	cli := etcdtest.Start(t)
	ctx := context.Background()
	runs := NewEtcdRunRepository(cli, discardLogger())

	for _, id := range []string{"r1", "r2", "r3"} {
		require.NoError(t, runs.Save(ctx, &domain.RunRecord{ID: id, JobName: "j", Status: domain.RunStatusRunning, StartTime: time.Now()}))
	}
	// Updating a run keeps its place in the history.
	require.NoError(t, runs.Save(ctx, &domain.RunRecord{ID: "r1", JobName: "j", Status: domain.RunStatusFailed, StartTime: time.Now(), Error: "boom"}))

	page, err := runs.ListByJobName(ctx, "j", 1, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "r3", page[0].ID)
	assert.Equal(t, "r2", page[1].ID)

	page, err = runs.ListByJobName(ctx, "j", 2, 2)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "r1", page[0].ID)
	assert.Equal(t, domain.RunStatusFailed, page[0].Status)

	_, err = runs.Get(ctx, "j", "missing")
	require.ErrorIs(t, err, domain.ErrRunNotFound)

	require.Error(t, runs.Save(ctx, &domain.RunRecord{JobName: "j"}), "invalid records are not stored")
}

func TestLocker(t *testing.T) {
	cli := etcdtest.Start(t)
	ctx := context.Background()
	locker := NewEtcdLocker(cli)

	lock, err := locker.Lock(ctx, "j")
	require.NoError(t, err)

	_, err = locker.Lock(ctx, "j")
	require.ErrorIs(t, err, domain.ErrLockNotAcquired)

	other, err := locker.Lock(ctx, "k")
	require.NoError(t, err)
	require.NoError(t, other.Unlock(ctx))

	require.NoError(t, lock.Unlock(ctx))
	lock, err = locker.Lock(ctx, "j")
	require.NoError(t, err)
	require.NoError(t, lock.Unlock(ctx))
}

func TestLeaderElection(t *testing.T) {
	cli := etcdtest.Start(t)
	ctx := context.Background()

	first := NewEtcdLeaderElectionManager(cli, "node-1", 5*time.Second, discardLogger())
	second := NewEtcdLeaderElectionManager(cli, "node-2", 5*time.Second, discardLogger())

	_, err := first.Campaign(ctx)
	require.NoError(t, err)
	assert.True(t, first.IsLeader())

	won := make(chan error, 1)
	go func() {
		_, err := second.Campaign(ctx)
		won <- err
	}()
	select {
	case <-won:
		t.Fatal("two leaders at once")
	case <-time.After(200 * time.Millisecond):
	}
	assert.False(t, second.IsLeader())

	require.NoError(t, first.Resign(ctx))
	assert.False(t, first.IsLeader())
	select {
	case err := <-won:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("leadership was not handed over")
	}
	assert.True(t, second.IsLeader())
	require.NoError(t, second.Resign(ctx))
}
