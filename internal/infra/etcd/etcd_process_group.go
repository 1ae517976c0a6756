package etcd

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strconv"
	"strings"
	"time"

	"ddp-dispatch/internal/domain"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"
)

const (
	// ProcessGroupDir is the etcd root of rendezvous barriers.
	ProcessGroupDir = "/ddp/groups/"
	// ProcessGroupTTL is the lease TTL of a rank's membership in seconds.
	ProcessGroupTTL = 30
)

// ProcessGroup is a rendezvous barrier in etcd keyed by the master endpoint
// and the run. Each rank holds /ddp/groups/{addr:port}/{run}/ranks/{rank}
// under its own lease; Init returns once world size ranks of the run joined.
type ProcessGroup struct {
	client   *clientv3.Client
	memberID string
	logger   *slog.Logger
	session  *concurrency.Session
}

// NewProcessGroup returns an unjoined process group for one invocation.
func NewProcessGroup(client *clientv3.Client, memberID string, logger *slog.Logger) *ProcessGroup {
	return &ProcessGroup{
		client:   client,
		memberID: memberID,
		logger:   logger.With("component", "process-group"),
	}
}

func groupPrefix(rv domain.Rendezvous) string {
	return path.Join(ProcessGroupDir, rv.Endpoint(), rv.RunID, "ranks") + "/"
}

// Init joins the group and waits for the rest of the world.
func (g *ProcessGroup) Init(ctx context.Context, rv domain.Rendezvous) error {
	if g.session != nil {
		return fmt.Errorf("process group already initialized")
	}
	if rv.RunID == "" || strings.Contains(rv.RunID, "/") {
		return fmt.Errorf("invalid run id %q", rv.RunID)
	}
	session, err := concurrency.NewSession(g.client,
		concurrency.WithTTL(ProcessGroupTTL),
		concurrency.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("failed to create etcd session: %w", err)
	}

	prefix := groupPrefix(rv)
	key := prefix + strconv.Itoa(rv.Rank)
	// A rank key already held by a live member means two workers got the same rank.
	resp, err := g.client.Txn(ctx).
		If(clientv3.Compare(clientv3.CreateRevision(key), "=", 0)).
		Then(clientv3.OpPut(key, g.memberID, clientv3.WithLease(session.Lease()))).
		Commit()
	if err != nil {
		g.leave(ctx, session)
		return fmt.Errorf("failed to join process group: %w", err)
	}
	if !resp.Succeeded {
		g.leave(ctx, session)
		return fmt.Errorf("rank %d of run %s at %s is already taken", rv.Rank, rv.RunID, rv.Endpoint())
	}

	g.logger.Info("joined process group, waiting for peers", "run_id", rv.RunID, "endpoint", rv.Endpoint(), "rank", rv.Rank, "world_size", rv.WorldSize)
	if err := g.waitForWorld(ctx, prefix, rv.WorldSize, resp.Header.Revision); err != nil {
		g.leave(ctx, session)
		return err
	}
	g.session = session
	g.logger.Info("process group complete", "run_id", rv.RunID, "endpoint", rv.Endpoint(), "rank", rv.Rank)
	return nil
}

// leave drops the session of a failed Init. ctx may already be done, so the
// lease is revoked on a context that ignores its cancellation.
func (g *ProcessGroup) leave(ctx context.Context, session *concurrency.Session) {
	session.Orphan()
	revokeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if _, err := g.client.Revoke(revokeCtx, session.Lease()); err != nil {
		g.logger.Warn("failed to revoke process group lease", "lease_id", session.Lease(), "error", err)
	}
}

// waitForWorld counts the members present at rev, this rank's join, plus
// every later join. No member leaves before all have joined.
func (g *ProcessGroup) waitForWorld(ctx context.Context, prefix string, worldSize int, rev int64) error {
	resp, err := g.client.Get(ctx, prefix, clientv3.WithPrefix(), clientv3.WithCountOnly(), clientv3.WithRev(rev))
	if err != nil {
		return fmt.Errorf("failed to count process group members: %w", err)
	}
	joined := resp.Count
	if joined >= int64(worldSize) {
		return nil
	}

	watchCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	watchCh := g.client.Watch(watchCtx, prefix, clientv3.WithPrefix(), clientv3.WithRev(rev+1))
	for watchResp := range watchCh {
		if err := watchResp.Err(); err != nil {
			return fmt.Errorf("watching process group: %w", err)
		}
		for _, event := range watchResp.Events {
			if event.IsCreate() {
				joined++
			}
		}
		if joined >= int64(worldSize) {
			return nil
		}
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("waiting for %d ranks, %d joined: %w", worldSize, joined, err)
	}
	return fmt.Errorf("process group watch closed with %d of %d ranks joined", joined, worldSize)
}

// Destroy leaves the group. Revoking the lease deletes this rank's key.
func (g *ProcessGroup) Destroy(ctx context.Context) error {
	if g.session == nil {
		return nil
	}
	session := g.session
	g.session = nil
	session.Orphan()
	if _, err := g.client.Revoke(ctx, session.Lease()); err != nil {
		return fmt.Errorf("failed to leave process group: %w", err)
	}
	return nil
}
