package master

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"ddp-dispatch/internal/domain"
	"ddp-dispatch/internal/metrics"
	"ddp-dispatch/internal/rpc"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// WorkerRegistry supplies the current set of workers.
type WorkerRegistry interface {
	SchedulerInfo() domain.SchedulerInfo
}

// Client submits invocations to workers over gRPC.
type Client struct {
	registry WorkerRegistry
	dialOpts []grpc.DialOption
	clients  map[string]rpc.WorkerClient // A cache for gRPC clients
	conns    []*grpc.ClientConn
	mu       sync.Mutex
	logger   *slog.Logger
	tracer   trace.Tracer
}

// NewClient creates a cluster client. Extra dial options are appended to the defaults.
func NewClient(registry WorkerRegistry, logger *slog.Logger, dialOpts ...grpc.DialOption) *Client {
	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		// Add OpenTelemetry Stats Handler for automatic trace propagation.
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
	}
	return &Client{
		registry: registry,
		dialOpts: append(opts, dialOpts...),
		clients:  make(map[string]rpc.WorkerClient),
		logger:   logger.With("component", "cluster-client"),
		tracer:   otel.Tracer("ddp-dispatch-master"),
	}
}

// SchedulerInfo returns the registered workers keyed by address.
func (c *Client) SchedulerInfo(context.Context) (domain.SchedulerInfo, error) {
	return c.registry.SchedulerInfo(), nil
}

// Submit sends the invocation to a worker. The call runs in the background;
// its outcome is read from the returned future.
func (c *Client) Submit(ctx context.Context, worker string, inv domain.Invocation) (domain.Future, error) {
	client, err := c.getOrCreateClient(worker)
	if err != nil {
		return nil, err
	}
	req, err := rpc.InvocationToProto(inv)
	if err != nil {
		return nil, err
	}

	c.logger.Info("submitting invocation", "run_id", inv.RunID, "worker_addr", worker, "entrypoint", inv.Entrypoint, "rank", inv.Rank, "world_size", inv.WorldSize)
	metrics.InvocationsSubmitted.WithLabelValues(inv.Entrypoint).Inc()

	f := newFuture()
	go func() {
		ctx, span := c.tracer.Start(ctx, "master.Submit", trace.WithAttributes(
			attribute.String("run.id", inv.RunID),
			attribute.String("worker.addr", worker),
			attribute.String("entrypoint", inv.Entrypoint),
			attribute.Int("rank", inv.Rank),
			attribute.Int("world_size", inv.WorldSize),
		))
		defer span.End()

		// The context passed here propagates trace information to the worker.
		resp, err := client.Dispatch(ctx, req)
		if err != nil {
			c.logger.Error("invocation failed", "worker_addr", worker, "rank", inv.Rank, "error", err)
			span.RecordError(err)
			span.SetStatus(codes.Error, "dispatch failed")
			f.complete(nil, err)
			return
		}
		f.complete(resp.AsInterface(), nil)
	}()
	return f, nil
}

// Close closes every cached connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var firstErr error
	for _, conn := range c.conns {
		if err := conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	c.conns = nil
	c.clients = make(map[string]rpc.WorkerClient)
	return firstErr
}

func (c *Client) getOrCreateClient(addr string) (rpc.WorkerClient, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if client, ok := c.clients[addr]; ok {
		return client, nil
	}

	conn, err := grpc.NewClient(dialTarget(addr), c.dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to worker at %s: %w", addr, err)
	}

	client := rpc.NewWorkerClient(conn)
	c.clients[addr] = client
	c.conns = append(c.conns, conn)
	c.logger.Info("created new gRPC client for worker", "addr", addr)

	return client, nil
}

// dialTarget strips the tcp:// scheme workers advertise their address with.
func dialTarget(addr string) string {
	return strings.TrimPrefix(addr, "tcp://")
}
