package main

import (
	"context"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ddp-dispatch/internal/config"
	"ddp-dispatch/internal/domain"
	"ddp-dispatch/internal/infra/etcd"
	http_infra "ddp-dispatch/internal/infra/http"
	shell_infra "ddp-dispatch/internal/infra/shell"
	"ddp-dispatch/internal/rpc"
	"ddp-dispatch/internal/tracing"
	"ddp-dispatch/internal/worker"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
)

func main() {
	// 1. Init logger, tracer, config
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	tracerShutdown, err := tracing.InitTracer("ddp-dispatch-worker", log.Writer())
	if err != nil {
		log.Fatalf("failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := tracerShutdown(context.Background()); err != nil {
			log.Printf("failed to shutdown tracer: %v", err)
		}
	}()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	workerID := uuid.New().String()
	addr, host, err := worker.AdvertisedAddress(cfg.Worker.AdvertiseHost, cfg.Worker.GrpcListenAddr)
	if err != nil {
		log.Fatalf("Failed to resolve worker address: %v", err)
	}
	logger.Info("starting worker node", "worker_id", workerID, "addr", addr, "listen", cfg.Worker.GrpcListenAddr)

	// 2. Root context for lifecycle management
	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	setupGracefulShutdown(cancel)

	// 3. Init etcd client
	etcdClient, err := etcd.NewClient(cfg.EtcdEndpoints, cfg.EtcdTimeout)
	if err != nil {
		log.Fatalf("Failed to create etcd client: %v", err)
	}
	defer etcdClient.Close()

	// 4. Start the gRPC server before registering, so the master never sees an unreachable worker
	lis, err := net.Listen("tcp", cfg.Worker.GrpcListenAddr)
	if err != nil {
		log.Fatalf("Failed to listen for gRPC: %v", err)
	}

	entrypoints := map[string]domain.TrainFunc{
		shell_infra.EntrypointName: shell_infra.NewEntrypoint(logger),
		http_infra.EntrypointName:  http_infra.NewEntrypoint(&http.Client{}),
	}
	processGroup := func() domain.ProcessGroup {
		return etcd.NewProcessGroup(etcdClient, workerID, logger)
	}
	workerServer := worker.NewServer(entrypoints, processGroup, cfg.Worker.Env, workerID, logger)

	grpcServer := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
	)
	rpc.RegisterWorkerServer(grpcServer, workerServer)

	go func() {
		if err := grpcServer.Serve(lis); err != nil {
			log.Fatalf("gRPC server failed: %v", err)
		}
	}()

	// 5. Register this worker in etcd
	registry := worker.NewRegistry(etcdClient, logger)
	regCtx, regCancel := context.WithTimeout(rootCtx, 5*time.Second)
	defer regCancel()
	info := domain.WorkerInfo{
		ID:      workerID,
		Address: addr,
		Host:    host,
		Name:    cfg.Worker.Name,
	}
	if err := registry.Register(regCtx, info, int64(cfg.Worker.LeaseTTL.Seconds())); err != nil {
		log.Fatalf("Failed to register worker: %v", err)
	}

	// 6. Block until shutdown signal
	<-rootCtx.Done()
	logger.Info("shutting down worker node gracefully")

	deregCtx, deregCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer deregCancel()
	if err := registry.Deregister(deregCtx); err != nil {
		logger.Error("failed to deregister worker", "error", err)
	}
	grpcServer.GracefulStop()

	logger.Info("worker node shut down")
}

func setupGracefulShutdown(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		slog.Info("received signal, initiating graceful shutdown", "signal", sig.String())
		cancel()
	}()
}
