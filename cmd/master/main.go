package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	http_api "ddp-dispatch/internal/api/http"
	"ddp-dispatch/internal/config"
	"ddp-dispatch/internal/infra/etcd"
	"ddp-dispatch/internal/master"
	"ddp-dispatch/internal/scheduler"
	"ddp-dispatch/internal/tracing"
	"ddp-dispatch/internal/usecase"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// corsMiddleware wraps an http.Handler with CORS headers for local development.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*") // For local dev, allow all origins
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func main() {
	// 1. Initialize logger and tracer
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	tracerShutdown, err := tracing.InitTracer("ddp-dispatch-master", log.Writer())
	if err != nil {
		log.Fatalf("failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := tracerShutdown(context.Background()); err != nil {
			log.Printf("failed to shutdown tracer: %v", err)
		}
	}()

	// 2. Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	nodeID := uuid.New().String()
	logger.Info("starting ddp-dispatch master", "node_id", nodeID)

	// 3. Root context for lifecycle management
	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	setupGracefulShutdown(cancel)

	// 4. Init etcd client
	etcdClient, err := etcd.NewClient(cfg.EtcdEndpoints, cfg.EtcdTimeout)
	if err != nil {
		log.Fatalf("Failed to create etcd client: %v", err)
	}
	defer etcdClient.Close()
	logger.Info("connected to etcd", "endpoints", cfg.EtcdEndpoints)

	// 5. Instantiate components
	discovery := master.NewWorkerDiscovery(etcdClient, logger)
	cluster := master.NewClient(discovery, logger)
	defer cluster.Close()
	jobRepo := etcd.NewEtcdJobRepository(etcdClient, logger)
	runRepo := etcd.NewEtcdRunRepository(etcdClient, logger)
	locker := etcd.NewEtcdLocker(etcdClient)

	go discovery.WatchWorkers(rootCtx)

	runService := usecase.NewRunService(cluster, runRepo, locker, logger)
	runService.SetDefaultMasterPort(cfg.MasterPort)
	cronScheduler := scheduler.NewCronScheduler(runService, logger)
	jobService := usecase.NewJobService(jobRepo, runService, cronScheduler, logger)
	leaderManager := etcd.NewEtcdLeaderElectionManager(etcdClient, nodeID, cfg.LeaderElectionTTL, logger)
	schedulerService := usecase.NewSchedularService(leaderManager, cronScheduler, jobRepo, nodeID, logger)

	jobHandler := http_api.NewJobHandler(jobService, runService, logger)

	// 6. Register routes and metrics endpoint
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	jobHandler.RegisterRoutes(mux)

	go func() {
		if err := schedulerService.Start(rootCtx); err != nil && rootCtx.Err() == nil {
			logger.Error("scheduler service stopped", "error", err)
		}
	}()

	// 7. Start HTTP API server
	logger.Info("starting HTTP API server", "addr", cfg.HttpListenAddr)
	server := &http.Server{
		Addr:    cfg.HttpListenAddr,
		Handler: corsMiddleware(mux),
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	// 8. Block until shutdown
	<-rootCtx.Done()
	logger.Info("shutting down master gracefully")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", "error", err)
	}
	runService.Wait()

	logger.Info("master shut down")
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
