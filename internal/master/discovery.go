package master

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"ddp-dispatch/internal/domain"

	clientv3 "go.etcd.io/etcd/client/v3"
)

const (
	// WorkerRegistryPrefix is the etcd prefix where workers register themselves.
	WorkerRegistryPrefix = "/ddp/workers/"
)

// WorkerDiscovery tracks the workers registered in etcd.
type WorkerDiscovery struct {
	client  *clientv3.Client
	logger  *slog.Logger
	workers map[string]domain.WorkerInfo // etcd key -> worker
	mu      sync.RWMutex
}

// NewWorkerDiscovery creates a new discovery service.
func NewWorkerDiscovery(client *clientv3.Client, logger *slog.Logger) *WorkerDiscovery {
	return &WorkerDiscovery{
		client:  client,
		logger:  logger.With("component", "worker-discovery"),
		workers: make(map[string]domain.WorkerInfo),
	}
}

// WatchWorkers starts watching etcd for worker registrations and deregistrations.
// This is a blocking call and should be run in a goroutine.
func (d *WorkerDiscovery) WatchWorkers(ctx context.Context) {
	d.logger.Info("starting to watch for workers")

	rev, err := d.loadInitialWorkers(ctx)
	if err != nil {
		d.logger.Error("failed to perform initial worker load", "error", err)
	}

	opts := []clientv3.OpOption{clientv3.WithPrefix()}
	if rev > 0 {
		opts = append(opts, clientv3.WithRev(rev+1))
	}
	watchChan := d.client.Watch(ctx, WorkerRegistryPrefix, opts...)

	for watchResp := range watchChan {
		for _, event := range watchResp.Events {
			key := string(event.Kv.Key)

			d.mu.Lock()
			switch event.Type {
			case clientv3.EventTypePut:
				w, err := decodeWorker(event.Kv.Value)
				if err != nil {
					d.logger.Warn("ignoring malformed worker registration", "key", key, "error", err)
					break
				}
				if _, ok := d.workers[key]; !ok {
					d.logger.Info("new worker discovered", "id", w.ID, "addr", w.Address, "host", w.Host)
				}
				d.workers[key] = w
			case clientv3.EventTypeDelete:
				d.logger.Info("worker deregistered", "key", key, "addr", d.workers[key].Address)
				delete(d.workers, key)
			}
			d.mu.Unlock()
		}
	}
	d.logger.Info("stopped watching for workers")
}

func (d *WorkerDiscovery) loadInitialWorkers(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	resp, err := d.client.Get(ctx, WorkerRegistryPrefix, clientv3.WithPrefix())
	if err != nil {
		return 0, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	for _, kv := range resp.Kvs {
		w, err := decodeWorker(kv.Value)
		if err != nil {
			d.logger.Warn("ignoring malformed worker registration", "key", string(kv.Key), "error", err)
			continue
		}
		d.logger.Info("found existing worker", "id", w.ID, "addr", w.Address)
		d.workers[string(kv.Key)] = w
	}
	return resp.Header.Revision, nil
}

func decodeWorker(value []byte) (domain.WorkerInfo, error) {
	var w domain.WorkerInfo
	if err := json.Unmarshal(value, &w); err != nil {
		return w, err
	}
	if w.Address == "" {
		return w, fmt.Errorf("worker %q has no address", w.ID)
	}
	return w, nil
}

// SchedulerInfo returns a snapshot of the registered workers keyed by address.
func (d *WorkerDiscovery) SchedulerInfo() domain.SchedulerInfo {
	d.mu.RLock()
	defer d.mu.RUnlock()

	info := domain.SchedulerInfo{Workers: make(map[string]domain.WorkerInfo, len(d.workers))}
	for _, w := range d.workers {
		info.Workers[w.Address] = w
	}
	return info
}
