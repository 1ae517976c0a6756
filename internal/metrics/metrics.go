package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HttpRequestsTotal counts HTTP API requests.
	HttpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of http requests handled by the service.",
		},
		[]string{"path", "method", "code"},
	)

	// InvocationsSubmitted counts invocations sent from the master to workers.
	InvocationsSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ddp_invocations_submitted_total",
			Help: "Total number of per-rank invocations submitted to workers.",
		},
		[]string{"entrypoint"},
	)

	// RunsTotal counts cluster-wide training runs by outcome.
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ddp_runs_total",
			Help: "Total number of distributed training runs.",
		},
		[]string{"job_name", "status"},
	)

	// WorldSize is the world size of the latest run of each job.
	WorldSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ddp_run_world_size",
			Help: "Number of ranks in the latest run of a job.",
		},
		[]string{"job_name"},
	)

	// RankExecutionsTotal counts entrypoint executions on a worker.
	RankExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ddp_rank_executions_total",
			Help: "Total number of training function executions on this worker.",
		},
		[]string{"entrypoint", "status"},
	)

	// IsLeader marks whether this master currently runs the scheduler.
	IsLeader = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "is_leader",
			Help: "Is this node currently the leader. 1 if leader, 0 otherwise.",
		},
		[]string{"node_id"},
	)
)
