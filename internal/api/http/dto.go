package http

import (
	"ddp-dispatch/internal/domain"
)

// SaveJobRequest is the Data Transfer Object for creating/updating a training job.
type SaveJobRequest struct {
	Name              string         `json:"name" validate:"required,min=1,max=128,excludesall=/,ne=.,ne=.."`
	Entrypoint        string         `json:"entrypoint" validate:"required"`
	Args              []any          `json:"args"`
	Kwargs            map[string]any `json:"kwargs"`
	CronExpr          string         `json:"cron_expr" validate:"omitempty,cron"`
	MasterPort        int            `json:"master_port" validate:"omitempty,min=1,max=65535"`
	ConcurrencyPolicy string         `json:"concurrency_policy" validate:"omitempty,oneof=Allow Forbid"`
}

// ToDomainJob converts a SaveJobRequest DTO to a domain.TrainingJob.
func (r *SaveJobRequest) ToDomainJob() *domain.TrainingJob {
	policy := domain.ConcurrencyPolicy(r.ConcurrencyPolicy)
	if policy == "" {
		policy = domain.ConcurrencyPolicyAllow
	}
	return &domain.TrainingJob{
		Name:              r.Name,
		Entrypoint:        r.Entrypoint,
		Args:              r.Args,
		Kwargs:            r.Kwargs,
		CronExpr:          r.CronExpr,
		MasterPort:        r.MasterPort,
		ConcurrencyPolicy: policy,
	}
}

// ClusterResponse lists the workers in rank order.
type ClusterResponse struct {
	WorldSize  int              `json:"world_size"`
	MasterHost string           `json:"master_host,omitempty"`
	Workers    []WorkerWithRank `json:"workers"`
}

// WorkerWithRank is a worker and the rank it would get in a run started now.
type WorkerWithRank struct {
	Rank    int    `json:"rank"`
	Address string `json:"address"`
	Host    string `json:"host"`
	ID      string `json:"id,omitempty"`
}
