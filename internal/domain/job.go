package domain

import (
	"fmt"
	"strings"
	"time"
)

// ConcurrencyPolicy defines how overlapping runs of the same job are handled.
type ConcurrencyPolicy string

const (
	ConcurrencyPolicyAllow  ConcurrencyPolicy = "Allow"
	ConcurrencyPolicyForbid ConcurrencyPolicy = "Forbid"
)

// TrainingJob is a stored definition of a distributed training launch.
type TrainingJob struct {
	ID                string            `json:"id"`
	Name              string            `json:"name"`
	Entrypoint        string            `json:"entrypoint"`
	Args              []any             `json:"args,omitempty"`
	Kwargs            map[string]any    `json:"kwargs,omitempty"`
	CronExpr          string            `json:"cron_expr,omitempty"` // empty means launched on demand only
	MasterPort        int               `json:"master_port,omitempty"`
	ConcurrencyPolicy ConcurrencyPolicy `json:"concurrency_policy,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

// ValidateJobName rejects names that are not a single key segment.
func ValidateJobName(name string) error {
	if name == "" {
		return fmt.Errorf("job name cannot be empty")
	}
	if name == "." || name == ".." || strings.Contains(name, "/") {
		return fmt.Errorf("invalid job name %q", name)
	}
	return nil
}

// Validate checks if the job definition is valid and fills in defaults.
func (j *TrainingJob) Validate() error {
	if err := ValidateJobName(j.Name); err != nil {
		return err
	}
	if j.Entrypoint == "" {
		return fmt.Errorf("entrypoint cannot be empty for job %s", j.Name)
	}
	if j.MasterPort < 0 || j.MasterPort > 65535 {
		return fmt.Errorf("invalid master port %d", j.MasterPort)
	}
	switch j.ConcurrencyPolicy {
	case "":
		j.ConcurrencyPolicy = ConcurrencyPolicyAllow
	case ConcurrencyPolicyAllow, ConcurrencyPolicyForbid:
	default:
		return fmt.Errorf("invalid concurrency policy: %s", j.ConcurrencyPolicy)
	}
	return nil
}

// Scheduled reports whether the job is launched on a cron schedule.
func (j *TrainingJob) Scheduled() bool {
	return j.CronExpr != ""
}
