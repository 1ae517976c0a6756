package domain

// WorkerInfo describes one registered worker node.
type WorkerInfo struct {
	ID      string `json:"id"`
	Address string `json:"address"` // network location, e.g. tcp://10.0.0.4:8786
	Host    string `json:"host"`
	Name    string `json:"name,omitempty"`
}

// SchedulerInfo is a snapshot of the cluster's worker registry, keyed by worker address.
type SchedulerInfo struct {
	Workers map[string]WorkerInfo `json:"workers"`
}
