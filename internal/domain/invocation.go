package domain

import (
	"fmt"
)

// Invocation is everything a worker needs to join one training run.
// It is fully built before submission and never modified afterwards.
type Invocation struct {
	// RunID tells apart runs that share a master endpoint.
	RunID      string         `json:"run_id" validate:"required"`
	Entrypoint string         `json:"entrypoint" validate:"required"`
	MasterAddr string         `json:"master_addr" validate:"required"`
	MasterPort int            `json:"master_port" validate:"gt=0,lte=65535"`
	Rank       int            `json:"rank" validate:"gte=0,ltfield=WorldSize"`
	WorldSize  int            `json:"world_size" validate:"gt=0"`
	Args       []any          `json:"args,omitempty"`
	Kwargs     map[string]any `json:"kwargs,omitempty"`
}

// Rendezvous returns the process group coordinates carried by the invocation.
func (i Invocation) Rendezvous() Rendezvous {
	return Rendezvous{
		RunID:      i.RunID,
		MasterAddr: i.MasterAddr,
		MasterPort: i.MasterPort,
		Rank:       i.Rank,
		WorldSize:  i.WorldSize,
	}
}

// Rendezvous identifies a process group and this member's place in it.
type Rendezvous struct {
	RunID      string
	MasterAddr string
	MasterPort int
	Rank       int
	WorldSize  int
}

// Endpoint is the shared master address and port, host:port.
func (r Rendezvous) Endpoint() string {
	return fmt.Sprintf("%s:%d", r.MasterAddr, r.MasterPort)
}
