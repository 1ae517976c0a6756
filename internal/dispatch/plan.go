package dispatch

import (
	"errors"
	"sort"

	"ddp-dispatch/internal/domain"
)

// DefaultMasterPort is the rendezvous port every rank is told to use.
const DefaultMasterPort = 23456

// ErrNoWorkers is returned when the cluster has no registered workers.
var ErrNoWorkers = errors.New("no workers registered")

// Assignment pins one rank of a run to a worker.
type Assignment struct {
	Rank    int
	Address string
	Host    string
}

// SortedAddresses returns the worker addresses in lexicographic order. The
// position of an address in this slice is the rank of that worker.
func SortedAddresses(info domain.SchedulerInfo) []string {
	addrs := make([]string, 0, len(info.Workers))
	for addr := range info.Workers {
		addrs = append(addrs, addr)
	}
	sort.Strings(addrs)
	return addrs
}

// MasterHost returns the host of the lexicographically smallest worker address.
func MasterHost(info domain.SchedulerInfo) (string, error) {
	addrs := SortedAddresses(info)
	if len(addrs) == 0 {
		return "", ErrNoWorkers
	}
	return info.Workers[addrs[0]].Host, nil
}

// Plan assigns ranks 0..N-1 to the workers in sorted address order.
func Plan(info domain.SchedulerInfo) []Assignment {
	addrs := SortedAddresses(info)
	plan := make([]Assignment, len(addrs))
	for rank, addr := range addrs {
		plan[rank] = Assignment{
			Rank:    rank,
			Address: addr,
			Host:    info.Workers[addr].Host,
		}
	}
	return plan
}
