package dispatch

import (
	"context"
	"fmt"
	"sort"
	"testing"

	"ddp-dispatch/internal/domain"

	"pgregory.net/rapid"
)

func drawRegistry(t *rapid.T) domain.SchedulerInfo {
	hosts := rapid.SliceOfNDistinct(
		rapid.StringMatching(`[0-9]{1,3}\.[0-9]{1,3}\.[0-9]{1,3}\.[0-9]{1,3}`),
		1, 32, rapid.ID[string],
	).Draw(t, "hosts")
	info := domain.SchedulerInfo{Workers: make(map[string]domain.WorkerInfo, len(hosts))}
	for _, h := range hosts {
		port := rapid.IntRange(1024, 65535).Draw(t, "port")
		addr := fmt.Sprintf("tcp://%s:%d", h, port)
		info.Workers[addr] = domain.WorkerInfo{Address: addr, Host: h}
	}
	return info
}

// For any registry, a worker's rank is the index of its address in sorted order.
func TestProperty_RankIsSortedIndex(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		info := drawRegistry(t)

		addrs := make([]string, 0, len(info.Workers))
		for a := range info.Workers {
			addrs = append(addrs, a)
		}
		sort.Strings(addrs)

		plan := Plan(info)
		if len(plan) != len(addrs) {
			t.Fatalf("plan has %d ranks, registry has %d workers", len(plan), len(addrs))
		}
		for i, a := range plan {
			if a.Rank != i || a.Address != addrs[i] {
				t.Fatalf("rank %d assigned to %s, want %s", a.Rank, a.Address, addrs[i])
			}
		}
	})
}

// The master host is always the host of the smallest address, and every
// submission carries the same master and a world size equal to the registry size.
func TestProperty_MasterAndWorldSize(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		info := drawRegistry(t)
		client := &fakeClient{info: info}

		futures, err := Submit(context.Background(), client, "train", domain.Call{})
		if err != nil {
			t.Fatalf("submit: %v", err)
		}
		if len(futures) != len(info.Workers) {
			t.Fatalf("got %d futures for %d workers", len(futures), len(info.Workers))
		}

		smallest := SortedAddresses(info)[0]
		want := info.Workers[smallest].Host
		host, err := MasterHost(info)
		if err != nil || host != want {
			t.Fatalf("master host %q (%v), want %q", host, err, want)
		}
		for _, sub := range client.submitted {
			if sub.inv.MasterAddr != want {
				t.Fatalf("rank %d told master %q, want %q", sub.inv.Rank, sub.inv.MasterAddr, want)
			}
			if sub.inv.WorldSize != len(info.Workers) {
				t.Fatalf("rank %d told world size %d, want %d", sub.inv.Rank, sub.inv.WorldSize, len(info.Workers))
			}
			if sub.inv.MasterPort != DefaultMasterPort {
				t.Fatalf("rank %d told port %d", sub.inv.Rank, sub.inv.MasterPort)
			}
		}
	})
}
