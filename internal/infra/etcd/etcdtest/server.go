// Package etcdtest runs an embedded etcd server for tests.
package etcdtest

import (
	"fmt"
	"net/url"
	"testing"
	"time"

	"github.com/phayes/freeport"
	"github.com/stretchr/testify/require"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/server/v3/embed"
)

// Start runs a single-member etcd in a temp dir and returns a client for it.
// Both are closed when the test ends.
func Start(t testing.TB) *clientv3.Client {
	t.Helper()

	ports, err := freeport.GetFreePorts(2)
	require.NoError(t, err)
	peerURL, err := url.Parse(fmt.Sprintf("http://127.0.0.1:%d", ports[0]))
	require.NoError(t, err)
	clientURL, err := url.Parse(fmt.Sprintf("http://127.0.0.1:%d", ports[1]))
	require.NoError(t, err)

	cfg := embed.NewConfig()
	cfg.Dir = t.TempDir()
	cfg.Logger = "zap"
	cfg.LogLevel = "error"
	cfg.ListenPeerUrls = []url.URL{*peerURL}
	cfg.AdvertisePeerUrls = []url.URL{*peerURL}
	cfg.ListenClientUrls = []url.URL{*clientURL}
	cfg.AdvertiseClientUrls = []url.URL{*clientURL}
	cfg.InitialCluster = cfg.InitialClusterFromName(cfg.Name)

	e, err := embed.StartEtcd(cfg)
	require.NoError(t, err)
	select {
	case <-e.Server.ReadyNotify():
	case <-time.After(60 * time.Second):
		e.Server.Stop() // trigger a shutdown
		e.Close()
		t.Fatal("embedded etcd took too long to start")
	}

	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   []string{clientURL.String()},
		DialTimeout: 5 * time.Second,
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = cli.Close()
		e.Close()
	})
	return cli
}
