package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix keeps settings apart from the MASTER_* rendezvous variables.
const EnvPrefix = "DDP"

// Config holds the configuration of both master and worker nodes.
// The mapstructure tags are used by Viper to unmarshal the data.
type Config struct {
	EtcdEndpoints     []string      `mapstructure:"etcd_endpoints"`
	EtcdTimeout       time.Duration `mapstructure:"etcd_timeout"`
	HttpListenAddr    string        `mapstructure:"http_listen_addr"`
	LeaderElectionTTL time.Duration `mapstructure:"leader_election_ttl"`
	MasterPort        int           `mapstructure:"master_port"`

	Worker WorkerConfig `mapstructure:"worker"`
}

// WorkerConfig holds worker node settings.
type WorkerConfig struct {
	GrpcListenAddr string `mapstructure:"grpc_listen_addr"`
	// AdvertiseHost is the host other nodes reach this worker on; empty means detect.
	AdvertiseHost string        `mapstructure:"advertise_host"`
	Name          string        `mapstructure:"name"`
	LeaseTTL      time.Duration `mapstructure:"lease_ttl"`
	// Env lists KEY=VALUE pairs added to every training function's environment.
	Env []string `mapstructure:"env"`
}

// Load reads config.yaml from the search paths (./configs and . by default)
// and DDP_-prefixed environment variables, e.g. DDP_WORKER_GRPC_LISTEN_ADDR.
func Load(searchPaths ...string) (*Config, error) {
	v := viper.New()

	v.SetDefault("etcd_endpoints", []string{"127.0.0.1:2379"})
	v.SetDefault("etcd_timeout", "5s")
	v.SetDefault("http_listen_addr", ":8080")
	v.SetDefault("leader_election_ttl", "10s")
	v.SetDefault("master_port", 23456)
	v.SetDefault("worker.grpc_listen_addr", ":8786")
	v.SetDefault("worker.advertise_host", "")
	v.SetDefault("worker.name", "")
	v.SetDefault("worker.lease_ttl", "10s")
	v.SetDefault("worker.env", []string{})

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if len(searchPaths) == 0 {
		searchPaths = []string{"./configs", "."}
	}
	for _, p := range searchPaths {
		v.AddConfigPath(p)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// A missing file is fine: defaults and env vars still apply.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
