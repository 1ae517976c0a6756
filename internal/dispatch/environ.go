package dispatch

import (
	"os"
	"sort"
)

// Rendezvous environment variables read by torch.distributed.
const (
	EnvMasterAddr = "MASTER_ADDR"
	EnvMasterPort = "MASTER_PORT"
	EnvRank       = "RANK"
	EnvWorldSize  = "WORLD_SIZE"
)

// Environ is a set of environment variables.
type Environ interface {
	Setenv(key, value string) error
	Getenv(key string) string
	// Environ returns the variables as KEY=VALUE pairs.
	Environ() []string
}

// Env is an in-memory Environ, one per dispatched invocation.
type Env map[string]string

func (e Env) Setenv(key, value string) error {
	e[key] = value
	return nil
}

func (e Env) Getenv(key string) string {
	return e[key]
}

func (e Env) Environ() []string {
	keys := make([]string, 0, len(e))
	for k := range e {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+e[k])
	}
	return pairs
}

type osEnviron struct{}

// OSEnviron is the process environment. Sharing it between concurrent
// dispatches makes them overwrite each other's rendezvous variables.
var OSEnviron Environ = osEnviron{}

func (osEnviron) Setenv(key, value string) error { return os.Setenv(key, value) }
func (osEnviron) Getenv(key string) string        { return os.Getenv(key) }
func (osEnviron) Environ() []string               { return os.Environ() }
