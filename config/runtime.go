package config

import (
	"os"
	"strconv"

	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
)

// ServerRuntimeConfig holds the RPC thread counts of a parameter server.
type ServerRuntimeConfig struct {
	SendThreadNum     int `envconfig:"FLAGS_rpc_send_thread_num" default:"12"`
	GetThreadNum      int `envconfig:"FLAGS_rpc_get_thread_num" default:"12"`
	PrefetchThreadNum int `envconfig:"FLAGS_rpc_prefetch_thread_num" default:"12"`
}

// The lookup of envconfig is upper case only. Servers are usually started
// with the flags spelled as below.
var runtimeFlagNames = []string{
	"FLAGS_rpc_send_thread_num",
	"FLAGS_rpc_get_thread_num",
	"FLAGS_rpc_prefetch_thread_num",
}

// LoadServerRuntimeConfig reads the thread counts from the environment.
func LoadServerRuntimeConfig() (ServerRuntimeConfig, error) {
	var c ServerRuntimeConfig
	if err := envconfig.Process("", &c); err != nil {
		return ServerRuntimeConfig{}, errors.Wrap(err, "server runtime config")
	}

	fields := []*int{&c.SendThreadNum, &c.GetThreadNum, &c.PrefetchThreadNum}
	for i, name := range runtimeFlagNames {
		value, ok := os.LookupEnv(name)
		if !ok {
			continue
		}

		n, err := strconv.Atoi(value)
		if err != nil {
			return ServerRuntimeConfig{}, errors.Wrapf(err, "parse %s", name)
		}
		*fields[i] = n
	}

	for i, n := range []int{c.SendThreadNum, c.GetThreadNum, c.PrefetchThreadNum} {
		if n < 1 {
			return ServerRuntimeConfig{}, errors.Errorf("%s must be positive, got %d",
				runtimeFlagNames[i], n)
		}
	}

	return c, nil
}

// Map returns the config keyed by flag name.
func (c ServerRuntimeConfig) Map() map[string]string {
	return map[string]string{
		runtimeFlagNames[0]: strconv.Itoa(c.SendThreadNum),
		runtimeFlagNames[1]: strconv.Itoa(c.GetThreadNum),
		runtimeFlagNames[2]: strconv.Itoa(c.PrefetchThreadNum),
	}
}
