package chain

import "time"

// DefaultEndpoints are public Sepolia RPCs used when none are configured.
var DefaultEndpoints = []string{
	"https://1rpc.io/sepolia",
	"https://ethereum-sepolia-rpc.publicnode.com",
}

// Config holds RPC settings for the rollup reader.
type Config struct {
	// Endpoints lists JSON-RPC URLs; the first one is dialed.
	Endpoints []string `mapstructure:"endpoints" yaml:"endpoints"`
	// Timeout bounds a single eth_call. Zero disables the bound.
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
	// RequestsPerSecond caps calls across all sessions. Zero means unlimited.
	RequestsPerSecond float64 `mapstructure:"requests_per_second" yaml:"requests_per_second"`
	Burst             int     `mapstructure:"burst"               yaml:"burst"`
}

func DefaultConfig() Config {
	return Config{
		Endpoints:         append([]string(nil), DefaultEndpoints...),
		Timeout:           15 * time.Second,
		RequestsPerSecond: 4,
		Burst:             1,
	}
}
