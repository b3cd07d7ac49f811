package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	apisrv "github.com/compose-network/prover-rewards/server/api"
	"github.com/compose-network/prover-rewards/x/rewards/chain"
	"github.com/compose-network/prover-rewards/x/rewards/dashboard"
	"github.com/compose-network/prover-rewards/x/rewards/progress"
	"github.com/compose-network/prover-rewards/x/rewards/scanner"
)

// Config holds the complete application configuration
type Config struct {
	API       apisrv.Config    `mapstructure:"api"       yaml:"api"`
	Metrics   MetricsConfig    `mapstructure:"metrics"   yaml:"metrics"`
	Log       LogConfig        `mapstructure:"log"       yaml:"log"`
	RPC       chain.Config     `mapstructure:"rpc"       yaml:"rpc"`
	Progress  progress.Config  `mapstructure:"progress"  yaml:"progress"`
	Scan      ScanConfig       `mapstructure:"scan"      yaml:"scan"`
	Dashboard dashboard.Config `mapstructure:"dashboard" yaml:"dashboard"`
}

// MetricsConfig holds metrics configuration
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled" env:"METRICS_ENABLED"`
	Path    string `mapstructure:"path"    yaml:"path"    env:"METRICS_PATH"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"  env:"LOG_LEVEL"`
	Pretty bool   `mapstructure:"pretty" yaml:"pretty" env:"LOG_PRETTY"`
}

// ScanConfig holds scan engine settings
type ScanConfig struct {
	// Delay is the pause between two epoch reads of one session.
	Delay time.Duration `mapstructure:"delay" yaml:"delay" env:"SCAN_DELAY"`
}

// Load loads configuration from file and environment. A missing file is not
// an error; defaults and environment variables still apply.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, statErr := os.Stat(configPath); statErr == nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyEnvAliases(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// applyEnvAliases honours the conventional variables used by hosting platforms.
func applyEnvAliases(cfg *Config) {
	if dsn := strings.TrimSpace(os.Getenv("DATABASE_URL")); dsn != "" {
		cfg.Progress.Database.DSN = dsn
		if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
			cfg.Progress.Database.Backend = progress.BackendPostgres
		}
	}
	if rpc := strings.TrimSpace(os.Getenv("RPC_URL")); rpc != "" {
		cfg.RPC.Endpoints = []string{rpc}
	}
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	api := apisrv.DefaultConfig()
	v.SetDefault("api.listen_addr", api.ListenAddr)
	v.SetDefault("api.read_header_timeout", api.ReadHeaderTimeout)
	v.SetDefault("api.read_timeout", api.ReadTimeout)
	v.SetDefault("api.write_timeout", api.WriteTimeout)
	v.SetDefault("api.idle_timeout", api.IdleTimeout)
	v.SetDefault("api.max_header_bytes", api.MaxHeaderBytes)
	v.SetDefault("api.shutdown_timeout", api.ShutdownTimeout)
	v.SetDefault("api.cors", api.CORS)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	rpc := chain.DefaultConfig()
	v.SetDefault("rpc.endpoints", rpc.Endpoints)
	v.SetDefault("rpc.timeout", rpc.Timeout)
	v.SetDefault("rpc.requests_per_second", rpc.RequestsPerSecond)
	v.SetDefault("rpc.burst", rpc.Burst)

	store := progress.DefaultConfig()
	v.SetDefault("progress.store", string(store.Store))
	v.SetDefault("progress.remote_url", "")
	v.SetDefault("progress.database.backend", string(store.Database.Backend))
	v.SetDefault("progress.database.dsn", store.Database.DSN)
	v.SetDefault("progress.database.max_open_conns", store.Database.MaxOpenConns)
	v.SetDefault("progress.database.conn_max_lifetime", store.Database.ConnMaxLifetime)
	v.SetDefault("progress.database.skip_migrations", false)

	v.SetDefault("scan.delay", scanner.DefaultDelay)

	dash := dashboard.DefaultConfig()
	contracts := make([]map[string]string, 0, len(dash.Contracts))
	for _, c := range dash.Contracts {
		contracts = append(contracts, map[string]string{"name": c.Name, "label": c.Label, "address": c.Address})
	}
	v.SetDefault("dashboard.contracts", contracts)
	v.SetDefault("dashboard.default_contract", dash.DefaultContract)
	v.SetDefault("dashboard.max_retained", dash.MaxRetained)
	v.SetDefault("dashboard.decision_timeout", dash.DecisionTimeout)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := c.API.Validate(); err != nil {
		return err
	}
	if err := c.validateMetrics(); err != nil {
		return err
	}
	if err := c.validateRPC(); err != nil {
		return err
	}
	if err := c.Progress.Validate(); err != nil {
		return err
	}
	if c.Scan.Delay < 0 {
		return fmt.Errorf("scan.delay must not be negative")
	}
	if err := c.Dashboard.Validate(); err != nil {
		return fmt.Errorf("dashboard.%w", err)
	}
	return nil
}

func (c *Config) validateMetrics() error {
	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with '/', got %q", c.Metrics.Path)
	}
	return nil
}

func (c *Config) validateRPC() error {
	if len(c.RPC.Endpoints) == 0 || strings.TrimSpace(c.RPC.Endpoints[0]) == "" {
		return fmt.Errorf("rpc.endpoints must list at least one endpoint")
	}
	if c.RPC.RequestsPerSecond < 0 {
		return fmt.Errorf("rpc.requests_per_second must not be negative")
	}
	if c.RPC.Timeout < 0 {
		return fmt.Errorf("rpc.timeout must not be negative")
	}
	return nil
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		API: apisrv.DefaultConfig(),
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Log: LogConfig{
			Level:  "info",
			Pretty: false,
		},
		RPC:       chain.DefaultConfig(),
		Progress:  progress.DefaultConfig(),
		Scan:      ScanConfig{Delay: scanner.DefaultDelay},
		Dashboard: dashboard.DefaultConfig(),
	}
}
