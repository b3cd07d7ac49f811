package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/compose-network/prover-rewards/log"
	"github.com/compose-network/prover-rewards/rewards-app/config"
	"github.com/compose-network/prover-rewards/x/rewards/progress"
)

const defaultConfigPath = "rewards-app/configs/config.yaml"

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "prover-rewards",
		Short: "Prover Rewards Tracker",
		Long:  banner + "\n\nScans per-epoch prover rewards on a rollup contract and checkpoints the running total.",
		RunE:  runServe,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API (checkpoints, scan sessions, metrics)",
		RunE:  runServe,
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run:   runVersion,
	}

	configCmd = &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		RunE:  runConfig,
	}
)

const banner = `
 ___  ___  _____   _____ ___   ___ _____      ___   ___ ___  ___
| _ \| _ \/ _ \ \ / / __| _ \ | _ \ __\ \    / /_\ | _ \   \/ __|
|  _/|   / (_) \ V /| _||   / |   / _| \ \/\/ / _ \|   / |) \__ \
|_|  |_|_\\___/ \_/ |___|_|_\ |_|_\___| \_/\_/_/ \_\_|_\___/|___/`

func main() {
	if err := execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func execute() error {
	initCommands()
	return rootCmd.Execute()
}

func initCommands() {
	cobra.OnInitialize(initConfig)

	// Add subcommands
	rootCmd.AddCommand(serveCmd, scanCmd, versionCmd, configCmd)
	initScanFlags()

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", defaultConfigPath, "config file path")
	rootCmd.PersistentFlags().String("log-level", "", "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-pretty", false, "enable pretty logging")

	// Server flags
	rootCmd.PersistentFlags().String("listen-addr", "", "HTTP API listen address")

	// Chain flags
	rootCmd.PersistentFlags().StringSlice("rpc", nil, "JSON-RPC endpoint(s); the first is used")
	rootCmd.PersistentFlags().Duration("scan-delay", 0, "pause between epoch reads")

	// Store flags
	rootCmd.PersistentFlags().String("store", "", "progress store (sql, memory, remote)")
	rootCmd.PersistentFlags().String("database-url", "", "progress database DSN")

	// Metrics flags
	rootCmd.PersistentFlags().Bool("metrics", false, "enable metrics")
}

func initConfig() {
	if cfgFile == "" {
		cfgFile = defaultConfigPath
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	return log.New(cfg.Log.Level, cfg.Log.Pretty).Logger
}

func runServe(cmd *cobra.Command, _ []string) error {
	fmt.Println(banner)
	fmt.Println()

	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger.Info().
		Str("version", Version).
		Str("build_time", BuildTime).
		Str("git_commit", GitCommit).
		Str("go_version", runtime.Version()).
		Msg("Build information")

	logger.Info().
		Str("config_file", cfgFile).
		Str("listen_addr", cfg.API.ListenAddr).
		Str("store", string(cfg.Progress.Store)).
		Strs("rpc_endpoints", cfg.RPC.Endpoints).
		Dur("scan_delay", cfg.Scan.Delay).
		Bool("metrics_enabled", cfg.Metrics.Enabled).
		Str("log_level", cfg.Log.Level).
		Msg("Configuration loaded")

	application, err := NewApp(cmd.Context(), cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	return application.Run(cmd.Context())
}

func runVersion(*cobra.Command, []string) {
	fmt.Println(banner)
	fmt.Println()
	fmt.Printf("Prover Rewards Tracker\n")
	fmt.Printf("Version:    %s\n", Version)
	fmt.Printf("Build Time: %s\n", BuildTime)
	fmt.Printf("Git Commit: %s\n", GitCommit)
	fmt.Printf("Go Version: %s\n", runtime.Version())
	fmt.Printf("OS/Arch:    %s/%s\n", runtime.GOOS, runtime.GOARCH)
}

func runConfig(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	applyFlags(cmd, cfg)

	enc := yaml.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(cfg)
}

func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()

	if flags.Changed("log-level") {
		cfg.Log.Level, _ = flags.GetString("log-level")
	}
	if flags.Changed("log-pretty") {
		cfg.Log.Pretty, _ = flags.GetBool("log-pretty")
	}

	if flags.Changed("listen-addr") {
		cfg.API.ListenAddr, _ = flags.GetString("listen-addr")
	}

	if flags.Changed("rpc") {
		cfg.RPC.Endpoints, _ = flags.GetStringSlice("rpc")
	}
	if flags.Changed("scan-delay") {
		cfg.Scan.Delay, _ = flags.GetDuration("scan-delay")
	}

	if flags.Changed("store") {
		store, _ := flags.GetString("store")
		cfg.Progress.Store = progress.Kind(store)
	}
	if flags.Changed("database-url") {
		cfg.Progress.Database.DSN, _ = flags.GetString("database-url")
	}

	if flags.Changed("metrics") {
		cfg.Metrics.Enabled, _ = flags.GetBool("metrics")
	}
}
