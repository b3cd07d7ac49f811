package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/compose-network/prover-rewards/rewards-app/config"
	"github.com/compose-network/prover-rewards/x/rewards/scanner"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan one prover's rewards and checkpoint the result",
	RunE:  runScan,
}

func initScanFlags() {
	scanCmd.Flags().String("prover", "", "prover address (required)")
	scanCmd.Flags().String("contract", "", "contract preset name or address (default: configured default)")
	scanCmd.Flags().Bool("resume", false, "resume from the stored checkpoint without asking")
	scanCmd.Flags().Bool("restart", false, "discard the stored checkpoint and scan from epoch 0")
	scanCmd.MarkFlagsMutuallyExclusive("resume", "restart")
	_ = scanCmd.MarkFlagRequired("prover")
}

func runScan(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log := logger.With().Str("command", "scan").Logger()

	proverHex, _ := cmd.Flags().GetString("prover")
	if !common.IsHexAddress(proverHex) {
		return fmt.Errorf("invalid prover address %q", proverHex)
	}
	contractArg, _ := cmd.Flags().GetString("contract")
	contract, err := cfg.Dashboard.Resolve(contractArg)
	if err != nil {
		return err
	}
	resume, _ := cmd.Flags().GetBool("resume")
	restart, _ := cmd.Flags().GetBool("restart")

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	c, err := buildComponents(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	target := scanner.Target{Prover: common.HexToAddress(proverHex), Contract: contract}
	sess := c.engine.NewSession(target, progressObserver(log))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			log.Warn().Str("signal", sig.String()).Msg("Stopping after the current epoch")
			sess.Cancel()
		case <-sess.Done():
		}
	}()

	state, err := sess.Start(ctx)
	if err == nil && state == scanner.StateAwaitingDecision {
		state, err = decide(ctx, cmd, sess, resume, restart)
	}

	renderScan(cmd.OutOrStdout(), sess.Snapshot())
	if err != nil {
		return err
	}
	if state == scanner.StateCancelled {
		log.Info().Msg("Scan cancelled, progress checkpointed")
	}
	return nil
}

func decide(ctx context.Context, cmd *cobra.Command, sess *scanner.Session, resume, restart bool) (scanner.State, error) {
	d := sess.Snapshot().Decision
	switch {
	case resume:
		return sess.Resume(ctx)
	case restart:
		return sess.Restart(ctx)
	}

	sess.Cancel()
	fmt.Fprintf(cmd.ErrOrStderr(),
		"A checkpoint exists at epoch %d (%s STK); current epoch is %d.\nRe-run with --resume or --restart.\n",
		d.LastEpoch, scanner.FormatToken(d.Cumulative), d.CurrentEpoch)
	return scanner.StateCancelled, errors.New("a resume or restart decision is required")
}

func progressObserver(log zerolog.Logger) scanner.Observer {
	return scanner.ObserverFuncs{
		Epoch: func(res scanner.EpochResult, p scanner.Progress) {
			evt := log.Debug()
			if res.Failed {
				evt = log.Warn()
			}
			evt.
				Uint64("epoch", res.Epoch).
				Str("reward", scanner.FormatToken(res.Reward)).
				Str("cumulative", scanner.FormatToken(res.Cumulative)).
				Bool("pending", res.Pending).
				Uint64("done", p.Current).
				Uint64("total", p.Total).
				Msg("Epoch processed")
		},
	}
}

// loadConfig loads the config file and applies flag overrides, then builds the logger.
func loadConfig(cmd *cobra.Command) (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, zerolog.Logger{}, fmt.Errorf("failed to load config: %w", err)
	}
	applyFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return nil, zerolog.Logger{}, fmt.Errorf("invalid flags: %w", err)
	}
	return cfg, newLogger(cfg), nil
}
