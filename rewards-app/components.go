package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/compose-network/prover-rewards/rewards-app/config"
	"github.com/compose-network/prover-rewards/x/rewards/chain"
	"github.com/compose-network/prover-rewards/x/rewards/progress"
	"github.com/compose-network/prover-rewards/x/rewards/scanner"
)

// components are the pieces shared by the serve and scan commands.
type components struct {
	store   progress.Store
	reader  *chain.Reader
	engine  *scanner.Engine
	closers []func() error
}

func (c *components) Close() error {
	var firstErr error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func buildComponents(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*components, error) {
	c := &components{}

	store, closeStore, err := openStore(ctx, cfg.Progress, log)
	if err != nil {
		return nil, err
	}
	c.store = store
	if closeStore != nil {
		c.closers = append(c.closers, closeStore)
	}

	var chainMetrics *chain.Metrics
	var scanMetrics *scanner.Metrics
	if cfg.Metrics.Enabled {
		chainMetrics = chain.NewMetrics()
		scanMetrics = scanner.NewMetrics()
	}

	reader, closeRPC, err := chain.Dial(ctx, cfg.RPC, log, chainMetrics)
	if err != nil {
		_ = c.Close()
		return nil, err
	}
	c.reader = reader
	c.closers = append(c.closers, func() error { closeRPC(); return nil })

	opts := []scanner.Option{scanner.WithDelay(cfg.Scan.Delay), scanner.WithLogger(log)}
	if scanMetrics != nil {
		opts = append(opts, scanner.WithMetrics(scanMetrics))
	}
	engine, err := scanner.NewEngine(reader, store, opts...)
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("failed to create scan engine: %w", err)
	}
	c.engine = engine

	return c, nil
}

// openStore builds the configured progress store and its close function.
func openStore(ctx context.Context, cfg progress.Config, log zerolog.Logger) (progress.Store, func() error, error) {
	switch cfg.Store {
	case progress.KindMemory:
		log.Warn().Msg("Using in-memory progress store, checkpoints are lost on exit")
		return progress.NewMemory(), nil, nil
	case progress.KindRemote:
		client, err := progress.NewHTTPClient(cfg.RemoteURL, nil, log)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create checkpoint client: %w", err)
		}
		return client, nil, nil
	default:
		s, err := progress.OpenSQL(ctx, cfg.Database, log)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open progress store: %w", err)
		}
		return s, s.Close, nil
	}
}
