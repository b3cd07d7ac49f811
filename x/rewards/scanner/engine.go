package scanner

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/compose-network/prover-rewards/x/rewards/progress"
)

// DefaultDelay is the pause between two epoch reads.
const DefaultDelay = 500 * time.Millisecond

// ChainReader is the subset of the rollup reader the engine depends on.
type ChainReader interface {
	CurrentEpoch(ctx context.Context, rollup common.Address) (uint64, error)
	RewardForEpoch(ctx context.Context, rollup common.Address, epoch uint64, prover common.Address) (*big.Int, error)
	SharesFor(ctx context.Context, rollup common.Address, prover common.Address) (*big.Int, error)
}

// Target identifies what a session scans.
type Target struct {
	Prover   common.Address `json:"prover"`
	Contract common.Address `json:"contract"`
}

func (t Target) String() string {
	return fmt.Sprintf("%s@%s", t.Prover.Hex(), t.Contract.Hex())
}

// Engine creates scan sessions over a shared reader and checkpoint store.
type Engine struct {
	reader  ChainReader
	store   progress.Store
	delay   time.Duration
	metrics *Metrics
	log     zerolog.Logger
	now     func() time.Time
}

// Option configures an Engine
type Option func(*Engine)

// WithDelay sets the pause between epoch reads. Zero disables it.
func WithDelay(d time.Duration) Option {
	return func(e *Engine) {
		e.delay = d
	}
}

// WithMetrics enables engine metrics
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithLogger sets the logger
func WithLogger(log zerolog.Logger) Option {
	return func(e *Engine) {
		e.log = log.With().Str("component", "scan-engine").Logger()
	}
}

// NewEngine builds an Engine.
func NewEngine(reader ChainReader, store progress.Store, opts ...Option) (*Engine, error) {
	if reader == nil {
		return nil, errors.New("chain reader is required")
	}
	if store == nil {
		return nil, errors.New("progress store is required")
	}

	e := &Engine{
		reader: reader,
		store:  store,
		delay:  DefaultDelay,
		log:    zerolog.Nop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// NewSession returns an idle session for target. obs may be nil.
func (e *Engine) NewSession(target Target, obs Observer) *Session {
	if obs == nil {
		obs = nopObserver{}
	}
	return &Session{
		engine:   e,
		target:   target,
		obs:      obs,
		log:      e.log.With().Str("prover", target.Prover.Hex()).Str("contract", target.Contract.Hex()).Logger(),
		cancelCh: make(chan struct{}),
		done:     make(chan struct{}),
		state:    StateIdle,
	}
}
