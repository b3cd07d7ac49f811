package chain

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Rollup ABI JSON embedded at compile time
//
//go:embed abi/rollup.json
var rollupABIJSON string

const (
	methodCurrentEpoch = "getCurrentEpoch"
	methodProverReward = "getSpecificProverRewardsForEpoch"
	methodSharesFor    = "getSharesFor"

	wordSize = 32
)

// ErrShortResponse is returned when a call yields fewer than 32 bytes.
var ErrShortResponse = errors.New("contract returned less than one 32-byte word")

// Reader reads prover reward data from a rollup contract through eth_call.
type Reader struct {
	caller  ethereum.ContractCaller
	abi     abi.ABI
	limiter *rate.Limiter
	timeout time.Duration
	metrics *Metrics
	log     zerolog.Logger
}

// Option configures a Reader
type Option func(*Reader)

// WithLimiter throttles every call through l.
func WithLimiter(l *rate.Limiter) Option {
	return func(r *Reader) {
		r.limiter = l
	}
}

// WithTimeout bounds each call.
func WithTimeout(d time.Duration) Option {
	return func(r *Reader) {
		r.timeout = d
	}
}

// WithMetrics enables call metrics
func WithMetrics(m *Metrics) Option {
	return func(r *Reader) {
		r.metrics = m
	}
}

// WithLogger sets the logger
func WithLogger(log zerolog.Logger) Option {
	return func(r *Reader) {
		r.log = log.With().Str("component", "rollup-reader").Logger()
	}
}

// NewReader builds a Reader over any contract caller.
func NewReader(caller ethereum.ContractCaller, opts ...Option) (*Reader, error) {
	if caller == nil {
		return nil, fmt.Errorf("contract caller is required")
	}

	parsedABI, err := abi.JSON(strings.NewReader(rollupABIJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to parse rollup ABI: %w", err)
	}

	r := &Reader{
		caller: caller,
		abi:    parsedABI,
		log:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Dial connects to the first configured endpoint and returns a Reader over it
// together with a close function.
func Dial(ctx context.Context, cfg Config, log zerolog.Logger, m *Metrics) (*Reader, func(), error) {
	endpoints := cfg.Endpoints
	if len(endpoints) == 0 {
		endpoints = DefaultEndpoints
	}
	endpoint := strings.TrimSpace(endpoints[0])

	client, err := ethclient.DialContext(ctx, endpoint)
	if err != nil {
		return nil, nil, fmt.Errorf("dial rpc %s: %w", endpoint, err)
	}

	opts := []Option{WithLogger(log), WithTimeout(cfg.Timeout)}
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		opts = append(opts, WithLimiter(rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)))
	}
	if m != nil {
		opts = append(opts, WithMetrics(m))
	}

	r, err := NewReader(client, opts...)
	if err != nil {
		client.Close()
		return nil, nil, err
	}

	log.Info().
		Str("endpoint", endpoint).
		Dur("timeout", cfg.Timeout).
		Float64("requests_per_second", cfg.RequestsPerSecond).
		Msg("Rollup reader connected")

	return r, client.Close, nil
}

// Selector returns the 4-byte function selector for a rollup method.
func (r *Reader) Selector(method string) ([]byte, error) {
	m, ok := r.abi.Methods[method]
	if !ok {
		return nil, fmt.Errorf("unknown rollup method %q", method)
	}
	return m.ID, nil
}

// CurrentEpoch returns the rollup's current epoch index.
func (r *Reader) CurrentEpoch(ctx context.Context, rollup common.Address) (uint64, error) {
	v, err := r.callWord(ctx, rollup, methodCurrentEpoch)
	if err != nil {
		return 0, err
	}
	if !v.IsUint64() {
		return 0, fmt.Errorf("current epoch %s overflows uint64", v.Dec())
	}
	return v.Uint64(), nil
}

// RewardForEpoch returns the raw reward of prover for one epoch.
func (r *Reader) RewardForEpoch(ctx context.Context, rollup common.Address, epoch uint64, prover common.Address) (*big.Int, error) {
	v, err := r.callWord(ctx, rollup, methodProverReward, new(big.Int).SetUint64(epoch), prover)
	if err != nil {
		return nil, err
	}
	return v.ToBig(), nil
}

// SharesFor returns the prover's current shares.
func (r *Reader) SharesFor(ctx context.Context, rollup common.Address, prover common.Address) (*big.Int, error) {
	v, err := r.callWord(ctx, rollup, methodSharesFor, prover)
	if err != nil {
		return nil, err
	}
	return v.ToBig(), nil
}

// callWord performs an eth_call against rollup and decodes the first
// returned word as an unsigned integer.
func (r *Reader) callWord(ctx context.Context, rollup common.Address, method string, args ...any) (*uint256.Int, error) {
	data, err := r.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s calldata: %w", method, err)
	}

	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	callCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	start := time.Now()
	var word *uint256.Int
	out, err := r.caller.CallContract(callCtx, ethereum.CallMsg{To: &rollup, Data: data}, nil)
	if err == nil {
		word, err = decodeWord(out)
	}
	if r.metrics != nil {
		r.metrics.RecordCall(method, time.Since(start), err)
	}
	if err != nil {
		r.log.Debug().
			Err(err).
			Str("method", method).
			Str("rollup", rollup.Hex()).
			Msg("rollup call failed")
		return nil, fmt.Errorf("%s: %w", method, err)
	}

	return word, nil
}

func decodeWord(out []byte) (*uint256.Int, error) {
	if len(out) < wordSize {
		return nil, fmt.Errorf("%w (got %d bytes)", ErrShortResponse, len(out))
	}
	return new(uint256.Int).SetBytes(out[:wordSize]), nil
}
