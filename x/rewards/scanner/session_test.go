package scanner

import (
	"context"
	"errors"
	"io"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/compose-network/prover-rewards/x/rewards/progress"
)

var target = Target{
	Prover:   common.HexToAddress("0x0123456789abcdef0123456789abcdef01234567"),
	Contract: common.HexToAddress("0x216f071653a82ced3ef9d29f3f0c0ed7829c8f81"),
}

type fakeReader struct {
	mu          sync.Mutex
	current     uint64
	currentErr  error
	rewards     map[uint64]*big.Int
	failEpochs  map[uint64]bool
	shares      *big.Int
	sharesErr   error
	rewardCalls []uint64
}

func newFakeReader(current uint64, rewards ...int64) *fakeReader {
	r := &fakeReader{
		current:    current,
		rewards:    make(map[uint64]*big.Int),
		failEpochs: make(map[uint64]bool),
		shares:     big.NewInt(1_000_000),
	}
	for i, v := range rewards {
		r.rewards[uint64(i)] = big.NewInt(v)
	}
	return r
}

func (f *fakeReader) CurrentEpoch(context.Context, common.Address) (uint64, error) {
	return f.current, f.currentErr
}

func (f *fakeReader) RewardForEpoch(_ context.Context, _ common.Address, epoch uint64, _ common.Address) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rewardCalls = append(f.rewardCalls, epoch)
	if f.failEpochs[epoch] {
		return nil, errors.New("rpc timeout")
	}
	if v, ok := f.rewards[epoch]; ok {
		return new(big.Int).Set(v), nil
	}
	return new(big.Int), nil
}

func (f *fakeReader) SharesFor(context.Context, common.Address, common.Address) (*big.Int, error) {
	return f.shares, f.sharesErr
}

func (f *fakeReader) calls() []uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]uint64(nil), f.rewardCalls...)
}

// recordingStore wraps a store and fails or records on demand.
type recordingStore struct {
	progress.Store
	getErr error
	putErr error
	puts   []progress.Record
}

func (s *recordingStore) Get(ctx context.Context, prover, contract common.Address) (progress.Record, error) {
	if s.getErr != nil {
		return progress.Record{}, s.getErr
	}
	return s.Store.Get(ctx, prover, contract)
}

func (s *recordingStore) Put(ctx context.Context, rec progress.Record) error {
	if s.putErr != nil {
		return s.putErr
	}
	s.puts = append(s.puts, rec)
	return s.Store.Put(ctx, rec)
}

func newEngine(t *testing.T, reader ChainReader, store progress.Store, opts ...Option) *Engine {
	t.Helper()
	opts = append([]Option{WithDelay(0), WithLogger(zerolog.New(io.Discard))}, opts...)
	e, err := NewEngine(reader, store, opts...)
	require.NoError(t, err)
	return e
}

func seed(t *testing.T, store progress.Store, last int64, cumulative int64) {
	t.Helper()
	require.NoError(t, store.Put(t.Context(), progress.Record{
		Prover:           target.Prover,
		Contract:         target.Contract,
		LastEpoch:        last,
		CumulativeReward: big.NewInt(cumulative),
	}))
}

func stored(t *testing.T, store progress.Store) progress.Record {
	t.Helper()
	rec, err := store.Get(t.Context(), target.Prover, target.Contract)
	require.NoError(t, err)
	return rec
}

func TestSession_TenEpochScenario(t *testing.T) {
	reader := newFakeReader(10, 0, 0, 100, 0, 200, 0, 0, 50, 0, 70)
	store := progress.NewMemory()

	var states []State
	obs := ObserverFuncs{State: func(s State) { states = append(states, s) }}
	sess := newEngine(t, reader, store).NewSession(target, obs)

	state, err := sess.Start(t.Context())
	require.NoError(t, err)
	require.Equal(t, StateCheckpointed, state)
	require.Equal(t, []State{StateScanning, StateCheckpointed}, states)

	rec := stored(t, store)
	require.Equal(t, int64(8), rec.LastEpoch)
	require.Equal(t, "350", rec.Cumulative().String())

	snap := sess.Snapshot()
	require.Len(t, snap.Results, 9)
	require.Equal(t, uint64(8), snap.Results[8].Epoch)
	require.Equal(t, "350", snap.FinalizedTotal.String())
	require.Equal(t, Progress{Current: 9, Total: 9}, snap.Progress)
	require.Nil(t, snap.Loaded)

	require.NotNil(t, snap.Pending)
	require.True(t, snap.Pending.Pending)
	require.Equal(t, uint64(9), snap.Pending.Epoch)
	require.Equal(t, "70", snap.Pending.Reward.String())
	require.Equal(t, "420", snap.Pending.Cumulative.String())

	require.Equal(t, []uint64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, reader.calls())
	<-sess.Done()
}

func TestSession_SumExceedsFloatPrecision(t *testing.T) {
	// 2^53 + 1 cannot be represented as a float64.
	big53 := new(big.Int).Add(new(big.Int).Lsh(big.NewInt(1), 53), big.NewInt(1))
	huge := new(big.Int).Lsh(big.NewInt(1), 180)

	reader := newFakeReader(6)
	expected := new(big.Int)
	for epoch, v := range []*big.Int{big53, huge, big53, big.NewInt(3)} {
		reader.rewards[uint64(epoch)] = v
		expected.Add(expected, v)
	}

	store := progress.NewMemory()
	state, err := newEngine(t, reader, store).NewSession(target, nil).Start(t.Context())
	require.NoError(t, err)
	require.Equal(t, StateCheckpointed, state)

	rec := stored(t, store)
	require.Equal(t, int64(4), rec.LastEpoch)
	require.Zero(t, expected.Cmp(rec.CumulativeReward))
}

func TestSession_ResumeMatchesUninterruptedRun(t *testing.T) {
	rewards := []int64{5, 0, 12, 900, 1, 0, 33, 7, 8, 1000, 2, 2}
	current := uint64(len(rewards))

	full := progress.NewMemory()
	_, err := newEngine(t, newFakeReader(current, rewards...), full).NewSession(target, nil).Start(t.Context())
	require.NoError(t, err)

	const stopAt = 4
	split := progress.NewMemory()
	var sess *Session
	sess = newEngine(t, newFakeReader(current, rewards...), split).NewSession(target, ObserverFuncs{
		Epoch: func(res EpochResult, _ Progress) {
			if !res.Pending && res.Epoch == stopAt {
				sess.Cancel()
			}
		},
	})
	state, err := sess.Start(t.Context())
	require.NoError(t, err)
	require.Equal(t, StateCancelled, state)
	require.Equal(t, int64(stopAt), stored(t, split).LastEpoch)

	resumed := newEngine(t, newFakeReader(current, rewards...), split).NewSession(target, nil)
	state, err = resumed.Start(t.Context())
	require.NoError(t, err)
	require.Equal(t, StateAwaitingDecision, state)

	state, err = resumed.Resume(t.Context())
	require.NoError(t, err)
	require.Equal(t, StateCheckpointed, state)

	snap := resumed.Snapshot()
	require.NotNil(t, snap.Loaded)
	require.Equal(t, int64(stopAt), snap.Loaded.LastEpoch)
	require.Equal(t, uint64(stopAt+1), snap.Results[0].Epoch)

	a, b := stored(t, full), stored(t, split)
	require.Equal(t, a.LastEpoch, b.LastEpoch)
	require.Zero(t, a.CumulativeReward.Cmp(b.CumulativeReward))
}

func TestSession_NoFinalizedEpochs(t *testing.T) {
	t.Run("current epoch 0", func(t *testing.T) {
		reader := newFakeReader(0)
		store := &recordingStore{Store: progress.NewMemory()}

		sess := newEngine(t, reader, store).NewSession(target, nil)
		state, err := sess.Start(t.Context())
		require.NoError(t, err)
		require.Equal(t, StateCheckpointed, state)

		snap := sess.Snapshot()
		require.Empty(t, snap.Results)
		require.Nil(t, snap.Pending)
		require.Zero(t, snap.FinalizedTotal.Sign())
		require.Empty(t, reader.calls())
		require.Empty(t, store.puts)
	})

	t.Run("current epoch 1", func(t *testing.T) {
		reader := newFakeReader(1, 40)
		store := &recordingStore{Store: progress.NewMemory()}

		sess := newEngine(t, reader, store).NewSession(target, nil)
		state, err := sess.Start(t.Context())
		require.NoError(t, err)
		require.Equal(t, StateCheckpointed, state)

		snap := sess.Snapshot()
		require.Empty(t, snap.Results)
		require.Zero(t, snap.FinalizedTotal.Sign())
		require.NotNil(t, snap.Pending)
		require.Equal(t, uint64(0), snap.Pending.Epoch)
		require.Equal(t, "40", snap.Pending.Reward.String())
		require.Equal(t, []uint64{0}, reader.calls())
		require.Empty(t, store.puts)
	})
}

func TestSession_RestartDiscardsCheckpoint(t *testing.T) {
	reader := newFakeReader(10, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1)
	store := &recordingStore{Store: progress.NewMemory()}
	seed(t, store.Store, 5, 1000)

	sess := newEngine(t, reader, store).NewSession(target, nil)
	state, err := sess.Start(t.Context())
	require.NoError(t, err)
	require.Equal(t, StateAwaitingDecision, state)

	d := sess.Snapshot().Decision
	require.NotNil(t, d)
	require.Equal(t, int64(5), d.LastEpoch)
	require.Equal(t, "1000", d.Cumulative.String())
	require.Equal(t, uint64(10), d.CurrentEpoch)

	state, err = sess.Restart(t.Context())
	require.NoError(t, err)
	require.Equal(t, StateCheckpointed, state)

	require.Len(t, store.puts, 2)
	require.Equal(t, progress.NoEpoch, store.puts[0].LastEpoch)
	require.Equal(t, "0", store.puts[0].Cumulative().String())

	rec := stored(t, store)
	require.Equal(t, int64(8), rec.LastEpoch)
	require.Equal(t, "9", rec.Cumulative().String())
	require.Equal(t, uint64(0), reader.calls()[0])
}

func TestSession_UpToDateShowsPendingOnly(t *testing.T) {
	reader := newFakeReader(10)
	reader.rewards[9] = big.NewInt(25)
	store := &recordingStore{Store: progress.NewMemory()}
	seed(t, store.Store, 8, 350)

	sess := newEngine(t, reader, store).NewSession(target, nil)
	state, err := sess.Start(t.Context())
	require.NoError(t, err)
	require.Equal(t, StateCheckpointed, state)

	snap := sess.Snapshot()
	require.NotNil(t, snap.Loaded)
	require.Equal(t, int64(8), snap.Loaded.LastEpoch)
	require.Equal(t, "350", snap.FinalizedTotal.String())
	require.Empty(t, snap.Results)
	require.Equal(t, "375", snap.Pending.Cumulative.String())
	require.Equal(t, []uint64{9}, reader.calls())
	require.Empty(t, store.puts)
}

func TestSession_FailedEpochCountsAsZero(t *testing.T) {
	m := NewMetrics()
	before := testutil.ToFloat64(m.RewardReadFailures)

	reader := newFakeReader(6, 10, 10, 10, 10, 10, 10)
	reader.failEpochs[2] = true
	store := progress.NewMemory()

	sess := newEngine(t, reader, store, WithMetrics(m)).NewSession(target, nil)
	state, err := sess.Start(t.Context())
	require.NoError(t, err)
	require.Equal(t, StateCheckpointed, state)

	snap := sess.Snapshot()
	require.Equal(t, []uint64{2}, snap.FailedEpochs)
	require.True(t, snap.Results[2].Failed)
	require.Zero(t, snap.Results[2].Reward.Sign())

	rec := stored(t, store)
	require.Equal(t, int64(4), rec.LastEpoch)
	require.Equal(t, "40", rec.Cumulative().String())
	require.Equal(t, before+1, testutil.ToFloat64(m.RewardReadFailures))
}

func TestSession_CurrentEpochFailureLeavesCheckpoint(t *testing.T) {
	reader := newFakeReader(10)
	reader.currentErr = errors.New("connection refused")
	store := &recordingStore{Store: progress.NewMemory()}
	seed(t, store.Store, 3, 77)

	sess := newEngine(t, reader, store).NewSession(target, nil)
	state, err := sess.Start(t.Context())
	require.ErrorContains(t, err, "connection refused")
	require.Equal(t, StateFailed, state)

	<-sess.Done()
	require.ErrorContains(t, sess.Snapshot().Err, "read current epoch")
	require.Empty(t, store.puts)

	rec := stored(t, store)
	require.Equal(t, int64(3), rec.LastEpoch)
	require.Equal(t, "77", rec.Cumulative().String())
}

func TestSession_SharesFailureIsUnknown(t *testing.T) {
	reader := newFakeReader(3, 4)
	reader.sharesErr = errors.New("execution reverted")

	sess := newEngine(t, reader, progress.NewMemory()).NewSession(target, nil)
	state, err := sess.Start(t.Context())
	require.NoError(t, err)
	require.Equal(t, StateCheckpointed, state)
	require.Nil(t, sess.Snapshot().Shares)
}

func TestSession_CheckpointReadFailureScansFromScratch(t *testing.T) {
	reader := newFakeReader(4, 1, 2, 3)
	store := &recordingStore{Store: progress.NewMemory(), getErr: errors.New("db down")}

	sess := newEngine(t, reader, store).NewSession(target, nil)
	state, err := sess.Start(t.Context())
	require.NoError(t, err)
	require.Equal(t, StateCheckpointed, state)

	require.Len(t, store.puts, 1)
	require.Equal(t, int64(2), store.puts[0].LastEpoch)
	require.Equal(t, "6", store.puts[0].Cumulative().String())
}

func TestSession_CheckpointWriteFailureFailsSession(t *testing.T) {
	reader := newFakeReader(4, 1, 2, 3)
	store := &recordingStore{Store: progress.NewMemory(), putErr: errors.New("disk full")}

	sess := newEngine(t, reader, store).NewSession(target, nil)
	state, err := sess.Start(t.Context())
	require.ErrorContains(t, err, "disk full")
	require.Equal(t, StateFailed, state)
	require.Len(t, sess.Snapshot().Results, 3)
}

func TestSession_CancelInterruptsDelay(t *testing.T) {
	reader := newFakeReader(100)
	store := progress.NewMemory()

	firstEpoch := make(chan struct{})
	var once sync.Once
	obs := ObserverFuncs{Epoch: func(EpochResult, Progress) { once.Do(func() { close(firstEpoch) }) }}
	sess := newEngine(t, reader, store, WithDelay(time.Hour)).NewSession(target, obs)

	go func() {
		<-firstEpoch
		sess.Cancel()
	}()

	state, err := sess.Start(t.Context())
	require.NoError(t, err)
	require.Equal(t, StateCancelled, state)

	rec := stored(t, store)
	require.Equal(t, int64(0), rec.LastEpoch)
	require.Equal(t, uint64(1), sess.Snapshot().Progress.Current)
}

func TestSession_ContextCancelCheckpoints(t *testing.T) {
	reader := newFakeReader(100)
	store := progress.NewMemory()

	ctx, cancel := context.WithCancel(t.Context())
	obs := ObserverFuncs{Epoch: func(res EpochResult, _ Progress) {
		if res.Epoch == 2 {
			cancel()
		}
	}}
	sess := newEngine(t, reader, store).NewSession(target, obs)

	state, err := sess.Start(ctx)
	require.NoError(t, err)
	require.Equal(t, StateCancelled, state)
	require.Equal(t, int64(2), stored(t, store).LastEpoch)
	require.Nil(t, sess.Snapshot().Pending)
}

func TestSession_CancelWhileAwaitingDecision(t *testing.T) {
	store := &recordingStore{Store: progress.NewMemory()}
	seed(t, store.Store, 2, 10)

	sess := newEngine(t, newFakeReader(10), store).NewSession(target, nil)
	state, err := sess.Start(t.Context())
	require.NoError(t, err)
	require.Equal(t, StateAwaitingDecision, state)

	sess.Cancel()
	<-sess.Done()
	require.Equal(t, StateCancelled, sess.State())
	require.Empty(t, store.puts)

	_, err = sess.Resume(t.Context())
	require.ErrorIs(t, err, ErrNoDecisionPending)
}

func TestSession_InvalidTransitions(t *testing.T) {
	sess := newEngine(t, newFakeReader(3), progress.NewMemory()).NewSession(target, nil)

	_, err := sess.Resume(t.Context())
	require.ErrorIs(t, err, ErrNoDecisionPending)
	_, err = sess.Restart(t.Context())
	require.ErrorIs(t, err, ErrNoDecisionPending)

	_, err = sess.Start(t.Context())
	require.NoError(t, err)
	_, err = sess.Start(t.Context())
	require.ErrorIs(t, err, ErrNotIdle)
}

func TestNewEngine_RequiresDependencies(t *testing.T) {
	_, err := NewEngine(nil, progress.NewMemory())
	require.Error(t, err)
	_, err = NewEngine(newFakeReader(1), nil)
	require.Error(t, err)
}

func TestState_String(t *testing.T) {
	require.Equal(t, "awaiting_decision", StateAwaitingDecision.String())
	require.True(t, StateCancelled.Terminal())
	require.False(t, StateScanning.Terminal())
	require.Equal(t, "state(42)", State(42).String())
}

func TestFormatToken(t *testing.T) {
	v, _ := new(big.Int).SetString("123456789000000000000", 10)
	require.Equal(t, "123.456789", FormatToken(v))
	require.Equal(t, "0.000000", FormatToken(new(big.Int)))
	require.Equal(t, "1.500000", FormatToken(big.NewInt(1_500_000_000_000_000_000)))
	require.Equal(t, "-", FormatToken(nil))
	require.Equal(t, "0.000000000000000001", FormatTokenExact(big.NewInt(1)))
}
