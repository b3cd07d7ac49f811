package scanner

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/compose-network/prover-rewards/x/rewards/progress"
)

// State is the lifecycle position of a Session.
type State int

const (
	StateIdle State = iota
	StateScanning
	StateAwaitingDecision
	StateCheckpointed
	StateCancelled
	StateFailed
)

var stateNames = [...]string{
	StateIdle:             "idle",
	StateScanning:         "scanning",
	StateAwaitingDecision: "awaiting_decision",
	StateCheckpointed:     "checkpointed",
	StateCancelled:        "cancelled",
	StateFailed:           "failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// MarshalText renders the state name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name.
func (s *State) UnmarshalText(text []byte) error {
	for i, name := range stateNames {
		if name == string(text) {
			*s = State(i)
			return nil
		}
	}
	return fmt.Errorf("unknown scan state %q", text)
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == StateCheckpointed || s == StateCancelled || s == StateFailed
}

var (
	ErrNotIdle           = errors.New("session already started")
	ErrNoDecisionPending = errors.New("session is not awaiting a decision")
)

// EpochResult is one row of scan output.
type EpochResult struct {
	Epoch      uint64   `json:"epoch"`
	Reward     *big.Int `json:"reward"`
	Cumulative *big.Int `json:"cumulative"`
	// Pending marks the not yet finalized epoch shown for display only.
	Pending bool `json:"pending"`
	// Failed marks an epoch whose reward read failed and was counted as zero.
	Failed bool `json:"failed"`
}

// Decision describes the resume-or-restart fork offered when a checkpoint exists.
type Decision struct {
	LastEpoch    int64    `json:"last_epoch"`
	Cumulative   *big.Int `json:"cumulative"`
	CurrentEpoch uint64   `json:"current_epoch"`
}

// Progress counts epochs scanned so far against the epochs in range.
type Progress struct {
	Current uint64 `json:"current"`
	Total   uint64 `json:"total"`
}

// Summary is the checkpoint a scan started from.
type Summary struct {
	LastEpoch  int64    `json:"last_epoch"`
	Cumulative *big.Int `json:"cumulative"`
}

// Snapshot is a point-in-time copy of a session. Amounts are shared with the
// session and must not be modified.
type Snapshot struct {
	Target         Target        `json:"target"`
	State          State         `json:"state"`
	Shares         *big.Int      `json:"shares"`
	CurrentEpoch   uint64        `json:"current_epoch"`
	Loaded         *Summary      `json:"loaded,omitempty"`
	Results        []EpochResult `json:"results"`
	Pending        *EpochResult  `json:"pending,omitempty"`
	FinalizedTotal *big.Int      `json:"finalized_total"`
	Progress       Progress      `json:"progress"`
	FailedEpochs   []uint64      `json:"failed_epochs"`
	Decision       *Decision     `json:"decision,omitempty"`
	Err            error         `json:"-"`
	StartedAt      time.Time     `json:"started_at"`
	FinishedAt     time.Time     `json:"finished_at"`
}

// Session is a single scan of one target. It is driven by Start and, when a
// checkpoint exists, by Resume or Restart. Cancel may be called from any
// goroutine; it takes effect between two epochs.
type Session struct {
	engine *Engine
	target Target
	obs    Observer
	log    zerolog.Logger

	cancelOnce sync.Once
	cancelCh   chan struct{}
	doneOnce   sync.Once
	done       chan struct{}

	mu           sync.RWMutex
	state        State
	shares       *big.Int
	currentEpoch uint64
	record       progress.Record
	loaded       *Summary
	results      []EpochResult
	pending      *EpochResult
	total        *big.Int
	progress     Progress
	failed       []uint64
	decision     *Decision
	err          error
	startedAt    time.Time
	finishedAt   time.Time
}

// Target returns what the session scans.
func (s *Session) Target() Target {
	return s.target
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Done is closed once the session reaches a terminal state.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Cancel requests the scan to stop. An in-flight read completes first and
// progress made so far is checkpointed.
func (s *Session) Cancel() {
	s.cancelOnce.Do(func() { close(s.cancelCh) })

	s.mu.Lock()
	st := s.state
	s.mu.Unlock()
	if st == StateIdle || st == StateAwaitingDecision {
		s.finishFrom(st, StateCancelled, nil)
	}
}

// Start reads the chain and the stored checkpoint and either completes the
// scan or stops in StateAwaitingDecision.
func (s *Session) Start(ctx context.Context) (State, error) {
	if !s.transition(StateIdle, StateScanning) {
		return s.State(), ErrNotIdle
	}
	e := s.engine

	s.mu.Lock()
	s.startedAt = e.now()
	s.mu.Unlock()

	shares, err := e.reader.SharesFor(ctx, s.target.Contract, s.target.Prover)
	if err != nil {
		s.log.Warn().Err(err).Msg("Failed to read shares, reporting unknown")
		shares = nil
	}

	current, err := e.reader.CurrentEpoch(ctx, s.target.Contract)
	if err != nil {
		return s.finish(StateFailed, fmt.Errorf("read current epoch: %w", err))
	}
	boundary := finalizationBoundary(current)

	rec, err := e.store.Get(ctx, s.target.Prover, s.target.Contract)
	if err != nil {
		s.log.Warn().Err(err).Msg("Failed to read checkpoint, scanning from scratch")
		rec = progress.DefaultRecord(s.target.Prover, s.target.Contract)
	}

	s.mu.Lock()
	s.shares = shares
	s.currentEpoch = current
	s.record = rec
	s.total = rec.Cumulative()
	s.mu.Unlock()

	s.log.Info().
		Uint64("current_epoch", current).
		Int64("finalization_boundary", boundary).
		Int64("last_epoch", rec.LastEpoch).
		Msg("Scan started")

	if rec.LastEpoch >= boundary {
		s.setLoaded(rec)
		if current > 0 && !s.stopped(ctx) {
			s.fetchPending(ctx, current-1, rec.Cumulative())
		}
		return s.finish(StateCheckpointed, nil)
	}

	if rec.HasProgress() {
		s.mu.Lock()
		s.decision = &Decision{
			LastEpoch:    rec.LastEpoch,
			Cumulative:   rec.Cumulative(),
			CurrentEpoch: current,
		}
		s.mu.Unlock()
		if !s.transition(StateScanning, StateAwaitingDecision) {
			return s.State(), nil
		}
		if s.stopped(ctx) {
			return s.finishFrom(StateAwaitingDecision, StateCancelled, nil)
		}
		return StateAwaitingDecision, nil
	}

	return s.scan(ctx, 0, new(big.Int))
}

// Resume continues from the stored checkpoint.
func (s *Session) Resume(ctx context.Context) (State, error) {
	if !s.transition(StateAwaitingDecision, StateScanning) {
		return s.State(), ErrNoDecisionPending
	}

	s.mu.RLock()
	rec := s.record
	s.mu.RUnlock()

	s.setLoaded(rec)
	s.log.Info().Int64("last_epoch", rec.LastEpoch).Msg("Resuming from checkpoint")
	return s.scan(ctx, uint64(rec.LastEpoch+1), rec.Cumulative())
}

// Restart discards the stored checkpoint and scans from epoch 0.
func (s *Session) Restart(ctx context.Context) (State, error) {
	if !s.transition(StateAwaitingDecision, StateScanning) {
		return s.State(), ErrNoDecisionPending
	}
	e := s.engine

	reset := progress.DefaultRecord(s.target.Prover, s.target.Contract)
	err := e.store.Put(ctx, reset)
	e.metrics.recordCheckpoint(err)
	if err != nil {
		return s.finish(StateFailed, fmt.Errorf("reset checkpoint: %w", err))
	}

	s.mu.Lock()
	s.record = reset
	s.total = new(big.Int)
	s.mu.Unlock()

	s.log.Info().Msg("Checkpoint reset, scanning from epoch 0")
	return s.scan(ctx, 0, new(big.Int))
}

// Snapshot returns a copy of the session's observable state.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Target:         s.target,
		State:          s.state,
		Shares:         s.shares,
		CurrentEpoch:   s.currentEpoch,
		Loaded:         s.loaded,
		Results:        append([]EpochResult(nil), s.results...),
		FinalizedTotal: s.total,
		Progress:       s.progress,
		FailedEpochs:   append([]uint64(nil), s.failed...),
		Decision:       s.decision,
		Err:            s.err,
		StartedAt:      s.startedAt,
		FinishedAt:     s.finishedAt,
	}
	if s.pending != nil {
		p := *s.pending
		snap.Pending = &p
	}
	if snap.FinalizedTotal == nil {
		snap.FinalizedTotal = new(big.Int)
	}
	return snap
}

func (s *Session) scan(ctx context.Context, start uint64, cumulative *big.Int) (State, error) {
	e := s.engine

	s.mu.RLock()
	current := s.currentEpoch
	s.mu.RUnlock()

	boundary := finalizationBoundary(current)
	first := int64(start)

	var total uint64
	if boundary >= first {
		total = uint64(boundary - first + 1)
	}
	s.mu.Lock()
	s.progress = Progress{Total: total}
	s.mu.Unlock()

	if e.metrics != nil {
		e.metrics.ActiveSessions.Inc()
		defer e.metrics.ActiveSessions.Dec()
	}

	lastProcessed := first - 1
	processed := 0
	cancelled := false

	for epoch := first; epoch <= boundary; epoch++ {
		if s.stopped(ctx) {
			cancelled = true
			break
		}

		reward, err := e.reader.RewardForEpoch(ctx, s.target.Contract, uint64(epoch), s.target.Prover)
		failed := false
		if err != nil {
			if ctx.Err() != nil {
				cancelled = true
				break
			}
			s.log.Warn().Err(err).Int64("epoch", epoch).Msg("Failed to read epoch reward, counting as zero")
			if e.metrics != nil {
				e.metrics.RewardReadFailures.Inc()
			}
			reward, failed = new(big.Int), true
		}

		cumulative = new(big.Int).Add(cumulative, reward)
		lastProcessed = epoch
		processed++

		res := EpochResult{
			Epoch:      uint64(epoch),
			Reward:     reward,
			Cumulative: cumulative,
			Failed:     failed,
		}
		p := s.appendResult(res)
		s.obs.OnEpoch(res, p)
		if e.metrics != nil {
			e.metrics.EpochsScanned.Inc()
		}

		if epoch < boundary && !s.wait(ctx) {
			cancelled = true
			break
		}
	}

	if processed > 0 {
		rec := progress.Record{
			Prover:           s.target.Prover,
			Contract:         s.target.Contract,
			LastEpoch:        lastProcessed,
			CumulativeReward: cumulative,
		}
		err := e.store.Put(context.WithoutCancel(ctx), rec)
		e.metrics.recordCheckpoint(err)
		if err != nil {
			return s.finish(StateFailed, fmt.Errorf("write checkpoint at epoch %d: %w", lastProcessed, err))
		}
		s.log.Info().
			Int64("last_epoch", lastProcessed).
			Str("cumulative", cumulative.String()).
			Int("epochs", processed).
			Msg("Checkpoint written")
	}

	if lastProcessed+1 < int64(current) && ctx.Err() == nil {
		s.fetchPending(ctx, uint64(lastProcessed+1), cumulative)
	}

	if cancelled {
		return s.finish(StateCancelled, nil)
	}
	return s.finish(StateCheckpointed, nil)
}

func (s *Session) fetchPending(ctx context.Context, epoch uint64, cumulative *big.Int) {
	reward, err := s.engine.reader.RewardForEpoch(ctx, s.target.Contract, epoch, s.target.Prover)
	failed := false
	if err != nil {
		s.log.Warn().Err(err).Uint64("epoch", epoch).Msg("Failed to read pending epoch reward")
		reward, failed = new(big.Int), true
	}

	res := EpochResult{
		Epoch:      epoch,
		Reward:     reward,
		Cumulative: new(big.Int).Add(cumulative, reward),
		Pending:    true,
		Failed:     failed,
	}

	s.mu.Lock()
	s.pending = &res
	p := s.progress
	s.mu.Unlock()

	s.obs.OnEpoch(res, p)
}

func (s *Session) appendResult(res EpochResult) Progress {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.results = append(s.results, res)
	s.total = res.Cumulative
	s.progress.Current++
	if res.Failed {
		s.failed = append(s.failed, res.Epoch)
	}
	return s.progress
}

func (s *Session) setLoaded(rec progress.Record) {
	if !rec.HasProgress() {
		return
	}
	s.mu.Lock()
	s.loaded = &Summary{LastEpoch: rec.LastEpoch, Cumulative: rec.Cumulative()}
	s.mu.Unlock()
}

// stopped reports whether Cancel was called or ctx is done.
func (s *Session) stopped(ctx context.Context) bool {
	select {
	case <-s.cancelCh:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// wait pauses for the engine delay and returns false if interrupted.
func (s *Session) wait(ctx context.Context) bool {
	if s.engine.delay <= 0 {
		return !s.stopped(ctx)
	}
	t := time.NewTimer(s.engine.delay)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-s.cancelCh:
		return false
	case <-ctx.Done():
		return false
	}
}

func (s *Session) transition(from, to State) bool {
	s.mu.Lock()
	if s.state != from {
		s.mu.Unlock()
		return false
	}
	s.state = to
	s.mu.Unlock()

	s.obs.OnState(to)
	return true
}

func (s *Session) finish(state State, err error) (State, error) {
	return s.finishFrom(StateScanning, state, err)
}

// finishFrom moves the session from one state into a terminal state.
func (s *Session) finishFrom(from, state State, err error) (State, error) {
	s.mu.Lock()
	if s.state != from {
		cur, curErr := s.state, s.err
		s.mu.Unlock()
		return cur, curErr
	}
	s.state = state
	s.err = err
	s.finishedAt = s.engine.now()
	total := s.total
	s.mu.Unlock()

	evt := s.log.Info()
	if err != nil {
		evt = s.log.Error().Err(err)
	}
	evt.Str("state", state.String()).Str("finalized_total", FormatToken(total)).Msg("Scan finished")

	s.engine.metrics.recordFinished(state)
	s.obs.OnState(state)
	s.doneOnce.Do(func() { close(s.done) })
	return state, err
}

// finalizationBoundary is the highest epoch considered final. It is negative
// while fewer than two epochs exist.
func finalizationBoundary(current uint64) int64 {
	return int64(current) - 2
}
