package dashboard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/compose-network/prover-rewards/x/rewards/scanner"
)

var (
	// ErrSessionActive is returned when the target already has a running session.
	ErrSessionActive = errors.New("a scan session is already active for this prover and contract")
	// ErrNotFound is returned for unknown session IDs.
	ErrNotFound = errors.New("scan session not found")
	// ErrInvalidChoice is returned for a decision other than resume or restart.
	ErrInvalidChoice = errors.New("decision must be resume or restart")
)

// Choice answers the resume-or-restart decision.
type Choice string

const (
	ChoiceResume  Choice = "resume"
	ChoiceRestart Choice = "restart"
)

type entry struct {
	id      string
	session *scanner.Session
	created time.Time
	// timer cancels the session if a decision does not arrive in time.
	timer *time.Timer
}

// ManagerOption configures a Manager
type ManagerOption func(*Manager)

// WithDecisionTimeout cancels sessions left waiting for a resume or restart
// decision longer than d. Zero disables the timeout.
func WithDecisionTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) {
		m.decisionTimeout = d
	}
}

// Manager owns the scan sessions started on behalf of dashboard clients.
// At most one non-terminal session exists per target.
type Manager struct {
	ctx         context.Context
	engine      *scanner.Engine
	log         zerolog.Logger
	maxRetained int

	decisionTimeout time.Duration

	mu       sync.RWMutex
	sessions map[string]*entry
	order    []string
	active   map[scanner.Target]string

	wg sync.WaitGroup
}

// NewManager creates a Manager. Sessions run under ctx; cancelling it stops
// them after their current epoch.
func NewManager(
	ctx context.Context,
	engine *scanner.Engine,
	maxRetained int,
	log zerolog.Logger,
	opts ...ManagerOption,
) *Manager {
	m := &Manager{
		ctx:         ctx,
		engine:      engine,
		log:         log.With().Str("component", "scan-manager").Logger(),
		maxRetained: maxRetained,
		sessions:    make(map[string]*entry),
		active:      make(map[scanner.Target]string),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start launches a session for target in the background and returns its ID.
func (m *Manager) Start(target scanner.Target) (string, error) {
	m.mu.Lock()
	if id, ok := m.active[target]; ok {
		m.mu.Unlock()
		return id, ErrSessionActive
	}

	id := uuid.NewString()
	var sess *scanner.Session
	sess = m.engine.NewSession(target, scanner.ObserverFuncs{
		State: func(s scanner.State) {
			switch {
			case s == scanner.StateAwaitingDecision:
				m.armDecisionTimeout(id, sess)
			case s.Terminal():
				m.release(target, id)
			}
		},
	})
	m.sessions[id] = &entry{id: id, session: sess, created: time.Now()}
	m.order = append(m.order, id)
	m.active[target] = id
	m.evictLocked()
	m.mu.Unlock()

	m.log.Info().Str("session_id", id).Str("target", target.String()).Msg("Scan session created")

	m.run(id, sess.Start)
	return id, nil
}

// Decide resumes or restarts a session waiting for a decision.
func (m *Manager) Decide(id string, choice Choice) error {
	sess, err := m.session(id)
	if err != nil {
		return err
	}

	var step func(context.Context) (scanner.State, error)
	switch choice {
	case ChoiceResume:
		step = sess.Resume
	case ChoiceRestart:
		step = sess.Restart
	default:
		return ErrInvalidChoice
	}

	if sess.State() != scanner.StateAwaitingDecision {
		return scanner.ErrNoDecisionPending
	}
	m.stopDecisionTimer(id)
	m.log.Info().Str("session_id", id).Str("choice", string(choice)).Msg("Scan decision received")
	m.run(id, step)
	return nil
}

// Cancel asks a session to stop after its in-flight epoch.
func (m *Manager) Cancel(id string) error {
	sess, err := m.session(id)
	if err != nil {
		return err
	}
	sess.Cancel()
	return nil
}

// Get returns a snapshot of a session.
func (m *Manager) Get(id string) (scanner.Snapshot, error) {
	sess, err := m.session(id)
	if err != nil {
		return scanner.Snapshot{}, err
	}
	return sess.Snapshot(), nil
}

// Active returns the number of sessions not yet in a terminal state.
func (m *Manager) Active() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.active)
}

// Wait blocks until every background step has returned.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// Shutdown cancels all active sessions and waits for their checkpoints.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.RLock()
	ids := make([]string, 0, len(m.active))
	for _, id := range m.active {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	for _, id := range ids {
		_ = m.Cancel(id)
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for %d scan sessions: %w", len(ids), ctx.Err())
	}
}

func (m *Manager) run(id string, step func(context.Context) (scanner.State, error)) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		state, err := step(m.ctx)
		if err != nil {
			m.log.Warn().Err(err).Str("session_id", id).Str("state", state.String()).Msg("Scan step ended with error")
		}
	}()
}

func (m *Manager) session(id string) (*scanner.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return e.session, nil
}

func (m *Manager) release(target scanner.Target, id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active[target] == id {
		delete(m.active, target)
	}
	if e, ok := m.sessions[id]; ok && e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
}

func (m *Manager) armDecisionTimeout(id string, sess *scanner.Session) {
	if m.decisionTimeout <= 0 {
		return
	}
	timer := time.AfterFunc(m.decisionTimeout, func() {
		if sess.State() != scanner.StateAwaitingDecision {
			return
		}
		m.log.Info().
			Str("session_id", id).
			Dur("timeout", m.decisionTimeout).
			Msg("Scan decision timed out, cancelling session")
		sess.Cancel()
	})

	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.sessions[id]; ok {
		e.timer = timer
	}
}

func (m *Manager) stopDecisionTimer(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.sessions[id]; ok && e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
}

// evictLocked drops the oldest finished sessions beyond the retention bound.
func (m *Manager) evictLocked() {
	if m.maxRetained <= 0 || len(m.order) <= m.maxRetained {
		return
	}
	kept := m.order[:0]
	excess := len(m.order) - m.maxRetained
	for _, id := range m.order {
		e := m.sessions[id]
		if excess > 0 && e.session.State().Terminal() {
			delete(m.sessions, id)
			excess--
			continue
		}
		kept = append(kept, id)
	}
	m.order = kept
}
