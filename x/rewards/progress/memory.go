package progress

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

var _ Store = (*Memory)(nil)

// Memory implements an in-memory store; suitable for tests and single-instance deployments.
type Memory struct {
	mu      sync.RWMutex
	records map[string]Record
	now     func() time.Time
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{
		records: make(map[string]Record),
		now:     time.Now,
	}
}

func (m *Memory) Get(_ context.Context, prover, contract common.Address) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[key(prover, contract)]
	if !ok {
		return DefaultRecord(prover, contract), nil
	}
	rec.CumulativeReward = rec.Cumulative()
	return rec, nil
}

func (m *Memory) Put(_ context.Context, rec Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	rec.CumulativeReward = rec.Cumulative()
	rec.UpdatedAt = m.now().UTC()
	m.records[key(rec.Prover, rec.Contract)] = rec
	return nil
}

// Len returns the number of stored records.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}
