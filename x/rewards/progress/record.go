package progress

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// NoEpoch marks a record without any finalized epoch.
const NoEpoch int64 = -1

// ErrInvalidRecord is returned by Put for records violating the table invariants.
var ErrInvalidRecord = errors.New("invalid progress record")

// Record is the persisted scan checkpoint of one prover on one rollup contract.
// LastEpoch and CumulativeReward always move together.
type Record struct {
	Prover           common.Address `json:"prover"`
	Contract         common.Address `json:"contract"`
	LastEpoch        int64          `json:"last_epoch"`
	CumulativeReward *big.Int       `json:"cumulative_reward"`
	UpdatedAt        time.Time      `json:"updated_at,omitempty"`
}

// Store persists checkpoints keyed by (prover, contract).
type Store interface {
	// Get returns the stored record, or DefaultRecord when none exists.
	Get(ctx context.Context, prover, contract common.Address) (Record, error)
	// Put atomically inserts or overwrites the record for its key.
	Put(ctx context.Context, rec Record) error
}

// DefaultRecord is the record of a prover that has never been checkpointed.
func DefaultRecord(prover, contract common.Address) Record {
	return Record{
		Prover:           prover,
		Contract:         contract,
		LastEpoch:        NoEpoch,
		CumulativeReward: new(big.Int),
	}
}

// HasProgress reports whether at least one epoch has been checkpointed.
func (r Record) HasProgress() bool {
	return r.LastEpoch >= 0
}

// Cumulative returns a copy of the cumulative reward, zero when unset.
func (r Record) Cumulative() *big.Int {
	if r.CumulativeReward == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(r.CumulativeReward)
}

// Validate checks the record against the table invariants.
func (r Record) Validate() error {
	if r.LastEpoch < NoEpoch {
		return fmt.Errorf("%w: last epoch %d below %d", ErrInvalidRecord, r.LastEpoch, NoEpoch)
	}
	if r.CumulativeReward != nil && r.CumulativeReward.Sign() < 0 {
		return fmt.Errorf("%w: negative cumulative reward %s", ErrInvalidRecord, r.CumulativeReward)
	}
	return nil
}

// ParseAmount parses a non-negative base-10 integer amount.
func ParseAmount(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	if v.Sign() < 0 {
		return nil, fmt.Errorf("negative amount %q", s)
	}
	return v, nil
}

func key(prover, contract common.Address) string {
	return prover.Hex() + "/" + contract.Hex()
}
