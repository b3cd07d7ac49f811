package dashboard

import (
	"math/big"
	"time"

	"github.com/compose-network/prover-rewards/x/rewards/scanner"
)

// loadedStatus labels the summary row built from a stored checkpoint.
const loadedStatus = "Loaded from checkpoint"

// Amount carries a raw integer amount together with its display form.
type Amount struct {
	Raw     string `json:"raw"`
	Display string `json:"display"`
}

func newAmount(v *big.Int) *Amount {
	if v == nil {
		return nil
	}
	return &Amount{Raw: v.String(), Display: scanner.FormatToken(v)}
}

type rowView struct {
	Epoch      uint64  `json:"epoch"`
	Reward     *Amount `json:"reward"`
	Cumulative *Amount `json:"cumulative"`
	Pending    bool    `json:"pending"`
	Failed     bool    `json:"failed"`
}

type summaryView struct {
	LastEpoch  int64   `json:"lastEpoch"`
	Cumulative *Amount `json:"cumulative"`
	Status     string  `json:"status"`
}

type decisionView struct {
	LastEpoch    int64   `json:"lastEpoch"`
	Cumulative   *Amount `json:"cumulative"`
	CurrentEpoch uint64  `json:"currentEpoch"`
}

// ScanView is the JSON rendering of a session snapshot.
type ScanView struct {
	ID             string           `json:"id"`
	Prover         string           `json:"prover"`
	Contract       string           `json:"contract"`
	State          scanner.State    `json:"state"`
	Shares         *Amount          `json:"shares"`
	CurrentEpoch   uint64           `json:"currentEpoch"`
	Loaded         *summaryView     `json:"loaded,omitempty"`
	Results        []rowView        `json:"results"`
	Pending        *rowView         `json:"pending,omitempty"`
	FinalizedTotal *Amount          `json:"finalizedTotal"`
	Progress       scanner.Progress `json:"progress"`
	FailedEpochs   []uint64         `json:"failedEpochs"`
	Decision       *decisionView    `json:"decision,omitempty"`
	Error          string           `json:"error,omitempty"`
	StartedAt      *time.Time       `json:"startedAt,omitempty"`
	FinishedAt     *time.Time       `json:"finishedAt,omitempty"`
}

func newRow(r scanner.EpochResult) rowView {
	return rowView{
		Epoch:      r.Epoch,
		Reward:     newAmount(r.Reward),
		Cumulative: newAmount(r.Cumulative),
		Pending:    r.Pending,
		Failed:     r.Failed,
	}
}

// NewScanView renders snap for the API.
func NewScanView(id string, snap scanner.Snapshot) ScanView {
	v := ScanView{
		ID:             id,
		Prover:         snap.Target.Prover.Hex(),
		Contract:       snap.Target.Contract.Hex(),
		State:          snap.State,
		Shares:         newAmount(snap.Shares),
		CurrentEpoch:   snap.CurrentEpoch,
		Results:        make([]rowView, 0, len(snap.Results)),
		FinalizedTotal: newAmount(snap.FinalizedTotal),
		Progress:       snap.Progress,
		FailedEpochs:   snap.FailedEpochs,
	}
	if v.FailedEpochs == nil {
		v.FailedEpochs = []uint64{}
	}
	for _, r := range snap.Results {
		v.Results = append(v.Results, newRow(r))
	}
	if snap.Pending != nil {
		p := newRow(*snap.Pending)
		v.Pending = &p
	}
	if snap.Loaded != nil {
		v.Loaded = &summaryView{
			LastEpoch:  snap.Loaded.LastEpoch,
			Cumulative: newAmount(snap.Loaded.Cumulative),
			Status:     loadedStatus,
		}
	}
	if snap.Decision != nil && snap.State == scanner.StateAwaitingDecision {
		v.Decision = &decisionView{
			LastEpoch:    snap.Decision.LastEpoch,
			Cumulative:   newAmount(snap.Decision.Cumulative),
			CurrentEpoch: snap.Decision.CurrentEpoch,
		}
	}
	if snap.Err != nil {
		v.Error = snap.Err.Error()
	}
	if !snap.StartedAt.IsZero() {
		v.StartedAt = &snap.StartedAt
	}
	if !snap.FinishedAt.IsZero() {
		v.FinishedAt = &snap.FinishedAt
	}
	return v
}
