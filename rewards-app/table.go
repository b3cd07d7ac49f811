package main

import (
	"io"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/compose-network/prover-rewards/x/rewards/scanner"
)

const (
	statusLoaded    = "Loaded from checkpoint"
	statusFinalized = "Finalized"
	statusPending   = "Pending"
	statusFailed    = "Read failed"
)

// renderScan writes the epoch table of a session snapshot.
func renderScan(w io.Writer, snap scanner.Snapshot) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.SetTitle("Prover %s on %s", snap.Target.Prover.Hex(), snap.Target.Contract.Hex())
	t.AppendHeader(table.Row{"Epoch", "Reward (STK)", "Cumulative (STK)", "Status"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight},
		{Number: 3, Align: text.AlignRight},
	})

	if snap.Loaded != nil {
		t.AppendRow(table.Row{
			"0-" + strconv.FormatInt(snap.Loaded.LastEpoch, 10),
			"-",
			scanner.FormatToken(snap.Loaded.Cumulative),
			statusLoaded,
		})
	}
	for _, r := range snap.Results {
		status := statusFinalized
		if r.Failed {
			status = statusFailed
		}
		t.AppendRow(table.Row{r.Epoch, scanner.FormatToken(r.Reward), scanner.FormatToken(r.Cumulative), status})
	}
	if p := snap.Pending; p != nil {
		status := statusPending
		if p.Failed {
			status = statusPending + " (" + statusFailed + ")"
		}
		t.AppendRow(table.Row{p.Epoch, scanner.FormatToken(p.Reward), scanner.FormatToken(p.Cumulative), status})
	}

	t.AppendFooter(table.Row{"Finalized total", "", scanner.FormatToken(snap.FinalizedTotal), snap.State.String()})
	t.Render()

	shares := "unknown"
	if snap.Shares != nil {
		shares = snap.Shares.String()
	}
	_, _ = io.WriteString(w, "Shares: "+shares+"\n")
	if len(snap.FailedEpochs) > 0 {
		_, _ = io.WriteString(w, "Epochs counted as zero after failed reads: "+formatEpochs(snap.FailedEpochs)+"\n")
	}
}

func formatEpochs(epochs []uint64) string {
	out := make([]byte, 0, len(epochs)*4)
	for i, e := range epochs {
		if i > 0 {
			out = append(out, ", "...)
		}
		out = strconv.AppendUint(out, e, 10)
	}
	return string(out)
}
