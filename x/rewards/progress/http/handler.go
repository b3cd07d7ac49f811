package http

import (
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	apicommon "github.com/compose-network/prover-rewards/server/api"
	"github.com/compose-network/prover-rewards/x/rewards/progress"
)

const maxBodyBytes = 4 << 10

// Handler serves checkpoint reads and writes over a progress.Store.
type Handler struct {
	store progress.Store
	log   zerolog.Logger
}

func NewHandler(store progress.Store, log zerolog.Logger) *Handler {
	return &Handler{
		store: store,
		log:   log.With().Str("component", "progress-http").Logger(),
	}
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	proverStr, contractStr := strings.TrimSpace(q.Get("prover")), strings.TrimSpace(q.Get("contract"))
	if proverStr == "" || contractStr == "" {
		apicommon.WriteError(w, r, http.StatusBadRequest, "missing_params", "prover and contract are required", nil)
		return
	}
	prover, ok := parseAddress(w, r, "prover", proverStr)
	if !ok {
		return
	}
	contract, ok := parseAddress(w, r, "contract", contractStr)
	if !ok {
		return
	}

	rec, err := h.store.Get(r.Context(), prover, contract)
	if err != nil {
		h.log.Error().
			Err(err).
			Str("prover", prover.Hex()).
			Str("contract", contract.Hex()).
			Msg("Failed to read checkpoint")
		apicommon.WriteError(w, r, http.StatusInternalServerError, "store_error", "failed to read checkpoint", nil)
		return
	}

	apicommon.WriteJSON(w, http.StatusOK, progress.NewCheckpointResponse(rec))
}

func (h *Handler) handlePut(w http.ResponseWriter, r *http.Request) {
	var req progress.CheckpointRequest
	if err := apicommon.DecodeJSON(r, maxBodyBytes, &req); err != nil {
		apicommon.WriteError(w, r, http.StatusBadRequest, "invalid_json", "failed to decode request", nil)
		return
	}
	if req.Prover == "" || req.Contract == "" || req.LastEpoch == nil || req.CumulativeRewards == nil {
		apicommon.WriteError(
			w, r,
			http.StatusBadRequest,
			"missing_body_params",
			"prover, contract, lastEpoch and cumulativeRewards are required",
			nil,
		)
		return
	}

	prover, ok := parseAddress(w, r, "prover", req.Prover)
	if !ok {
		return
	}
	contract, ok := parseAddress(w, r, "contract", req.Contract)
	if !ok {
		return
	}
	amount, err := progress.ParseAmount(strings.TrimSpace(*req.CumulativeRewards))
	if err != nil {
		apicommon.WriteError(w, r, http.StatusBadRequest, "invalid_cumulative_rewards", err.Error(), nil)
		return
	}

	rec := progress.Record{
		Prover:           prover,
		Contract:         contract,
		LastEpoch:        *req.LastEpoch,
		CumulativeReward: amount,
	}
	if err := rec.Validate(); err != nil {
		apicommon.WriteError(w, r, http.StatusBadRequest, "invalid_record", err.Error(), nil)
		return
	}

	if err := h.store.Put(r.Context(), rec); err != nil {
		h.log.Error().
			Err(err).
			Str("prover", prover.Hex()).
			Str("contract", contract.Hex()).
			Int64("last_epoch", rec.LastEpoch).
			Msg("Failed to write checkpoint")
		apicommon.WriteError(w, r, http.StatusInternalServerError, "store_error", "failed to write checkpoint", nil)
		return
	}

	apicommon.WriteJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func parseAddress(w http.ResponseWriter, r *http.Request, field, value string) (common.Address, bool) {
	if !common.IsHexAddress(value) {
		apicommon.WriteError(w, r, http.StatusBadRequest, "invalid_"+field+"_address", "bad address", nil)
		return common.Address{}, false
	}
	return common.HexToAddress(value), true
}
