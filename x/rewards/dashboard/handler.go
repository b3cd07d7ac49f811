package dashboard

import (
	"errors"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	apicommon "github.com/compose-network/prover-rewards/server/api"
	"github.com/compose-network/prover-rewards/x/rewards/scanner"
)

const maxBodyBytes = 4 << 10

type startReq struct {
	Prover string `json:"prover"`
	// Contract is a preset name or a hex address; empty selects the default.
	Contract string `json:"contract"`
}

type decisionReq struct {
	Choice Choice `json:"choice"`
}

type contractsResp struct {
	Default   string           `json:"default"`
	Contracts []ContractPreset `json:"contracts"`
}

// Handler exposes scan sessions over HTTP.
type Handler struct {
	manager *Manager
	cfg     Config
	log     zerolog.Logger
}

func NewHandler(manager *Manager, cfg Config, log zerolog.Logger) *Handler {
	return &Handler{
		manager: manager,
		cfg:     cfg,
		log:     log.With().Str("component", "dashboard-http").Logger(),
	}
}

func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startReq
	if err := apicommon.DecodeJSON(r, maxBodyBytes, &req); err != nil {
		apicommon.WriteError(w, r, http.StatusBadRequest, "invalid_json", "failed to decode request", nil)
		return
	}

	prover := strings.TrimSpace(req.Prover)
	if !common.IsHexAddress(prover) {
		apicommon.WriteError(w, r, http.StatusBadRequest, "invalid_prover_address", "bad address", nil)
		return
	}
	contract, err := h.cfg.Resolve(req.Contract)
	if err != nil {
		apicommon.WriteError(w, r, http.StatusBadRequest, "invalid_contract", err.Error(), nil)
		return
	}

	target := scanner.Target{Prover: common.HexToAddress(prover), Contract: contract}
	id, err := h.manager.Start(target)
	if errors.Is(err, ErrSessionActive) {
		apicommon.WriteError(w, r, http.StatusConflict, "session_active", err.Error(), map[string]string{"id": id})
		return
	}
	if err != nil {
		apicommon.WriteError(w, r, http.StatusInternalServerError, "start_failed", err.Error(), nil)
		return
	}

	apicommon.WriteJSON(w, http.StatusAccepted, map[string]any{
		"id":       id,
		"prover":   target.Prover.Hex(),
		"contract": target.Contract.Hex(),
	})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	snap, err := h.manager.Get(id)
	if err != nil {
		h.writeManagerError(w, r, err)
		return
	}
	apicommon.WriteJSON(w, http.StatusOK, NewScanView(id, snap))
}

func (h *Handler) handleDecide(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req decisionReq
	if err := apicommon.DecodeJSON(r, maxBodyBytes, &req); err != nil {
		apicommon.WriteError(w, r, http.StatusBadRequest, "invalid_json", "failed to decode request", nil)
		return
	}

	if err := h.manager.Decide(id, req.Choice); err != nil {
		h.writeManagerError(w, r, err)
		return
	}
	apicommon.WriteJSON(w, http.StatusAccepted, map[string]any{"id": id, "choice": req.Choice})
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.manager.Cancel(id); err != nil {
		h.writeManagerError(w, r, err)
		return
	}
	apicommon.WriteJSON(w, http.StatusAccepted, map[string]any{"id": id, "status": "cancelling"})
}

func (h *Handler) handleContracts(w http.ResponseWriter, _ *http.Request) {
	apicommon.WriteJSON(w, http.StatusOK, contractsResp{
		Default:   h.cfg.DefaultContract,
		Contracts: h.cfg.Contracts,
	})
}

func (h *Handler) writeManagerError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		apicommon.WriteError(w, r, http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, ErrInvalidChoice):
		apicommon.WriteError(w, r, http.StatusBadRequest, "invalid_choice", err.Error(), nil)
	case errors.Is(err, scanner.ErrNoDecisionPending):
		apicommon.WriteError(w, r, http.StatusConflict, "no_decision_pending", err.Error(), nil)
	default:
		h.log.Error().Err(err).Msg("Scan request failed")
		apicommon.WriteError(w, r, http.StatusInternalServerError, "internal_error", err.Error(), nil)
	}
}
