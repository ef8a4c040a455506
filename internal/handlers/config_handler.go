package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/merces/internal/chain"
	"github.com/ternarybob/merces/internal/common"
	"github.com/ternarybob/merces/internal/interfaces"
)

// ConfigHandler serves and updates the runtime configuration. Chain
// settings may arrive after startup; saving them reinitializes the
// chain clients without a restart.
type ConfigHandler struct {
	config       *common.Config
	chain        *chain.Service
	eventService interfaces.EventService
	logger       arbor.ILogger
}

func NewConfigHandler(config *common.Config, chainService *chain.Service, eventService interfaces.EventService, logger arbor.ILogger) *ConfigHandler {
	return &ConfigHandler{
		config:       config,
		chain:        chainService,
		eventService: eventService,
		logger:       logger,
	}
}

// ConfigHandler serves GET (read, redacted) and POST (save chain
// settings) on the same route.
func (h *ConfigHandler) ConfigHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.getConfig(w, r)
	case http.MethodPost:
		h.saveChainConfig(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// getConfig returns the current configuration with the worker key
// redacted.
func (h *ConfigHandler) getConfig(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"environment": h.config.Environment,
		"chain": map[string]interface{}{
			"chain_id":         h.config.Chain.ChainID,
			"rpc_url":          h.config.Chain.RPCURL,
			"contract_address": h.config.Chain.ContractAddress,
			"worker_key_set":   h.config.Chain.WorkerKey != "",
			"connected":        h.chain.IsInitialized(),
		},
		"worker": map[string]interface{}{
			"runner_url":    h.config.Worker.RunnerURL,
			"poll_interval": h.config.Worker.PollInterval,
			"nav_timeout":   h.config.Worker.NavTimeout,
		},
		"prover": map[string]interface{}{
			"mode": h.config.Prover.Mode,
		},
	})
}

// ChainConfigRequest carries operator-supplied chain settings.
type ChainConfigRequest struct {
	ChainID         int64  `json:"chain_id"`
	RPCURL          string `json:"rpc_url"`
	ContractAddress string `json:"contract_address"`
	WorkerKey       string `json:"worker_key"`
}

// saveChainConfig applies new chain settings and reconnects.
func (h *ConfigHandler) saveChainConfig(w http.ResponseWriter, r *http.Request) {
	var req ChainConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	updated := h.config.Chain
	if req.ChainID != 0 {
		updated.ChainID = req.ChainID
	}
	if req.RPCURL != "" {
		updated.RPCURL = req.RPCURL
	}
	if req.ContractAddress != "" {
		updated.ContractAddress = req.ContractAddress
	}
	if req.WorkerKey != "" {
		updated.WorkerKey = req.WorkerKey
	}

	if !updated.Configured() {
		WriteError(w, http.StatusBadRequest, "Incomplete chain configuration: chain_id, rpc_url, contract_address and worker_key are all required")
		return
	}

	if err := h.chain.Reinitialize(&updated); err != nil {
		h.logger.Error().Err(err).Msg("Failed to reinitialize chain clients")
		WriteError(w, http.StatusBadRequest, "Failed to connect with new chain settings: "+err.Error())
		return
	}

	h.config.Chain = updated
	h.logger.Info().
		Int64("chain_id", updated.ChainID).
		Str("contract", updated.ContractAddress).
		Msg("Chain configuration saved")

	if h.eventService != nil {
		_ = h.eventService.Publish(r.Context(), interfaces.Event{
			Type: interfaces.EventConfigSaved,
			Payload: map[string]interface{}{
				"chain_id": updated.ChainID,
			},
		})
	}

	WriteSuccess(w, "Chain configuration saved")
}
