package handlers

import (
	"net/http"
	"strconv"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/merces/internal/chain"
	"github.com/ternarybob/merces/internal/worker"
)

// StatusHandler reports the engine and chain state for the dashboard.
type StatusHandler struct {
	engine *worker.Engine
	chain  *chain.Service
	logger arbor.ILogger
}

func NewStatusHandler(engine *worker.Engine, chainService *chain.Service, logger arbor.ILogger) *StatusHandler {
	return &StatusHandler{
		engine: engine,
		chain:  chainService,
		logger: logger,
	}
}

// StatusHandler returns the worker engine snapshot plus chain readiness.
func (h *StatusHandler) StatusHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	status := h.engine.GetStatus()

	response := map[string]interface{}{
		"tab_open":         status.TabOpen,
		"tab_id":           status.TabID,
		"auto_mode":        status.AutoMode,
		"queue_length":     status.QueueLength,
		"current_progress": status.CurrentProgress,
		"chain_connected":  h.chain.IsInitialized(),
	}

	if status.CurrentStep != "" {
		response["current_step"] = string(status.CurrentStep)
	}
	if status.CurrentJob != nil {
		response["current_job"] = map[string]interface{}{
			"job_id":      strconv.FormatUint(status.CurrentJob.JobID, 10),
			"spec_id":     status.CurrentJob.SpecID,
			"main_domain": status.CurrentJob.MainDomain,
		}
	}

	if address, err := h.chain.WorkerAddress(); err == nil {
		response["worker_address"] = address
	}

	WriteJSON(w, http.StatusOK, response)
}
