package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/merces/internal/worker"
)

// WorkerHandler exposes engine control over HTTP. The same operations
// are reachable through the WebSocket protocol; these endpoints serve
// the dashboard and scripted control.
type WorkerHandler struct {
	engine  *worker.Engine
	baseCtx context.Context
	logger  arbor.ILogger
}

func NewWorkerHandler(engine *worker.Engine, baseCtx context.Context, logger arbor.ILogger) *WorkerHandler {
	return &WorkerHandler{
		engine:  engine,
		baseCtx: baseCtx,
		logger:  logger,
	}
}

// StartHandler starts the registry listener.
func (h *WorkerHandler) StartHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	h.engine.Start(h.baseCtx)
	h.logger.Info().Msg("Worker engine started")
	WriteSuccess(w, "Worker started")
}

// StopHandler stops listening, pauses processing and clears the queue.
func (h *WorkerHandler) StopHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	h.engine.Stop()
	h.logger.Info().Msg("Worker engine stopped")
	WriteSuccess(w, "Worker stopped")
}

// OpenTabHandler opens (or focuses) the controlled browser tab.
func (h *WorkerHandler) OpenTabHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	tabID, err := h.engine.OpenWorkerTab(h.baseCtx)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to open worker tab")
		WriteError(w, http.StatusInternalServerError, "Failed to open worker tab: "+err.Error())
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{
		"status": "success",
		"tab_id": tabID,
	})
}

// CloseTabHandler releases the controlled tab. Processing pauses.
func (h *WorkerHandler) CloseTabHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	h.engine.CloseWorkerTab()
	WriteSuccess(w, "Worker tab closed")
}

// AutoModeHandler toggles automatic queue processing. The engine refuses
// to enable auto-mode without a controlled tab; the response carries the
// effective state.
func (h *WorkerHandler) AutoModeHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	var body struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	effective := h.engine.SetAutoMode(body.Enabled)
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "success",
		"auto_mode": effective,
	})
}

// ProcessOneHandler runs a single queued job to completion.
func (h *WorkerHandler) ProcessOneHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	result := h.engine.ProcessNextJob()
	if result == nil {
		WriteJSON(w, http.StatusOK, map[string]interface{}{
			"status":    "success",
			"processed": false,
			"message":   "No job processed (queue empty, no tab, or already processing)",
		})
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "success",
		"processed": true,
		"job_id":    strconv.FormatUint(result.JobID, 10),
		"success":   result.Success,
		"tx_hash":   result.TxHash,
		"error":     result.Error,
	})
}

// QueueHandler lists the queued jobs.
func (h *WorkerHandler) QueueHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	jobs := h.engine.QueuedJobs()
	summaries := make([]map[string]interface{}, 0, len(jobs))
	for _, job := range jobs {
		bounty := "0"
		if job.Bounty != nil {
			bounty = job.Bounty.String()
		}
		summaries = append(summaries, map[string]interface{}{
			"job_id":      strconv.FormatUint(job.JobID, 10),
			"spec_id":     job.SpecID,
			"main_domain": job.MainDomain,
			"bounty":      bounty,
		})
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  summaries,
		"count": len(summaries),
	})
}
