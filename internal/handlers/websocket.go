package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ternarybob/merces/internal/common"
	"github.com/ternarybob/merces/internal/interfaces"
	"github.com/ternarybob/merces/internal/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// WebSocketHandler bridges the engine's event bus and the web app. Each
// connection speaks the MERCES_* protocol: inbound messages go through
// the protocol dispatcher, engine events are broadcast to all clients.
type WebSocketHandler struct {
	logger            arbor.ILogger
	protocol          *Protocol
	eventService      interfaces.EventService
	clients           map[*websocket.Conn]bool
	clientMutex       map[*websocket.Conn]*sync.Mutex
	mu                sync.RWMutex
	progressThrottler *rate.Limiter   // Rate limiter for job progress broadcasts
	allowedEvents     map[string]bool // Whitelist of events to broadcast (empty = allow all)
	serverInstanceID  string          // Unique ID generated on startup - clients use to detect server restart
}

// NewWebSocketHandler creates the handler and subscribes it to the
// engine's event topics.
func NewWebSocketHandler(protocol *Protocol, eventService interfaces.EventService, logger arbor.ILogger, config *common.WebSocketConfig) *WebSocketHandler {
	h := &WebSocketHandler{
		logger:           logger,
		protocol:         protocol,
		eventService:     eventService,
		clients:          make(map[*websocket.Conn]bool),
		clientMutex:      make(map[*websocket.Conn]*sync.Mutex),
		serverInstanceID: uuid.New().String(),
	}

	logger.Info().Str("server_instance_id", h.serverInstanceID).Msg("WebSocket handler initialized with server instance ID")

	// Empty whitelist means allow all events
	h.allowedEvents = make(map[string]bool)
	if config != nil && len(config.AllowedEvents) > 0 {
		for _, eventType := range config.AllowedEvents {
			h.allowedEvents[eventType] = true
		}
		logger.Debug().
			Int("allowed_events", len(h.allowedEvents)).
			Msg("Initialized event whitelist for WebSocketHandler")
	}

	// Progress events fire on every pipeline step; throttle so a fast
	// pipeline does not flood the socket
	if config != nil && config.ProgressInterval != "" {
		if duration, err := time.ParseDuration(config.ProgressInterval); err == nil {
			h.progressThrottler = rate.NewLimiter(rate.Every(duration), 1)
			logger.Debug().
				Str("interval", config.ProgressInterval).
				Msg("Throttler initialized for job progress events")
		} else {
			logger.Warn().
				Err(err).
				Str("interval", config.ProgressInterval).
				Msg("Failed to parse progress throttle interval - throttler disabled")
		}
	}

	if eventService != nil {
		h.subscribeToWorkerEvents()
	}

	return h
}

// StatusPayload is the EXTENSION_STATUS message body.
type StatusPayload struct {
	Connected        bool             `json:"connected"`
	Version          string           `json:"version"`
	ServerInstanceID string           `json:"serverInstanceId"` // Unique ID per server startup - clients clear state on change
	ActiveJob        *ActiveJobStatus `json:"activeJob,omitempty"`
	TabOpen          bool             `json:"tabOpen"`
	AutoMode         bool             `json:"autoMode"`
	QueueLength      int              `json:"queueLength"`
}

// ActiveJobStatus summarizes the job currently on the controlled tab.
type ActiveJobStatus struct {
	JobID      string `json:"jobId"`
	SpecDomain string `json:"specDomain"`
	Status     string `json:"status"`
	Progress   int    `json:"progress"`
}

// ProgressPayload is the JOB_PROGRESS message body.
type ProgressPayload struct {
	JobID    string `json:"jobId"`
	Status   string `json:"status"`
	Progress int    `json:"progress"`
	Message  string `json:"message"`
}

// CompletedPayload is the JOB_COMPLETED message body.
type CompletedPayload struct {
	JobID         string `json:"jobId"`
	ResultPayload string `json:"resultPayload"`
	ProofData     string `json:"proofData,omitempty"`
	TxHash        string `json:"txHash,omitempty"`
}

// FailedPayload is the JOB_FAILED message body.
type FailedPayload struct {
	JobID string `json:"jobId"`
	Error string `json:"error"`
}

// QueuedJobSummary is one entry of the QUEUE_CHANGED message body.
type QueuedJobSummary struct {
	JobID      string `json:"jobId"`
	SpecID     uint64 `json:"specId"`
	MainDomain string `json:"mainDomain"`
	Bounty     string `json:"bounty"`
}

// HandleWebSocket handles WebSocket connections
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}

	h.mu.Lock()
	h.clients[conn] = true
	h.clientMutex[conn] = &sync.Mutex{}
	h.mu.Unlock()

	h.logger.Debug().Msgf("WebSocket client connected (total: %d)", len(h.clients))

	// Send initial status
	h.sendToClient(conn, &OutboundMessage{
		Type:    MsgExtensionStatus,
		Payload: h.statusPayload(h.protocol.engine.GetStatus()),
	})

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		delete(h.clientMutex, conn)
		clientCount := len(h.clients)
		h.mu.Unlock()

		conn.Close()
		h.logger.Debug().Msgf("WebSocket client disconnected (remaining: %d)", clientCount)
	}()

	// Read loop: every inbound message is dispatched through the protocol
	// and answered on the same connection
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn().Err(err).Msg("WebSocket error")
			}
			break
		}

		response := h.protocol.Handle(r.Context(), data)
		if response != nil {
			h.sendToClient(conn, response)
		}
	}
}

// sendToClient writes one message to a single connection.
func (h *WebSocketHandler) sendToClient(conn *websocket.Conn, msg *OutboundMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Str("type", msg.Type).Msg("Failed to marshal message")
		return
	}

	h.mu.RLock()
	mutex := h.clientMutex[conn]
	h.mu.RUnlock()

	if mutex != nil {
		mutex.Lock()
		err := conn.WriteMessage(websocket.TextMessage, data)
		mutex.Unlock()

		if err != nil {
			h.logger.Warn().Err(err).Str("type", msg.Type).Msg("Failed to send message to client")
		}
	}
}

// Broadcast sends a message to all connected clients.
func (h *WebSocketHandler) Broadcast(msg *OutboundMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Str("type", msg.Type).Msg("Failed to marshal broadcast message")
		return
	}

	h.mu.RLock()
	clients := make([]*websocket.Conn, 0, len(h.clients))
	mutexes := make([]*sync.Mutex, 0, len(h.clients))
	for conn := range h.clients {
		clients = append(clients, conn)
		mutexes = append(mutexes, h.clientMutex[conn])
	}
	h.mu.RUnlock()

	for i, conn := range clients {
		mutex := mutexes[i]
		mutex.Lock()
		err := conn.WriteMessage(websocket.TextMessage, data)
		mutex.Unlock()

		if err != nil {
			h.logger.Warn().Err(err).Str("type", msg.Type).Msg("Failed to send broadcast to client")
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *WebSocketHandler) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *WebSocketHandler) eventAllowed(name string) bool {
	if len(h.allowedEvents) == 0 {
		return true
	}
	return h.allowedEvents[name]
}

func (h *WebSocketHandler) statusPayload(status *models.WorkerStatus) *StatusPayload {
	payload := &StatusPayload{
		Connected:        true,
		Version:          common.GetVersion(),
		ServerInstanceID: h.serverInstanceID,
	}
	if status == nil {
		return payload
	}

	payload.TabOpen = status.TabOpen
	payload.AutoMode = status.AutoMode
	payload.QueueLength = status.QueueLength

	if status.CurrentJob != nil {
		jobStatus := string(status.CurrentStep)
		if jobStatus == "" {
			jobStatus = string(models.StepQueued)
		}
		payload.ActiveJob = &ActiveJobStatus{
			JobID:      strconv.FormatUint(status.CurrentJob.JobID, 10),
			SpecDomain: status.CurrentJob.MainDomain,
			Status:     jobStatus,
			Progress:   status.CurrentProgress,
		}
	}

	return payload
}

// subscribeToWorkerEvents wires engine event topics to broadcasts.
func (h *WebSocketHandler) subscribeToWorkerEvents() {
	h.eventService.Subscribe(interfaces.EventWorkerStatus, func(ctx context.Context, event interfaces.Event) error {
		status, ok := event.Payload.(*models.WorkerStatus)
		if !ok {
			h.logger.Warn().Msg("Invalid worker status event payload type")
			return nil
		}

		if !h.eventAllowed("worker_status") {
			return nil
		}

		h.Broadcast(&OutboundMessage{
			Type:    MsgExtensionStatus,
			Payload: h.statusPayload(status),
		})
		return nil
	})

	h.eventService.Subscribe(interfaces.EventJobProgress, func(ctx context.Context, event interfaces.Event) error {
		progress, ok := event.Payload.(models.JobProgress)
		if !ok {
			h.logger.Warn().Msg("Invalid job progress event payload type")
			return nil
		}

		if !h.eventAllowed("job_progress") {
			return nil
		}

		// Terminal steps always go out so clients never miss the final state
		terminal := progress.Step == models.StepComplete || progress.Step == models.StepFailed
		if !terminal && h.progressThrottler != nil && !h.progressThrottler.Allow() {
			return nil
		}

		h.Broadcast(&OutboundMessage{
			Type: MsgJobProgress,
			Payload: ProgressPayload{
				JobID:    strconv.FormatUint(progress.JobID, 10),
				Status:   string(progress.Step),
				Progress: progress.Progress,
				Message:  progress.Message,
			},
		})
		return nil
	})

	h.eventService.Subscribe(interfaces.EventJobCompleted, func(ctx context.Context, event interfaces.Event) error {
		result, ok := event.Payload.(*models.JobResult)
		if !ok {
			h.logger.Warn().Msg("Invalid job completed event payload type")
			return nil
		}

		if !h.eventAllowed("job_completed") {
			return nil
		}

		jobID := strconv.FormatUint(result.JobID, 10)
		if !result.Success {
			h.Broadcast(&OutboundMessage{
				Type: MsgJobFailed,
				Payload: FailedPayload{
					JobID: jobID,
					Error: result.Error,
				},
			})
			return nil
		}

		proofData := ""
		if result.Proof != nil {
			proofData = result.Proof.Data
		}
		h.Broadcast(&OutboundMessage{
			Type: MsgJobCompleted,
			Payload: CompletedPayload{
				JobID:         jobID,
				ResultPayload: result.ResultPayload,
				ProofData:     proofData,
				TxHash:        result.TxHash,
			},
		})
		return nil
	})

	h.eventService.Subscribe(interfaces.EventQueueChanged, func(ctx context.Context, event interfaces.Event) error {
		jobs, ok := event.Payload.([]*models.JobWithSpec)
		if !ok {
			h.logger.Warn().Msg("Invalid queue changed event payload type")
			return nil
		}

		if !h.eventAllowed("queue_changed") {
			return nil
		}

		summaries := make([]QueuedJobSummary, 0, len(jobs))
		for _, job := range jobs {
			bounty := "0"
			if job.Bounty != nil {
				bounty = job.Bounty.String()
			}
			summaries = append(summaries, QueuedJobSummary{
				JobID:      strconv.FormatUint(job.JobID, 10),
				SpecID:     job.SpecID,
				MainDomain: job.MainDomain,
				Bounty:     bounty,
			})
		}

		h.Broadcast(&OutboundMessage{
			Type: MsgQueueChanged,
			Payload: map[string]interface{}{
				"jobs":  summaries,
				"count": len(summaries),
			},
		})
		return nil
	})
}
