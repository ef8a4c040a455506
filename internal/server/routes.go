package server

import (
	"net/http"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// WebSocket route (web app protocol)
	mux.HandleFunc("/ws", s.app.WebSocketHandler.HandleWebSocket)

	// API routes - Status
	mux.HandleFunc("/api/status", s.app.StatusHandler.StatusHandler)

	// API routes - Worker control
	mux.HandleFunc("/api/worker/start", s.app.WorkerHandler.StartHandler)
	mux.HandleFunc("/api/worker/stop", s.app.WorkerHandler.StopHandler)
	mux.HandleFunc("/api/worker/tab/open", s.app.WorkerHandler.OpenTabHandler)
	mux.HandleFunc("/api/worker/tab/close", s.app.WorkerHandler.CloseTabHandler)
	mux.HandleFunc("/api/worker/auto", s.app.WorkerHandler.AutoModeHandler)
	mux.HandleFunc("/api/worker/process-one", s.app.WorkerHandler.ProcessOneHandler)
	mux.HandleFunc("/api/worker/queue", s.app.WorkerHandler.QueueHandler)

	// API routes - Configuration (GET reads, POST saves chain settings)
	mux.HandleFunc("/api/config", s.app.ConfigHandler.ConfigHandler)

	// API routes - System
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)
	mux.HandleFunc("/api/health", s.app.APIHandler.HealthHandler)

	// 404 handler for unmatched API routes
	mux.HandleFunc("/api/", s.app.APIHandler.NotFoundHandler)

	return mux
}
