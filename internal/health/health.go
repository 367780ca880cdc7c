// Package health serves the bot's /healthz endpoint.
package health

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"
)

// Pinger is satisfied by every store backend.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server provides HTTP health check endpoints for the bot.
type Server struct {
	store   Pinger
	backend string
	pending func() int
	server  *http.Server
}

// NewServer creates a health server over store. backend names the store in responses;
// pending, if set, reports unflushed transcript lines.
func NewServer(store Pinger, backend string, pending func() int) *Server {
	return &Server{store: store, backend: backend, pending: pending}
}

// Start listens on addr in the background.
func (h *Server) Start(addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.healthCheckHandler)

	h.server = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	go func() {
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("[Health] Server error: %v", err)
		}
	}()

	return nil
}

// Shutdown gracefully shuts down the health check server.
func (h *Server) Shutdown(ctx context.Context) error {
	if h.server == nil {
		return nil
	}
	return h.server.Shutdown(ctx)
}

// healthCheckHandler handles GET /healthz requests.
// Returns 200 OK if the store answers, 503 Service Unavailable otherwise.
func (h *Server) healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	response := Response{
		Status:  "healthy",
		Backend: h.backend,
		Store:   "connected",
	}
	if h.pending != nil {
		response.TranscriptPending = h.pending()
	}

	status := http.StatusOK
	if err := h.store.Ping(ctx); err != nil {
		response.Status = "unhealthy"
		response.Store = "disconnected"
		response.Error = err.Error()
		status = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(response)
}

// Response is the JSON response structure for health checks.
type Response struct {
	Status            string `json:"status"`
	Backend           string `json:"backend,omitempty"`
	Store             string `json:"store,omitempty"`
	TranscriptPending int    `json:"transcript_pending"`
	Error             string `json:"error,omitempty"`
}
