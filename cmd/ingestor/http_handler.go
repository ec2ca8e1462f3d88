package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/fystack/nft-activity-indexer/internal/pipeline"
	"github.com/fystack/nft-activity-indexer/pkg/common/logger"
)

type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

type APIErrorResponse struct {
	Status    string    `json:"status"`
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

type FlushResponse struct {
	Status  string         `json:"status"`
	Flushed pipeline.Stats `json:"stats"`
}

type httpServer struct {
	server *http.Server
}

type ingestorHTTPHandler struct {
	accumulator *pipeline.Accumulator
}

func (h *ingestorHTTPHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/health", h.HandleHealth)
	mux.HandleFunc("/stats", h.HandleStats)
	mux.HandleFunc("/flush", h.HandleFlush)
}

func (h *ingestorHTTPHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Timestamp: time.Now().UTC()})
}

func (h *ingestorHTTPHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.accumulator.Stats())
}

// HandleFlush forces a flush of the current batch, for operators who
// want the tail committed without waiting out the interval.
func (h *ingestorHTTPHandler) HandleFlush(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErrorJSON(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if err := h.accumulator.Flush(r.Context()); err != nil {
		writeErrorJSON(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, FlushResponse{Status: "ok", Flushed: h.accumulator.Stats()})
}

func startHTTPServer(port int, accumulator *pipeline.Accumulator) *httpServer {
	mux := http.NewServeMux()
	handler := &ingestorHTTPHandler{accumulator: accumulator}
	handler.Register(mux)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	go func() {
		logger.Info("Ingestor HTTP server started",
			"port", port,
			"health_endpoint", "/health",
			"stats_endpoint", "/stats",
			"flush_endpoint", "/flush",
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server failed to start", "error", err)
		}
	}()

	return &httpServer{server: server}
}

func (s *httpServer) Stop(ctx context.Context) {
	if err := s.server.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown failed", "error", err)
	}
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("Failed to encode response", "status", statusCode, "err", err)
	}
}

func writeErrorJSON(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, APIErrorResponse{
		Status:    "error",
		Error:     message,
		Timestamp: time.Now().UTC(),
	})
}
