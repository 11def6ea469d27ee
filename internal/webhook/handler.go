// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package webhook receives chat gateway deliveries. Every POST is
// acknowledged at once and handed to the pipeline on its own goroutine.
package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/bcem/watchfeed/internal/pipeline"
)

// maxBodyBytes bounds a single delivery.
const maxBodyBytes = 8 << 20

// Processor is the part of the pipeline the handler drives.
type Processor interface {
	Process(ctx context.Context, body []byte) pipeline.Result
	Status() pipeline.Status
}

// Handler serves the webhook and status endpoints.
type Handler struct {
	processor Processor
	health    func(ctx context.Context) error
	inflight  sync.WaitGroup
}

// NewHandler creates a handler that feeds deliveries to p.
func NewHandler(p Processor) *Handler {
	return &Handler{processor: p}
}

// ServeWebhook handles POST /webhook and POST /webhook/{event}.
//
// The provider retries on anything but a fast 2xx, so the response never
// depends on the body: malformed or unsupported deliveries are acked and
// dropped by the pipeline with a tagged reason.
func (h *Handler) ServeWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusOK)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		slog.Error("failed to read webhook body", "error", err)
		writeJSON(w, http.StatusOK, map[string]string{"status": "received"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "received"})

	if h.processor == nil {
		return
	}
	event := r.PathValue("event")
	h.inflight.Add(1)
	go h.process(context.Background(), event, body)
}

func (h *Handler) process(ctx context.Context, event string, body []byte) {
	defer h.inflight.Done()
	defer func() {
		if v := recover(); v != nil {
			slog.Error("webhook processing panicked", "event", event, "panic", fmt.Sprint(v))
		}
	}()

	res := h.processor.Process(ctx, body)
	slog.Debug("webhook processed",
		"event", event,
		"disposition", res.Disposition,
		"reason", res.Reason,
		"message_id", res.MessageID,
	)
}

// ServeStatus handles GET /status.
func (h *Handler) ServeStatus(w http.ResponseWriter, r *http.Request) {
	if h.processor == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "starting"})
		return
	}
	writeJSON(w, http.StatusOK, h.processor.Status())
}

// SetHealthCheck installs the dependency probe served on GET /health.
func (h *Handler) SetHealthCheck(check func(ctx context.Context) error) {
	h.health = check
}

// ServeHealth handles GET /health.
func (h *Handler) ServeHealth(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		if err := h.health(r.Context()); err != nil {
			slog.Warn("health check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// Wait blocks until background processing started by ServeWebhook has
// finished.
func (h *Handler) Wait() {
	h.inflight.Wait()
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("failed to write response", "error", err)
	}
}

// Routes registers the handler's endpoints on a new mux.
func Routes(h *Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/webhook", h.ServeWebhook)
	mux.HandleFunc("/webhook/{event}", h.ServeWebhook)
	mux.HandleFunc("GET /status", h.ServeStatus)
	mux.HandleFunc("GET /health", h.ServeHealth)
	return mux
}

// Serve starts the webhook HTTP server on the given port.
// It binds the port immediately and signals readiness via the returned channel
// before starting to accept connections. On ctx cancellation the server
// stops accepting requests and waits up to drain for in-flight processing.
func Serve(ctx context.Context, port int, handler *Handler, drain time.Duration) (<-chan struct{}, <-chan struct{}, error) {
	server := &http.Server{
		Handler:           Routes(handler),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, nil, fmt.Errorf("bind webhook port %d: %w", port, err)
	}

	ready := make(chan struct{})
	done := make(chan struct{})

	go func() {
		<-ctx.Done()
		slog.Info("webhook server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), drain)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Warn("webhook server shutdown incomplete", "error", err)
		}

		waited := make(chan struct{})
		go func() {
			handler.Wait()
			close(waited)
		}()
		select {
		case <-waited:
		case <-shutdownCtx.Done():
			slog.Warn("in-flight webhook processing abandoned")
		}
		close(done)
	}()

	go func() {
		slog.Info("webhook server listening", "port", port)
		close(ready)
		if err := server.Serve(ln); err != http.ErrServerClosed {
			slog.Error("webhook server error", "error", err)
		}
	}()

	return ready, done, nil
}
