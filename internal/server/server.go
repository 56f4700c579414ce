// Package server exposes the ask pipeline over HTTP: an SSE stream, a
// websocket stream, health and metrics endpoints.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/askstream/askstream/internal/handler"
	"github.com/askstream/askstream/pkg/provider"
)

// Config contains server configuration.
type Config struct {
	Addr      string
	Handler   *handler.Handler
	Retriever provider.Retriever
	Registry  *prometheus.Registry // nil disables /metrics
	Timeout   time.Duration        // per-request handling timeout
}

// Server is the HTTP front end.
type Server struct {
	cfg      Config
	httpSrv  *http.Server
	upgrader websocket.Upgrader
}

// New creates a new server.
func New(cfg Config) *Server {
	if cfg.Timeout == 0 {
		cfg.Timeout = 2 * time.Minute
	}

	s := &Server{
		cfg: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ask", s.handleAsk)
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/health", s.handleHealth)
	if cfg.Registry != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(cfg.Registry, promhttp.HandlerOpts{}))
	}

	s.httpSrv = &http.Server{
		Addr:    cfg.Addr,
		Handler: mux,
	}
	return s
}

// Start runs the server until the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", s.cfg.Addr)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// handleAsk serves one ask request. With streaming (the default) messages
// arrive as SSE frames; with streaming=false the final set is returned as a
// single JSON document.
func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	values := r.URL.Query()
	ask := handler.AskRequestFromValues(values)
	streaming := handler.GetBoolParam(values, "streaming", true)

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.Timeout)
	defer cancel()

	if !streaming {
		sink := &bufferSink{}
		req, err := s.cfg.Handler.Handle(ctx, ask, sink)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		payloads := make([]any, 0, len(req.Final()))
		for _, res := range req.Final() {
			payloads = append(payloads, res.Payload())
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"results": payloads})
		return
	}

	sink, err := newSSESink(w)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if _, err := s.cfg.Handler.Handle(ctx, ask, sink); err != nil {
		// Headers are already out; all we can do is log.
		slog.Warn("ask failed", "query", ask.Query, "error", err)
	}
}

// handleWS serves one ask request over a websocket.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ask := handler.AskRequestFromValues(r.URL.Query())

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.Timeout)
	defer cancel()

	if _, err := s.cfg.Handler.Handle(ctx, ask, newWSSink(conn)); err != nil {
		slog.Warn("ask failed", "query", ask.Query, "error", err)
	}
}

// handleHealth reports store reachability.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{"status": "ok"}

	if s.cfg.Retriever != nil {
		stats, err := s.cfg.Retriever.Stats(r.Context())
		if err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			status["status"] = "degraded"
			status["error"] = err.Error()
		} else {
			status["documents"] = stats.Documents
			status["sites"] = stats.Sites
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}
