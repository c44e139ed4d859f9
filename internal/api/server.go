// Package api exposes the tracker over HTTP: health, metrics, cached views,
// refresh control and a server-sent progress stream.
package api

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"solana-wallet-tracker/internal/observability"
)

// NewServer creates an HTTP server with all routes configured.
func NewServer(addr string, h *Handler) *http.Server {
	return &http.Server{
		Addr:        addr,
		Handler:     h.Routes(),
		ReadTimeout: 15 * time.Second,
		// WriteTimeout stays unset: /api/progress is long-lived.
		IdleTimeout: 60 * time.Second,
	}
}

// Routes returns the request multiplexer.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("GET /metrics", observability.Handler())
	mux.HandleFunc("GET /status", h.GetStatus)

	mux.HandleFunc("GET /api/instant", h.GetInstant)
	mux.HandleFunc("GET /api/view", h.GetView)
	mux.HandleFunc("GET /api/progress", h.StreamProgress)
	mux.HandleFunc("GET /api/projects", h.ListProjects)
	mux.HandleFunc("POST /api/projects/{id}/load", h.PostLoadProject)
	mux.HandleFunc("POST /api/refresh", h.PostRefresh)
	mux.HandleFunc("POST /api/cancel", h.PostCancel)
	mux.HandleFunc("POST /api/force-full", h.PostForceFull)
	mux.HandleFunc("POST /api/deep/{wallet}", h.PostDeepFetch)
	return logRequests(h.logger, mux)
}

func logRequests(logger *zap.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logger.Debug("request", zap.String("method", r.Method), zap.String("path", r.URL.Path),
			zap.Duration("took", time.Since(start)))
	})
}
