package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"solana-wallet-tracker/internal/domain"
	"solana-wallet-tracker/internal/orchestrator"
	"solana-wallet-tracker/internal/scheduler"
	"solana-wallet-tracker/internal/storage"
	"solana-wallet-tracker/internal/synccache"
)

// Controller is the orchestrator surface used by the handlers.
type Controller interface {
	AssetID() string
	Accounts() []domain.WatchedAccount
	Instant(ctx context.Context) (*synccache.InstantLoad, error)
	View(ctx context.Context) (*orchestrator.Dashboard, error)
	Progress() *orchestrator.Broadcaster
	Running() bool
	LastResult() *orchestrator.Result
	Cancel() bool
	ForceFullRefresh()
	DeepFetch(ctx context.Context, wallet string) (*orchestrator.Result, error)
	LoadProject(ctx context.Context, id string) (*domain.SavedProject, error)
}

// Enqueuer accepts refresh requests; the scheduler coalesces them.
type Enqueuer interface {
	Enqueue(req scheduler.Request)
}

// Handler provides the HTTP endpoints.
type Handler struct {
	ctrl     Controller
	queue    Enqueuer
	projects storage.ProjectStore
	started  time.Time
	logger   *zap.Logger
}

// NewHandler creates a handler. projects may be nil.
func NewHandler(ctrl Controller, queue Enqueuer, projects storage.ProjectStore, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		ctrl:     ctrl,
		queue:    queue,
		projects: projects,
		started:  time.Now(),
		logger:   logger.Named("api"),
	}
}

// StatusResponse is the JSON response for /status.
type StatusResponse struct {
	Status     string               `json:"status"`
	Uptime     string               `json:"uptime"`
	AssetID    string               `json:"assetId"`
	Accounts   int                  `json:"accounts"`
	Running    bool                 `json:"running"`
	Progress   domain.Progress      `json:"progress"`
	LastResult *orchestrator.Result `json:"lastResult,omitempty"`
}

// GetStatus handles GET /status.
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StatusResponse{
		Status:     "ok",
		Uptime:     time.Since(h.started).Round(time.Second).String(),
		AssetID:    h.ctrl.AssetID(),
		Accounts:   len(h.ctrl.Accounts()),
		Running:    h.ctrl.Running(),
		Progress:   h.ctrl.Progress().Last(),
		LastResult: h.ctrl.LastResult(),
	})
}

// GetInstant handles GET /api/instant.
func (h *Handler) GetInstant(w http.ResponseWriter, r *http.Request) {
	load, err := h.ctrl.Instant(r.Context())
	if err != nil {
		h.logger.Error("instant load failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, load)
}

// GetView handles GET /api/view.
func (h *Handler) GetView(w http.ResponseWriter, r *http.Request) {
	d, err := h.ctrl.View(r.Context())
	if err != nil {
		h.logger.Error("view failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// PostRefresh handles POST /api/refresh?foreground=1&force=1.
func (h *Handler) PostRefresh(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := scheduler.Request{
		Foreground: flag(q.Get("foreground")),
		Force:      flag(q.Get("force")),
		Reason:     "api",
	}
	if req.Force && h.ctrl.Cancel() {
		// The scheduler runs cycles serially; stopping the current one lets
		// the forced request take over at the next batch boundary.
		h.logger.Info("forced refresh cancelled the running cycle")
	}
	h.queue.Enqueue(req)
	writeJSON(w, http.StatusAccepted, map[string]any{
		"queued":     true,
		"foreground": req.Foreground,
		"force":      req.Force,
	})
}

// PostCancel handles POST /api/cancel.
func (h *Handler) PostCancel(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"cancelled": h.ctrl.Cancel()})
}

// PostForceFull handles POST /api/force-full.
func (h *Handler) PostForceFull(w http.ResponseWriter, r *http.Request) {
	h.ctrl.ForceFullRefresh()
	writeJSON(w, http.StatusAccepted, map[string]bool{"forceFull": true})
}

// PostDeepFetch handles POST /api/deep/{wallet}. It blocks until the fetch ends.
func (h *Handler) PostDeepFetch(w http.ResponseWriter, r *http.Request) {
	res, err := h.ctrl.DeepFetch(r.Context(), r.PathValue("wallet"))
	switch {
	case errors.Is(err, domain.ErrInvalidAddress):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrRemoteUnavailable):
		writeError(w, http.StatusBadGateway, err.Error())
	case err != nil:
		h.logger.Error("deep fetch failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	default:
		writeJSON(w, http.StatusOK, res)
	}
}

// ListProjects handles GET /api/projects.
func (h *Handler) ListProjects(w http.ResponseWriter, r *http.Request) {
	if h.projects == nil {
		writeError(w, http.StatusNotFound, "projects are not configured")
		return
	}
	ps, err := h.projects.List(r.Context())
	if err != nil {
		h.logger.Error("list projects failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	type summary struct {
		ID        string `json:"id"`
		Name      string `json:"name"`
		AssetID   string `json:"assetId"`
		Wallets   int    `json:"wallets"`
		UpdatedAt int64  `json:"updatedAt"`
	}
	out := make([]summary, 0, len(ps))
	for _, p := range ps {
		out = append(out, summary{ID: p.ID, Name: p.Name, AssetID: p.AssetID, Wallets: len(p.Wallets), UpdatedAt: p.UpdatedAt})
	}
	writeJSON(w, http.StatusOK, out)
}

// PostLoadProject handles POST /api/projects/{id}/load. The project's asset
// and wallets replace the tracked ones and a full foreground refresh is queued.
func (h *Handler) PostLoadProject(w http.ResponseWriter, r *http.Request) {
	if h.projects == nil {
		writeError(w, http.StatusNotFound, "projects are not configured")
		return
	}
	p, err := h.ctrl.LoadProject(r.Context(), r.PathValue("id"))
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "project not found")
		return
	case errors.Is(err, domain.ErrInvalidAddress), errors.Is(err, domain.ErrDuplicateAccount):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		h.logger.Error("load project failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	h.ctrl.Cancel()
	h.queue.Enqueue(scheduler.Request{Foreground: true, Force: true, Reason: "project"})
	h.logger.Info("project loaded", zap.String("project", p.ID), zap.Int("wallets", len(p.Wallets)))
	writeJSON(w, http.StatusOK, map[string]any{
		"id":      p.ID,
		"name":    p.Name,
		"assetId": p.AssetID,
		"wallets": len(p.Wallets),
	})
}

const heartbeatInterval = 20 * time.Second

// StreamProgress handles GET /api/progress as server-sent events. The current
// event is sent first; slow readers miss intermediate events.
func (h *Handler) StreamProgress(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	events, unsubscribe := h.ctrl.Progress().Subscribe(orchestrator.DefaultSubscriberBuffer)
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// comment heartbeat keeps proxies from closing an idle stream
	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case p, ok := <-events:
			if !ok {
				return
			}
			data, err := json.Marshal(p)
			if err != nil {
				h.logger.Warn("encode progress", zap.Error(err))
				continue
			}
			if _, err := fmt.Fprintf(w, "event: progress\ndata: %s\n\n", data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func flag(v string) bool {
	b, err := strconv.ParseBool(v)
	return err == nil && b
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
