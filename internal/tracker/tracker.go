// Package tracker reports the processing state of uploaded videos to
// polling clients.
package tracker

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/your-org/streamforge/internal/video"
	"github.com/your-org/streamforge/pkg/httputil"
)

// JobStatus is the last durable state of an upload.
type JobStatus struct {
	ID               string       `json:"id"`
	Title            string       `json:"title"`
	ProcessingStatus video.Status `json:"processing_status"`
	VideoURL         string       `json:"video_url"`
}

// Tracker reads job state from the video store. It never retries and has no
// view of running jobs.
type Tracker struct {
	store video.Store
}

// New constructs a Tracker backed by store.
func New(store video.Store) *Tracker {
	return &Tracker{store: store}
}

// Status returns video.ErrNotFound for unknown ids.
func (t *Tracker) Status(ctx context.Context, id string) (JobStatus, error) {
	asset, err := t.store.Get(ctx, id)
	if err != nil {
		return JobStatus{}, err
	}
	st := JobStatus{
		ID:               asset.ID,
		Title:            asset.Title,
		ProcessingStatus: asset.Status,
	}
	if asset.Status == video.StatusCompleted {
		st.VideoURL = asset.SourceURL
	}
	return st, nil
}

// HTTPHandler serves the status endpoint.
type HTTPHandler struct {
	tracker *Tracker
	logger  *zap.Logger
}

func NewHTTPHandler(tracker *Tracker, logger *zap.Logger) *HTTPHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPHandler{tracker: tracker, logger: logger}
}

func (h *HTTPHandler) Register(r chi.Router) {
	r.Get("/api/v1/uploads/{id}/status", h.handleStatus)
}

func (h *HTTPHandler) handleStatus(w http.ResponseWriter, r *http.Request) {
	id, err := url.PathUnescape(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, http.StatusNotFound, "video not found")
		return
	}
	st, err := h.tracker.Status(r.Context(), id)
	switch {
	case errors.Is(err, video.ErrNotFound):
		httputil.WriteError(w, http.StatusNotFound, "video not found")
	case err != nil:
		h.logger.Error("status lookup failed", zap.String("asset_id", id), zap.Error(err))
		httputil.WriteError(w, http.StatusInternalServerError, "failed to check status")
	default:
		w.Header().Set("Cache-Control", "no-store")
		httputil.WriteJSON(w, http.StatusOK, st)
	}
}
