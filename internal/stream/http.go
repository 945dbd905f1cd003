package stream

import (
	"errors"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/your-org/streamforge/internal/video"
	"github.com/your-org/streamforge/pkg/httputil"
	"github.com/your-org/streamforge/pkg/metrics"
)

// HTTPHandler serves asset files under basePath.
type HTTPHandler struct {
	server   *Server
	basePath string
	logger   *zap.Logger
}

func NewHTTPHandler(server *Server, basePath string, logger *zap.Logger) *HTTPHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPHandler{server: server, basePath: path.Join("/", basePath), logger: logger}
}

func (h *HTTPHandler) Register(r chi.Router) {
	r.Get(path.Join(h.basePath, "{id}", "{filename}"), h.handleStream)
}

func (h *HTTPHandler) handleStream(w http.ResponseWriter, r *http.Request) {
	id, err1 := url.PathUnescape(chi.URLParam(r, "id"))
	filename, err2 := url.PathUnescape(chi.URLParam(r, "filename"))
	if err1 != nil || err2 != nil {
		h.notFound(w)
		return
	}
	logger := h.logger.With(zap.String("asset_id", id), zap.String("file", filename))

	res, err := h.server.Resolve(r.Context(), id, filename)
	switch {
	case errors.Is(err, video.ErrNotFound):
		h.notFound(w)
		return
	case errors.Is(err, ErrForbidden):
		logger.Warn("rejected path outside asset directory")
		metrics.StreamResponsesTotal.WithLabelValues("forbidden").Inc()
		httputil.WriteError(w, http.StatusForbidden, "access denied")
		return
	case err != nil:
		logger.Error("resolve stream file", zap.Error(err))
		metrics.StreamResponsesTotal.WithLabelValues("error").Inc()
		httputil.WriteError(w, http.StatusInternalServerError, "failed to stream video")
		return
	}

	if res.Redirect() {
		metrics.StreamResponsesTotal.WithLabelValues("redirect").Inc()
		http.Redirect(w, r, res.RedirectURL, http.StatusFound)
		return
	}

	f, err := os.Open(res.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			h.notFound(w)
			return
		}
		logger.Error("open stream file", zap.Error(err))
		metrics.StreamResponsesTotal.WithLabelValues("error").Inc()
		httputil.WriteError(w, http.StatusInternalServerError, "failed to stream video")
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		logger.Error("stat stream file", zap.Error(err))
		metrics.StreamResponsesTotal.WithLabelValues("error").Inc()
		httputil.WriteError(w, http.StatusInternalServerError, "failed to stream video")
		return
	}

	w.Header().Set("Content-Type", res.ContentType)
	if res.ContentType == ContentTypePlaylist {
		w.Header().Set("Cache-Control", "no-cache")
	}
	metrics.StreamResponsesTotal.WithLabelValues("file").Inc()
	http.ServeContent(w, r, filepath.Base(res.Path), info.ModTime(), f)
}

func (h *HTTPHandler) notFound(w http.ResponseWriter) {
	metrics.StreamResponsesTotal.WithLabelValues("not_found").Inc()
	httputil.WriteError(w, http.StatusNotFound, "file not found")
}
