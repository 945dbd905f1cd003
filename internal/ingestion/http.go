package ingestion

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/your-org/streamforge/pkg/httputil"
)

// multipartOverhead is the body allowance on top of the file limit for form
// fields and part headers.
const multipartOverhead = 1 << 20

// Identity extracts the authenticated uploader from a request. Session
// handling lives in front of this service.
type Identity interface {
	UploaderID(r *http.Request) (string, bool)
}

// HeaderIdentity trusts an uploader id set by an upstream auth proxy.
type HeaderIdentity struct {
	Header string
}

func (h HeaderIdentity) UploaderID(r *http.Request) (string, bool) {
	name := h.Header
	if name == "" {
		name = "X-User-ID"
	}
	id := strings.TrimSpace(r.Header.Get(name))
	return id, id != ""
}

// HTTPHandler exposes the upload endpoints.
type HTTPHandler struct {
	service      *Service
	identity     Identity
	logger       *zap.Logger
	formMemBytes int64
}

// NewHTTPHandler constructs the upload handler.
func NewHTTPHandler(service *Service, identity Identity, logger *zap.Logger, formMemBytes int64) *HTTPHandler {
	if identity == nil {
		identity = HeaderIdentity{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if formMemBytes <= 0 {
		formMemBytes = 32 << 20
	}
	return &HTTPHandler{
		service:      service,
		identity:     identity,
		logger:       logger,
		formMemBytes: formMemBytes,
	}
}

// Register mounts the upload routes on r.
func (h *HTTPHandler) Register(r chi.Router) {
	r.Post("/api/v1/uploads", h.handleUpload)
	r.Post("/api/v1/videos/external", h.handleExternal)
}

func (h *HTTPHandler) handleUpload(w http.ResponseWriter, r *http.Request) {
	uploaderID, ok := h.identity.UploaderID(r)
	if !ok {
		httputil.WriteError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	limit := h.service.MaxSizeBytes() + multipartOverhead
	if r.ContentLength > limit {
		httputil.WriteError(w, http.StatusRequestEntityTooLarge, "payload too large")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	if err := r.ParseMultipartForm(h.formMemBytes); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			httputil.WriteError(w, http.StatusRequestEntityTooLarge, "payload too large")
			return
		}
		httputil.WriteError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll() //nolint:errcheck

	file, header, err := r.FormFile("video")
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "video field is required")
		return
	}
	defer file.Close()

	form := r.MultipartForm.Value
	tags := append(append([]string(nil), form["tags"]...), form["tags[]"]...)

	result, err := h.service.ProcessUpload(r.Context(), file, UploadRequest{
		UploaderID:  uploaderID,
		Title:       r.FormValue("title"),
		Description: r.FormValue("description"),
		Tags:        tags,
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusAccepted, map[string]any{
		"id":      result.ID,
		"status":  result.Status,
		"message": result.Message,
	})
}

type externalRequest struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	URL         string   `json:"url"`
	Tags        []string `json:"tags"`
}

func (h *HTTPHandler) handleExternal(w http.ResponseWriter, r *http.Request) {
	uploaderID, ok := h.identity.UploaderID(r)
	if !ok {
		httputil.WriteError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req externalRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	result, err := h.service.ImportExternal(r.Context(), ExternalImport{
		UploaderID:  uploaderID,
		Title:       req.Title,
		Description: req.Description,
		URL:         req.URL,
		Tags:        req.Tags,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, map[string]any{
		"id":        result.ID,
		"status":    result.Status,
		"video_url": result.VideoURL,
	})
}

func (h *HTTPHandler) writeServiceError(w http.ResponseWriter, err error) {
	var verr *ValidationError
	var maxErr *http.MaxBytesError
	switch {
	case errors.As(err, &verr) && verr.TooLarge, errors.As(err, &maxErr):
		httputil.WriteError(w, http.StatusRequestEntityTooLarge, "file too large")
	case errors.As(err, &verr):
		httputil.WriteError(w, http.StatusBadRequest, verr.Error())
	default:
		h.logger.Error("upload failed", zap.Error(err))
		httputil.WriteError(w, http.StatusInternalServerError, "upload failed")
	}
}
