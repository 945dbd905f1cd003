// Package api assembles the HTTP surface of the service.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/your-org/streamforge/pkg/httputil"
	"github.com/your-org/streamforge/pkg/metrics"
)

// Routes is implemented by every handler that mounts endpoints.
type Routes interface {
	Register(r chi.Router)
}

type Params struct {
	Handlers []Routes
	// RequestTimeout bounds request contexts; zero disables it.
	RequestTimeout time.Duration
}

// NewRouter wires the shared middleware stack and every handler.
func NewRouter(p Params) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)
	if p.RequestTimeout > 0 {
		r.Use(middleware.Timeout(p.RequestTimeout))
	}

	r.Get("/healthz", handleHealth)
	for _, h := range p.Handlers {
		h.Register(r)
	}
	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}
