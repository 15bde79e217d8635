package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/bryanwahyu/estate-compliance/internal/application/analysis"
	"github.com/bryanwahyu/estate-compliance/internal/domain/compliance"
	"github.com/bryanwahyu/estate-compliance/internal/middleware"
)

var errPanelNotFound = errors.New("panel not found")

// maxBody bounds request bodies
const maxBody = 1 << 16

// Options of the HTTP surface. Every field is optional.
type Options struct {
	Log         *zap.Logger
	Metrics     *middleware.Metrics
	Health      *middleware.Health
	CORSOrigins []string
	APIKeys     map[string]string
	Limiter     *middleware.RateLimiter
}

type Router struct {
	panels *analysis.Registry
	log    *zap.Logger
}

func NewRouter(panels *analysis.Registry, opts Options) http.Handler {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	r := &Router{panels: panels, log: log}
	mux := chi.NewRouter()

	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", middleware.RequestIDHeader},
		ExposedHeaders: []string{middleware.RequestIDHeader},
		MaxAge:         300,
	}))
	mux.Use(middleware.Logging(log))
	if opts.Metrics != nil {
		mux.Use(opts.Metrics.Middleware)
		mux.Method(http.MethodGet, "/metrics", opts.Metrics.Handler())
	}

	health := opts.Health
	if health == nil {
		health = &middleware.Health{Panels: panels.Len}
	}
	mux.Get("/health", health.Livez)
	mux.Get("/healthz", health.Healthz)
	mux.Get("/readyz", health.Readyz)

	mux.Route("/v1/panels/{panel}", func(rt chi.Router) {
		rt.Use(middleware.APIKeyAuth(opts.APIKeys))
		rt.Get("/state", r.wrap(r.handleState))
		rt.Get("/events", r.wrap(r.handleEvents))
		rt.Delete("/", r.wrap(r.handleClose))

		// these start upstream work
		rt.Group(func(rt chi.Router) {
			rt.Use(middleware.RateLimit(opts.Limiter))
			rt.Post("/select", r.wrap(r.handleSelect))
			rt.Post("/retry", r.wrap(r.handleRetry))
			rt.Post("/refresh", r.wrap(r.handleRefresh))
		})
	})

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if err := h(w, req); err != nil {
			if errors.Is(err, middleware.ErrValidation) {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			if errors.Is(err, errPanelNotFound) {
				http.Error(w, "panel not found", http.StatusNotFound)
				return
			}
			r.log.Error("handler failed", zap.String("path", req.URL.Path), zap.Error(err))
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}
}

type selectRequest struct {
	// empty clears the selection
	BuildingID string `json:"building_id" validate:"omitempty,resource_id"`
}

// POST /v1/panels/{panel}/select
// Body: {"building_id": "<id>"}
// Returns immediately with the loading state; the analysis loads in background.
func (r *Router) handleSelect(w http.ResponseWriter, req *http.Request) error {
	panel, err := panelID(req)
	if err != nil {
		return err
	}

	var body selectRequest
	if err := json.NewDecoder(io.LimitReader(req.Body, maxBody)).Decode(&body); err != nil {
		return fmt.Errorf("%w: invalid body: %v", middleware.ErrValidation, err)
	}
	body.BuildingID = middleware.SanitizeString(body.BuildingID)
	if err := middleware.ValidateStruct(body); err != nil {
		return err
	}

	st := r.panels.Open(panel).Select(compliance.SubjectID(body.BuildingID))
	return writeJSON(w, http.StatusAccepted, st)
}

// POST /v1/panels/{panel}/retry
func (r *Router) handleRetry(w http.ResponseWriter, req *http.Request) error {
	o, err := r.panel(req)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusAccepted, o.Retry())
}

// POST /v1/panels/{panel}/refresh
// Drops the cached analysis before loading again.
func (r *Router) handleRefresh(w http.ResponseWriter, req *http.Request) error {
	o, err := r.panel(req)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusAccepted, o.Refresh(req.Context()))
}

// GET /v1/panels/{panel}/state
func (r *Router) handleState(w http.ResponseWriter, req *http.Request) error {
	o, err := r.panel(req)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, o.State())
}

// GET /v1/panels/{panel}/events
// Server-sent events, one "state" event per snapshot until the panel closes.
func (r *Router) handleEvents(w http.ResponseWriter, req *http.Request) error {
	o, err := r.panel(req)
	if err != nil {
		return err
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		return errors.New("streaming unsupported")
	}

	states, stop := o.Subscribe()
	defer stop()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-req.Context().Done():
			return nil
		case st, ok := <-states:
			if !ok {
				return nil
			}
			data, err := json.Marshal(st)
			if err != nil {
				return nil
			}
			if _, err := fmt.Fprintf(w, "event: state\ndata: %s\n\n", data); err != nil {
				return nil
			}
			flusher.Flush()
		}
	}
}

// DELETE /v1/panels/{panel}
func (r *Router) handleClose(w http.ResponseWriter, req *http.Request) error {
	panel, err := panelID(req)
	if err != nil {
		return err
	}
	r.panels.Remove(panel)
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (r *Router) panel(req *http.Request) (*analysis.Orchestrator, error) {
	panel, err := panelID(req)
	if err != nil {
		return nil, err
	}
	o, ok := r.panels.Get(panel)
	if !ok {
		return nil, fmt.Errorf("%w: %s", errPanelNotFound, panel)
	}
	return o, nil
}

func panelID(req *http.Request) (string, error) {
	panel := chi.URLParam(req, "panel")
	if err := middleware.ValidatePanelID(panel); err != nil {
		return "", err
	}
	return panel, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}
