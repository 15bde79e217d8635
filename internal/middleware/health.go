package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// HealthChecker defines interface for health checking
type HealthChecker interface {
	Check(ctx context.Context) error
}

// Pinger is anything with a Ping, e.g. a kv.Store
type Pinger interface {
	Ping(ctx context.Context) error
}

// StoreHealthChecker checks the cache backend
type StoreHealthChecker struct {
	Store Pinger
}

func (s *StoreHealthChecker) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.Store.Ping(ctx)
}

// HealthStatus represents the health status
type HealthStatus struct {
	Status     string                 `json:"status"`
	Timestamp  time.Time              `json:"timestamp"`
	PanelsOpen int                    `json:"panels_open"`
	Checks     map[string]CheckStatus `json:"checks"`
}

// CheckStatus represents individual check status
type CheckStatus struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// Health serves the liveness, readiness and dependency endpoints.
// Readiness turns false once Drain is called so balancers stop routing new panels here.
type Health struct {
	Checks map[string]HealthChecker
	Panels func() int

	draining atomic.Bool
}

func (h *Health) Drain() { h.draining.Store(true) }

// Healthz runs every check concurrently; any failure answers 503.
func (h *Health) Healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	health := HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now(),
		Checks:    make(map[string]CheckStatus, len(h.Checks)),
	}
	if h.Panels != nil {
		health.PanelsOpen = h.Panels()
	}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for name, checker := range h.Checks {
		wg.Add(1)
		go func(name string, checker HealthChecker) {
			defer wg.Done()
			st := CheckStatus{Status: "healthy"}
			if err := checker.Check(ctx); err != nil {
				st = CheckStatus{Status: "unhealthy", Message: err.Error()}
			}
			mu.Lock()
			health.Checks[name] = st
			if st.Status != "healthy" {
				health.Status = "unhealthy"
			}
			mu.Unlock()
		}(name, checker)
	}
	wg.Wait()

	statusCode := http.StatusOK
	if health.Status != "healthy" {
		statusCode = http.StatusServiceUnavailable
	}
	writeHealth(w, statusCode, health)
}

// Readyz is cheap: no dependency calls, only the drain flag
func (h *Health) Readyz(w http.ResponseWriter, r *http.Request) {
	status, code := "ready", http.StatusOK
	if h.draining.Load() {
		status, code = "draining", http.StatusServiceUnavailable
	}
	writeHealth(w, code, map[string]any{
		"status":    status,
		"timestamp": time.Now(),
	})
}

// Livez answers as long as the process serves HTTP
func (h *Health) Livez(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func writeHealth(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
