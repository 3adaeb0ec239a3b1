package observability

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
)

const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// HealthStatus represents the overall health status.
type HealthStatus struct {
	Status       string                      `json:"status"`
	Timestamp    time.Time                   `json:"timestamp"`
	Version      string                      `json:"version,omitempty"`
	Dependencies map[string]DependencyStatus `json:"dependencies,omitempty"`
}

// DependencyStatus represents the health of a single dependency.
type DependencyStatus struct {
	Status    string    `json:"status"`
	Message   string    `json:"message,omitempty"`
	LatencyMS int64     `json:"latency_ms"`
	Timestamp time.Time `json:"timestamp"`
}

type dependency struct {
	name     string
	required bool
	ping     func(ctx context.Context) error
}

// HealthChecker answers liveness and readiness probes. The database is
// required; Redis only degrades readiness because the limiter fails open.
type HealthChecker struct {
	version string
	deps    []dependency
}

// NewHealthChecker builds a checker. Either dependency may be nil.
func NewHealthChecker(db *sql.DB, rdb *redis.Client, version string) *HealthChecker {
	h := &HealthChecker{version: version}
	if db != nil {
		h.deps = append(h.deps, dependency{name: "database", required: true, ping: db.PingContext})
	}
	if rdb != nil {
		h.deps = append(h.deps, dependency{name: "redis", ping: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
	}
	return h
}

// Check pings every dependency.
func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:       StatusHealthy,
		Timestamp:    time.Now().UTC(),
		Version:      h.version,
		Dependencies: make(map[string]DependencyStatus, len(h.deps)),
	}

	for _, d := range h.deps {
		start := time.Now()
		ds := DependencyStatus{Status: StatusHealthy, Timestamp: start.UTC()}
		if err := d.ping(ctx); err != nil {
			ds.Status = StatusUnhealthy
			ds.Message = err.Error()
			if d.required {
				status.Status = StatusUnhealthy
			} else if status.Status == StatusHealthy {
				status.Status = StatusDegraded
			}
		}
		ds.LatencyMS = time.Since(start).Milliseconds()
		status.Dependencies[d.name] = ds
	}

	return status
}

// Liveness always answers 200 while the process is serving.
func (h *HealthChecker) Liveness(w http.ResponseWriter, r *http.Request) {
	writeHealth(w, http.StatusOK, HealthStatus{
		Status:    StatusHealthy,
		Timestamp: time.Now().UTC(),
		Version:   h.version,
	})
}

// Readiness answers 503 when a required dependency is down.
func (h *HealthChecker) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := h.Check(ctx)
	code := http.StatusOK
	if status.Status == StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	writeHealth(w, code, status)
}

func writeHealth(w http.ResponseWriter, code int, status HealthStatus) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(status)
}

// NewHealthMux serves /healthz, /readyz and, when metrics is non-nil, /metrics.
func NewHealthMux(h *HealthChecker, metrics *Metrics) http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", h.Liveness).Methods(http.MethodGet)
	r.HandleFunc("/readyz", h.Readiness).Methods(http.MethodGet)
	if metrics != nil {
		r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	}
	return r
}
