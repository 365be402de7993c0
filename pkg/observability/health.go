package observability

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"

	"github.com/dineos/accessd/pkg/httputil"
)

// HealthStatus represents the health of a single dependency.
type HealthStatus struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// HealthReport is the full readiness payload.
type HealthReport struct {
	Status string                  `json:"status"`
	Checks map[string]HealthStatus `json:"checks"`
}

// HealthChecker probes service dependencies.
type HealthChecker struct {
	db     *sql.DB
	redis  *redis.Client
	logger *Logger
}

// NewHealthChecker creates a health checker. The redis client may be nil when
// the cache tier is disabled.
func NewHealthChecker(db *sql.DB, redisClient *redis.Client, logger *Logger) *HealthChecker {
	return &HealthChecker{
		db:     db,
		redis:  redisClient,
		logger: logger,
	}
}

// Liveness reports whether the process is running.
func (h *HealthChecker) Liveness(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, HealthStatus{Status: "ok"})
}

// Readiness reports whether the service can serve traffic.
func (h *HealthChecker) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	report := HealthReport{
		Status: "ok",
		Checks: map[string]HealthStatus{},
	}

	report.Checks["database"] = h.checkDatabase(ctx)
	if h.redis != nil {
		report.Checks["redis"] = h.checkRedis(ctx)
	}

	status := http.StatusOK
	for name, check := range report.Checks {
		if check.Status != "ok" {
			report.Status = "degraded"
			status = http.StatusServiceUnavailable
			h.logger.WithField("check", name).Warn("health check failed")
		}
	}

	httputil.WriteJSON(w, status, report)
}

func (h *HealthChecker) checkDatabase(ctx context.Context) HealthStatus {
	if h.db == nil {
		return HealthStatus{Status: "error", Message: "database not configured"}
	}
	if err := h.db.PingContext(ctx); err != nil {
		return HealthStatus{Status: "error", Message: err.Error()}
	}
	return HealthStatus{Status: "ok"}
}

func (h *HealthChecker) checkRedis(ctx context.Context) HealthStatus {
	if err := h.redis.Ping(ctx).Err(); err != nil {
		return HealthStatus{Status: "error", Message: err.Error()}
	}
	return HealthStatus{Status: "ok"}
}

// RegisterHealthRoutes mounts the liveness and readiness endpoints.
func (h *HealthChecker) RegisterHealthRoutes(router *mux.Router) {
	router.HandleFunc("/healthz", h.Liveness).Methods(http.MethodGet)
	router.HandleFunc("/readyz", h.Readiness).Methods(http.MethodGet)
}
