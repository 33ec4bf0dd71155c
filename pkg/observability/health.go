package observability

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// HealthStatus represents the health status of the service
type HealthStatus struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
}

// HealthChecker manages health checks for the service
type HealthChecker struct {
	dbPool      *pgxpool.Pool
	mongoClient *mongo.Client
}

// NewHealthChecker creates a new HealthChecker
func NewHealthChecker(dbPool *pgxpool.Pool, mongoClient *mongo.Client) *HealthChecker {
	return &HealthChecker{
		dbPool:      dbPool,
		mongoClient: mongoClient,
	}
}

// Check performs health checks and returns the status
func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	checks := make(map[string]string)
	overallStatus := "healthy"

	checkCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if h.dbPool != nil {
		if err := h.dbPool.Ping(checkCtx); err != nil {
			checks["database"] = "unhealthy: " + err.Error()
			overallStatus = "unhealthy"
		} else {
			checks["database"] = "healthy"
		}
	} else {
		checks["database"] = "not configured"
	}

	// Archive store is a side-effect collaborator; an outage degrades but
	// does not fail payments, so report it without flipping overall status
	if h.mongoClient != nil {
		if err := h.mongoClient.Ping(checkCtx, readpref.Primary()); err != nil {
			checks["archive"] = "unhealthy: " + err.Error()
		} else {
			checks["archive"] = "healthy"
		}
	} else {
		checks["archive"] = "not configured"
	}

	return HealthStatus{
		Status:    overallStatus,
		Timestamp: time.Now(),
		Checks:    checks,
	}
}

// HealthHandler returns an HTTP handler for health checks
func (h *HealthChecker) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := h.Check(r.Context())

		w.Header().Set("Content-Type", "application/json")
		if status.Status != "healthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}

		json.NewEncoder(w).Encode(status)
	}
}
