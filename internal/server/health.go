package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
)

const healthTimeout = 2 * time.Second

// HealthResponse reports each dependency as "ok" or "unavailable".
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// handleHealth pings the store and Redis concurrently.
//
// HTTP: GET /health → 200 when both answer, 503 otherwise.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	// Each probe reports into its own variable and never returns an error to
	// the group, so one failure does not cancel the other probe.
	var dbErr, redisErr error
	var g errgroup.Group
	g.Go(func() error {
		dbErr = s.store.Ping(ctx)
		return nil
	})
	g.Go(func() error {
		redisErr = s.rdb.Ping(ctx).Err()
		return nil
	})
	_ = g.Wait()

	resp := HealthResponse{
		Status: "ok",
		Checks: map[string]string{"database": "ok", "redis": "ok"},
	}
	status := http.StatusOK
	if dbErr != nil {
		resp.Checks["database"] = "unavailable"
		s.logger.Error("health: database ping failed", slog.Any("error", dbErr))
	}
	if redisErr != nil {
		resp.Checks["redis"] = "unavailable"
		s.logger.Error("health: redis ping failed", slog.Any("error", redisErr))
	}
	if dbErr != nil || redisErr != nil {
		resp.Status = "degraded"
		status = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
