// Package handler implements the admin API endpoints.
package handler

import (
	"net/http"
	"time"

	"github.com/ddareungi/ddareungi/internal/api/response"
	"github.com/ddareungi/ddareungi/internal/upstream"
)

// OpsHandler serves health and readiness.
type OpsHandler struct {
	version   string
	buildTime string
	startedAt time.Time
	upstreams *upstream.Registry
}

// NewOpsHandler creates an ops handler.
func NewOpsHandler(version, buildTime string, upstreams *upstream.Registry) *OpsHandler {
	return &OpsHandler{
		version:   version,
		buildTime: buildTime,
		startedAt: time.Now(),
		upstreams: upstreams,
	}
}

type upstreamHealth struct {
	Name          string     `json:"name"`
	Healthy       bool       `json:"healthy"`
	CircuitState  string     `json:"circuit_state"`
	LastSuccessAt *time.Time `json:"last_success_at,omitempty"`
	LastFailureAt *time.Time `json:"last_failure_at,omitempty"`
	LastError     string     `json:"last_error,omitempty"`
}

type healthResponse struct {
	Status    string           `json:"status"`
	Version   string           `json:"version"`
	BuildTime string           `json:"build_time,omitempty"`
	UptimeSec int64            `json:"uptime_sec"`
	Upstreams []upstreamHealth `json:"upstreams"`
}

// HealthCheck reports process liveness plus the state of every upstream.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:    "ok",
		Version:   h.version,
		BuildTime: h.buildTime,
		UptimeSec: int64(time.Since(h.startedAt) / time.Second),
	}

	status := http.StatusOK
	for _, hs := range h.upstreams.AllHealth() {
		entry := upstreamHealth{
			Name:          hs.Name,
			Healthy:       hs.Healthy(),
			CircuitState:  hs.CircuitState.String(),
			LastSuccessAt: hs.LastSuccessAt,
			LastFailureAt: hs.LastFailureAt,
			LastError:     hs.LastError,
		}
		if !entry.Healthy {
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
		}
		resp.Upstreams = append(resp.Upstreams, entry)
	}

	response.JSON(w, r, status, resp)
}
