package handler

import (
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ddareungi/ddareungi/internal/api/response"
	"github.com/ddareungi/ddareungi/internal/coordinator"
	"github.com/ddareungi/ddareungi/internal/session"
	"github.com/ddareungi/ddareungi/internal/station"
)

// Instance bundles what the admin surface exposes for one configured entry.
// Sessions is nil for API-mode instances.
type Instance struct {
	ID          string
	Mode        string
	Coordinator *coordinator.Coordinator
	Sessions    *session.Manager
}

// InstancesHandler serves per-instance snapshots and manual refresh.
type InstancesHandler struct {
	instances map[string]*Instance
}

// NewInstancesHandler creates an instances handler.
func NewInstancesHandler(instances map[string]*Instance) *InstancesHandler {
	return &InstancesHandler{instances: instances}
}

type instanceSummary struct {
	ID           string `json:"id"`
	Mode         string `json:"mode"`
	SessionState string `json:"session_state,omitempty"`
	Generation   uint64 `json:"generation"`
	Cycles       uint64 `json:"cycles"`
	Failures     uint64 `json:"failures"`
}

// List returns a summary of every configured instance.
func (h *InstancesHandler) List(w http.ResponseWriter, r *http.Request) {
	summaries := make([]instanceSummary, 0, len(h.instances))
	for _, inst := range h.instances {
		summaries = append(summaries, h.summarize(inst))
	}
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].ID < summaries[j].ID })
	response.JSON(w, r, http.StatusOK, summaries)
}

func (h *InstancesHandler) summarize(inst *Instance) instanceSummary {
	s := instanceSummary{ID: inst.ID, Mode: inst.Mode}
	if inst.Sessions != nil {
		s.SessionState = string(inst.Sessions.State())
	}
	if snap := inst.Coordinator.Snapshot(); snap != nil {
		s.Generation = snap.Generation
	}
	metrics := inst.Coordinator.Metrics()
	s.Cycles = metrics.Cycles
	s.Failures = metrics.Failures
	return s
}

// Snapshot returns the latest published snapshot for one instance.
func (h *InstancesHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	inst, ok := h.instances[chi.URLParam(r, "instanceID")]
	if !ok {
		response.NotFound(w, r, "unknown instance")
		return
	}
	snap := inst.Coordinator.Snapshot()
	if snap == nil {
		response.NotFound(w, r, "no refresh cycle has completed yet")
		return
	}
	response.JSON(w, r, http.StatusOK, snap)
}

type refreshResponse struct {
	Generation uint64    `json:"generation"`
	Timestamp  time.Time `json:"timestamp"`
	Stale      bool      `json:"stale"`
	Error      string    `json:"error,omitempty"`
}

// Refresh forces a refresh cycle, joining one already in flight. On failure
// the previous snapshot's generation is reported as stale.
func (h *InstancesHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	inst, ok := h.instances[chi.URLParam(r, "instanceID")]
	if !ok {
		response.NotFound(w, r, "unknown instance")
		return
	}

	snap, err := inst.Coordinator.Refresh(r.Context())
	if err != nil {
		if snap == nil {
			response.BadGateway(w, r, err.Error())
			return
		}
		response.JSON(w, r, http.StatusOK, refreshResponse{
			Generation: snap.Generation,
			Timestamp:  snap.Timestamp,
			Stale:      true,
			Error:      err.Error(),
		})
		return
	}
	response.JSON(w, r, http.StatusOK, refreshResponse{
		Generation: snap.Generation,
		Timestamp:  snap.Timestamp,
	})
}

// StationsHandler serves directory lookups.
type StationsHandler struct {
	directory *station.Directory
}

// NewStationsHandler creates a stations handler.
func NewStationsHandler(directory *station.Directory) *StationsHandler {
	return &StationsHandler{directory: directory}
}

type resolveResponse struct {
	Query      string   `json:"query"`
	Kind       string   `json:"kind"`
	Code       string   `json:"code,omitempty"`
	Candidates []string `json:"candidates,omitempty"`
}

// Resolve maps a station token (code or display number) to a canonical code.
func (h *StationsHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		response.Error(w, r, http.StatusBadRequest, "missing q parameter")
		return
	}

	res := h.directory.ResolveAgainst(query)
	resp := resolveResponse{Query: query, Code: res.Code, Candidates: res.Candidates}
	switch res.Kind {
	case station.Resolved:
		resp.Kind = "resolved"
	case station.Ambiguous:
		resp.Kind = "ambiguous"
	default:
		resp.Kind = "not_found"
	}
	response.JSON(w, r, http.StatusOK, resp)
}
