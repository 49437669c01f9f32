// Package handlers implements the /v1 HTTP endpoints of runcoach:
//   - sync trigger and status (POST /v1/sync, GET /v1/sync/latest, GET /v1/sync/status)
//   - stored runs (GET /v1/activities, GET /v1/activities/{id})
//   - period statistics (GET /v1/stats)
//   - the training goal (GET /v1/goal, PUT /v1/goal)
package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"runcoach/internal/core"
	"runcoach/internal/types"
)

// SyncService is the part of ingest.Syncer the API drives.
type SyncService interface {
	Start(ctx context.Context, selector string) (string, error)
	Sync(ctx context.Context, selector string) types.SyncResult
	Last() *types.SyncResult
	Running() bool
}

// SyncHandler triggers sync runs and reports on them.
type SyncHandler struct {
	service   SyncService
	validator *core.Validator
	logger    *slog.Logger
}

// NewSyncHandler creates a SyncHandler.
func NewSyncHandler(svc SyncService, val *core.Validator, logger *slog.Logger) *SyncHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SyncHandler{service: svc, validator: val, logger: logger}
}

// RegisterRoutes mounts the sync endpoints on a /v1 router.
func (h *SyncHandler) RegisterRoutes(r chi.Router) {
	r.Post("/sync", h.HandleTrigger)
	r.Get("/sync/latest", h.HandleLatest)
	r.Get("/sync/status", h.HandleStatus)
}

type syncRequest struct {
	Range string `json:"range" validate:"omitempty,sync_range"`
}

type syncAccepted struct {
	RunID string          `json:"run_id"`
	State types.SyncState `json:"state"`
}

type syncStatus struct {
	Running bool              `json:"running"`
	Last    *types.SyncResult `json:"last,omitempty"`
}

// HandleTrigger handles POST /v1/sync. The body is optional; an empty range
// selects the configured default. By default the run is started in the
// background and 202 is returned with its id. With ?wait=true the run
// executes within the request and its result is returned.
func (h *SyncHandler) HandleTrigger(w http.ResponseWriter, r *http.Request) {
	var req syncRequest
	if r.ContentLength != 0 {
		if err := core.DecodeJSON(w, r, &req); err != nil {
			core.Error(w, r, err)
			return
		}
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	wait, _ := strconv.ParseBool(r.URL.Query().Get("wait"))
	if wait {
		res := h.service.Sync(r.Context(), req.Range)
		if res.State == types.SyncStateIdle {
			core.Error(w, r, types.NewAppError(types.ErrCodeConflictSyncRunning, res.Message, nil))
			return
		}
		core.JSON(w, r, http.StatusOK, core.APIResponse{Data: res})
		return
	}

	runID, err := h.service.Start(r.Context(), req.Range)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "sync started", "run_id", runID, "range", req.Range)
	core.JSON(w, r, http.StatusAccepted, core.APIResponse{Data: syncAccepted{
		RunID: runID,
		State: types.SyncStateRunning,
	}})
}

// HandleLatest handles GET /v1/sync/latest.
func (h *SyncHandler) HandleLatest(w http.ResponseWriter, r *http.Request) {
	last := h.service.Last()
	if last == nil {
		core.Error(w, r, types.NewAppError(types.ErrCodeNotFoundSyncRun, "no sync has finished yet", nil))
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: last})
}

// HandleStatus handles GET /v1/sync/status.
func (h *SyncHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: syncStatus{
		Running: h.service.Running(),
		Last:    h.service.Last(),
	}})
}
