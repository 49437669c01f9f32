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

const (
	defaultActivityLimit = 7
	maxActivityLimit     = 100
)

// ActivityReader is satisfied by db.ActivityStore.
type ActivityReader interface {
	ListRecent(ctx context.Context, limit int) ([]types.Activity, error)
	Detail(ctx context.Context, id int64) (*types.Activity, error)
}

// ActivityHandler serves stored runs.
type ActivityHandler struct {
	reader ActivityReader
	logger *slog.Logger
}

func NewActivityHandler(reader ActivityReader, logger *slog.Logger) *ActivityHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ActivityHandler{reader: reader, logger: logger}
}

func (h *ActivityHandler) RegisterRoutes(r chi.Router) {
	r.Get("/activities", h.HandleList)
	r.Get("/activities/{id}", h.HandleGet)
}

// HandleList handles GET /v1/activities?limit=N, newest first.
func (h *ActivityHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	limit := defaultActivityLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxActivityLimit {
			core.Error(w, r, types.NewAppErrorWithDetails(
				types.ErrCodeValidationLimit,
				"limit must be an integer between 1 and 100",
				nil,
				map[string]any{"limit": raw},
			))
			return
		}
		limit = n
	}

	activities, err := h.reader.ListRecent(r.Context(), limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "listing activities failed", "error", err)
		core.Error(w, r, err)
		return
	}
	if activities == nil {
		activities = []types.Activity{}
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: activities})
}

// HandleGet handles GET /v1/activities/{id}, including splits and best
// efforts.
func (h *ActivityHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		core.Error(w, r, types.NewAppErrorWithDetails(
			types.ErrCodeValidationActivityID,
			"activity id must be a positive integer",
			nil,
			map[string]any{"id": raw},
		))
		return
	}

	activity, err := h.reader.Detail(r.Context(), id)
	if err != nil {
		if !types.HasCode(err, types.ErrCodeNotFoundActivity) {
			h.logger.ErrorContext(r.Context(), "loading activity failed", "activity_id", id, "error", err)
		}
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: activity})
}
