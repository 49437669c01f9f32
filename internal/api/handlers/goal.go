package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"runcoach/internal/core"
	"runcoach/internal/types"
)

// GoalStore is satisfied by db.GoalRepository.
type GoalStore interface {
	Latest(ctx context.Context) (*types.Goal, error)
	Save(ctx context.Context, narrative string) (*types.Goal, error)
}

// GoalHandler reads and replaces the athlete's training goal. Goals are
// append-only; the newest one is current.
type GoalHandler struct {
	store     GoalStore
	validator *core.Validator
	logger    *slog.Logger
}

func NewGoalHandler(store GoalStore, val *core.Validator, logger *slog.Logger) *GoalHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &GoalHandler{store: store, validator: val, logger: logger}
}

func (h *GoalHandler) RegisterRoutes(r chi.Router) {
	r.Get("/goal", h.HandleGet)
	r.Put("/goal", h.HandlePut)
}

type goalRequest struct {
	Goal string `json:"goal" validate:"required,max=2000"`
}

// HandleGet handles GET /v1/goal.
func (h *GoalHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	goal, err := h.store.Latest(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "loading goal failed", "error", err)
		core.Error(w, r, err)
		return
	}
	if goal == nil {
		core.Error(w, r, types.NewAppError(types.ErrCodeNotFoundGoal, "no goal has been set", nil))
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: goal})
}

// HandlePut handles PUT /v1/goal with {"goal": "..."}.
func (h *GoalHandler) HandlePut(w http.ResponseWriter, r *http.Request) {
	var req goalRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	req.Goal = strings.TrimSpace(req.Goal)
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	goal, err := h.store.Save(r.Context(), req.Goal)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "saving goal failed", "error", err)
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: goal})
}
