package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"runcoach/internal/core"
	"runcoach/internal/types"
)

// StatsReader is satisfied by db.StatsRepository.
type StatsReader interface {
	Overview(ctx context.Context, now time.Time) ([]types.PeriodStats, error)
	Period(ctx context.Context, period string, now time.Time) (*types.PeriodStats, error)
}

// StatsHandler serves per-period averages over stored runs.
type StatsHandler struct {
	reader    StatsReader
	validator *core.Validator
	logger    *slog.Logger
	now       func() time.Time
}

func NewStatsHandler(reader StatsReader, val *core.Validator, logger *slog.Logger) *StatsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &StatsHandler{reader: reader, validator: val, logger: logger, now: time.Now}
}

func (h *StatsHandler) RegisterRoutes(r chi.Router) {
	r.Get("/stats", h.HandleGet)
}

type statsQuery struct {
	Period string `json:"period" validate:"omitempty,stats_period"`
}

// HandleGet handles GET /v1/stats. Without ?period it returns every period
// in display order.
func (h *StatsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	q := statsQuery{Period: r.URL.Query().Get("period")}
	if err := h.validator.ValidateStruct(q); err != nil {
		core.Error(w, r, err)
		return
	}

	now := h.now().UTC()
	if q.Period == "" {
		overview, err := h.reader.Overview(r.Context(), now)
		if err != nil {
			h.logger.ErrorContext(r.Context(), "stats overview failed", "error", err)
			core.Error(w, r, err)
			return
		}
		core.JSON(w, r, http.StatusOK, core.APIResponse{Data: overview})
		return
	}

	stats, err := h.reader.Period(r.Context(), q.Period, now)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "period stats failed", "period", q.Period, "error", err)
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: stats})
}
