package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"runcoach/internal/types"
)

// GoalRepository stores the athlete's training goal. Every Save appends a row;
// the newest row is the current goal.
type GoalRepository struct {
	db DBTX
}

// NewGoalRepository creates a new GoalRepository.
func NewGoalRepository(db DBTX) *GoalRepository {
	return &GoalRepository{db: db}
}

// Latest returns the current goal, or nil when none was ever set.
func (r *GoalRepository) Latest(ctx context.Context) (*types.Goal, error) {
	var g types.Goal
	err := r.db.QueryRow(ctx,
		`SELECT id, goal, created_at
		 FROM user_goals
		 ORDER BY created_at DESC, id DESC
		 LIMIT 1`,
	).Scan(&g.ID, &g.Narrative, &g.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to load goal", err)
	}
	return &g, nil
}

// Save records narrative as the new current goal.
func (r *GoalRepository) Save(ctx context.Context, narrative string) (*types.Goal, error) {
	g := types.Goal{Narrative: narrative}
	err := r.db.QueryRow(ctx,
		`INSERT INTO user_goals (goal) VALUES ($1) RETURNING id, created_at`,
		narrative,
	).Scan(&g.ID, &g.CreatedAt)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to save goal", err)
	}
	return &g, nil
}
