package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"advising-workers/internal/models"
)

type ProfileRepository struct {
	q Querier
}

func NewProfileRepository(q Querier) *ProfileRepository {
	return &ProfileRepository{q: q}
}

func (r *ProfileRepository) Get(ctx context.Context, userID string) (*models.UserProfile, error) {
	var (
		p         models.UserProfile
		email     sql.NullString
		gpa       sql.NullFloat64
		budgetMin sql.NullFloat64
		budgetMax sql.NullFloat64
		field     sql.NullString
	)
	err := r.q.QueryRowContext(ctx, `
		SELECT user_id, email, gpa, budget_min, budget_max, preferred_countries, target_field, stage
		FROM user_profiles WHERE user_id = $1`, userID,
	).Scan(&p.UserID, &email, &gpa, &budgetMin, &budgetMax, pq.Array(&p.PreferredCountries), &field, &p.Stage)
	if err != nil {
		return nil, translate(err)
	}

	p.Email = email.String
	p.GPA = gpa.Float64
	p.BudgetMin = budgetMin.Float64
	p.BudgetMax = budgetMax.Float64
	p.TargetField = field.String
	p.PreferredCountries = nonNil(p.PreferredCountries)
	return &p, nil
}

// LockStage takes the row lock on the user's profile and returns the
// current stage. Only meaningful inside a transaction.
func (r *ProfileRepository) LockStage(ctx context.Context, userID string) (int, error) {
	var stage int
	err := r.q.QueryRowContext(ctx,
		`SELECT stage FROM user_profiles WHERE user_id = $1 FOR UPDATE`, userID,
	).Scan(&stage)
	if err != nil {
		return 0, fmt.Errorf("lock profile %s: %w", userID, translate(err))
	}
	return stage, nil
}

// AdvanceStage moves the user to stage when they are still below it.
// It reports false when the profile was already at or past stage.
func (r *ProfileRepository) AdvanceStage(ctx context.Context, userID string, stage int) (bool, error) {
	var got int
	err := r.q.QueryRowContext(ctx,
		`UPDATE user_profiles SET stage = $2, updated_at = NOW() WHERE user_id = $1 AND stage < $2 RETURNING stage`,
		userID, stage,
	).Scan(&got)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("advance stage: %w", translate(err))
	}
	return got == stage, nil
}
