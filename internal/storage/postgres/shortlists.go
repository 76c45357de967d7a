package postgres

import (
	"context"
	"fmt"

	"advising-workers/internal/models"
)

type ShortlistRepository struct {
	q Querier
}

func NewShortlistRepository(q Querier) *ShortlistRepository {
	return &ShortlistRepository{q: q}
}

// Find returns the user's shortlist entry for a university or ErrNotFound.
func (r *ShortlistRepository) Find(ctx context.Context, userID, universityID string) (*models.Shortlist, error) {
	var s models.Shortlist
	err := r.q.QueryRowContext(ctx, `
		SELECT id, user_id, university_id, created_at
		FROM shortlists WHERE user_id = $1 AND university_id = $2`,
		userID, universityID,
	).Scan(&s.ID, &s.UserID, &s.UniversityID, &s.CreatedAt)
	if err != nil {
		return nil, translate(err)
	}
	return &s, nil
}

func (r *ShortlistRepository) Create(ctx context.Context, s *models.Shortlist) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO shortlists (id, user_id, university_id, created_at)
		VALUES ($1, $2, $3, $4)`,
		s.ID, s.UserID, s.UniversityID, s.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create shortlist: %w", translate(err))
	}
	return nil
}

// Delete removes the entry and reports whether one existed.
func (r *ShortlistRepository) Delete(ctx context.Context, userID, universityID string) (bool, error) {
	res, err := r.q.ExecContext(ctx,
		`DELETE FROM shortlists WHERE user_id = $1 AND university_id = $2`,
		userID, universityID,
	)
	if err != nil {
		return false, fmt.Errorf("delete shortlist: %w", translate(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete shortlist: %w", err)
	}
	return n > 0, nil
}
