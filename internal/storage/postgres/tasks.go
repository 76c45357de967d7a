package postgres

import (
	"context"
	"fmt"
	"strings"

	"advising-workers/internal/models"
)

const taskColumns = 8

type TaskRepository struct {
	q Querier
}

func NewTaskRepository(q Querier) *TaskRepository {
	return &TaskRepository{q: q}
}

// CreateMany inserts tasks with one statement.
func (r *TaskRepository) CreateMany(ctx context.Context, tasks []models.Task) error {
	if len(tasks) == 0 {
		return nil
	}

	values := make([]string, 0, len(tasks))
	args := make([]interface{}, 0, len(tasks)*taskColumns)
	for i, t := range tasks {
		base := i * taskColumns
		placeholders := make([]string, taskColumns)
		for j := range placeholders {
			placeholders[j] = fmt.Sprintf("$%d", base+j+1)
		}
		values = append(values, "("+strings.Join(placeholders, ", ")+")")
		args = append(args, t.ID, t.UserID, t.UniversityID, t.Title, string(t.Priority), t.Stage, t.DueDate, t.CreatedAt)
	}

	_, err := r.q.ExecContext(ctx,
		`INSERT INTO tasks (id, user_id, university_id, title, priority, stage, due_date, created_at) VALUES `+
			strings.Join(values, ", "),
		args...,
	)
	if err != nil {
		return fmt.Errorf("create tasks: %w", translate(err))
	}
	return nil
}

// TitlesForStage returns the titles of the user's tasks at stage.
func (r *TaskRepository) TitlesForStage(ctx context.Context, userID string, stage int) (map[string]struct{}, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT title FROM tasks WHERE user_id = $1 AND stage = $2`, userID, stage)
	if err != nil {
		return nil, fmt.Errorf("list task titles: %w", err)
	}
	defer rows.Close()

	titles := make(map[string]struct{})
	for rows.Next() {
		var title string
		if err := rows.Scan(&title); err != nil {
			return nil, fmt.Errorf("scan task title: %w", err)
		}
		titles[title] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate task titles: %w", err)
	}
	return titles, nil
}

// DeleteByUniversity removes the user's tasks attached to a university and
// returns how many went.
func (r *TaskRepository) DeleteByUniversity(ctx context.Context, userID, universityID string) (int64, error) {
	res, err := r.q.ExecContext(ctx,
		`DELETE FROM tasks WHERE user_id = $1 AND university_id = $2`, userID, universityID)
	if err != nil {
		return 0, fmt.Errorf("delete university tasks: %w", err)
	}
	return res.RowsAffected()
}
