package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"advising-workers/internal/models"
)

const universityColumns = `id, name, location, country, rank, tuition, acceptance_rate, programs, description, tags, website`

// Filter narrows a catalog scan. Empty fields do not filter.
type Filter struct {
	// Country matches the country column exactly, ignoring case.
	Country string
	// Search matches name, location or any program as a substring.
	Search string
	// NameOrCountry matches name or country as a substring.
	NameOrCountry string
	Limit         int
}

type UniversityRepository struct {
	q Querier
}

func NewUniversityRepository(q Querier) *UniversityRepository {
	return &UniversityRepository{q: q}
}

func (r *UniversityRepository) FindByID(ctx context.Context, id string) (*models.University, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT `+universityColumns+` FROM universities WHERE id = $1`, id)

	u, err := scanUniversity(row)
	if err != nil {
		return nil, translate(err)
	}
	return u, nil
}

// FindByName matches the display name ignoring case and surrounding space.
func (r *UniversityRepository) FindByName(ctx context.Context, name string) (*models.University, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT `+universityColumns+` FROM universities WHERE lower(name) = lower($1) ORDER BY id LIMIT 1`,
		strings.TrimSpace(name))

	u, err := scanUniversity(row)
	if err != nil {
		return nil, translate(err)
	}
	return u, nil
}

// FindByIDs returns the rows for ids in the order of ids. Unknown ids are skipped.
func (r *UniversityRepository) FindByIDs(ctx context.Context, ids []string) ([]models.University, error) {
	if len(ids) == 0 {
		return []models.University{}, nil
	}

	rows, err := r.q.QueryContext(ctx,
		`SELECT `+universityColumns+` FROM universities WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("find universities by id: %w", err)
	}
	found, err := scanUniversities(rows)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]models.University, len(found))
	for _, u := range found {
		byID[u.ID] = u
	}

	out := make([]models.University, 0, len(found))
	for _, id := range ids {
		if u, ok := byID[id]; ok {
			out = append(out, u)
			delete(byID, id)
		}
	}
	return out, nil
}

// FindMany scans the catalog ordered by rank (unranked last) then name.
func (r *UniversityRepository) FindMany(ctx context.Context, f Filter) ([]models.University, error) {
	var (
		where []string
		args  []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if c := strings.TrimSpace(f.Country); c != "" {
		where = append(where, "lower(country) = lower("+arg(c)+")")
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		p := arg(containsPattern(s))
		where = append(where, "(name ILIKE "+p+" OR location ILIKE "+p+
			" OR EXISTS (SELECT 1 FROM unnest(programs) AS program WHERE program ILIKE "+p+"))")
	}
	if s := strings.TrimSpace(f.NameOrCountry); s != "" {
		p := arg(containsPattern(s))
		where = append(where, "(name ILIKE "+p+" OR country ILIKE "+p+")")
	}

	query := `SELECT ` + universityColumns + ` FROM universities`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY rank ASC NULLS LAST, name ASC`
	if f.Limit > 0 {
		query += ` LIMIT ` + arg(f.Limit)
	}

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("find universities: %w", err)
	}
	return scanUniversities(rows)
}

// ListAll returns the whole catalog for reindexing.
func (r *UniversityRepository) ListAll(ctx context.Context) ([]models.University, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT `+universityColumns+` FROM universities ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("list universities: %w", err)
	}
	return scanUniversities(rows)
}

// Create inserts u. The caller assigns the id.
func (r *UniversityRepository) Create(ctx context.Context, u *models.University) error {
	var rank sql.NullInt64
	if u.Rank != nil {
		rank = sql.NullInt64{Int64: int64(*u.Rank), Valid: true}
	}

	_, err := r.q.ExecContext(ctx, `
		INSERT INTO universities (`+universityColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		u.ID, u.Name, u.Location, u.Country, rank, u.Tuition, u.AcceptanceRate,
		pq.Array(nonNil(u.Programs)), u.Description, pq.Array(nonNil(u.Tags)), u.Website,
	)
	if err != nil {
		return fmt.Errorf("create university: %w", translate(err))
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUniversity(row rowScanner) (*models.University, error) {
	var (
		u              models.University
		rank           sql.NullInt64
		location       sql.NullString
		acceptanceRate sql.NullString
		description    sql.NullString
		website        sql.NullString
	)
	err := row.Scan(&u.ID, &u.Name, &location, &u.Country, &rank, &u.Tuition, &acceptanceRate,
		pq.Array(&u.Programs), &description, pq.Array(&u.Tags), &website)
	if err != nil {
		return nil, err
	}

	if rank.Valid {
		v := int(rank.Int64)
		u.Rank = &v
	}
	u.Location = location.String
	u.AcceptanceRate = acceptanceRate.String
	u.Description = description.String
	u.Website = website.String
	u.Programs = nonNil(u.Programs)
	u.Tags = nonNil(u.Tags)
	u.Source = models.SourceLocal
	return &u, nil
}

func scanUniversities(rows *sql.Rows) ([]models.University, error) {
	defer rows.Close()

	out := []models.University{}
	for rows.Next() {
		u, err := scanUniversity(rows)
		if err != nil {
			return nil, fmt.Errorf("scan university: %w", err)
		}
		out = append(out, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate universities: %w", err)
	}
	return out, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
