// Package postgres holds the catalog, profile, shortlist and task
// repositories. Every repository runs against a Querier so the same code
// serves plain connections and transactions.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
)

var (
	ErrNotFound        = errors.New("record not found")
	ErrUniqueViolation = errors.New("unique violation")
)

// Querier is satisfied by *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Universities() *UniversityRepository { return NewUniversityRepository(s.db) }
func (s *Store) Profiles() *ProfileRepository        { return NewProfileRepository(s.db) }
func (s *Store) Shortlists() *ShortlistRepository    { return NewShortlistRepository(s.db) }
func (s *Store) Tasks() *TaskRepository              { return NewTaskRepository(s.db) }

// Tx exposes the repositories bound to one transaction.
type Tx struct {
	Universities *UniversityRepository
	Profiles     *ProfileRepository
	Shortlists   *ShortlistRepository
	Tasks        *TaskRepository
}

// InUserTx runs fn in a transaction that holds the user's profile row lock,
// so shortlist changes and stage moves for one user never interleave. The
// locked stage is passed to fn.
func (s *Store) InUserTx(ctx context.Context, userID string, fn func(ctx context.Context, tx *Tx, stage int) error) (err error) {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = sqlTx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = sqlTx.Rollback()
		}
	}()

	tx := &Tx{
		Universities: NewUniversityRepository(sqlTx),
		Profiles:     NewProfileRepository(sqlTx),
		Shortlists:   NewShortlistRepository(sqlTx),
		Tasks:        NewTaskRepository(sqlTx),
	}

	stage, err := tx.Profiles.LockStage(ctx, userID)
	if err != nil {
		return err
	}

	if err = fn(ctx, tx, stage); err != nil {
		return err
	}

	if err = sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// translate maps driver errors onto the package sentinels.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return fmt.Errorf("%w: %s", ErrUniqueViolation, pqErr.Constraint)
	}
	return err
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// containsPattern builds an ILIKE pattern matching s anywhere.
func containsPattern(s string) string {
	return "%" + likeEscaper.Replace(s) + "%"
}
