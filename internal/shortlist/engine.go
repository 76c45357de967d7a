// Package shortlist adds and removes shortlisted universities and keeps the
// user's checklist tasks and advising stage in step with them.
package shortlist

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"advising-workers/internal/common/aws"
	"advising-workers/internal/common/errors"
	"advising-workers/internal/common/fallback"
	"advising-workers/internal/common/logger"
	"advising-workers/internal/common/metrics"
	"advising-workers/internal/models"
	"advising-workers/internal/storage/postgres"
)

const notifyTimeout = 5 * time.Second

type Action string

const (
	ActionAdded     Action = "added"
	ActionRemoved   Action = "removed"
	ActionUnchanged Action = "unchanged"
)

// Request names the user and university. University carries the directory
// record when UniversityID is an external id.
type Request struct {
	UserID       string             `json:"userId" validate:"required"`
	UniversityID string             `json:"universityId" validate:"required"`
	University   *models.University `json:"university,omitempty"`
}

type Result struct {
	Action         Action            `json:"action"`
	Added          bool              `json:"added"`
	AlreadyPresent bool              `json:"alreadyPresent"`
	Removed        bool              `json:"removed"`
	UniversityID   string            `json:"universityId,omitempty"`
	Shortlist      *models.Shortlist `json:"shortlist,omitempty"`
	// TasksCreated counts the tasks generated for the shortlisted university.
	TasksCreated int   `json:"tasksCreated"`
	TasksDeleted int64 `json:"tasksDeleted"`
	// StageTasksCreated counts stage defaults created when the add advanced the stage.
	StageTasksCreated int  `json:"stageTasksCreated"`
	Stage             int  `json:"stage"`
	StageAdvanced     bool `json:"stageAdvanced"`

	previousStage int
}

// StageNotifier announces stage advancements to other services.
type StageNotifier interface {
	PublishStageAdvanced(ctx context.Context, ev aws.StageEvent) error
}

type Engine struct {
	store    *postgres.Store
	notifier StageNotifier
	validate *validator.Validate
	logger   logger.Logger
	tracer   trace.Tracer
	now      func() time.Time
	newID    func() string
}

type Option func(*Engine)

// WithClock fixes the time used for due dates and timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithIDGenerator(newID func() string) Option {
	return func(e *Engine) { e.newID = newID }
}

// NewEngine builds an engine. notifier may be nil.
func NewEngine(store *postgres.Store, notifier StageNotifier, log logger.Logger, opts ...Option) *Engine {
	e := &Engine{
		store:    store,
		notifier: notifier,
		validate: validator.New(),
		logger:   log.WithFields(map[string]interface{}{"component": "shortlist-engine"}),
		tracer:   otel.Tracer("advising-workers/shortlist"),
		now:      time.Now,
		newID:    func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type operation func(ctx context.Context, tx *postgres.Tx, req Request, stage int) (*Result, error)

func (e *Engine) Add(ctx context.Context, req Request) (*Result, error) {
	return e.run(ctx, "add", req, e.add)
}

func (e *Engine) Remove(ctx context.Context, req Request) (*Result, error) {
	return e.run(ctx, "remove", req, e.remove)
}

// Toggle removes the university when it is shortlisted and adds it otherwise.
func (e *Engine) Toggle(ctx context.Context, req Request) (*Result, error) {
	return e.run(ctx, "toggle", req, e.toggle)
}

func (e *Engine) run(ctx context.Context, name string, req Request, op operation) (*Result, error) {
	ctx, span := e.tracer.Start(ctx, "shortlist."+name, trace.WithAttributes(
		attribute.String("user.id", req.UserID),
		attribute.String("university.id", req.UniversityID),
	))
	defer span.End()

	req.UserID = strings.TrimSpace(req.UserID)
	req.UniversityID = strings.TrimSpace(req.UniversityID)
	if err := e.validate.Struct(req); err != nil {
		return nil, errors.NewValidationError(err.Error())
	}

	var res *Result
	err := e.store.InUserTx(ctx, req.UserID, func(ctx context.Context, tx *postgres.Tx, stage int) error {
		r, err := op(ctx, tx, req, stage)
		res = r
		return err
	})
	if err != nil {
		err = e.classify(req.UserID, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	metrics.ShortlistActions.WithLabelValues(string(res.Action)).Inc()
	if res.TasksCreated > 0 {
		metrics.StageTasksCreated.WithLabelValues("shortlist").Add(float64(res.TasksCreated))
	}
	if res.StageTasksCreated > 0 {
		metrics.StageTasksCreated.WithLabelValues("stage").Add(float64(res.StageTasksCreated))
	}
	if res.StageAdvanced {
		metrics.StageAdvancements.Inc()
		e.announce(req.UserID, res)
	}

	span.SetAttributes(attribute.String("shortlist.action", string(res.Action)), attribute.Int("user.stage", res.Stage))
	logger.WithTrace(ctx, e.logger).Info("shortlist updated", map[string]interface{}{
		"userId":            req.UserID,
		"universityId":      res.UniversityID,
		"action":            res.Action,
		"tasksCreated":      res.TasksCreated,
		"stageTasksCreated": res.StageTasksCreated,
		"tasksDeleted":      res.TasksDeleted,
		"stage":             res.Stage,
		"stageAdvanced":     res.StageAdvanced,
	})
	return res, nil
}

func (e *Engine) classify(userID string, err error) error {
	if _, ok := errors.As(err); ok {
		return err
	}
	if stderrors.Is(err, postgres.ErrNotFound) {
		return errors.NewProfileNotFoundError(userID)
	}
	return errors.NewShortlistUpdateFailedError(err)
}

func (e *Engine) toggle(ctx context.Context, tx *postgres.Tx, req Request, stage int) (*Result, error) {
	u, err := e.lookup(ctx, tx, req)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return e.add(ctx, tx, req, stage)
	}

	_, err = tx.Shortlists.Find(ctx, req.UserID, u.ID)
	switch {
	case err == nil:
		return e.removeResolved(ctx, tx, req.UserID, u.ID, stage)
	case stderrors.Is(err, postgres.ErrNotFound):
		return e.insert(ctx, tx, req.UserID, u, stage)
	default:
		return nil, fmt.Errorf("find shortlist: %w", err)
	}
}

func (e *Engine) add(ctx context.Context, tx *postgres.Tx, req Request, stage int) (*Result, error) {
	u, err := e.resolve(ctx, tx, req)
	if err != nil {
		return nil, err
	}

	existing, err := tx.Shortlists.Find(ctx, req.UserID, u.ID)
	if err == nil {
		return &Result{
			Action:         ActionUnchanged,
			AlreadyPresent: true,
			UniversityID:   u.ID,
			Shortlist:      existing,
			Stage:          stage,
			previousStage:  stage,
		}, nil
	}
	if !stderrors.Is(err, postgres.ErrNotFound) {
		return nil, fmt.Errorf("find shortlist: %w", err)
	}
	return e.insert(ctx, tx, req.UserID, u, stage)
}

// insert shortlists u, creates its tasks and advances the user to the
// shortlist stage when they are below it.
func (e *Engine) insert(ctx context.Context, tx *postgres.Tx, userID string, u *models.University, stage int) (*Result, error) {
	res := &Result{Action: ActionUnchanged, UniversityID: u.ID, Stage: stage, previousStage: stage}

	now := e.now()
	entry := &models.Shortlist{ID: e.newID(), UserID: userID, UniversityID: u.ID, CreatedAt: now}
	if err := tx.Shortlists.Create(ctx, entry); err != nil {
		if stderrors.Is(err, postgres.ErrUniqueViolation) {
			return nil, errors.NewShortlistConflictError(userID, u.ID, err)
		}
		return nil, err
	}

	tasks := e.universityTasks(userID, u, now)
	if err := tx.Tasks.CreateMany(ctx, tasks); err != nil {
		return nil, err
	}

	res.Action = ActionAdded
	res.Added = true
	res.Shortlist = entry
	res.TasksCreated = len(tasks)

	if stage < ShortlistStage {
		advanced, err := tx.Profiles.AdvanceStage(ctx, userID, ShortlistStage)
		if err != nil {
			return nil, err
		}
		if advanced {
			n, err := e.syncStageTasks(ctx, tx, userID, ShortlistStage)
			if err != nil {
				return nil, err
			}
			res.Stage = ShortlistStage
			res.StageAdvanced = true
			res.StageTasksCreated = n
		}
	}
	return res, nil
}

func (e *Engine) remove(ctx context.Context, tx *postgres.Tx, req Request, stage int) (*Result, error) {
	u, err := e.lookup(ctx, tx, req)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return &Result{Action: ActionUnchanged, UniversityID: req.UniversityID, Stage: stage, previousStage: stage}, nil
	}
	return e.removeResolved(ctx, tx, req.UserID, u.ID, stage)
}

func (e *Engine) removeResolved(ctx context.Context, tx *postgres.Tx, userID, universityID string, stage int) (*Result, error) {
	res := &Result{Action: ActionUnchanged, UniversityID: universityID, Stage: stage, previousStage: stage}

	removed, err := tx.Shortlists.Delete(ctx, userID, universityID)
	if err != nil {
		return nil, err
	}
	if !removed {
		return res, nil
	}

	deleted, err := tx.Tasks.DeleteByUniversity(ctx, userID, universityID)
	if err != nil {
		return nil, err
	}

	res.Action = ActionRemoved
	res.Removed = true
	res.TasksDeleted = deleted
	return res, nil
}

// lookup finds the local row a request refers to without creating one. A
// missing local id is an error; an external id with no local match is nil.
func (e *Engine) lookup(ctx context.Context, tx *postgres.Tx, req Request) (*models.University, error) {
	if !models.IsExternalID(req.UniversityID) {
		u, err := tx.Universities.FindByID(ctx, req.UniversityID)
		if stderrors.Is(err, postgres.ErrNotFound) {
			return nil, errors.NewUniversityNotFoundError(req.UniversityID)
		}
		return u, err
	}

	if req.University == nil || strings.TrimSpace(req.University.Name) == "" {
		return nil, nil
	}
	u, err := tx.Universities.FindByName(ctx, req.University.Name)
	if stderrors.Is(err, postgres.ErrNotFound) {
		return nil, nil
	}
	return u, err
}

// resolve is lookup that materializes an external university as a local row
// when no local row has its name.
func (e *Engine) resolve(ctx context.Context, tx *postgres.Tx, req Request) (*models.University, error) {
	u, err := e.lookup(ctx, tx, req)
	if err != nil || u != nil {
		return u, err
	}

	if req.University == nil || strings.TrimSpace(req.University.Name) == "" {
		return nil, errors.NewUniversityNotFoundError(req.UniversityID).
			WithMetadata("reason", "external university payload missing")
	}

	local := *req.University
	local.ID = e.newID()
	local.Source = models.SourceLocal
	local.Programs = append([]string(nil), req.University.Programs...)
	local.Tags = append([]string(nil), req.University.Tags...)
	if err := tx.Universities.Create(ctx, &local); err != nil {
		return nil, err
	}

	e.logger.Info("materialized external university", map[string]interface{}{
		"externalId": req.UniversityID,
		"localId":    local.ID,
		"name":       local.Name,
	})
	return &local, nil
}

// SyncStageTasks creates the default tasks for stage that the user does not
// have yet and returns how many were created. Repeated calls create nothing.
func (e *Engine) SyncStageTasks(ctx context.Context, userID string, stage int) (int, error) {
	ctx, span := e.tracer.Start(ctx, "shortlist.sync_stage_tasks", trace.WithAttributes(
		attribute.String("user.id", userID),
		attribute.Int("stage", stage),
	))
	defer span.End()

	userID = strings.TrimSpace(userID)
	if err := e.validate.Var(userID, "required"); err != nil {
		return 0, errors.NewValidationError("userId is required")
	}
	if err := e.validate.Var(stage, "gte=1"); err != nil {
		return 0, errors.NewValidationError(fmt.Sprintf("stage must be at least 1, got %d", stage))
	}

	var created int
	err := e.store.InUserTx(ctx, userID, func(ctx context.Context, tx *postgres.Tx, _ int) error {
		n, err := e.syncStageTasks(ctx, tx, userID, stage)
		created = n
		return err
	})
	if err != nil {
		err = e.classify(userID, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, err
	}

	if created > 0 {
		metrics.StageTasksCreated.WithLabelValues("stage").Add(float64(created))
	}
	return created, nil
}

func (e *Engine) syncStageTasks(ctx context.Context, tx *postgres.Tx, userID string, stage int) (int, error) {
	if !HasStageTemplates(stage) {
		return 0, nil
	}

	existing, err := tx.Tasks.TitlesForStage(ctx, userID, stage)
	if err != nil {
		return 0, errors.NewTaskSyncFailedError(stage, err)
	}

	missing := e.missingStageTasks(userID, stage, existing, e.now())
	if err := tx.Tasks.CreateMany(ctx, missing); err != nil {
		return 0, errors.NewTaskSyncFailedError(stage, err)
	}
	return len(missing), nil
}

func (e *Engine) announce(userID string, res *Result) {
	if e.notifier == nil {
		return
	}
	ev := aws.StageEvent{
		UserID:       userID,
		FromStage:    res.previousStage,
		ToStage:      res.Stage,
		UniversityID: res.UniversityID,
		TasksCreated: res.TasksCreated + res.StageTasksCreated,
		OccurredAt:   e.now().UTC(),
	}
	fallback.Go(e.logger, "stage_event_publish", notifyTimeout, func(ctx context.Context) error {
		return e.notifier.PublishStageAdvanced(ctx, ev)
	})
}
