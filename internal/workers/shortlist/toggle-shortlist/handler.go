package toggleshortlist

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	"advising-workers/internal/common/errors"
	"advising-workers/internal/common/logger"
	"advising-workers/internal/common/metrics"
	"advising-workers/internal/shortlist"
)

const (
	TaskType = "toggle-shortlist"
)

// Engine is the part of shortlist.Engine this worker drives.
type Engine interface {
	Add(ctx context.Context, req shortlist.Request) (*shortlist.Result, error)
	Remove(ctx context.Context, req shortlist.Request) (*shortlist.Result, error)
	Toggle(ctx context.Context, req shortlist.Request) (*shortlist.Result, error)
}

type Handler struct {
	config       *Config
	engine       Engine
	errorHandler *errors.ErrorHandler
	logger       logger.Logger
}

func NewHandler(config *Config, engine Engine, log logger.Logger) *Handler {
	l := log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:       config,
		engine:       engine,
		errorHandler: errors.NewErrorHandler(l),
		logger:       l,
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	start := time.Now()
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	var input Input
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		h.fail(ctx, client, job, errors.NewParseError(err))
		return
	}

	output, err := h.execute(ctx, &input)
	if err != nil {
		h.fail(ctx, client, job, err)
		return
	}

	h.completeJob(ctx, client, job, output)
	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
	metrics.WorkerJobDuration.WithLabelValues(TaskType).Observe(time.Since(start).Seconds())
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	if input == nil {
		return nil, errors.NewValidationError("input cannot be nil")
	}

	action := strings.ToLower(strings.TrimSpace(input.Action))
	if action == "" {
		action = ActionToggle
	}

	req := shortlist.Request{
		UserID:       input.UserID,
		UniversityID: input.UniversityID,
		University:   input.University,
	}

	var (
		res *shortlist.Result
		err error
	)
	switch action {
	case ActionToggle:
		res, err = h.engine.Toggle(ctx, req)
	case ActionAdd:
		res, err = h.engine.Add(ctx, req)
	case ActionRemove:
		res, err = h.engine.Remove(ctx, req)
	default:
		return nil, errors.NewValidationError(fmt.Sprintf("unknown action %q", input.Action))
	}
	if err != nil {
		return nil, err
	}

	h.logger.Info("shortlist updated", map[string]interface{}{
		"userId":        req.UserID,
		"universityId":  res.UniversityID,
		"requested":     action,
		"action":        res.Action,
		"tasksCreated":  res.TasksCreated,
		"stageAdvanced": res.StageAdvanced,
	})
	return &Output{Result: *res, RequestedAction: action}, nil
}

func (h *Handler) completeJob(ctx context.Context, client worker.JobClient, job entities.Job, output *Output) {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{
			"error": err,
		})
		return
	}
	if _, err := cmd.Send(ctx); err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{
			"error": err,
		})
	}
}

func (h *Handler) fail(ctx context.Context, client worker.JobClient, job entities.Job, err error) {
	bpmnErr := h.errorHandler.HandleJobError(ctx, client, job, err)
	metrics.WorkerJobsFailed.WithLabelValues(TaskType, bpmnErr.Code).Inc()
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
