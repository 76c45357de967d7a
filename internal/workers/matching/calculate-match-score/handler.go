// internal/workers/matching/calculate-match-score/handler.go
package calculatematchscore

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"strings"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	"advising-workers/internal/common/errors"
	"advising-workers/internal/common/logger"
	"advising-workers/internal/common/metrics"
	"advising-workers/internal/matching/scoring"
	"advising-workers/internal/models"
	"advising-workers/internal/storage/postgres"
)

const (
	TaskType = "calculate-match-score"
)

type Profiles interface {
	Get(ctx context.Context, userID string) (*models.UserProfile, error)
}

type Universities interface {
	FindByID(ctx context.Context, id string) (*models.University, error)
}

// ProfileCache keeps loaded profiles between jobs. Optional.
type ProfileCache interface {
	Get(ctx context.Context, key string, out interface{}) (bool, error)
	Store(key string, value interface{}) <-chan error
}

type Handler struct {
	config       *Config
	profiles     Profiles
	universities Universities
	cache        ProfileCache
	errorHandler *errors.ErrorHandler
	logger       logger.Logger
}

func NewHandler(config *Config, profiles Profiles, universities Universities, cache ProfileCache, log logger.Logger) *Handler {
	l := log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:       config,
		profiles:     profiles,
		universities: universities,
		cache:        cache,
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

	profile, err := h.resolveProfile(ctx, input)
	if err != nil {
		return nil, err
	}
	university, err := h.resolveUniversity(ctx, input)
	if err != nil {
		return nil, err
	}

	factors := scoring.Compute(profile, *university)
	output := &Output{
		UniversityID: university.ID,
		MatchScore:   factors.Total,
		Category:     scoring.Categorize(factors.Total),
		Factors:      factors,
	}

	h.logger.Info("match score calculated", map[string]interface{}{
		"userId":       profile.UserID,
		"universityId": university.ID,
		"score":        output.MatchScore,
		"category":     output.Category,
	})
	return output, nil
}

func (h *Handler) resolveProfile(ctx context.Context, input *Input) (*models.UserProfile, error) {
	if input.Profile != nil {
		return input.Profile, nil
	}

	userID := strings.TrimSpace(input.UserID)
	if userID == "" {
		return nil, errors.NewValidationError("profile or userId is required")
	}

	key := "profile:" + userID
	if h.cache != nil {
		var cached models.UserProfile
		if hit, err := h.cache.Get(ctx, key, &cached); err == nil && hit {
			return &cached, nil
		}
	}

	profile, err := h.profiles.Get(ctx, userID)
	if stderrors.Is(err, postgres.ErrNotFound) {
		return nil, errors.NewProfileNotFoundError(userID)
	}
	if err != nil {
		return nil, errors.NewCatalogQueryFailedError("load_profile", err)
	}

	if h.cache != nil {
		h.cache.Store(key, profile)
	}
	return profile, nil
}

func (h *Handler) resolveUniversity(ctx context.Context, input *Input) (*models.University, error) {
	if input.University != nil {
		return input.University, nil
	}

	id := strings.TrimSpace(input.UniversityID)
	if id == "" {
		return nil, errors.NewValidationError("university or universityId is required")
	}

	u, err := h.universities.FindByID(ctx, id)
	if stderrors.Is(err, postgres.ErrNotFound) {
		return nil, errors.NewUniversityNotFoundError(id)
	}
	if err != nil {
		return nil, errors.NewCatalogQueryFailedError("find_university", err)
	}
	return u, nil
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
