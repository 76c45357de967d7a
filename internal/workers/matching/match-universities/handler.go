package matchuniversities

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"advising-workers/internal/cache"
	"advising-workers/internal/common/errors"
	"advising-workers/internal/common/fallback"
	"advising-workers/internal/common/logger"
	"advising-workers/internal/common/metrics"
	"advising-workers/internal/matching/dedup"
	"advising-workers/internal/matching/scoring"
	"advising-workers/internal/matching/semantic"
	"advising-workers/internal/models"
	"advising-workers/internal/storage/postgres"
)

const (
	TaskType = "match-universities"
)

// Catalog is the local university store.
type Catalog interface {
	FindMany(ctx context.Context, f postgres.Filter) ([]models.University, error)
	FindByIDs(ctx context.Context, ids []string) ([]models.University, error)
}

type Profiles interface {
	Get(ctx context.Context, userID string) (*models.UserProfile, error)
}

// Directory searches the public university directory. It never fails;
// an unavailable directory yields no results.
type Directory interface {
	Search(ctx context.Context, name, country string) []models.University
}

type QueryCache interface {
	Get(ctx context.Context, key string, out interface{}) (bool, error)
	Store(key string, value interface{}) <-chan error
}

type Handler struct {
	config       *Config
	catalog      Catalog
	profiles     Profiles
	directory    Directory
	retriever    semantic.Retriever
	cache        QueryCache
	errorHandler *errors.ErrorHandler
	logger       logger.Logger
	tracer       trace.Tracer
}

// NewHandler wires the pipeline. retriever and queryCache may be nil.
func NewHandler(config *Config, catalog Catalog, profiles Profiles, directory Directory,
	retriever semantic.Retriever, queryCache QueryCache, log logger.Logger) *Handler {
	l := log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:       config,
		catalog:      catalog,
		profiles:     profiles,
		directory:    directory,
		retriever:    retriever,
		cache:        queryCache,
		errorHandler: errors.NewErrorHandler(l),
		logger:       l,
		tracer:       otel.Tracer("advising-workers/matching"),
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

	ctx, span := h.tracer.Start(ctx, "matching.execute")
	defer span.End()

	profile, err := h.resolveProfile(ctx, input)
	if err != nil {
		return nil, err
	}

	search := strings.TrimSpace(input.Search)
	country := strings.TrimSpace(input.Country)
	key, cacheable := cacheKey(profile, country, search, input.Semantic)

	if h.cache != nil && cacheable && search == "" {
		var cached Output
		hit, err := h.cache.Get(ctx, key, &cached)
		if err != nil {
			h.logger.Warn("query cache read failed", map[string]interface{}{"key": key, "error": err})
		}
		if hit {
			cached.Cached = true
			cached.CacheKey = key
			span.SetAttributes(attribute.Bool("matching.cache_hit", true))
			return &cached, nil
		}
	}

	mode := ModeBrowse
	var universities []models.University
	if profile != nil && input.Semantic {
		mode = ModeSemantic
		universities, err = h.semanticCandidates(ctx, profile, search)
	} else {
		universities, err = h.browseCandidates(ctx, country, search)
	}
	if err != nil {
		return nil, err
	}

	results := rank(profile, universities)
	output := &Output{
		Universities: results,
		Mode:         mode,
		Total:        len(results),
	}

	metrics.MatchingQueries.WithLabelValues(mode).Inc()
	metrics.MatchingResults.WithLabelValues(mode).Observe(float64(len(results)))
	span.SetAttributes(attribute.String("matching.mode", mode), attribute.Int("matching.results", len(results)))

	if h.cache != nil && cacheable && cache.Cacheable(search, len(results)) {
		output.CacheKey = key
		h.cache.Store(key, output)
	}

	logger.WithTrace(ctx, h.logger).Info("universities matched", map[string]interface{}{
		"mode":    mode,
		"total":   len(results),
		"scored":  profile != nil,
		"country": country,
	})
	return output, nil
}

func (h *Handler) resolveProfile(ctx context.Context, input *Input) (*models.UserProfile, error) {
	if input.Profile != nil {
		return input.Profile, nil
	}
	if strings.TrimSpace(input.UserID) == "" || h.profiles == nil {
		return nil, nil
	}

	profile, err := h.profiles.Get(ctx, strings.TrimSpace(input.UserID))
	if stderrors.Is(err, postgres.ErrNotFound) {
		h.logger.Warn("profile not found, matching anonymously", map[string]interface{}{"userId": input.UserID})
		return nil, nil
	}
	if err != nil {
		return nil, errors.NewCatalogQueryFailedError("load_profile", err)
	}
	return profile, nil
}

// semanticCandidates asks the retriever for ids and resolves them against
// the catalog in retriever order. No ids, no rows or a failed retriever
// falls back to a rank-ordered catalog query.
func (h *Handler) semanticCandidates(ctx context.Context, profile *models.UserProfile, text string) ([]models.University, error) {
	ids := fallback.Value(ctx, h.logger, "semantic_retrieval", []string(nil), func(ctx context.Context) ([]string, error) {
		if h.retriever == nil {
			return nil, errors.NewSemanticUnavailableError(stderrors.New("retriever not configured"))
		}
		if text != "" {
			return h.retriever.SearchByText(ctx, text, profile, h.config.SemanticLimit)
		}
		return h.retriever.RecommendForProfile(ctx, profile, h.config.SemanticLimit)
	})

	if len(ids) > 0 {
		rows, err := h.catalog.FindByIDs(ctx, ids)
		if err != nil {
			return nil, h.catalogError(ctx, "find_by_ids", err)
		}
		if len(rows) > 0 {
			return rows, nil
		}
	}

	h.logger.Info("semantic retrieval empty, using catalog fallback", map[string]interface{}{
		"text": text,
		"ids":  len(ids),
	})
	filter := postgres.Filter{Limit: h.config.FallbackLimit}
	if text != "" {
		filter.NameOrCountry = text
	}
	rows, err := h.catalog.FindMany(ctx, filter)
	if err != nil {
		return nil, h.catalogError(ctx, "semantic_fallback", err)
	}
	return rows, nil
}

// browseCandidates queries the catalog and, when the query is narrowed by
// search or country, the public directory alongside it.
func (h *Handler) browseCandidates(ctx context.Context, country, search string) ([]models.University, error) {
	filter := postgres.Filter{Country: country, Search: search, Limit: h.config.BrowseLimit}

	if (search == "" && country == "") || h.directory == nil {
		local, err := h.catalog.FindMany(ctx, filter)
		if err != nil {
			return nil, h.catalogError(ctx, "browse", err)
		}
		return local, nil
	}

	var (
		wg       sync.WaitGroup
		local    []models.University
		localErr error
		external []models.University
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		local, localErr = h.catalog.FindMany(ctx, filter)
	}()
	go func() {
		defer wg.Done()
		external = h.directory.Search(ctx, search, country)
	}()
	wg.Wait()

	if localErr != nil {
		return nil, h.catalogError(ctx, "browse", localErr)
	}
	return dedup.Merge(local, external, h.config.MergeLimit), nil
}

func (h *Handler) catalogError(ctx context.Context, op string, err error) error {
	if ctx.Err() == context.DeadlineExceeded {
		return errors.NewQueryTimeoutError(op)
	}
	return errors.NewCatalogQueryFailedError(op, err)
}

// rank scores and sorts universities for a profile. Without a profile the
// source order is kept and nothing is scored.
func rank(profile *models.UserProfile, universities []models.University) []models.ScoredUniversity {
	out := make([]models.ScoredUniversity, 0, len(universities))
	if profile == nil {
		for _, u := range universities {
			out = append(out, models.Unscored(u))
		}
		return out
	}

	for _, u := range universities {
		out = append(out, scoring.Annotate(profile, u))
	}
	sort.SliceStable(out, func(i, j int) bool {
		return *out[i].MatchScore > *out[j].MatchScore
	})
	return out
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

// cacheKey returns the query cache key. Only anonymous queries use the guest
// identity; a scored query without an owner identity is not cached.
func cacheKey(profile *models.UserProfile, country, search string, semantic bool) (string, bool) {
	if profile == nil {
		return cache.Key("guest", country, search, semantic), true
	}
	id := profile.Identity()
	if id == "" {
		return "", false
	}
	return cache.Key(id, country, search, semantic), true
}
