package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WorkerJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_completed_total",
			Help: "Total number of jobs completed by worker",
		},
		[]string{"task_type"},
	)

	WorkerJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_failed_total",
			Help: "Total number of jobs failed by worker",
		},
		[]string{"task_type", "error_code"},
	)

	WorkerJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "worker_job_duration_seconds",
			Help: "Duration of job processing in seconds",
		},
		[]string{"task_type"},
	)

	MatchingQueries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "matching_queries_total",
			Help: "University matching queries by resolved mode",
		},
		[]string{"mode"},
	)

	MatchingResults = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "matching_results",
			Help:    "Number of universities returned per query",
			Buckets: []float64{0, 1, 5, 10, 20, 40, 80},
		},
		[]string{"mode"},
	)

	Degradations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "matching_degradations_total",
			Help: "Optional operations that failed and fell back to their default",
		},
		[]string{"operation"},
	)

	CacheWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "matching_cache_writes_total",
			Help: "Query cache writes by result",
		},
		[]string{"result"},
	)

	ShortlistActions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shortlist_actions_total",
			Help: "Shortlist add/remove outcomes",
		},
		[]string{"action"},
	)

	StageAdvancements = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stage_advancements_total",
			Help: "Users moved forward a pipeline stage by a shortlist add",
		},
	)

	StageTasksCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stage_tasks_created_total",
			Help: "Checklist tasks created, by origin",
		},
		[]string{"origin"},
	)
)
