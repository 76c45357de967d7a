// Package app connects the backing services and builds the domain
// components shared by the worker manager and the operator CLI.
package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"advising-workers/internal/cache"
	"advising-workers/internal/common/aws"
	"advising-workers/internal/common/config"
	"advising-workers/internal/common/database"
	"advising-workers/internal/common/logger"
	"advising-workers/internal/matching/directory"
	"advising-workers/internal/matching/semantic"
	"advising-workers/internal/shortlist"
	"advising-workers/internal/storage/postgres"
	cms "advising-workers/internal/workers/matching/calculate-match-score"
	mu "advising-workers/internal/workers/matching/match-universities"
	sst "advising-workers/internal/workers/shortlist/sync-stage-tasks"
	ts "advising-workers/internal/workers/shortlist/toggle-shortlist"
)

// Services holds the connected clients and the components built on them.
// Retriever, Indexer and Notifier are nil when their backend is not configured.
type Services struct {
	Postgres      *database.PostgresClient
	Redis         *database.RedisClient
	Elasticsearch *database.ElasticsearchClient

	Store     *postgres.Store
	Cache     *cache.QueryCache
	Directory *directory.Client
	Retriever semantic.Retriever
	Indexer   *semantic.Indexer
	Notifier  shortlist.StageNotifier
	Engine    *shortlist.Engine
}

// Options tune how hard Connect tries.
type Options struct {
	Attempts     int
	InitialDelay time.Duration
	Migrate      bool
}

var DefaultOptions = Options{Attempts: 15, InitialDelay: 2 * time.Second, Migrate: true}

const readyTimeout = 3 * time.Second

// Connect dials Postgres, Redis and, when configured, Elasticsearch, runs
// migrations and builds the domain components.
func Connect(ctx context.Context, cfg *config.Config, opts Options, zapLog *zap.Logger) (*Services, error) {
	log := logger.NewZapAdapter(zapLog)
	s := &Services{}

	err := RetryWithBackoff(func() error {
		var err error
		s.Postgres, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		if err = s.Postgres.Ping(ctx); err != nil {
			_ = s.Postgres.Close()
			s.Postgres = nil
		}
		return err
	}, opts.Attempts, opts.InitialDelay, zapLog, "PostgreSQL connection")
	if err != nil {
		return nil, err
	}
	zapLog.Info("PostgreSQL connected successfully")

	if opts.Migrate {
		if err := postgres.Migrate(ctx, s.Postgres.DB); err != nil {
			s.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}
	if v, err := s.Postgres.SchemaVersion(ctx); err == nil {
		zapLog.Info("PostgreSQL schema", zap.String("migration", v))
	}
	s.Store = postgres.NewStore(s.Postgres.DB)

	err = RetryWithBackoff(func() error {
		if s.Redis == nil {
			s.Redis = database.NewRedis(cfg.Database.Redis)
		}
		return s.Redis.Ping(ctx)
	}, opts.Attempts, opts.InitialDelay, zapLog, "Redis connection")
	if err != nil {
		s.Close()
		return nil, err
	}
	zapLog.Info("Redis connected successfully")
	s.Cache = cache.NewQueryCache(s.Redis.Client,
		time.Duration(cfg.Matching.CacheTTL)*time.Second,
		config.GetDuration(cfg.Matching.CacheTimeout),
		log)

	if cfg.Semantic.Enabled {
		err = RetryWithBackoff(func() error {
			var err error
			if s.Elasticsearch == nil {
				s.Elasticsearch, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
				if err != nil {
					return err
				}
			}
			return s.Elasticsearch.Ping(ctx)
		}, opts.Attempts, opts.InitialDelay, zapLog, "Elasticsearch connection")
		if err != nil {
			s.Close()
			return nil, err
		}
		version, _ := s.Elasticsearch.ClusterVersion(ctx)
		zapLog.Info("Elasticsearch connected successfully", zap.String("version", version))

		var embedder semantic.Embedder
		if cfg.Semantic.GenAIAPIKey != "" {
			e, err := semantic.NewGenAIEmbedder(ctx, cfg.Semantic.GenAIAPIKey, cfg.Semantic.EmbeddingModel)
			if err != nil {
				zapLog.Warn("embedder unavailable, semantic search stays lexical", zap.Error(err))
			} else {
				embedder = e
			}
		}

		es := s.Elasticsearch.Client
		s.Retriever = semantic.NewElasticRetriever(es, cfg.Semantic.Index, embedder, log)
		s.Indexer = semantic.NewIndexer(es, cfg.Semantic.Index, s.Store.Universities(), embedder, log)
	}

	s.Directory = directory.NewClient(&directory.Config{
		BaseURL:    cfg.Directory.BaseURL,
		Timeout:    config.GetDuration(cfg.Directory.Timeout),
		MaxResults: cfg.Directory.MaxResults,
	}, log)

	if cfg.Notifications.SNS.Enabled {
		sns, err := aws.NewSNSClient(ctx, cfg.Notifications.SNS.Region, cfg.Notifications.SNS.TopicARN)
		if err != nil {
			zapLog.Warn("sns unavailable, stage events disabled", zap.Error(err))
		} else {
			s.Notifier = sns
		}
	}

	s.Engine = shortlist.NewEngine(s.Store, s.Notifier, log)
	return s, nil
}

func (s *Services) MatchHandler(cfg *config.Config, log logger.Logger) *mu.Handler {
	return mu.NewHandler(mu.LoadConfig(cfg), s.Store.Universities(), s.Store.Profiles(),
		s.Directory, s.Retriever, s.Cache, log)
}

func (s *Services) ScoreHandler(cfg *config.Config, log logger.Logger) *cms.Handler {
	return cms.NewHandler(cms.LoadConfig(cfg), s.Store.Profiles(), s.Store.Universities(), s.Cache, log)
}

func (s *Services) ToggleHandler(cfg *config.Config, log logger.Logger) *ts.Handler {
	return ts.NewHandler(ts.LoadConfig(cfg), s.Engine, log)
}

func (s *Services) SyncHandler(cfg *config.Config, log logger.Logger) *sst.Handler {
	return sst.NewHandler(sst.LoadConfig(cfg), s.Engine, log)
}

// Ready pings every connected backend.
func (s *Services) Ready(ctx context.Context) error {
	checks := []database.Check{
		{Name: "postgres", Pinger: s.Postgres},
		{Name: "redis", Pinger: s.Redis},
	}
	if s.Elasticsearch != nil {
		checks = append(checks, database.Check{Name: "elasticsearch", Pinger: s.Elasticsearch})
	}
	return database.PingAll(ctx, readyTimeout, checks...)
}

func (s *Services) Close() {
	if s.Redis != nil {
		_ = s.Redis.Close()
	}
	if s.Postgres != nil {
		_ = s.Postgres.Close()
	}
}

// RetryWithBackoff attempts to execute a function with exponential backoff.
func RetryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	if maxRetries < 1 {
		maxRetries = 1
	}

	var err error
	delay := initialDelay
	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}
