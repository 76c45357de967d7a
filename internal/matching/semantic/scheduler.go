package semantic

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"

	"advising-workers/internal/common/logger"
)

// Reindexer rebuilds the search index from the catalog.
type Reindexer interface {
	EnsureIndex(ctx context.Context) error
	Reindex(ctx context.Context) (int, error)
}

// ReindexScheduler runs Reindex on a cron spec such as "@every 6h".
type ReindexScheduler struct {
	cron    *cron.Cron
	indexer Reindexer
	spec    string
	logger  logger.Logger
	wg      sync.WaitGroup
}

func NewReindexScheduler(indexer Reindexer, spec string, log logger.Logger) *ReindexScheduler {
	return &ReindexScheduler{
		cron:    cron.New(cron.WithLogger(cron.DefaultLogger)),
		indexer: indexer,
		spec:    spec,
		logger:  log.WithFields(map[string]interface{}{"component": "reindex-scheduler"}),
	}
}

// Start registers the job, starts the cron and runs one pass right away so
// a fresh index is searchable without waiting for the first tick.
func (s *ReindexScheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.spec, func() { s.RunOnce(ctx) }); err != nil {
		return fmt.Errorf("cron.AddFunc: %w", err)
	}
	s.cron.Start()
	s.logger.Info("reindex cron started", map[string]interface{}{"spec": s.spec})

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.RunOnce(ctx)
	}()
	return nil
}

// Stop stops the cron and waits for running passes to finish.
func (s *ReindexScheduler) Stop() {
	<-s.cron.Stop().Done()
	s.wg.Wait()
	s.logger.Info("reindex cron stopped", nil)
}

func (s *ReindexScheduler) RunOnce(ctx context.Context) {
	if err := s.indexer.EnsureIndex(ctx); err != nil {
		s.logger.Error("ensure index failed", map[string]interface{}{"error": err})
		return
	}
	n, err := s.indexer.Reindex(ctx)
	if err != nil {
		s.logger.Error("reindex failed", map[string]interface{}{"error": err})
		return
	}
	s.logger.Info("catalog reindexed", map[string]interface{}{"documents": n})
}
