package matchuniversities

import (
	"time"

	"advising-workers/internal/common/config"
	"advising-workers/internal/matching/dedup"
)

type Config struct {
	Timeout       time.Duration
	BrowseLimit   int
	MergeLimit    int
	FallbackLimit int
	SemanticLimit int
}

func LoadConfig(cfg *config.Config) *Config {
	c := &Config{
		Timeout:       30 * time.Second,
		BrowseLimit:   40,
		MergeLimit:    dedup.DefaultLimit,
		FallbackLimit: 10,
		SemanticLimit: 20,
	}
	if cfg == nil {
		return c
	}

	if wc := config.GetWorkerConfig(cfg, TaskType); wc.Timeout > 0 {
		c.Timeout = config.GetDuration(wc.Timeout)
	}
	if cfg.Matching.BrowseLimit > 0 {
		c.BrowseLimit = cfg.Matching.BrowseLimit
	}
	if cfg.Matching.MergeLimit > 0 {
		c.MergeLimit = cfg.Matching.MergeLimit
	}
	if cfg.Matching.FallbackLimit > 0 {
		c.FallbackLimit = cfg.Matching.FallbackLimit
	}
	if cfg.Semantic.Limit > 0 {
		c.SemanticLimit = cfg.Semantic.Limit
	}
	return c
}
