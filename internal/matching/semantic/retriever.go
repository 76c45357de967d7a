// Package semantic retrieves catalog ids by relevance from Elasticsearch.
package semantic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"advising-workers/internal/common/logger"
	"advising-workers/internal/models"
)

const DefaultIndex = "universities"

var (
	ErrSearchFailed = errors.New("semantic search failed")
	ErrEmptyQuery   = errors.New("query text is required")
)

// Retriever returns catalog ids ordered by relevance.
type Retriever interface {
	SearchByText(ctx context.Context, text string, profile *models.UserProfile, limit int) ([]string, error)
	RecommendForProfile(ctx context.Context, profile *models.UserProfile, limit int) ([]string, error)
}

// Embedder turns text into a dense vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type ElasticRetriever struct {
	client   *elasticsearch.Client
	index    string
	embedder Embedder
	logger   logger.Logger
}

// NewElasticRetriever builds a retriever over index. embedder may be nil.
func NewElasticRetriever(client *elasticsearch.Client, index string, embedder Embedder, log logger.Logger) *ElasticRetriever {
	if index == "" {
		index = DefaultIndex
	}
	return &ElasticRetriever{
		client:   client,
		index:    index,
		embedder: embedder,
		logger:   log.WithFields(map[string]interface{}{"component": "semantic-retriever"}),
	}
}

func (r *ElasticRetriever) SearchByText(ctx context.Context, text string, profile *models.UserProfile, limit int) ([]string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyQuery
	}

	var vector []float32
	if r.embedder != nil {
		v, err := r.embedder.Embed(ctx, text)
		if err != nil {
			r.logger.Warn("embedding failed, searching lexically", map[string]interface{}{"error": err})
		} else {
			vector = v
		}
	}

	return r.search(ctx, textQuery(text, profile, vector, limit))
}

func (r *ElasticRetriever) RecommendForProfile(ctx context.Context, profile *models.UserProfile, limit int) ([]string, error) {
	return r.search(ctx, recommendationQuery(profile, limit))
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			ID string `json:"_id"`
		} `json:"hits"`
	} `json:"hits"`
}

func (r *ElasticRetriever) search(ctx context.Context, body map[string]interface{}) ([]string, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("%w: encode query: %v", ErrSearchFailed, err)
	}

	req := esapi.SearchRequest{
		Index: []string{r.index},
		Body:  bytes.NewReader(payload),
	}
	res, err := req.Do(ctx, r.client)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSearchFailed, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("%w: %s", ErrSearchFailed, res.Status())
	}

	var parsed searchResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrSearchFailed, err)
	}

	ids := make([]string, 0, len(parsed.Hits.Hits))
	for _, h := range parsed.Hits.Hits {
		ids = append(ids, h.ID)
	}
	return ids, nil
}
