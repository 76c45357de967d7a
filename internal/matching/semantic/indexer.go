package semantic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"advising-workers/internal/common/logger"
	"advising-workers/internal/models"
)

// Catalog lists every local university.
type Catalog interface {
	ListAll(ctx context.Context) ([]models.University, error)
}

var indexMapping = map[string]interface{}{
	"mappings": map[string]interface{}{
		"properties": map[string]interface{}{
			"name":        map[string]interface{}{"type": "text"},
			"location":    map[string]interface{}{"type": "text"},
			"country":     map[string]interface{}{"type": "keyword"},
			"rank":        map[string]interface{}{"type": "integer"},
			"programs":    map[string]interface{}{"type": "text"},
			"description": map[string]interface{}{"type": "text"},
			"embedding": map[string]interface{}{
				"type":       "dense_vector",
				"index":      true,
				"similarity": "cosine",
			},
		},
	},
}

type document struct {
	Name        string    `json:"name"`
	Location    string    `json:"location,omitempty"`
	Country     string    `json:"country"`
	Rank        *int      `json:"rank,omitempty"`
	Programs    []string  `json:"programs"`
	Description string    `json:"description,omitempty"`
	Embedding   []float32 `json:"embedding,omitempty"`
}

// Indexer copies the local catalog into the search index.
type Indexer struct {
	client   *elasticsearch.Client
	index    string
	catalog  Catalog
	embedder Embedder
	logger   logger.Logger
}

func NewIndexer(client *elasticsearch.Client, index string, catalog Catalog, embedder Embedder, log logger.Logger) *Indexer {
	if index == "" {
		index = DefaultIndex
	}
	return &Indexer{
		client:   client,
		index:    index,
		catalog:  catalog,
		embedder: embedder,
		logger:   log.WithFields(map[string]interface{}{"component": "semantic-indexer", "index": index}),
	}
}

// EnsureIndex creates the index with its mapping when it does not exist.
func (i *Indexer) EnsureIndex(ctx context.Context) error {
	res, err := esapi.IndicesExistsRequest{Index: []string{i.index}}.Do(ctx, i.client)
	if err != nil {
		return fmt.Errorf("check index: %w", err)
	}
	res.Body.Close()
	if res.StatusCode == 200 {
		return nil
	}

	body, _ := json.Marshal(indexMapping)
	res, err = esapi.IndicesCreateRequest{Index: i.index, Body: bytes.NewReader(body)}.Do(ctx, i.client)
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("create index: %s", res.Status())
	}
	i.logger.Info("created search index", nil)
	return nil
}

type bulkResponse struct {
	Errors bool `json:"errors"`
	Items  []map[string]struct {
		ID     string `json:"_id"`
		Status int    `json:"status"`
	} `json:"items"`
}

// Reindex writes every catalog row to the index and returns how many were
// accepted. Rows whose embedding fails are indexed without a vector.
func (i *Indexer) Reindex(ctx context.Context) (int, error) {
	universities, err := i.catalog.ListAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("load catalog: %w", err)
	}
	if len(universities) == 0 {
		return 0, nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, u := range universities {
		doc := document{
			Name:        u.Name,
			Location:    u.Location,
			Country:     u.Country,
			Rank:        u.Rank,
			Programs:    u.Programs,
			Description: u.Description,
		}
		if i.embedder != nil {
			vec, err := i.embedder.Embed(ctx, embeddingText(u))
			if err != nil {
				i.logger.Warn("embedding failed, indexing without vector", map[string]interface{}{
					"universityId": u.ID,
					"error":        err,
				})
			} else {
				doc.Embedding = vec
			}
		}

		meta := map[string]interface{}{"index": map[string]interface{}{"_id": u.ID}}
		if err := enc.Encode(meta); err != nil {
			return 0, fmt.Errorf("encode bulk meta: %w", err)
		}
		if err := enc.Encode(doc); err != nil {
			return 0, fmt.Errorf("encode bulk doc: %w", err)
		}
	}

	res, err := esapi.BulkRequest{Index: i.index, Body: &buf}.Do(ctx, i.client)
	if err != nil {
		return 0, fmt.Errorf("bulk index: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return 0, fmt.Errorf("bulk index: %s", res.Status())
	}

	var parsed bulkResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return 0, fmt.Errorf("decode bulk response: %w", err)
	}

	indexed := 0
	for _, item := range parsed.Items {
		for _, result := range item {
			if result.Status >= 200 && result.Status < 300 {
				indexed++
			}
		}
	}
	if parsed.Errors {
		i.logger.Warn("bulk index had failures", map[string]interface{}{
			"indexed": indexed,
			"total":   len(universities),
		})
	}

	i.logger.Info("catalog reindexed", map[string]interface{}{"indexed": indexed})
	return indexed, nil
}

func embeddingText(u models.University) string {
	parts := []string{u.Name}
	if len(u.Programs) > 0 {
		parts = append(parts, strings.Join(u.Programs, ", "))
	}
	if u.Description != "" {
		parts = append(parts, u.Description)
	}
	return strings.Join(parts, ". ")
}
