package semantic

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"advising-workers/internal/common/logger"
	"advising-workers/internal/models"
)

type stubCatalog struct {
	universities []models.University
	err          error
}

func (s stubCatalog) ListAll(ctx context.Context) ([]models.University, error) {
	return s.universities, s.err
}

func TestIndexer_Reindex(t *testing.T) {
	fake, client := newFakeES(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"took":3,"errors":false,"items":[
			{"index":{"_id":"u1","status":201}},
			{"index":{"_id":"u2","status":200}}
		]}`)
	})
	rank := 5
	catalog := stubCatalog{universities: []models.University{
		{ID: "u1", Name: "Alpha", Country: "Canada", Rank: &rank, Programs: []string{"Physics"}},
		{ID: "u2", Name: "Beta", Country: "India", Programs: []string{}},
	}}
	emb := &stubEmbedder{vector: []float32{1, 0}}

	n, err := NewIndexer(client, "", catalog, emb, logger.NewTestLogger(t)).Reindex(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, emb.calls)

	req, _ := fake.last(t)
	assert.Equal(t, "/universities/_bulk", req.Path)
	lines := strings.Split(strings.TrimSpace(req.Body), "\n")
	require.Len(t, lines, 4)
	assert.JSONEq(t, `{"index":{"_id":"u1"}}`, lines[0])
	assert.Contains(t, lines[1], `"embedding":[1,0]`)
	assert.Contains(t, lines[1], `"rank":5`)
}

func TestIndexer_Reindex_PartialFailure(t *testing.T) {
	_, client := newFakeES(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"took":3,"errors":true,"items":[
			{"index":{"_id":"u1","status":201}},
			{"index":{"_id":"u2","status":400}}
		]}`)
	})
	catalog := stubCatalog{universities: []models.University{
		{ID: "u1", Name: "Alpha", Country: "Canada"},
		{ID: "u2", Name: "Beta", Country: "India"},
	}}

	n, err := NewIndexer(client, "", catalog, &stubEmbedder{err: errors.New("down")}, logger.NewTestLogger(t)).
		Reindex(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestIndexer_Reindex_EmptyCatalog(t *testing.T) {
	_, client := newFakeES(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})

	n, err := NewIndexer(client, "", stubCatalog{}, nil, logger.NewTestLogger(t)).Reindex(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestIndexer_Reindex_CatalogError(t *testing.T) {
	_, client := newFakeES(t, func(w http.ResponseWriter, r *http.Request) {})

	_, err := NewIndexer(client, "", stubCatalog{err: errors.New("db down")}, nil, logger.NewTestLogger(t)).
		Reindex(context.Background())
	assert.Error(t, err)
}

func TestIndexer_EnsureIndex(t *testing.T) {
	var created bool
	fake, client := newFakeES(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodHead:
			w.WriteHeader(http.StatusNotFound)
		case http.MethodPut:
			created = true
			fmt.Fprint(w, `{"acknowledged":true,"index":"universities"}`)
		}
	})

	require.NoError(t, NewIndexer(client, "", stubCatalog{}, nil, logger.NewTestLogger(t)).EnsureIndex(context.Background()))
	assert.True(t, created)

	req, body := fake.last(t)
	assert.Equal(t, "/universities", req.Path)
	assert.Contains(t, body, "mappings")
}

func TestIndexer_EnsureIndex_Exists(t *testing.T) {
	_, client := newFakeES(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodHead {
			t.Errorf("unexpected %s", r.Method)
		}
	})

	assert.NoError(t, NewIndexer(client, "", stubCatalog{}, nil, logger.NewTestLogger(t)).EnsureIndex(context.Background()))
}

func university(name string, programs []string, description string) models.University {
	return models.University{Name: name, Programs: programs, Description: description}
}
