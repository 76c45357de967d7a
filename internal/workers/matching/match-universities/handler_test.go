package matchuniversities

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "advising-workers/internal/common/errors"
	"advising-workers/internal/common/logger"
	"advising-workers/internal/matching/semantic"
	"advising-workers/internal/models"
	"advising-workers/internal/storage/postgres"
)

// ==========================
// Test Helpers
// ==========================

func intPtr(v int) *int { return &v }

type fakeCatalog struct {
	mu       sync.Mutex
	many     []models.University
	manyErr  error
	byIDs    map[string]models.University
	filters  []postgres.Filter
	idLookup [][]string
}

func (f *fakeCatalog) FindMany(ctx context.Context, filter postgres.Filter) ([]models.University, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filters = append(f.filters, filter)
	return f.many, f.manyErr
}

func (f *fakeCatalog) FindByIDs(ctx context.Context, ids []string) ([]models.University, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.idLookup = append(f.idLookup, ids)
	var out []models.University
	for _, id := range ids {
		if u, ok := f.byIDs[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

type fakeProfiles struct {
	profile *models.UserProfile
	err     error
}

func (f fakeProfiles) Get(ctx context.Context, userID string) (*models.UserProfile, error) {
	return f.profile, f.err
}

type mockDirectory struct{ mock.Mock }

func (m *mockDirectory) Search(ctx context.Context, name, country string) []models.University {
	args := m.Called(ctx, name, country)
	return args.Get(0).([]models.University)
}

type mockRetriever struct{ mock.Mock }

func (m *mockRetriever) SearchByText(ctx context.Context, text string, profile *models.UserProfile, limit int) ([]string, error) {
	args := m.Called(ctx, text, profile, limit)
	ids, _ := args.Get(0).([]string)
	return ids, args.Error(1)
}

func (m *mockRetriever) RecommendForProfile(ctx context.Context, profile *models.UserProfile, limit int) ([]string, error) {
	args := m.Called(ctx, profile, limit)
	ids, _ := args.Get(0).([]string)
	return ids, args.Error(1)
}

type fakeCache struct {
	mu      sync.Mutex
	entries map[string]*Output
	stored  []string
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: map[string]*Output{}}
}

func (f *fakeCache) Get(ctx context.Context, key string, out interface{}) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.entries[key]
	if !ok {
		return false, nil
	}
	*out.(*Output) = *v
	return true, nil
}

func (f *fakeCache) Store(key string, value interface{}) <-chan error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stored = append(f.stored, key)
	f.entries[key] = value.(*Output)
	done := make(chan error, 1)
	done <- nil
	close(done)
	return done
}

func createTestConfig() *Config {
	return LoadConfig(nil)
}

func createTestProfile() *models.UserProfile {
	return &models.UserProfile{
		UserID:             "user-1",
		Email:              "a@example.com",
		GPA:                3.9,
		BudgetMax:          50000,
		PreferredCountries: []string{"USA"},
		TargetField:        "computer science",
	}
}

func safeUniversity() models.University {
	return models.University{
		ID:             "uni-safe",
		Name:           "Stanford University",
		Country:        "USA",
		Rank:           intPtr(5),
		Tuition:        45000,
		AcceptanceRate: "8%",
		Programs:       []string{"Computer Science"},
		Source:         models.SourceLocal,
	}
}

func dreamUniversity() models.University {
	return models.University{
		ID:      "uni-dream",
		Name:    "Unranked College",
		Country: "Germany",
		Source:  models.SourceLocal,
	}
}

func createTestHandler(t *testing.T, catalog *fakeCatalog, dir Directory, retriever *mockRetriever, c QueryCache) *Handler {
	var r semantic.Retriever
	if retriever != nil {
		r = retriever
	}
	return NewHandler(createTestConfig(), catalog, fakeProfiles{err: postgres.ErrNotFound}, dir, r, c, logger.NewTestLogger(t))
}

func ids(results []models.ScoredUniversity) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.ID
	}
	return out
}

// ==========================
// Browse Mode
// ==========================

func TestHandler_Execute_AnonymousBrowse(t *testing.T) {
	catalog := &fakeCatalog{many: []models.University{dreamUniversity(), safeUniversity()}}
	dir := &mockDirectory{}
	h := createTestHandler(t, catalog, dir, nil, nil)

	out, err := h.Execute(context.Background(), &Input{})
	require.NoError(t, err)

	assert.Equal(t, ModeBrowse, out.Mode)
	assert.Equal(t, []string{"uni-dream", "uni-safe"}, ids(out.Universities))
	assert.Equal(t, 2, out.Total)
	for _, u := range out.Universities {
		assert.Nil(t, u.MatchScore)
		assert.Empty(t, u.Category)
	}
	require.Len(t, catalog.filters, 1)
	assert.Equal(t, postgres.Filter{Limit: 40}, catalog.filters[0])
	dir.AssertNotCalled(t, "Search", mock.Anything, mock.Anything, mock.Anything)
}

func TestHandler_Execute_BrowseMergesDirectoryAndScores(t *testing.T) {
	catalog := &fakeCatalog{many: []models.University{dreamUniversity(), safeUniversity()}}
	dir := &mockDirectory{}
	dir.On("Search", mock.Anything, "university", "").Return([]models.University{
		{ID: "ext-0-stanford-university", Name: "STANFORD UNIVERSITY", Source: models.SourceExternal},
		{ID: "ext-1-new-school", Name: "New School", Country: "USA", Rank: intPtr(300), Tuition: 30000,
			AcceptanceRate: "50%", Source: models.SourceExternal},
	})
	h := createTestHandler(t, catalog, dir, nil, nil)

	out, err := h.Execute(context.Background(), &Input{Profile: createTestProfile(), Search: " university "})
	require.NoError(t, err)

	assert.Equal(t, []string{"uni-safe", "ext-1-new-school", "uni-dream"}, ids(out.Universities))
	require.NotNil(t, out.Universities[0].MatchScore)
	assert.Equal(t, 90, *out.Universities[0].MatchScore)
	assert.Equal(t, models.CategorySafe, out.Universities[0].Category)
	assert.Contains(t, out.Universities[0].Tags, "Safe")
	assert.Equal(t, models.CategoryDream, out.Universities[2].Category)

	for i := 1; i < len(out.Universities); i++ {
		assert.GreaterOrEqual(t, *out.Universities[i-1].MatchScore, *out.Universities[i].MatchScore)
	}
	assert.Equal(t, "university", catalog.filters[0].Search)
	dir.AssertExpectations(t)
}

func TestHandler_Execute_DirectoryDownKeepsLocal(t *testing.T) {
	catalog := &fakeCatalog{many: []models.University{safeUniversity()}}
	dir := &mockDirectory{}
	dir.On("Search", mock.Anything, "", "USA").Return([]models.University{})
	h := createTestHandler(t, catalog, dir, nil, nil)

	out, err := h.Execute(context.Background(), &Input{Country: "USA"})
	require.NoError(t, err)
	assert.Equal(t, []string{"uni-safe"}, ids(out.Universities))
	assert.Equal(t, "USA", catalog.filters[0].Country)
}

func TestHandler_Execute_CatalogFailure(t *testing.T) {
	catalog := &fakeCatalog{manyErr: errors.New("connection reset")}
	dir := &mockDirectory{}
	dir.On("Search", mock.Anything, mock.Anything, mock.Anything).Return([]models.University{})
	h := createTestHandler(t, catalog, dir, nil, nil)

	_, err := h.Execute(context.Background(), &Input{Search: "x"})
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeCatalogQueryFailed))
}

func TestHandler_Execute_StableOrderForEqualScores(t *testing.T) {
	a := dreamUniversity()
	b := dreamUniversity()
	b.ID, b.Name = "uni-dream-2", "Another Unranked College"
	catalog := &fakeCatalog{many: []models.University{a, b}}
	h := createTestHandler(t, catalog, &mockDirectory{}, nil, nil)

	out, err := h.Execute(context.Background(), &Input{Profile: createTestProfile()})
	require.NoError(t, err)
	assert.Equal(t, []string{"uni-dream", "uni-dream-2"}, ids(out.Universities))
}

// ==========================
// Semantic Mode
// ==========================

func TestHandler_Execute_SemanticText(t *testing.T) {
	catalog := &fakeCatalog{byIDs: map[string]models.University{
		"uni-dream": dreamUniversity(),
		"uni-safe":  safeUniversity(),
	}}
	retriever := &mockRetriever{}
	profile := createTestProfile()
	retriever.On("SearchByText", mock.Anything, "ai research", profile, 20).
		Return([]string{"uni-dream", "missing", "uni-safe"}, nil)
	h := createTestHandler(t, catalog, &mockDirectory{}, retriever, nil)

	out, err := h.Execute(context.Background(), &Input{Profile: profile, Search: "ai research", Semantic: true})
	require.NoError(t, err)

	assert.Equal(t, ModeSemantic, out.Mode)
	assert.Equal(t, []string{"uni-safe", "uni-dream"}, ids(out.Universities))
	assert.Equal(t, [][]string{{"uni-dream", "missing", "uni-safe"}}, catalog.idLookup)
	assert.Empty(t, catalog.filters)
	retriever.AssertExpectations(t)
}

func TestHandler_Execute_SemanticFailureFallsBack(t *testing.T) {
	catalog := &fakeCatalog{many: []models.University{safeUniversity()}}
	retriever := &mockRetriever{}
	retriever.On("SearchByText", mock.Anything, "stanford", mock.Anything, 20).
		Return(nil, errors.New("index missing"))
	h := createTestHandler(t, catalog, &mockDirectory{}, retriever, nil)

	out, err := h.Execute(context.Background(), &Input{Profile: createTestProfile(), Search: "stanford", Semantic: true})
	require.NoError(t, err)

	assert.Equal(t, ModeSemantic, out.Mode)
	assert.Equal(t, []string{"uni-safe"}, ids(out.Universities))
	require.Len(t, catalog.filters, 1)
	assert.Equal(t, postgres.Filter{NameOrCountry: "stanford", Limit: 10}, catalog.filters[0])
}

func TestHandler_Execute_RecommendationWithNoRowsFallsBack(t *testing.T) {
	catalog := &fakeCatalog{many: []models.University{dreamUniversity()}, byIDs: map[string]models.University{}}
	retriever := &mockRetriever{}
	retriever.On("RecommendForProfile", mock.Anything, mock.Anything, 20).Return([]string{"gone"}, nil)
	h := createTestHandler(t, catalog, &mockDirectory{}, retriever, nil)

	out, err := h.Execute(context.Background(), &Input{Profile: createTestProfile(), Semantic: true})
	require.NoError(t, err)

	assert.Equal(t, []string{"uni-dream"}, ids(out.Universities))
	assert.Equal(t, postgres.Filter{Limit: 10}, catalog.filters[0])
}

func TestHandler_Execute_SemanticWithoutRetriever(t *testing.T) {
	catalog := &fakeCatalog{many: []models.University{dreamUniversity()}}
	h := createTestHandler(t, catalog, &mockDirectory{}, nil, nil)

	out, err := h.Execute(context.Background(), &Input{Profile: createTestProfile(), Semantic: true})
	require.NoError(t, err)
	assert.Equal(t, ModeSemantic, out.Mode)
	assert.Len(t, out.Universities, 1)
}

func TestHandler_Execute_SemanticNeedsProfile(t *testing.T) {
	catalog := &fakeCatalog{many: []models.University{dreamUniversity()}}
	retriever := &mockRetriever{}
	h := createTestHandler(t, catalog, &mockDirectory{}, retriever, nil)

	out, err := h.Execute(context.Background(), &Input{Semantic: true})
	require.NoError(t, err)
	assert.Equal(t, ModeBrowse, out.Mode)
	retriever.AssertNotCalled(t, "RecommendForProfile", mock.Anything, mock.Anything, mock.Anything)
}

// ==========================
// Profiles And Cache
// ==========================

func TestHandler_Execute_LoadsProfileByUserID(t *testing.T) {
	catalog := &fakeCatalog{many: []models.University{safeUniversity()}}
	h := NewHandler(createTestConfig(), catalog, fakeProfiles{profile: createTestProfile()}, &mockDirectory{}, nil, nil,
		logger.NewTestLogger(t))

	out, err := h.Execute(context.Background(), &Input{UserID: "user-1"})
	require.NoError(t, err)
	require.NotNil(t, out.Universities[0].MatchScore)
}

func TestHandler_Execute_ProfileLookupFailure(t *testing.T) {
	h := NewHandler(createTestConfig(), &fakeCatalog{}, fakeProfiles{err: errors.New("db down")}, &mockDirectory{}, nil, nil,
		logger.NewTestLogger(t))

	_, err := h.Execute(context.Background(), &Input{UserID: "user-1"})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeCatalogQueryFailed))
}

func TestHandler_Execute_CachesBrowseResults(t *testing.T) {
	c := newFakeCache()
	catalog := &fakeCatalog{many: []models.University{safeUniversity()}}
	dir := &mockDirectory{}
	dir.On("Search", mock.Anything, mock.Anything, mock.Anything).Return([]models.University{})
	h := createTestHandler(t, catalog, dir, nil, c)

	out, err := h.Execute(context.Background(), &Input{Profile: createTestProfile(), Country: "USA"})
	require.NoError(t, err)
	assert.Equal(t, "a@example.com:USA:all:false", out.CacheKey)
	assert.Equal(t, []string{"a@example.com:USA:all:false"}, c.stored)

	again, err := h.Execute(context.Background(), &Input{Profile: createTestProfile(), Country: "USA"})
	require.NoError(t, err)
	assert.True(t, again.Cached)
	assert.Len(t, catalog.filters, 1, "cache hit must not query the catalog")
}

func TestHandler_Execute_ScoredResultsNeverServedToGuests(t *testing.T) {
	c := newFakeCache()
	catalog := &fakeCatalog{many: []models.University{safeUniversity()}}
	dir := &mockDirectory{}
	dir.On("Search", mock.Anything, mock.Anything, mock.Anything).Return([]models.University{})

	noEmail := createTestProfile()
	noEmail.Email = ""
	owner := NewHandler(createTestConfig(), catalog, fakeProfiles{profile: noEmail}, dir, nil, c,
		logger.NewTestLogger(t))

	scored, err := owner.Execute(context.Background(), &Input{UserID: "user-1"})
	require.NoError(t, err)
	require.NotNil(t, scored.Universities[0].MatchScore)
	assert.Equal(t, "user:user-1:all:all:false", scored.CacheKey)

	anonymous := createTestHandler(t, catalog, dir, nil, c)
	out, err := anonymous.Execute(context.Background(), &Input{})
	require.NoError(t, err)

	assert.False(t, out.Cached)
	require.NotEmpty(t, out.Universities)
	for _, u := range out.Universities {
		assert.Nil(t, u.MatchScore)
		assert.Empty(t, u.Category)
	}
	assert.Equal(t, []string{"user:user-1:all:all:false", "guest:all:all:false"}, c.stored)
}

func TestHandler_Execute_DoesNotCacheProfileWithoutIdentity(t *testing.T) {
	c := newFakeCache()
	dir := &mockDirectory{}
	dir.On("Search", mock.Anything, mock.Anything, mock.Anything).Return([]models.University{})
	h := createTestHandler(t, &fakeCatalog{many: []models.University{safeUniversity()}}, dir, nil, c)

	profile := createTestProfile()
	profile.Email = ""
	profile.UserID = ""

	out, err := h.Execute(context.Background(), &Input{Profile: profile})
	require.NoError(t, err)
	require.NotNil(t, out.Universities[0].MatchScore)
	assert.Empty(t, out.CacheKey)
	assert.Empty(t, c.stored)
}

func TestHandler_Execute_DoesNotCacheSearchOrEmpty(t *testing.T) {
	c := newFakeCache()
	dir := &mockDirectory{}
	dir.On("Search", mock.Anything, mock.Anything, mock.Anything).Return([]models.University{})

	withRows := createTestHandler(t, &fakeCatalog{many: []models.University{safeUniversity()}}, dir, nil, c)
	_, err := withRows.Execute(context.Background(), &Input{Search: "stan"})
	require.NoError(t, err)

	empty := createTestHandler(t, &fakeCatalog{}, dir, nil, c)
	out, err := empty.Execute(context.Background(), &Input{})
	require.NoError(t, err)

	assert.Empty(t, out.CacheKey)
	assert.Empty(t, c.stored)
}

func TestHandler_Execute_NilInput(t *testing.T) {
	h := createTestHandler(t, &fakeCatalog{}, &mockDirectory{}, nil, nil)

	_, err := h.Execute(context.Background(), nil)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeValidationFailed))
}

func TestLoadConfig_Defaults(t *testing.T) {
	c := LoadConfig(nil)
	assert.Equal(t, 40, c.BrowseLimit)
	assert.Equal(t, 80, c.MergeLimit)
	assert.Equal(t, 10, c.FallbackLimit)
	assert.Equal(t, 20, c.SemanticLimit)
	assert.Equal(t, 30*time.Second, c.Timeout)
}
