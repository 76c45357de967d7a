package matchuniversities

import "advising-workers/internal/models"

const (
	ModeSemantic = "semantic"
	ModeBrowse   = "browse"
)

type Input struct {
	UserID   string              `json:"userId,omitempty"`
	Profile  *models.UserProfile `json:"profile,omitempty"`
	Country  string              `json:"country,omitempty"`
	Search   string              `json:"search,omitempty"`
	Semantic bool                `json:"semantic"`
}

type Output struct {
	Universities []models.ScoredUniversity `json:"universities"`
	Mode         string                    `json:"mode"`
	Total        int                       `json:"total"`
	CacheKey     string                    `json:"cacheKey,omitempty"`
	Cached       bool                      `json:"cached"`
}
