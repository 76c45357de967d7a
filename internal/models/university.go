package models

import "strings"

// ExternalIDPrefix marks universities synthesized from the public directory.
const ExternalIDPrefix = "ext-"

type Source string

const (
	SourceLocal    Source = "local"
	SourceExternal Source = "external"
)

type University struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Location       string   `json:"location"`
	Country        string   `json:"country"`
	Rank           *int     `json:"rank"`
	Tuition        float64  `json:"tuition"`
	AcceptanceRate string   `json:"acceptanceRate"`
	Programs       []string `json:"programs"`
	Description    string   `json:"description"`
	Tags           []string `json:"tags"`
	Website        string   `json:"website"`
	Source         Source   `json:"source"`
}

func IsExternalID(id string) bool {
	return strings.HasPrefix(id, ExternalIDPrefix)
}

func (u University) IsExternal() bool {
	return IsExternalID(u.ID)
}

type Category string

const (
	CategoryDream  Category = "Dream"
	CategoryTarget Category = "Target"
	CategorySafe   Category = "Safe"
)

// Rank orders categories Dream < Target < Safe.
func (c Category) Rank() int {
	switch c {
	case CategorySafe:
		return 2
	case CategoryTarget:
		return 1
	default:
		return 0
	}
}

// ScoredUniversity is a per-request view of a catalog row. It is never persisted.
type ScoredUniversity struct {
	University
	MatchScore *int     `json:"matchScore,omitempty"`
	Category   Category `json:"category,omitempty"`
	Tags       []string `json:"tags"`
}

// Annotate builds the scored view without touching u's tag slice.
func Annotate(u University, score int, category Category) ScoredUniversity {
	tags := make([]string, 0, len(u.Tags)+1)
	seen := make(map[string]bool, len(u.Tags)+1)
	for _, t := range u.Tags {
		if seen[t] {
			continue
		}
		seen[t] = true
		tags = append(tags, t)
	}
	if !seen[string(category)] {
		tags = append(tags, string(category))
	}

	s := score
	return ScoredUniversity{
		University: u,
		MatchScore: &s,
		Category:   category,
		Tags:       tags,
	}
}

// Unscored wraps u for anonymous responses.
func Unscored(u University) ScoredUniversity {
	tags := u.Tags
	if tags == nil {
		tags = []string{}
	}
	return ScoredUniversity{University: u, Tags: tags}
}
