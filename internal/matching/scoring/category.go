package scoring

import "advising-workers/internal/models"

const (
	safeThreshold   = 80
	targetThreshold = 60
)

// Categorize maps a score to its band. Safe is the high-fit band.
func Categorize(score int) models.Category {
	switch {
	case score >= safeThreshold:
		return models.CategorySafe
	case score >= targetThreshold:
		return models.CategoryTarget
	default:
		return models.CategoryDream
	}
}

// Annotate scores u for p and returns the request-scoped view.
func Annotate(p *models.UserProfile, u models.University) models.ScoredUniversity {
	s := Score(p, u)
	return models.Annotate(u, s, Categorize(s))
}
