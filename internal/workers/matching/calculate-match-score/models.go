// internal/workers/matching/calculate-match-score/models.go
package calculatematchscore

import (
	"advising-workers/internal/matching/scoring"
	"advising-workers/internal/models"
)

// Input names the profile either inline or by userId, and the university
// either inline or by universityId.
type Input struct {
	UserID       string              `json:"userId,omitempty"`
	Profile      *models.UserProfile `json:"profile,omitempty"`
	UniversityID string              `json:"universityId,omitempty"`
	University   *models.University  `json:"university,omitempty"`
}

type Output struct {
	UniversityID string            `json:"universityId"`
	MatchScore   int               `json:"matchScore"`
	Category     models.Category   `json:"category"`
	Factors      scoring.Breakdown `json:"factors"`
}
