package toggleshortlist

import (
	"advising-workers/internal/models"
	"advising-workers/internal/shortlist"
)

const (
	ActionToggle = "toggle"
	ActionAdd    = "add"
	ActionRemove = "remove"
)

type Input struct {
	UserID       string             `json:"userId"`
	UniversityID string             `json:"universityId"`
	University   *models.University `json:"university,omitempty"`
	// Action is toggle, add or remove. Empty means toggle.
	Action string `json:"action,omitempty"`
}

type Output struct {
	shortlist.Result
	RequestedAction string `json:"requestedAction"`
}
