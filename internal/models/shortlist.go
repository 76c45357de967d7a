package models

import "time"

type Shortlist struct {
	ID           string    `json:"id"`
	UserID       string    `json:"userId"`
	UniversityID string    `json:"universityId"`
	CreatedAt    time.Time `json:"createdAt"`
}

type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

type Task struct {
	ID           string    `json:"id"`
	UserID       string    `json:"userId"`
	UniversityID *string   `json:"universityId,omitempty"`
	Title        string    `json:"title"`
	Priority     Priority  `json:"priority"`
	Stage        int       `json:"stage"`
	Completed    bool      `json:"completed"`
	DueDate      string    `json:"dueDate"`
	CreatedAt    time.Time `json:"createdAt"`
}

// DueDateLayout is the short date format stored on tasks.
const DueDateLayout = "1/2/2006"
