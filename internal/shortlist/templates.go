package shortlist

import (
	"fmt"
	"time"

	"advising-workers/internal/models"
)

// ShortlistStage is the stage a user reaches by shortlisting a university.
const ShortlistStage = 3

type taskTemplate struct {
	title    string
	priority models.Priority
	stage    int
	days     int
}

// universityTemplates are created for every shortlisted university; %s is
// the university name.
var universityTemplates = []taskTemplate{
	{"Research %s admission requirements", models.PriorityHigh, 3, 3},
	{"Review %s program curriculum and faculty", models.PriorityMedium, 3, 5},
	{"Prepare application documents for %s", models.PriorityHigh, 4, 20},
	{"Check scholarship opportunities at %s", models.PriorityMedium, 3, 15},
	{"Submit application to %s", models.PriorityHigh, 5, 25},
}

var stageTemplates = map[int][]taskTemplate{
	1: {
		{"Complete your academic profile", models.PriorityHigh, 1, 2},
		{"Set your budget range", models.PriorityHigh, 1, 2},
		{"Choose your preferred countries", models.PriorityMedium, 1, 3},
	},
	2: {
		{"Explore university matches", models.PriorityHigh, 2, 3},
		{"Compare tuition and living costs", models.PriorityMedium, 2, 7},
	},
	3: {
		{"Shortlist at least 3 universities", models.PriorityHigh, 3, 7},
		{"Take required language or aptitude tests", models.PriorityHigh, 3, 30},
		{"Draft your statement of purpose", models.PriorityMedium, 3, 21},
	},
	4: {
		{"Request letters of recommendation", models.PriorityHigh, 4, 14},
		{"Finalize your statement of purpose", models.PriorityHigh, 4, 10},
		{"Order official transcripts", models.PriorityMedium, 4, 14},
	},
	5: {
		{"Track application decisions", models.PriorityMedium, 5, 30},
		{"Apply for student visa", models.PriorityHigh, 5, 45},
		{"Arrange accommodation", models.PriorityLow, 5, 60},
	},
}

// HasStageTemplates reports whether stage has default tasks.
func HasStageTemplates(stage int) bool {
	_, ok := stageTemplates[stage]
	return ok
}

// DueDate renders now+days in the short task date layout.
func DueDate(now time.Time, days int) string {
	return now.AddDate(0, 0, days).Format(models.DueDateLayout)
}

func (t taskTemplate) task(id, userID string, universityID *string, title string, now time.Time) models.Task {
	return models.Task{
		ID:           id,
		UserID:       userID,
		UniversityID: universityID,
		Title:        title,
		Priority:     t.priority,
		Stage:        t.stage,
		DueDate:      DueDate(now, t.days),
		CreatedAt:    now,
	}
}

func (e *Engine) universityTasks(userID string, u *models.University, now time.Time) []models.Task {
	uniID := u.ID
	tasks := make([]models.Task, 0, len(universityTemplates))
	for _, t := range universityTemplates {
		tasks = append(tasks, t.task(e.newID(), userID, &uniID, fmt.Sprintf(t.title, u.Name), now))
	}
	return tasks
}

// missingStageTasks returns the stage defaults whose titles are not in existing.
func (e *Engine) missingStageTasks(userID string, stage int, existing map[string]struct{}, now time.Time) []models.Task {
	var tasks []models.Task
	for _, t := range stageTemplates[stage] {
		if _, ok := existing[t.title]; ok {
			continue
		}
		tasks = append(tasks, t.task(e.newID(), userID, nil, t.title, now))
	}
	return tasks
}
