package models

import "strings"

type UserProfile struct {
	UserID             string   `json:"userId"`
	Email              string   `json:"email,omitempty"`
	GPA                float64  `json:"gpa"`
	BudgetMin          float64  `json:"budgetMin"`
	BudgetMax          float64  `json:"budgetMax"`
	PreferredCountries []string `json:"preferredCountries"`
	TargetField        string   `json:"targetField"`
	Stage              int      `json:"stage"`
}

// Identity is the cache identity of the profile owner: the email, else
// "user:"+UserID. It is empty when the profile names neither, and callers
// must not share cached results for such a profile.
func (p *UserProfile) Identity() string {
	if p == nil {
		return ""
	}
	if e := strings.TrimSpace(p.Email); e != "" {
		return e
	}
	if id := strings.TrimSpace(p.UserID); id != "" {
		return "user:" + id
	}
	return ""
}
