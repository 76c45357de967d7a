// Package scoring computes the deterministic profile/university fit score and
// the category derived from it.
package scoring

import (
	"strconv"
	"strings"
	"unicode"

	"advising-workers/internal/models"
)

const (
	MaxScore = 100
	MinScore = 0
)

// Breakdown holds the per-factor contributions that make up a score.
type Breakdown struct {
	Academic      int `json:"academic"`
	Affordability int `json:"affordability"`
	Geography     int `json:"geography"`
	Selectivity   int `json:"selectivity"`
	Program       int `json:"program"`
	Total         int `json:"total"`
}

type academicTier struct {
	minGPA  float64
	maxRank int
	points  int
}

var academicTiers = []academicTier{
	{minGPA: 3.7, maxRank: 10, points: 30},
	{minGPA: 3.3, maxRank: 50, points: 25},
	{minGPA: 3.0, maxRank: 100, points: 20},
}

const (
	academicFloor    = 10
	geographyBonus   = 15
	programBonus     = 15
	defaultAcceptPct = 100.0
)

// Score returns the fit of u for p in [0,100].
func Score(p *models.UserProfile, u models.University) int {
	return Compute(p, u).Total
}

func Compute(p *models.UserProfile, u models.University) Breakdown {
	if p == nil {
		p = &models.UserProfile{}
	}

	b := Breakdown{
		Academic:      academicFit(p.GPA, u.Rank),
		Affordability: affordability(p.BudgetMax, u.Tuition),
		Geography:     geography(p.PreferredCountries, u.Country),
		Selectivity:   selectivity(u.AcceptanceRate),
		Program:       programMatch(p.TargetField, u.Programs),
	}
	b.Total = clamp(b.Academic + b.Affordability + b.Geography + b.Selectivity + b.Program)
	return b
}

func academicFit(gpa float64, rank *int) int {
	if rank == nil {
		return academicFloor
	}
	for _, tier := range academicTiers {
		if gpa >= tier.minGPA && *rank <= tier.maxRank {
			return tier.points
		}
	}
	return academicFloor
}

// affordability compares against fractions of tuition by multiplication so a
// zero tuition never reaches a division.
func affordability(budget, tuition float64) int {
	switch {
	case budget >= tuition:
		return 25
	case budget >= tuition*0.8:
		return 15
	case budget >= tuition*0.5:
		return 5
	default:
		return 0
	}
}

func geography(preferred []string, country string) int {
	country = strings.TrimSpace(country)
	if country == "" {
		return 0
	}
	for _, c := range preferred {
		if strings.EqualFold(strings.TrimSpace(c), country) {
			return geographyBonus
		}
	}
	return 0
}

func selectivity(acceptanceRate string) int {
	rate := ParseAcceptanceRate(acceptanceRate)
	switch {
	case rate >= 30:
		return 15
	case rate >= 10:
		return 10
	default:
		return 5
	}
}

func programMatch(field string, programs []string) int {
	field = strings.ToLower(strings.TrimSpace(field))
	if field == "" {
		return 0
	}
	for _, program := range programs {
		if strings.Contains(strings.ToLower(program), field) {
			return programBonus
		}
	}
	return 0
}

// ParseAcceptanceRate reads the leading number of values like "8%", "45.5 %"
// or "N/A". Anything unparseable counts as 100.
func ParseAcceptanceRate(s string) float64 {
	s = strings.TrimSpace(s)
	end := 0
	for end < len(s) && (unicode.IsDigit(rune(s[end])) || s[end] == '.') {
		end++
	}
	if end == 0 {
		return defaultAcceptPct
	}
	v, err := strconv.ParseFloat(s[:end], 64)
	if err != nil {
		return defaultAcceptPct
	}
	return v
}

func clamp(v int) int {
	if v < MinScore {
		return MinScore
	}
	if v > MaxScore {
		return MaxScore
	}
	return v
}
