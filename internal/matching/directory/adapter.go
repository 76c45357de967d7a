// Package directory turns records from the public university directory into
// catalog-shaped universities.
package directory

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf16"

	"advising-workers/internal/models"
)

// RawRecord is one entry of the directory's /search response.
type RawRecord struct {
	Name          string   `json:"name"`
	Country       string   `json:"country"`
	AlphaTwoCode  string   `json:"alpha_two_code"`
	Domains       []string `json:"domains"`
	WebPages      []string `json:"web_pages"`
	StateProvince *string  `json:"state-province"`
}

const (
	rankBase    = 100
	rankSpread  = 900
	tuitionBase = 15000
	tuitionStep = 1000
	tuitionBand = 40
	acceptBase  = 20
	acceptBand  = 60
)

// Seed sums the UTF-16 code units of name. Enrichment derived from it is
// stable for a given institution across requests.
func Seed(name string) int {
	seed := 0
	for _, unit := range utf16.Encode([]rune(name)) {
		seed += int(unit)
	}
	return seed
}

// Adapt normalizes a record. index is the record's position in the response
// and only feeds the external identifier.
func Adapt(index int, r RawRecord) models.University {
	seed := Seed(r.Name)
	rank := rankBase + seed%rankSpread

	return models.University{
		ID:             fmt.Sprintf("%s%d-%s", models.ExternalIDPrefix, index, slug(r.Name)),
		Name:           r.Name,
		Location:       location(r),
		Country:        r.Country,
		Rank:           &rank,
		Tuition:        float64(tuitionBase + tuitionStep*(seed%tuitionBand)),
		AcceptanceRate: fmt.Sprintf("%d%%", acceptBase+seed%acceptBand),
		Programs:       []string{},
		Description:    fmt.Sprintf("%s is listed in the public university directory for %s.", r.Name, r.Country),
		Tags:           []string{},
		Website:        website(r),
		Source:         models.SourceExternal,
	}
}

func location(r RawRecord) string {
	if r.StateProvince != nil && strings.TrimSpace(*r.StateProvince) != "" {
		return strings.TrimSpace(*r.StateProvince) + ", " + r.Country
	}
	return r.Country
}

func website(r RawRecord) string {
	for _, page := range r.WebPages {
		if page = strings.TrimSpace(page); page != "" {
			return page
		}
	}
	for _, domain := range r.Domains {
		if domain = strings.TrimSpace(domain); domain != "" {
			return "https://" + domain
		}
	}
	return ""
}

func slug(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
