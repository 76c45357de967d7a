package semantic

import (
	"strings"

	"advising-workers/internal/models"
)

var textFields = []string{"name^3", "programs^2", "description", "location"}

// textQuery matches text across the catalog fields. A non-empty vector adds
// a knn clause so lexical and vector hits are blended by Elasticsearch.
func textQuery(text string, profile *models.UserProfile, vector []float32, limit int) map[string]interface{} {
	boolQuery := map[string]interface{}{
		"must": []interface{}{
			map[string]interface{}{
				"multi_match": map[string]interface{}{
					"query":  text,
					"fields": textFields,
					"type":   "best_fields",
				},
			},
		},
	}
	if countries := cleanStrings(profileCountries(profile)); len(countries) > 0 {
		boolQuery["should"] = []interface{}{
			map[string]interface{}{
				"terms": map[string]interface{}{"country": countries},
			},
		}
	}

	body := map[string]interface{}{
		"size":    limit,
		"_source": false,
		"query":   map[string]interface{}{"bool": boolQuery},
	}
	if len(vector) > 0 {
		body["knn"] = map[string]interface{}{
			"field":          "embedding",
			"query_vector":   vector,
			"k":              limit,
			"num_candidates": limit * 5,
		}
	}
	return body
}

// recommendationQuery ranks the catalog against the profile's preferred
// countries and target field. A profile with neither matches everything.
func recommendationQuery(profile *models.UserProfile, limit int) map[string]interface{} {
	var should []interface{}
	if countries := cleanStrings(profileCountries(profile)); len(countries) > 0 {
		should = append(should, map[string]interface{}{
			"terms": map[string]interface{}{"country": countries},
		})
	}
	if profile != nil && strings.TrimSpace(profile.TargetField) != "" {
		should = append(should, map[string]interface{}{
			"match": map[string]interface{}{
				"programs": map[string]interface{}{"query": strings.TrimSpace(profile.TargetField)},
			},
		})
	}

	query := map[string]interface{}{"match_all": map[string]interface{}{}}
	if len(should) > 0 {
		query = map[string]interface{}{
			"bool": map[string]interface{}{
				"should":               should,
				"minimum_should_match": 1,
			},
		}
	}

	return map[string]interface{}{
		"size":    limit,
		"_source": false,
		"query":   query,
		"sort": []interface{}{
			"_score",
			map[string]interface{}{"rank": map[string]interface{}{"order": "asc", "missing": "_last"}},
		},
	}
}

func profileCountries(p *models.UserProfile) []string {
	if p == nil {
		return nil
	}
	return p.PreferredCountries
}

func cleanStrings(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
