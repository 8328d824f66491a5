// internal/searchhistory/queries.go
package searchhistory

import "time"

const profileFieldSize = 20

// indexMapping keeps the profile fields as keywords so they can be
// aggregated.
func indexMapping() map[string]interface{} {
	keyword := map[string]interface{}{"type": "keyword"}
	return map[string]interface{}{
		"mappings": map[string]interface{}{
			"properties": map[string]interface{}{
				"userId": map[string]interface{}{"type": "long"},
				"searchQuery": map[string]interface{}{
					"properties": map[string]interface{}{
						"term":       keyword,
						"city":       keyword,
						"country":    keyword,
						"preference": keyword,
						"company":    keyword,
						"minSalary":  map[string]interface{}{"type": "integer"},
						"maxSalary":  map[string]interface{}{"type": "integer"},
					},
				},
				"resultsCount":  map[string]interface{}{"type": "integer"},
				"searchResults": map[string]interface{}{"type": "object", "enabled": false},
				"searchMetadata": map[string]interface{}{
					"properties": map[string]interface{}{
						"userAgent": map[string]interface{}{"type": "text"},
						"ipAddress": keyword,
						"sessionId": keyword,
						"source":    keyword,
					},
				},
				"searchedAt": map[string]interface{}{"type": "date"},
			},
		},
	}
}

// buildProfileAggregation groups searches since the given time by user and
// collects the distinct values of each profile field.
func buildProfileAggregation(since time.Time, maxUsers int) map[string]interface{} {
	fieldAgg := func(field string) map[string]interface{} {
		return map[string]interface{}{
			"terms": map[string]interface{}{"field": field, "size": profileFieldSize},
		}
	}

	return map[string]interface{}{
		"size": 0,
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"filter": []interface{}{
					map[string]interface{}{
						"range": map[string]interface{}{
							"searchedAt": map[string]interface{}{"gte": since.UTC().Format(time.RFC3339)},
						},
					},
					map[string]interface{}{"exists": map[string]interface{}{"field": "userId"}},
				},
			},
		},
		"aggs": map[string]interface{}{
			"users": map[string]interface{}{
				"terms": map[string]interface{}{"field": "userId", "size": maxUsers},
				"aggs": map[string]interface{}{
					"terms":       fieldAgg("searchQuery.term"),
					"cities":      fieldAgg("searchQuery.city"),
					"countries":   fieldAgg("searchQuery.country"),
					"preferences": fieldAgg("searchQuery.preference"),
				},
			},
		},
	}
}

func buildUserHistoryQuery(userID int64, from, size int) map[string]interface{} {
	return map[string]interface{}{
		"from": from,
		"size": size,
		"query": map[string]interface{}{
			"term": map[string]interface{}{"userId": userID},
		},
		"sort": []interface{}{
			map[string]interface{}{"searchedAt": map[string]interface{}{"order": "desc"}},
		},
		"track_total_hits": true,
	}
}

func buildOlderThanQuery(cutoff time.Time) map[string]interface{} {
	return map[string]interface{}{
		"query": map[string]interface{}{
			"range": map[string]interface{}{
				"searchedAt": map[string]interface{}{"lt": cutoff.UTC().Format(time.RFC3339)},
			},
		},
	}
}
