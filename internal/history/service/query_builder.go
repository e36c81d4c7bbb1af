package service

import (
	"encoding/json"
	"time"
)

func buildCorrelationIDQuery(correlationID string) string {
	query := map[string]interface{}{
		"query": map[string]interface{}{
			"term": map[string]interface{}{
				"correlation_id": correlationID,
			},
		},
	}
	queryJSON, _ := json.Marshal(query)
	return string(queryJSON)
}

func buildRecentQuery() string {
	query := map[string]interface{}{
		"query": map[string]interface{}{
			"match_all": map[string]interface{}{},
		},
		"sort": []map[string]interface{}{
			{
				"start_time": map[string]interface{}{
					"order": "desc",
				},
			},
		},
	}
	queryJSON, _ := json.Marshal(query)
	return string(queryJSON)
}

func buildMatchAllQuery() string {
	query := map[string]interface{}{
		"query": map[string]interface{}{
			"match_all": map[string]interface{}{},
		},
	}
	queryJSON, _ := json.Marshal(query)
	return string(queryJSON)
}

func buildOlderThanQuery(cutoff time.Time) string {
	query := map[string]interface{}{
		"query": map[string]interface{}{
			"range": map[string]interface{}{
				"start_time": map[string]interface{}{
					"lt": cutoff.UTC().Format(time.RFC3339Nano),
				},
			},
		},
	}
	queryJSON, _ := json.Marshal(query)
	return string(queryJSON)
}
