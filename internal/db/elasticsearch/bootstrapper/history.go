package bootstrapper

const HistoryIndexName = "execution_history_index"

var historyIndex = map[string]interface{}{
	"settings": map[string]interface{}{
		"number_of_shards":   1,
		"number_of_replicas": 1,
	},
	"mappings": map[string]interface{}{
		"properties": map[string]interface{}{
			"execution_id": map[string]interface{}{
				"type": "keyword",
			},
			"test_plan_id": map[string]interface{}{
				"type": "keyword",
			},
			"correlation_id": map[string]interface{}{
				"type": "keyword",
			},
			"status": map[string]interface{}{
				"type": "keyword",
			},
			"start_time": map[string]interface{}{
				"type": "date",
			},
			"end_time": map[string]interface{}{
				"type": "date",
			},
			"duration_ms": map[string]interface{}{
				"type": "long",
			},
			"service_flow": map[string]interface{}{
				"type": "keyword",
			},
			"environment": map[string]interface{}{
				"type": "keyword",
			},
			"created_at": map[string]interface{}{
				"type": "date",
			},
		},
	},
}
