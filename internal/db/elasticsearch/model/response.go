package model

// SearchResponse mirrors the slice of the Elasticsearch search response body
// this module consumes.
type SearchResponse struct {
	Hits struct {
		HitArray []Hit `json:"hits"`
	} `json:"hits"`
}

type Hit struct {
	ID     string                 `json:"_id"`
	Source map[string]interface{} `json:"_source"`
}

type CountResponse struct {
	Count int `json:"count"`
}

type DeleteByQueryResponse struct {
	Deleted int `json:"deleted"`
}
