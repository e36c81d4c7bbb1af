package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/helicon-e2e/trailhead/internal/db/elasticsearch/model"
)

type RefreshRate string

const (
	// Wait for the changes made by the request to be made visible by a refresh before replying.
	Wait RefreshRate = "wait_for"
	// Immediate refreshes the relevant primary and replica shards immediately after the operation.
	Immediate RefreshRate = "true"
	// Async takes no refresh related actions; changes become visible at some later point.
	Async RefreshRate = "false"
)

// StoreClient is the narrow Elasticsearch surface the history layer uses.
type StoreClient interface {
	// Index inserts a single document into the index.
	Index(ctx context.Context, document interface{}, index string) error
	// BulkIndex inserts multiple documents into the same index in one request.
	BulkIndex(ctx context.Context, documents []interface{}, index string) error
	// Search runs the given query JSON against the indices and returns the
	// matching documents with their _id merged into each source map.
	Search(ctx context.Context, query string, indices []string, queryResultSize *int) ([]map[string]interface{}, error)
	// Count counts documents matching the query.
	Count(ctx context.Context, query string, indices []string) (int64, error)
	// DeleteByQuery removes documents matching the query and returns how many
	// were deleted.
	DeleteByQuery(ctx context.Context, query string, indices []string) (int, error)
}

const defaultSearchResultSize = 10

type StoreClientImpl struct {
	es          *elasticsearch.Client
	refreshRate string
}

func NewStoreClientImpl(es *elasticsearch.Client, refreshRate RefreshRate) *StoreClientImpl {
	return &StoreClientImpl{es: es, refreshRate: string(refreshRate)}
}

func (c *StoreClientImpl) Index(ctx context.Context, document interface{}, index string) error {
	docJSON, err := json.Marshal(document)
	if err != nil {
		return fmt.Errorf("error marshaling document to index: %w", err)
	}
	res, err := c.es.Index(
		index,
		bytes.NewReader(docJSON),
		c.es.Index.WithContext(ctx),
		c.es.Index.WithRefresh(c.refreshRate),
	)
	if err != nil {
		return fmt.Errorf("failed to index document in Elasticsearch: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("index error: %s", res.String())
	}
	return nil
}

func (c *StoreClientImpl) BulkIndex(ctx context.Context, documents []interface{}, index string) error {
	var buf bytes.Buffer
	for _, document := range documents {
		metaJSON, err := json.Marshal(map[string]interface{}{"index": map[string]interface{}{}})
		if err != nil {
			return fmt.Errorf("error marshaling meta to bulk index: %w", err)
		}
		buf.Write(metaJSON)
		buf.WriteByte('\n')

		docJSON, err := json.Marshal(document)
		if err != nil {
			return fmt.Errorf("error marshaling document to bulk index: %w", err)
		}
		buf.Write(docJSON)
		buf.WriteByte('\n')
	}

	res, err := c.es.Bulk(
		bytes.NewReader(buf.Bytes()),
		c.es.Bulk.WithIndex(index),
		c.es.Bulk.WithContext(ctx),
		c.es.Bulk.WithRefresh(c.refreshRate),
	)
	if err != nil {
		return fmt.Errorf("failed to bulk index in Elasticsearch: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("bulk index error: %s", res.String())
	}
	return nil
}

func (c *StoreClientImpl) Search(
	ctx context.Context,
	query string,
	indices []string,
	queryResultSize *int,
) ([]map[string]interface{}, error) {
	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(indices...),
		c.es.Search.WithBody(strings.NewReader(query)),
		c.es.Search.WithSize(getQuerySize(queryResultSize)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("failed to execute query: %s", res.String())
	}

	var searchResponse model.SearchResponse
	if err := json.NewDecoder(res.Body).Decode(&searchResponse); err != nil {
		return nil, fmt.Errorf("failed to decode response body: %w", err)
	}

	var results []map[string]interface{}
	for _, hit := range searchResponse.Hits.HitArray {
		results = append(results, hit.Source)
		results[len(results)-1]["_id"] = hit.ID
	}
	return results, nil
}

func (c *StoreClientImpl) Count(ctx context.Context, query string, indices []string) (int64, error) {
	res, err := c.es.Count(
		c.es.Count.WithContext(ctx),
		c.es.Count.WithIndex(indices...),
		c.es.Count.WithBody(strings.NewReader(query)),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to execute count query: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return 0, fmt.Errorf("failed to execute count query: %s", res.String())
	}

	var countResponse model.CountResponse
	if err := json.NewDecoder(res.Body).Decode(&countResponse); err != nil {
		return 0, fmt.Errorf("failed to decode response body: %w", err)
	}
	return int64(countResponse.Count), nil
}

func (c *StoreClientImpl) DeleteByQuery(ctx context.Context, query string, indices []string) (int, error) {
	res, err := c.es.DeleteByQuery(
		indices,
		strings.NewReader(query),
		c.es.DeleteByQuery.WithContext(ctx),
		c.es.DeleteByQuery.WithRefresh(c.refreshRate == string(Immediate)),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete by query in Elasticsearch: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return 0, fmt.Errorf("delete by query error: %s", res.String())
	}

	var deleteResponse model.DeleteByQueryResponse
	if err := json.NewDecoder(res.Body).Decode(&deleteResponse); err != nil {
		return 0, fmt.Errorf("failed to decode response body: %w", err)
	}
	return deleteResponse.Deleted, nil
}

func getQuerySize(queryResultSize *int) int {
	if queryResultSize == nil {
		return defaultSearchResultSize
	}
	return *queryResultSize
}
