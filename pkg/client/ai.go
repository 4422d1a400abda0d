package client

import (
	"context"
	"net/http"

	"github.com/kinship-crm/kinship/pkg/common"
)

func (c *Client) ParseContacts(ctx context.Context, req common.ParseContactsRequest) (common.ParseContactsResponse, error) {
	var res common.ParseContactsResponse
	err := c.do(ctx, http.MethodPost, "/ai/parse-contacts", nil, req, &res)
	return res, err
}

// BulkImport creates the given contacts. Per-record failures are reported
// in the result, not as an error.
func (c *Client) BulkImport(ctx context.Context, req common.BulkImportRequest) (common.BulkImportResult, error) {
	var res common.BulkImportResult
	err := c.do(ctx, http.MethodPost, "/ai/bulk-import", nil, req, &res)
	return res, err
}

func (c *Client) ParseUpdates(ctx context.Context, req common.ParseUpdatesRequest) (common.ParseUpdatesResponse, error) {
	var res common.ParseUpdatesResponse
	err := c.do(ctx, http.MethodPost, "/ai/parse-updates", nil, req, &res)
	return res, err
}

func (c *Client) ApplyUpdates(ctx context.Context, req common.ApplyUpdatesRequest) (common.ApplyUpdatesResult, error) {
	var res common.ApplyUpdatesResult
	err := c.do(ctx, http.MethodPost, "/ai/apply-updates", nil, req, &res)
	return res, err
}

func (c *Client) Chat(ctx context.Context, req common.ChatRequest) (common.ChatResponse, error) {
	var res common.ChatResponse
	err := c.do(ctx, http.MethodPost, "/ai/chat", nil, req, &res)
	return res, err
}

func (c *Client) SuggestRelationships(ctx context.Context, req common.SuggestRelationshipsRequest) (common.SuggestRelationshipsResponse, error) {
	var res common.SuggestRelationshipsResponse
	err := c.do(ctx, http.MethodPost, "/ai/suggest-relationships", nil, req, &res)
	return res, err
}

func (c *Client) ApplyRelationshipSuggestion(ctx context.Context, s common.RelationshipSuggestion) (common.Relationship, error) {
	var rel common.Relationship
	err := c.do(ctx, http.MethodPost, "/ai/apply-relationship-suggestion", nil, s, &rel)
	return rel, err
}

func (c *Client) SmartSearch(ctx context.Context, req common.SmartSearchRequest) (common.SmartSearchResponse, error) {
	var res common.SmartSearchResponse
	err := c.do(ctx, http.MethodPost, "/ai/smart-search", nil, req, &res)
	return res, err
}

func (c *Client) SuggestTags(ctx context.Context, req common.SuggestTagsRequest) (common.SuggestTagsResponse, error) {
	var res common.SuggestTagsResponse
	err := c.do(ctx, http.MethodPost, "/ai/suggest-tags", nil, req, &res)
	return res, err
}
