package rpc

import (
	"context"
	"strings"

	"connectrpc.com/connect"
)

// Client calls the Connect services of a running API server.
type Client struct {
	search   *connect.Client[SearchRequest, SearchResponse]
	progress *connect.Client[GetProgressRequest, GetProgressResponse]
}

// NewClient creates a client for the server at baseURL.
func NewClient(httpClient connect.HTTPClient, baseURL string) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	codec := connect.WithCodec(jsonCodec{})
	return &Client{
		search:   connect.NewClient[SearchRequest, SearchResponse](httpClient, baseURL+SearchProcedure, codec),
		progress: connect.NewClient[GetProgressRequest, GetProgressResponse](httpClient, baseURL+GetProgressProcedure, codec),
	}
}

// Search runs a query against the server's index.
func (c *Client) Search(ctx context.Context, query string, topK int) ([]*SearchHit, error) {
	resp, err := c.search.CallUnary(ctx, connect.NewRequest(&SearchRequest{Query: query, TopK: int32(topK)}))
	if err != nil {
		return nil, err
	}
	return resp.Msg.Hits, nil
}

// GetProgress fetches a job's progress record.
func (c *Client) GetProgress(ctx context.Context, jobID string) (*GetProgressResponse, error) {
	resp, err := c.progress.CallUnary(ctx, connect.NewRequest(&GetProgressRequest{JobID: jobID}))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}
