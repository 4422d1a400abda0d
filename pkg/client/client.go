// Package client is a typed REST client for the kinship API.
package client

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/kinship-crm/kinship/pkg/common"
)

// Client talks to one kinship server. The resource fields expose the CRUD
// collections; everything else is a method.
type Client struct {
	http *resty.Client
	root string

	Persons           *Resource[common.Person]
	Tags              *Resource[common.Tag]
	Groups            *Resource[common.Group]
	RelationshipTypes *Resource[common.RelationshipType]
	Relationships     *Resource[common.Relationship]
	Anecdotes         *Resource[common.Anecdote]
	Photos            *Resource[common.Photo]
	Employments       *Resource[common.Employment]
}

type Option func(*resty.Client)

// WithToken sends token as a bearer token on every request.
func WithToken(token string) Option {
	return func(c *resty.Client) {
		if token != "" {
			c.SetAuthToken(token)
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *resty.Client) {
		c.SetTimeout(d)
	}
}

// WithRetry retries transport errors and 5xx responses.
func WithRetry(count int, wait, maxWait time.Duration) Option {
	return func(c *resty.Client) {
		c.SetRetryCount(count).
			SetRetryWaitTime(wait).
			SetRetryMaxWaitTime(maxWait).
			AddRetryCondition(func(r *resty.Response, err error) bool {
				return err != nil || r.StatusCode() >= 500
			})
	}
}

// New creates a client for the server at baseURL, for example
// "http://localhost:8080".
func New(baseURL string, opts ...Option) *Client {
	root := strings.TrimRight(baseURL, "/")
	http := resty.New().
		SetBaseURL(root+"/api").
		SetTimeout(30*time.Second).
		SetHeader("Accept", "application/json")
	for _, opt := range opts {
		opt(http)
	}

	c := &Client{http: http, root: root}
	c.Persons = newResource[common.Person](c, "/persons")
	c.Tags = newResource[common.Tag](c, "/tags")
	c.Groups = newResource[common.Group](c, "/groups")
	c.RelationshipTypes = newResource[common.RelationshipType](c, "/relationship-types")
	c.Relationships = newResource[common.Relationship](c, "/relationships")
	c.Anecdotes = newResource[common.Anecdote](c, "/anecdotes")
	c.Photos = newResource[common.Photo](c, "/photos")
	c.Employments = newResource[common.Employment](c, "/employments")
	return c
}

func (c *Client) request(ctx context.Context) *resty.Request {
	return c.http.R().SetContext(ctx)
}

// do executes a JSON request. body and out may be nil.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	req := c.request(ctx)
	if query != nil {
		req.SetQueryParamsFromValues(query)
	}
	if body != nil {
		req.SetBody(body)
	}
	if out != nil {
		req.SetResult(out)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	if resp.IsError() {
		return newAPIError(resp)
	}
	return nil
}

// Health reports whether the server answers its health check.
func (c *Client) Health(ctx context.Context) error {
	resp, err := c.request(ctx).Get(c.root + "/health")
	if err != nil {
		return fmt.Errorf("health: %w", err)
	}
	if resp.IsError() {
		return newAPIError(resp)
	}
	return nil
}
