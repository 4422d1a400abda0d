package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/kinship-crm/kinship/pkg/common"
	"github.com/kinship-crm/kinship/pkg/graph"
)

// Me returns the owner profile. It fails with a not-found error until the
// owner has been created.
func (c *Client) Me(ctx context.Context) (common.Person, error) {
	var p common.Person
	err := c.do(ctx, http.MethodGet, "/me", nil, nil, &p)
	return p, err
}

func (c *Client) CreateMe(ctx context.Context, v any) (common.Person, error) {
	var p common.Person
	err := c.do(ctx, http.MethodPost, "/me", nil, v, &p)
	return p, err
}

func (c *Client) UpdateMe(ctx context.Context, patch any) (common.Person, error) {
	var p common.Person
	err := c.do(ctx, http.MethodPatch, "/me", nil, patch, &p)
	return p, err
}

func (c *Client) Dashboard(ctx context.Context) (common.Stats, error) {
	var s common.Stats
	err := c.do(ctx, http.MethodGet, "/dashboard", nil, nil, &s)
	return s, err
}

// Search runs the plain text search over persons, anecdotes, tags and
// groups.
func (c *Client) Search(ctx context.Context, q string) (common.SearchResults, error) {
	var res common.SearchResults
	err := c.do(ctx, http.MethodGet, "/search", url.Values{"q": {q}}, nil, &res)
	return res, err
}

// PersonRelationships lists the relationships of one person as seen from
// that person.
func (c *Client) PersonRelationships(ctx context.Context, personID int64) ([]common.PersonRelationship, error) {
	var out []common.PersonRelationship
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/persons/%d/relationships", personID), nil, nil, &out)
	return out, err
}

// GraphOptions selects the part of the relationship graph to fetch. A zero
// Center returns the whole graph.
type GraphOptions struct {
	Center int64
	Depth  int
}

func (o GraphOptions) values() url.Values {
	v := url.Values{}
	if o.Center != 0 {
		v.Set("center", strconv.FormatInt(o.Center, 10))
	}
	if o.Depth > 0 {
		v.Set("depth", strconv.Itoa(o.Depth))
	}
	return v
}

// Graph returns the raw node and edge projection.
func (c *Client) Graph(ctx context.Context, opts GraphOptions) (common.GraphProjection, error) {
	var p common.GraphProjection
	err := c.do(ctx, http.MethodGet, "/relationships/graph", opts.values(), nil, &p)
	return p, err
}

// RenderedGraph returns the graph with the server-side layout applied.
func (c *Client) RenderedGraph(ctx context.Context, opts GraphOptions) (graph.Rendered, error) {
	v := opts.values()
	v.Set("layout", "true")
	var r graph.Rendered
	err := c.do(ctx, http.MethodGet, "/relationships/graph", v, nil, &r)
	return r, err
}

func (c *Client) ExportPreview(ctx context.Context) (common.ExportPreview, error) {
	var p common.ExportPreview
	err := c.do(ctx, http.MethodGet, "/export/preview", nil, nil, &p)
	return p, err
}

// Export downloads the full dump as "json" or "xlsx".
func (c *Client) Export(ctx context.Context, format string) ([]byte, error) {
	resp, err := c.request(ctx).
		SetQueryParam("format", format).
		Get("/export")
	if err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}
	if resp.IsError() {
		return nil, newAPIError(resp)
	}
	return resp.Body(), nil
}

// PhotoUpload is the multipart form of a photo upload.
type PhotoUpload struct {
	FileName  string
	File      io.Reader
	Caption   string
	DateTaken string
	Location  string
	PersonIDs []int64
}

func (c *Client) UploadPhoto(ctx context.Context, up PhotoUpload) (common.Photo, error) {
	form := url.Values{}
	if up.Caption != "" {
		form.Set("caption", up.Caption)
	}
	if up.DateTaken != "" {
		form.Set("date_taken", up.DateTaken)
	}
	if up.Location != "" {
		form.Set("location", up.Location)
	}
	for _, id := range up.PersonIDs {
		form.Add("person_ids", strconv.FormatInt(id, 10))
	}

	var p common.Photo
	resp, err := c.request(ctx).
		SetFileReader("file", up.FileName, up.File).
		SetFormDataFromValues(form).
		SetResult(&p).
		Post("/photos")
	if err != nil {
		return p, fmt.Errorf("upload photo: %w", err)
	}
	if resp.IsError() {
		return p, newAPIError(resp)
	}
	return p, nil
}

// CreateTag, GetPerson and SetPersonTags are shortcuts used by the tag
// suggestion workflow.
func (c *Client) CreateTag(ctx context.Context, tag common.Tag) (common.Tag, error) {
	return c.Tags.Create(ctx, tag)
}

func (c *Client) GetPerson(ctx context.Context, id int64) (common.Person, error) {
	return c.Persons.Get(ctx, id)
}

func (c *Client) SetPersonTags(ctx context.Context, personID int64, tagIDs []int64) (common.Person, error) {
	return c.Persons.Update(ctx, personID, map[string]any{"tag_ids": tagIDs})
}
