package client

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/kinship-crm/kinship/pkg/common"
)

// ListOptions narrows a collection request. Filters are sent as query
// parameters as is, for example {"person": "3"}.
type ListOptions struct {
	Page     int
	PageSize int
	Search   string
	Filters  map[string]string
}

func (o ListOptions) values() url.Values {
	v := url.Values{}
	if o.Page > 0 {
		v.Set("page", strconv.Itoa(o.Page))
	}
	if o.PageSize > 0 {
		v.Set("page_size", strconv.Itoa(o.PageSize))
	}
	if o.Search != "" {
		v.Set("search", o.Search)
	}
	for k, val := range o.Filters {
		v.Set(k, val)
	}
	return v
}

// Resource is a paginated CRUD collection.
type Resource[T any] struct {
	c    *Client
	path string
}

func newResource[T any](c *Client, path string) *Resource[T] {
	return &Resource[T]{c: c, path: path}
}

func (r *Resource[T]) item(id int64) string {
	return r.path + "/" + strconv.FormatInt(id, 10)
}

// List fetches a single page.
func (r *Resource[T]) List(ctx context.Context, opts ListOptions) (common.Page[T], error) {
	var page common.Page[T]
	err := r.c.do(ctx, http.MethodGet, r.path, opts.values(), nil, &page)
	return page, err
}

// All follows the pages starting at opts.Page until the last one.
func (r *Resource[T]) All(ctx context.Context, opts ListOptions) ([]T, error) {
	if opts.Page <= 0 {
		opts.Page = 1
	}
	var all []T
	for {
		page, err := r.List(ctx, opts)
		if err != nil {
			return nil, err
		}
		all = append(all, page.Results...)
		if page.Next == nil || len(page.Results) == 0 {
			return all, nil
		}
		opts.Page++
	}
}

func (r *Resource[T]) Get(ctx context.Context, id int64) (T, error) {
	var out T
	err := r.c.do(ctx, http.MethodGet, r.item(id), nil, nil, &out)
	return out, err
}

// Create posts v, usually a T or a map of fields.
func (r *Resource[T]) Create(ctx context.Context, v any) (T, error) {
	var out T
	err := r.c.do(ctx, http.MethodPost, r.path, nil, v, &out)
	return out, err
}

// Update sends a partial update. Only the fields present in patch change.
func (r *Resource[T]) Update(ctx context.Context, id int64, patch any) (T, error) {
	var out T
	err := r.c.do(ctx, http.MethodPatch, r.item(id), nil, patch, &out)
	return out, err
}

func (r *Resource[T]) Delete(ctx context.Context, id int64) error {
	return r.c.do(ctx, http.MethodDelete, r.item(id), nil, nil, nil)
}
