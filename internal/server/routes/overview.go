package routes

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"golang.org/x/sync/errgroup"

	"github.com/kinship-crm/kinship/pkg/common"
	"github.com/kinship-crm/kinship/pkg/export"
	"github.com/kinship-crm/kinship/pkg/store"
)

const searchLimit = 10

func GetDashboardHandler(c echo.Context) error {
	stats, err := app(c).Store.Stats(c.Request().Context())
	if err != nil {
		return respondError(c, err)
	}
	if stats.RecentPersons == nil {
		stats.RecentPersons = []common.Person{}
	}
	return c.JSON(http.StatusOK, stats)
}

// SearchHandler runs the plain text search q over persons, anecdotes, tags
// and groups, up to ten hits each.
func SearchHandler(c echo.Context) error {
	res := common.SearchResults{
		Persons:   []common.Person{},
		Anecdotes: []common.Anecdote{},
		Tags:      []common.Tag{},
		Groups:    []common.Group{},
	}
	q := strings.TrimSpace(c.QueryParam("q"))
	if q == "" {
		return c.JSON(http.StatusOK, res)
	}

	s := app(c).Store
	p := store.ListParams{Search: q, Limit: searchLimit}
	g, ctx := errgroup.WithContext(c.Request().Context())
	g.Go(func() (err error) { res.Persons, _, err = s.ListPersons(ctx, p); return })
	g.Go(func() (err error) { res.Anecdotes, _, err = s.ListAnecdotes(ctx, p); return })
	g.Go(func() (err error) { res.Tags, _, err = s.ListTags(ctx, p); return })
	g.Go(func() (err error) { res.Groups, _, err = s.ListGroups(ctx, p); return })
	if err := g.Wait(); err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

func GetExportPreviewHandler(c echo.Context) error {
	p, err := export.Preview(c.Request().Context(), app(c).Store)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, p)
}

// ExportHandler downloads everything as format=json (default) or xlsx.
func ExportHandler(c echo.Context) error {
	format := c.QueryParam("format")
	if format != "" && format != export.FormatJSON && format != export.FormatXLSX {
		return respondError(c, export.ErrUnknownFormat)
	}
	d, err := export.Collect(c.Request().Context(), app(c).Store)
	if err != nil {
		return respondError(c, err)
	}
	body, contentType, name, err := export.Render(d, format)
	if err != nil {
		return respondError(c, err)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", name))
	return c.Blob(http.StatusOK, contentType, body)
}
