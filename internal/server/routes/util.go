package routes

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-playground/validator"
	"github.com/labstack/echo/v4"

	"github.com/kinship-crm/kinship/internal/queue"
	"github.com/kinship-crm/kinship/internal/server/middleware"
	"github.com/kinship-crm/kinship/pkg/assist"
	"github.com/kinship-crm/kinship/pkg/common"
	"github.com/kinship-crm/kinship/pkg/export"
	"github.com/kinship-crm/kinship/pkg/logger"
	"github.com/kinship-crm/kinship/pkg/relation"
	"github.com/kinship-crm/kinship/pkg/store"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

type detailResponse struct {
	Detail string `json:"detail"`
}

func app(c echo.Context) *middleware.App {
	return c.(*middleware.AppContext).App
}

// fieldError is a validation failure reported as {field: [messages]}.
type fieldError map[string][]string

func (e fieldError) Error() string {
	parts := make([]string, 0, len(e))
	for k, v := range e {
		parts = append(parts, k+": "+strings.Join(v, ", "))
	}
	return strings.Join(parts, "; ")
}

func invalid(field, msg string) error {
	return fieldError{field: {msg}}
}

var errBadBody = errors.New("invalid request body")

// bind decodes the request into v and validates it.
func bind(c echo.Context, v any) error {
	if err := c.Bind(v); err != nil {
		return errBadBody
	}
	return c.Validate(v)
}

// respondError maps domain errors to status codes.
func respondError(c echo.Context, err error) error {
	var (
		fe   fieldError
		ve   validator.ValidationErrors
		herr *echo.HTTPError
	)
	switch {
	case errors.As(err, &fe):
		return c.JSON(http.StatusBadRequest, fe)
	case errors.As(err, &ve):
		return c.JSON(http.StatusBadRequest, validationFields(ve))
	case errors.Is(err, errBadBody):
		return c.JSON(http.StatusBadRequest, detailResponse{Detail: "Invalid request body."})
	case errors.Is(err, store.ErrNotFound):
		return c.JSON(http.StatusNotFound, detailResponse{Detail: "Not found."})
	case errors.Is(err, store.ErrConflict):
		return c.JSON(http.StatusConflict, detailResponse{Detail: err.Error()})
	case errors.Is(err, relation.ErrSelfRelationship):
		return c.JSON(http.StatusBadRequest, fieldError{"person_b_id": {err.Error()}})
	case errors.Is(err, relation.ErrEndpointsChanged):
		return c.JSON(http.StatusBadRequest, fieldError{"non_field_errors": {err.Error()}})
	case errors.Is(err, relation.ErrDuplicate):
		return c.JSON(http.StatusBadRequest, fieldError{"non_field_errors": {err.Error()}})
	case errors.Is(err, relation.ErrInvalidStrength):
		return c.JSON(http.StatusBadRequest, fieldError{"strength": {err.Error()}})
	case errors.Is(err, relation.ErrInvalidCategory):
		return c.JSON(http.StatusBadRequest, fieldError{"category": {err.Error()}})
	case errors.Is(err, store.ErrGroupCycle):
		return c.JSON(http.StatusBadRequest, fieldError{"parent_id": {err.Error()}})
	case errors.Is(err, export.ErrUnknownFormat):
		return c.JSON(http.StatusBadRequest, fieldError{"format": {err.Error()}})
	case errors.Is(err, assist.ErrEmptyInput):
		return c.JSON(http.StatusBadRequest, detailResponse{Detail: err.Error()})
	case errors.Is(err, assist.ErrUnavailable):
		return c.JSON(http.StatusServiceUnavailable, detailResponse{Detail: err.Error()})
	case errors.As(err, &herr):
		return c.JSON(herr.Code, detailResponse{Detail: fmt.Sprint(herr.Message)})
	}
	logger.Error("[API] request failed", "method", c.Request().Method, "path", c.Path(), "err", err)
	return c.JSON(http.StatusInternalServerError, detailResponse{Detail: "Internal server error."})
}

func validationFields(ve validator.ValidationErrors) fieldError {
	out := fieldError{}
	for _, fe := range ve {
		// Namespace is "<struct>.<json path>"; drop the struct name.
		field := fe.Namespace()
		if i := strings.IndexByte(field, '.'); i >= 0 {
			field = field[i+1:]
		}
		out[field] = append(out[field], validationMessage(fe))
	}
	return out
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required."
	case "max":
		return fmt.Sprintf("Ensure this field has no more than %s characters.", fe.Param())
	case "min":
		return fmt.Sprintf("Ensure this field has at least %s entries.", fe.Param())
	case "gte":
		return fmt.Sprintf("Ensure this value is greater than or equal to %s.", fe.Param())
	case "lte":
		return fmt.Sprintf("Ensure this value is less than or equal to %s.", fe.Param())
	case "oneof":
		return fmt.Sprintf("%q is not a valid choice.", fmt.Sprint(fe.Value()))
	case "email":
		return "Enter a valid email address."
	case "hexcolor":
		return "Enter a valid hex color."
	case "url":
		return "Enter a valid URL."
	}
	return "Invalid value."
}

func pathID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, store.ErrNotFound
	}
	return id, nil
}

func queryID(c echo.Context, name string) (int64, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return 0, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, invalid(name, "A valid integer is required.")
	}
	return id, nil
}

// pageRequest is the parsed pagination and filter query of a list request.
type pageRequest struct {
	params store.ListParams
	page   int
	size   int
}

func parseList(c echo.Context) (pageRequest, error) {
	req := pageRequest{page: 1, size: defaultPageSize}
	if raw := c.QueryParam("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return req, echo.NewHTTPError(http.StatusNotFound, "Invalid page.")
		}
		req.page = n
	}
	if raw := c.QueryParam("page_size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return req, invalid("page_size", "A valid integer is required.")
		}
		req.size = min(n, maxPageSize)
	}

	p := store.ListParams{
		Search:   strings.TrimSpace(c.QueryParam("search")),
		Category: c.QueryParam("category"),
		Limit:    req.size,
		Offset:   (req.page - 1) * req.size,
	}
	var err error
	for name, dst := range map[string]*int64{
		"person":            &p.PersonID,
		"tag":               &p.TagID,
		"group":             &p.GroupID,
		"relationship_type": &p.TypeID,
		"anecdote":          &p.AnecdoteID,
	} {
		if *dst, err = queryID(c, name); err != nil {
			return req, err
		}
	}
	req.params = p
	return req, nil
}

// respondPage writes the {count, next, previous, results} envelope.
func respondPage[T any](c echo.Context, req pageRequest, items []T, count int) error {
	if req.page > 1 && req.params.Offset >= count {
		return respondError(c, echo.NewHTTPError(http.StatusNotFound, "Invalid page."))
	}
	if items == nil {
		items = []T{}
	}
	page := common.Page[T]{Count: count, Results: items}
	if req.params.Offset+len(items) < count {
		page.Next = pageLink(c, req.page+1)
	}
	if req.page > 1 {
		page.Previous = pageLink(c, req.page-1)
	}
	return c.JSON(http.StatusOK, page)
}

func pageLink(c echo.Context, page int) *string {
	u := *c.Request().URL
	q := u.Query()
	q.Set("page", strconv.Itoa(page))
	u.RawQuery = q.Encode()
	link := (&url.URL{Scheme: c.Scheme(), Host: c.Request().Host, Path: u.Path, RawQuery: u.RawQuery}).String()
	return &link
}

// enqueue publishes a background job. Failures are logged; the scheduled
// backfill recovers lost embedding jobs.
func enqueue(ctx context.Context, c echo.Context, name string, msg any) {
	if err := app(c).Queue.Publish(ctx, name, msg); err != nil {
		logger.Warn("[Queue] publish failed", "queue", name, "err", err)
	}
}

func enqueueEmbed(c echo.Context, personID int64) {
	enqueue(c.Request().Context(), c, queue.PersonEmbedQueue, queue.PersonMsg{PersonID: personID})
}
