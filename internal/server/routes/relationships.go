package routes

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"golang.org/x/sync/errgroup"

	"github.com/kinship-crm/kinship/internal/util"
	"github.com/kinship-crm/kinship/pkg/common"
	"github.com/kinship-crm/kinship/pkg/graph"
	"github.com/kinship-crm/kinship/pkg/logger"
	"github.com/kinship-crm/kinship/pkg/relation"
	"github.com/kinship-crm/kinship/pkg/store"
)

type relationshipTypeInput struct {
	Name              string `json:"name" validate:"required,max=50"`
	InverseName       string `json:"inverse_name" validate:"max=50"`
	Category          string `json:"category" validate:"required"`
	IsSymmetric       bool   `json:"is_symmetric"`
	AutoCreateInverse bool   `json:"auto_create_inverse"`
}

func (in relationshipTypeInput) apply(t *common.RelationshipType) {
	t.Name = util.CleanText(in.Name)
	t.InverseName = util.CleanText(in.InverseName)
	t.Category = in.Category
	t.IsSymmetric = in.IsSymmetric
	t.AutoCreateInverse = in.AutoCreateInverse
}

// GetRelationshipTypesHandler lists types, filtered by search and category.
func GetRelationshipTypesHandler(c echo.Context) error {
	req, err := parseList(c)
	if err != nil {
		return respondError(c, err)
	}
	types, count, err := app(c).Store.ListRelationshipTypes(c.Request().Context(), req.params)
	if err != nil {
		return respondError(c, err)
	}
	return respondPage(c, req, types, count)
}

func GetRelationshipTypeHandler(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return respondError(c, err)
	}
	t, err := app(c).Store.GetRelationshipType(c.Request().Context(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, t)
}

// CreateRelationshipTypeHandler creates a type and, for asymmetric types,
// its inverse row.
func CreateRelationshipTypeHandler(c echo.Context) error {
	in := new(relationshipTypeInput)
	if err := bind(c, in); err != nil {
		return respondError(c, err)
	}
	var t common.RelationshipType
	in.apply(&t)
	t, err := app(c).Relations.CreateType(c.Request().Context(), t)
	if errors.Is(err, store.ErrConflict) {
		return respondError(c, invalid("name", "A relationship type with this name already exists."))
	}
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, t)
}

// EditRelationshipTypeHandler updates a type; the inverse row follows.
func EditRelationshipTypeHandler(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return respondError(c, err)
	}
	ctx := c.Request().Context()
	t, err := app(c).Store.GetRelationshipType(ctx, id)
	if err != nil {
		return respondError(c, err)
	}
	in := relationshipTypeInput{
		Name: t.Name, InverseName: t.InverseName, Category: t.Category,
		IsSymmetric: t.IsSymmetric, AutoCreateInverse: t.AutoCreateInverse,
	}
	if err := bind(c, &in); err != nil {
		return respondError(c, err)
	}
	in.apply(&t)

	t, err = app(c).Relations.UpdateType(ctx, t)
	if errors.Is(err, store.ErrConflict) {
		return respondError(c, invalid("name", "A relationship type with this name already exists."))
	}
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, t)
}

// DeleteRelationshipTypeHandler fails with 409 while relationships use the
// type.
func DeleteRelationshipTypeHandler(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return respondError(c, err)
	}
	if err := app(c).Store.DeleteRelationshipType(c.Request().Context(), id); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

type relationshipInput struct {
	PersonAID          int64        `json:"person_a_id" validate:"required"`
	PersonBID          int64        `json:"person_b_id" validate:"required"`
	RelationshipTypeID int64        `json:"relationship_type_id" validate:"required"`
	Strength           *int         `json:"strength" validate:"omitempty,gte=1,lte=5"`
	StartDate          *common.Date `json:"start_date"`
	Notes              string       `json:"notes"`
}

// check reports missing referenced records as field errors.
func (in relationshipInput) check(c echo.Context) error {
	ctx := c.Request().Context()
	s := app(c).Store
	fields := fieldError{}
	for field, id := range map[string]int64{"person_a_id": in.PersonAID, "person_b_id": in.PersonBID} {
		if _, err := s.GetPerson(ctx, id); errors.Is(err, store.ErrNotFound) {
			fields[field] = []string{"Person does not exist."}
		} else if err != nil {
			return err
		}
	}
	if _, err := s.GetRelationshipType(ctx, in.RelationshipTypeID); errors.Is(err, store.ErrNotFound) {
		fields["relationship_type_id"] = []string{"Relationship type does not exist."}
	} else if err != nil {
		return err
	}
	if len(fields) > 0 {
		return fields
	}
	return nil
}

func (in relationshipInput) apply(r *common.Relationship) {
	r.PersonAID = in.PersonAID
	r.PersonBID = in.PersonBID
	r.RelationshipTypeID = in.RelationshipTypeID
	r.Strength = in.Strength
	r.StartDate = in.StartDate
	r.Notes = util.CleanText(in.Notes)
}

// GetRelationshipsHandler lists stored records, filtered by person (either
// side), relationship_type and search over notes.
func GetRelationshipsHandler(c echo.Context) error {
	req, err := parseList(c)
	if err != nil {
		return respondError(c, err)
	}
	rels, count, err := app(c).Store.ListRelationships(c.Request().Context(), req.params)
	if err != nil {
		return respondError(c, err)
	}
	return respondPage(c, req, rels, count)
}

func GetRelationshipHandler(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return respondError(c, err)
	}
	r, err := app(c).Store.GetRelationship(c.Request().Context(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, r)
}

// CreateRelationshipHandler stores a relationship and its automatic inverse
// where the type asks for one.
func CreateRelationshipHandler(c echo.Context) error {
	in := new(relationshipInput)
	if err := bind(c, in); err != nil {
		return respondError(c, err)
	}
	if in.PersonAID == in.PersonBID {
		return respondError(c, relation.ErrSelfRelationship)
	}
	if err := in.check(c); err != nil {
		return respondError(c, err)
	}
	var r common.Relationship
	in.apply(&r)

	r, err := app(c).Relations.Create(c.Request().Context(), r)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, r)
}

func EditRelationshipHandler(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return respondError(c, err)
	}
	ctx := c.Request().Context()
	r, err := app(c).Store.GetRelationship(ctx, id)
	if err != nil {
		return respondError(c, err)
	}
	in := relationshipInput{
		PersonAID: r.PersonAID, PersonBID: r.PersonBID, RelationshipTypeID: r.RelationshipTypeID,
		Strength: r.Strength, StartDate: r.StartDate, Notes: r.Notes,
	}
	if err := bind(c, &in); err != nil {
		return respondError(c, err)
	}
	// a relationship keeps its persons; re-pairing is delete and create
	if in.PersonAID != r.PersonAID {
		return respondError(c, invalid("person_a_id", "Cannot be changed on an existing relationship."))
	}
	if in.PersonBID != r.PersonBID {
		return respondError(c, invalid("person_b_id", "Cannot be changed on an existing relationship."))
	}
	if err := in.check(c); err != nil {
		return respondError(c, err)
	}
	in.apply(&r)

	r, err = app(c).Relations.Update(ctx, r)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, r)
}

// DeleteRelationshipHandler removes a record together with its linked
// inverse.
func DeleteRelationshipHandler(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return respondError(c, err)
	}
	if err := app(c).Relations.Delete(c.Request().Context(), id); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// GetRelationshipGraphHandler returns the graph projection. With center
// set, only persons within depth hops (default 2) are included. With
// layout=true the positioned, styled graph is returned instead.
func GetRelationshipGraphHandler(c echo.Context) error {
	in := graph.ProjectInput{Depth: 2}
	center, err := queryID(c, "center")
	if err != nil {
		return respondError(c, err)
	}
	if raw := c.QueryParam("depth"); raw != "" {
		d, err := strconv.Atoi(raw)
		if err != nil || d < 1 || d > 6 {
			return respondError(c, invalid("depth", "Ensure this value is between 1 and 6."))
		}
		in.Depth = d
	}

	ctx := c.Request().Context()
	s := app(c).Store
	if center != 0 {
		if _, err := s.GetPerson(ctx, center); err != nil {
			return respondError(c, err)
		}
		in.Center = &center
	}

	var photos []common.Photo
	all := store.ListParams{}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) { in.Persons, _, err = s.ListPersons(gctx, all); return })
	g.Go(func() (err error) { in.Relationships, _, err = s.ListRelationships(gctx, all); return })
	g.Go(func() (err error) { in.Types, _, err = s.ListRelationshipTypes(gctx, all); return })
	g.Go(func() (err error) { photos, _, err = s.ListPhotos(gctx, all); return })
	if err := g.Wait(); err != nil {
		return respondError(c, err)
	}
	in.Avatars = avatars(c, photos)

	proj := graph.Project(in)
	if c.QueryParam("layout") != "true" {
		return c.JSON(http.StatusOK, proj)
	}
	gr, err := graph.FromProjection(proj)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, gr.Render())
}

// avatars picks the most recent photo of each person.
func avatars(c echo.Context, photos []common.Photo) map[int64]string {
	out := map[int64]string{}
	newest := map[int64]common.Photo{}
	for _, p := range photos {
		for _, pid := range p.PersonIDs {
			if cur, ok := newest[pid]; !ok || p.CreatedAt.After(cur.CreatedAt) {
				newest[pid] = p
			}
		}
	}
	for pid, p := range newest {
		link, err := app(c).Bucket.URL(c.Request().Context(), p.FileKey)
		if err != nil {
			logger.Warn("[API] avatar link failed", "photo_id", p.ID, "err", err)
			continue
		}
		out[pid] = link
	}
	return out
}
