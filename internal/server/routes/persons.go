package routes

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/kinship-crm/kinship/internal/util"
	"github.com/kinship-crm/kinship/pkg/common"
	"github.com/kinship-crm/kinship/pkg/store"
)

type personInput struct {
	FirstName string                `json:"first_name" validate:"required,max=100"`
	LastName  string                `json:"last_name" validate:"max=100"`
	Nickname  string                `json:"nickname" validate:"max=100"`
	Birthday  *common.Date          `json:"birthday"`
	Notes     string                `json:"notes"`
	Emails    []common.ContactEntry `json:"emails"`
	Phones    []common.ContactEntry `json:"phones"`
	Addresses []common.ContactEntry `json:"addresses"`
	TagIDs    []int64               `json:"tag_ids"`
	GroupIDs  []int64               `json:"group_ids"`
}

func personInputFrom(p common.Person) personInput {
	return personInput{
		FirstName: p.FirstName,
		LastName:  p.LastName,
		Nickname:  p.Nickname,
		Birthday:  p.Birthday,
		Notes:     p.Notes,
		Emails:    p.Emails,
		Phones:    p.Phones,
		Addresses: p.Addresses,
		TagIDs:    p.TagIDs,
		GroupIDs:  p.GroupIDs,
	}
}

func (in personInput) apply(p *common.Person) {
	p.FirstName = util.CleanText(in.FirstName)
	p.LastName = util.CleanText(in.LastName)
	p.Nickname = util.CleanText(in.Nickname)
	p.Birthday = in.Birthday
	p.Notes = util.CleanText(in.Notes)
	p.Emails = in.Emails
	p.Phones = in.Phones
	p.Addresses = in.Addresses
	p.TagIDs = store.DedupeIDs(in.TagIDs)
	p.GroupIDs = store.DedupeIDs(in.GroupIDs)
}

// GetPersonsHandler lists persons, filtered by search, tag and group.
func GetPersonsHandler(c echo.Context) error {
	req, err := parseList(c)
	if err != nil {
		return respondError(c, err)
	}
	persons, count, err := app(c).Store.ListPersons(c.Request().Context(), req.params)
	if err != nil {
		return respondError(c, err)
	}
	return respondPage(c, req, persons, count)
}

func GetPersonHandler(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return respondError(c, err)
	}
	p, err := app(c).Store.GetPerson(c.Request().Context(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, p)
}

// CreatePersonHandler creates a person and queues its embedding.
func CreatePersonHandler(c echo.Context) error {
	in := new(personInput)
	if err := bind(c, in); err != nil {
		return respondError(c, err)
	}
	var p common.Person
	in.apply(&p)

	p, err := app(c).Store.CreatePerson(c.Request().Context(), p)
	if err != nil {
		return respondError(c, err)
	}
	enqueueEmbed(c, p.ID)
	return c.JSON(http.StatusCreated, p)
}

// EditPersonHandler applies a partial update. Fields missing from the body
// keep their stored values.
func EditPersonHandler(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return respondError(c, err)
	}
	return patchPerson(c, func() (common.Person, error) {
		return app(c).Store.GetPerson(c.Request().Context(), id)
	})
}

func patchPerson(c echo.Context, load func() (common.Person, error)) error {
	p, err := load()
	if err != nil {
		return respondError(c, err)
	}
	in := personInputFrom(p)
	if err := bind(c, &in); err != nil {
		return respondError(c, err)
	}
	in.apply(&p)

	p, err = app(c).Store.UpdatePerson(c.Request().Context(), p)
	if err != nil {
		return respondError(c, err)
	}
	enqueueEmbed(c, p.ID)
	return c.JSON(http.StatusOK, p)
}

func DeletePersonHandler(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return respondError(c, err)
	}
	if err := app(c).Store.DeletePerson(c.Request().Context(), id); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// GetPersonRelationshipsHandler lists a person's relationships from their
// own perspective, merging both stored directions.
func GetPersonRelationshipsHandler(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return respondError(c, err)
	}
	ctx := c.Request().Context()
	if _, err := app(c).Store.GetPerson(ctx, id); err != nil {
		return respondError(c, err)
	}
	rels, err := app(c).Relations.ListForPerson(ctx, id)
	if err != nil {
		return respondError(c, err)
	}
	if rels == nil {
		rels = []common.PersonRelationship{}
	}
	return c.JSON(http.StatusOK, rels)
}

// GetMeHandler returns the owner profile, 404 until one is created.
func GetMeHandler(c echo.Context) error {
	p, err := app(c).Store.GetOwner(c.Request().Context())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, p)
}

func CreateMeHandler(c echo.Context) error {
	ctx := c.Request().Context()
	if _, err := app(c).Store.GetOwner(ctx); err == nil {
		return c.JSON(http.StatusBadRequest, detailResponse{Detail: "Owner profile already exists."})
	}

	in := new(personInput)
	if err := bind(c, in); err != nil {
		return respondError(c, err)
	}
	p := common.Person{IsOwner: true}
	in.apply(&p)

	p, err := app(c).Store.CreatePerson(ctx, p)
	if err != nil {
		return respondError(c, err)
	}
	enqueueEmbed(c, p.ID)
	return c.JSON(http.StatusCreated, p)
}

func EditMeHandler(c echo.Context) error {
	return patchPerson(c, func() (common.Person, error) {
		return app(c).Store.GetOwner(c.Request().Context())
	})
}
