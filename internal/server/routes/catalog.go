package routes

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/kinship-crm/kinship/internal/util"
	"github.com/kinship-crm/kinship/pkg/common"
	"github.com/kinship-crm/kinship/pkg/store"
)

type tagInput struct {
	Name        string `json:"name" validate:"required,max=50"`
	Color       string `json:"color" validate:"omitempty,hexcolor"`
	Description string `json:"description"`
}

func GetTagsHandler(c echo.Context) error {
	req, err := parseList(c)
	if err != nil {
		return respondError(c, err)
	}
	tags, count, err := app(c).Store.ListTags(c.Request().Context(), req.params)
	if err != nil {
		return respondError(c, err)
	}
	return respondPage(c, req, tags, count)
}

func GetTagHandler(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return respondError(c, err)
	}
	t, err := app(c).Store.GetTag(c.Request().Context(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, t)
}

func CreateTagHandler(c echo.Context) error {
	in := new(tagInput)
	if err := bind(c, in); err != nil {
		return respondError(c, err)
	}
	t, err := app(c).Store.CreateTag(c.Request().Context(), common.Tag{
		Name:        util.CleanText(in.Name),
		Color:       in.Color,
		Description: util.CleanText(in.Description),
	})
	if errors.Is(err, store.ErrConflict) {
		return respondError(c, invalid("name", "A tag with this name already exists."))
	}
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, t)
}

func EditTagHandler(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return respondError(c, err)
	}
	ctx := c.Request().Context()
	t, err := app(c).Store.GetTag(ctx, id)
	if err != nil {
		return respondError(c, err)
	}
	in := tagInput{Name: t.Name, Color: t.Color, Description: t.Description}
	if err := bind(c, &in); err != nil {
		return respondError(c, err)
	}
	t.Name, t.Color, t.Description = util.CleanText(in.Name), in.Color, util.CleanText(in.Description)

	t, err = app(c).Store.UpdateTag(ctx, t)
	if errors.Is(err, store.ErrConflict) {
		return respondError(c, invalid("name", "A tag with this name already exists."))
	}
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, t)
}

func DeleteTagHandler(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return respondError(c, err)
	}
	if err := app(c).Store.DeleteTag(c.Request().Context(), id); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

type groupInput struct {
	Name        string `json:"name" validate:"required,max=100"`
	Color       string `json:"color" validate:"omitempty,hexcolor"`
	Description string `json:"description"`
	ParentID    *int64 `json:"parent_id"`
}

func GetGroupsHandler(c echo.Context) error {
	req, err := parseList(c)
	if err != nil {
		return respondError(c, err)
	}
	groups, count, err := app(c).Store.ListGroups(c.Request().Context(), req.params)
	if err != nil {
		return respondError(c, err)
	}
	return respondPage(c, req, groups, count)
}

func GetGroupHandler(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return respondError(c, err)
	}
	g, err := app(c).Store.GetGroup(c.Request().Context(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, g)
}

// checkParent turns a dangling parent into a field error.
func checkParent(c echo.Context, groupID int64, parentID *int64) error {
	err := store.CheckGroupParent(c.Request().Context(), app(c).Store, groupID, parentID)
	if errors.Is(err, store.ErrNotFound) {
		return invalid("parent_id", "Parent group does not exist.")
	}
	return err
}

func CreateGroupHandler(c echo.Context) error {
	in := new(groupInput)
	if err := bind(c, in); err != nil {
		return respondError(c, err)
	}
	if err := checkParent(c, 0, in.ParentID); err != nil {
		return respondError(c, err)
	}
	g, err := app(c).Store.CreateGroup(c.Request().Context(), common.Group{
		Name:        util.CleanText(in.Name),
		Color:       in.Color,
		Description: util.CleanText(in.Description),
		ParentID:    in.ParentID,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, g)
}

func EditGroupHandler(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return respondError(c, err)
	}
	ctx := c.Request().Context()
	g, err := app(c).Store.GetGroup(ctx, id)
	if err != nil {
		return respondError(c, err)
	}
	in := groupInput{Name: g.Name, Color: g.Color, Description: g.Description, ParentID: g.ParentID}
	if err := bind(c, &in); err != nil {
		return respondError(c, err)
	}
	if err := checkParent(c, id, in.ParentID); err != nil {
		return respondError(c, err)
	}
	g.Name, g.Color, g.Description, g.ParentID = util.CleanText(in.Name), in.Color, util.CleanText(in.Description), in.ParentID

	g, err = app(c).Store.UpdateGroup(ctx, g)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, g)
}

func DeleteGroupHandler(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return respondError(c, err)
	}
	if err := app(c).Store.DeleteGroup(c.Request().Context(), id); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

type employmentInput struct {
	PersonID   int64        `json:"person_id" validate:"required"`
	Company    string       `json:"company" validate:"required,max=200"`
	Title      string       `json:"title" validate:"max=200"`
	Department string       `json:"department" validate:"max=200"`
	StartDate  *common.Date `json:"start_date"`
	EndDate    *common.Date `json:"end_date"`
	IsCurrent  bool         `json:"is_current"`
}

func (in employmentInput) check(c echo.Context) error {
	if common.DateBefore(in.EndDate, in.StartDate) {
		return invalid("end_date", "End date must not be before the start date.")
	}
	if _, err := app(c).Store.GetPerson(c.Request().Context(), in.PersonID); errors.Is(err, store.ErrNotFound) {
		return invalid("person_id", "Person does not exist.")
	} else if err != nil {
		return err
	}
	return nil
}

func (in employmentInput) apply(e *common.Employment) {
	e.PersonID = in.PersonID
	e.Company = util.CleanText(in.Company)
	e.Title = util.CleanText(in.Title)
	e.Department = util.CleanText(in.Department)
	e.StartDate = in.StartDate
	e.EndDate = in.EndDate
	e.IsCurrent = in.IsCurrent
}

func GetEmploymentsHandler(c echo.Context) error {
	req, err := parseList(c)
	if err != nil {
		return respondError(c, err)
	}
	jobs, count, err := app(c).Store.ListEmployments(c.Request().Context(), req.params)
	if err != nil {
		return respondError(c, err)
	}
	return respondPage(c, req, jobs, count)
}

func GetEmploymentHandler(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return respondError(c, err)
	}
	e, err := app(c).Store.GetEmployment(c.Request().Context(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, e)
}

func CreateEmploymentHandler(c echo.Context) error {
	in := new(employmentInput)
	if err := bind(c, in); err != nil {
		return respondError(c, err)
	}
	if err := in.check(c); err != nil {
		return respondError(c, err)
	}
	var e common.Employment
	in.apply(&e)
	e, err := app(c).Store.CreateEmployment(c.Request().Context(), e)
	if err != nil {
		return respondError(c, err)
	}
	enqueueEmbed(c, e.PersonID)
	return c.JSON(http.StatusCreated, e)
}

func EditEmploymentHandler(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return respondError(c, err)
	}
	ctx := c.Request().Context()
	e, err := app(c).Store.GetEmployment(ctx, id)
	if err != nil {
		return respondError(c, err)
	}
	in := employmentInput{
		PersonID: e.PersonID, Company: e.Company, Title: e.Title, Department: e.Department,
		StartDate: e.StartDate, EndDate: e.EndDate, IsCurrent: e.IsCurrent,
	}
	if err := bind(c, &in); err != nil {
		return respondError(c, err)
	}
	if err := in.check(c); err != nil {
		return respondError(c, err)
	}
	in.apply(&e)
	e, err = app(c).Store.UpdateEmployment(ctx, e)
	if err != nil {
		return respondError(c, err)
	}
	enqueueEmbed(c, e.PersonID)
	return c.JSON(http.StatusOK, e)
}

func DeleteEmploymentHandler(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return respondError(c, err)
	}
	if err := app(c).Store.DeleteEmployment(c.Request().Context(), id); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
