package routes

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/kinship-crm/kinship/internal/util"
	"github.com/kinship-crm/kinship/pkg/common"
)

type parseContactsBody struct {
	Text string `json:"text"`
	URL  string `json:"url" validate:"omitempty,url"`
}

// ParseContactsHandler extracts contact candidates from text or a web page.
// Nothing is stored.
func ParseContactsHandler(c echo.Context) error {
	in := new(parseContactsBody)
	if err := bind(c, in); err != nil {
		return respondError(c, err)
	}
	res, err := app(c).Assist.ParseContacts(c.Request().Context(), common.ParseContactsRequest{
		Text: util.CleanText(in.Text),
		URL:  in.URL,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// BulkImportHandler stores reviewed contact candidates. Failed records are
// reported per item and do not undo the others.
func BulkImportHandler(c echo.Context) error {
	in := new(common.BulkImportRequest)
	if err := bind(c, in); err != nil {
		return respondError(c, err)
	}
	res, err := app(c).Assist.BulkImport(c.Request().Context(), *in)
	if err != nil {
		return respondError(c, err)
	}
	if res.Errors == nil {
		res.Errors = []string{}
	}
	return c.JSON(http.StatusOK, res)
}

func ParseUpdatesHandler(c echo.Context) error {
	in := new(common.ParseUpdatesRequest)
	if err := bind(c, in); err != nil {
		return respondError(c, err)
	}
	in.Text = util.CleanText(in.Text)
	res, err := app(c).Assist.ParseUpdates(c.Request().Context(), *in)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

func ApplyUpdatesHandler(c echo.Context) error {
	in := new(common.ApplyUpdatesRequest)
	if err := bind(c, in); err != nil {
		return respondError(c, err)
	}
	res, err := app(c).Assist.ApplyUpdates(c.Request().Context(), *in)
	if err != nil {
		return respondError(c, err)
	}
	if res.Errors == nil {
		res.Errors = []string{}
	}
	for _, u := range in.Updates {
		enqueueEmbed(c, u.PersonID)
	}
	return c.JSON(http.StatusOK, res)
}

// ChatHandler answers a question about the catalog. Persons cited in the
// reply are listed in person_ids.
func ChatHandler(c echo.Context) error {
	in := new(common.ChatRequest)
	if err := bind(c, in); err != nil {
		return respondError(c, err)
	}
	res, err := app(c).Assist.Chat(c.Request().Context(), *in)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

func SuggestRelationshipsHandler(c echo.Context) error {
	in := new(common.SuggestRelationshipsRequest)
	if err := bind(c, in); err != nil {
		return respondError(c, err)
	}
	in.Text = util.CleanText(in.Text)
	res, err := app(c).Assist.SuggestRelationships(c.Request().Context(), *in)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

type applySuggestionBody struct {
	PersonAID          int64  `json:"person_a_id" validate:"required"`
	PersonBID          int64  `json:"person_b_id" validate:"required"`
	RelationshipTypeID int64  `json:"relationship_type_id" validate:"required"`
	Reason             string `json:"reason"`
}

// ApplyRelationshipSuggestionHandler creates the suggested relationship
// through the same pairing rules as a manual create.
func ApplyRelationshipSuggestionHandler(c echo.Context) error {
	in := new(applySuggestionBody)
	if err := bind(c, in); err != nil {
		return respondError(c, err)
	}
	ref := relationshipInput{PersonAID: in.PersonAID, PersonBID: in.PersonBID, RelationshipTypeID: in.RelationshipTypeID}
	if err := ref.check(c); err != nil {
		return respondError(c, err)
	}
	r, err := app(c).Assist.ApplyRelationshipSuggestion(c.Request().Context(), common.RelationshipSuggestion{
		PersonAID:          in.PersonAID,
		PersonBID:          in.PersonBID,
		RelationshipTypeID: in.RelationshipTypeID,
		Reason:             util.CleanText(in.Reason),
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, r)
}

func SmartSearchHandler(c echo.Context) error {
	in := new(common.SmartSearchRequest)
	if err := bind(c, in); err != nil {
		return respondError(c, err)
	}
	res, err := app(c).Assist.SmartSearch(c.Request().Context(), *in)
	if err != nil {
		return respondError(c, err)
	}
	if res.Persons == nil {
		res.Persons = []common.Person{}
	}
	return c.JSON(http.StatusOK, res)
}

func SuggestTagsHandler(c echo.Context) error {
	in := new(common.SuggestTagsRequest)
	if err := bind(c, in); err != nil {
		return respondError(c, err)
	}
	if _, err := app(c).Store.GetPerson(c.Request().Context(), in.PersonID); err != nil {
		return respondError(c, err)
	}
	res, err := app(c).Assist.SuggestTags(c.Request().Context(), *in)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}
