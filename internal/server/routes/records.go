package routes

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/kinship-crm/kinship/internal/queue"
	"github.com/kinship-crm/kinship/internal/util"
	"github.com/kinship-crm/kinship/pkg/common"
	"github.com/kinship-crm/kinship/pkg/logger"
	"github.com/kinship-crm/kinship/pkg/store"
)

const maxPhotoBytes = 20 << 20

type anecdoteInput struct {
	Title        string       `json:"title" validate:"max=200"`
	Content      string       `json:"content" validate:"required"`
	Date         *common.Date `json:"date"`
	Location     string       `json:"location" validate:"max=200"`
	AnecdoteType string       `json:"anecdote_type" validate:"required,oneof=memory joke quote note"`
	PersonIDs    []int64      `json:"person_ids"`
	TagIDs       []int64      `json:"tag_ids"`
}

func (in anecdoteInput) apply(a *common.Anecdote) {
	a.Title = util.CleanText(in.Title)
	a.Content = util.CleanText(in.Content)
	a.Date = in.Date
	a.Location = util.CleanText(in.Location)
	a.AnecdoteType = in.AnecdoteType
	a.PersonIDs = store.DedupeIDs(in.PersonIDs)
	a.TagIDs = store.DedupeIDs(in.TagIDs)
}

// notFoundRefs turns a missing person or tag reference into a field error.
func notFoundRefs(err error, field string) error {
	if errors.Is(err, store.ErrNotFound) {
		return invalid(field, "One or more referenced records do not exist.")
	}
	return err
}

// GetAnecdotesHandler lists anecdotes, filtered by person, tag and search.
func GetAnecdotesHandler(c echo.Context) error {
	req, err := parseList(c)
	if err != nil {
		return respondError(c, err)
	}
	items, count, err := app(c).Store.ListAnecdotes(c.Request().Context(), req.params)
	if err != nil {
		return respondError(c, err)
	}
	return respondPage(c, req, items, count)
}

func GetAnecdoteHandler(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return respondError(c, err)
	}
	a, err := app(c).Store.GetAnecdote(c.Request().Context(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, a)
}

func CreateAnecdoteHandler(c echo.Context) error {
	in := &anecdoteInput{AnecdoteType: common.AnecdoteMemory}
	if err := bind(c, in); err != nil {
		return respondError(c, err)
	}
	var a common.Anecdote
	in.apply(&a)
	a, err := app(c).Store.CreateAnecdote(c.Request().Context(), a)
	if err != nil {
		return respondError(c, notFoundRefs(err, "person_ids"))
	}
	return c.JSON(http.StatusCreated, a)
}

func EditAnecdoteHandler(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return respondError(c, err)
	}
	ctx := c.Request().Context()
	a, err := app(c).Store.GetAnecdote(ctx, id)
	if err != nil {
		return respondError(c, err)
	}
	in := anecdoteInput{
		Title: a.Title, Content: a.Content, Date: a.Date, Location: a.Location,
		AnecdoteType: a.AnecdoteType, PersonIDs: a.PersonIDs, TagIDs: a.TagIDs,
	}
	if err := bind(c, &in); err != nil {
		return respondError(c, err)
	}
	in.apply(&a)
	a, err = app(c).Store.UpdateAnecdote(ctx, a)
	if err != nil {
		return respondError(c, notFoundRefs(err, "person_ids"))
	}
	return c.JSON(http.StatusOK, a)
}

func DeleteAnecdoteHandler(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return respondError(c, err)
	}
	if err := app(c).Store.DeleteAnecdote(c.Request().Context(), id); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// withURL fills the browser link of a photo.
func withURL(c echo.Context, p common.Photo) common.Photo {
	link, err := app(c).Bucket.URL(c.Request().Context(), p.FileKey)
	if err != nil {
		logger.Warn("[API] photo link failed", "photo_id", p.ID, "err", err)
		return p
	}
	p.FileURL = link
	return p
}

// GetPhotosHandler lists photos, filtered by person, anecdote and search.
func GetPhotosHandler(c echo.Context) error {
	req, err := parseList(c)
	if err != nil {
		return respondError(c, err)
	}
	photos, count, err := app(c).Store.ListPhotos(c.Request().Context(), req.params)
	if err != nil {
		return respondError(c, err)
	}
	for i := range photos {
		photos[i] = withURL(c, photos[i])
	}
	return respondPage(c, req, photos, count)
}

func GetPhotoHandler(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return respondError(c, err)
	}
	p, err := app(c).Store.GetPhoto(c.Request().Context(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, withURL(c, p))
}

// UploadPhotoHandler accepts a multipart form with the image in "file",
// optional caption, date_taken, location and repeated person_ids. The
// photo is described in the background.
func UploadPhotoHandler(c echo.Context) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return respondError(c, invalid("file", "No file was submitted."))
	}
	if fh.Size > maxPhotoBytes {
		return respondError(c, invalid("file", "The file is larger than 20 MB."))
	}
	f, err := fh.Open()
	if err != nil {
		return respondError(c, err)
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, maxPhotoBytes+1))
	if err != nil {
		return respondError(c, err)
	}
	if len(data) > maxPhotoBytes {
		return respondError(c, invalid("file", "The file is larger than 20 MB."))
	}
	if ct := http.DetectContentType(data); !strings.HasPrefix(ct, "image/") {
		return respondError(c, invalid("file", "Upload a valid image."))
	}

	photo := common.Photo{
		Caption:  util.CleanText(c.FormValue("caption")),
		Location: util.CleanText(c.FormValue("location")),
	}
	if photo.DateTaken, err = common.ParseDatePtr(c.FormValue("date_taken")); err != nil {
		return respondError(c, invalid("date_taken", "Date has wrong format. Use YYYY-MM-DD."))
	}
	form, err := c.MultipartForm()
	if err != nil {
		return respondError(c, errBadBody)
	}
	for _, raw := range form.Value["person_ids"] {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return respondError(c, invalid("person_ids", "A valid integer is required."))
		}
		photo.PersonIDs = append(photo.PersonIDs, id)
	}
	photo.PersonIDs = store.DedupeIDs(photo.PersonIDs)

	ctx := c.Request().Context()
	a := app(c)
	key, err := a.Bucket.Put(ctx, "photos", fh.Filename, data)
	if err != nil {
		return respondError(c, err)
	}
	photo.FileKey = key
	photo, err = a.Store.CreatePhoto(ctx, photo)
	if err != nil {
		if derr := a.Bucket.Delete(ctx, key); derr != nil {
			logger.Warn("[API] orphaned photo object", "key", key, "err", derr)
		}
		return respondError(c, notFoundRefs(err, "person_ids"))
	}
	enqueue(ctx, c, queue.PhotoDescribeQueue, queue.PhotoMsg{PhotoID: photo.ID})
	return c.JSON(http.StatusCreated, withURL(c, photo))
}

type photoInput struct {
	Caption    string       `json:"caption" validate:"max=500"`
	DateTaken  *common.Date `json:"date_taken"`
	Location   string       `json:"location" validate:"max=200"`
	Latitude   *float64     `json:"latitude" validate:"omitempty,gte=-90,lte=90"`
	Longitude  *float64     `json:"longitude" validate:"omitempty,gte=-180,lte=180"`
	PersonIDs  []int64      `json:"person_ids"`
	AnecdoteID *int64       `json:"anecdote_id"`
}

// EditPhotoHandler updates the metadata of a photo; the file itself is
// immutable.
func EditPhotoHandler(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return respondError(c, err)
	}
	ctx := c.Request().Context()
	p, err := app(c).Store.GetPhoto(ctx, id)
	if err != nil {
		return respondError(c, err)
	}
	in := photoInput{
		Caption: p.Caption, DateTaken: p.DateTaken, Location: p.Location,
		Latitude: p.Latitude, Longitude: p.Longitude, PersonIDs: p.PersonIDs, AnecdoteID: p.AnecdoteID,
	}
	if err := bind(c, &in); err != nil {
		return respondError(c, err)
	}
	p.Caption = util.CleanText(in.Caption)
	p.DateTaken = in.DateTaken
	p.Location = util.CleanText(in.Location)
	p.Latitude, p.Longitude = in.Latitude, in.Longitude
	p.PersonIDs = store.DedupeIDs(in.PersonIDs)
	p.AnecdoteID = in.AnecdoteID

	p, err = app(c).Store.UpdatePhoto(ctx, p)
	if err != nil {
		return respondError(c, notFoundRefs(err, "person_ids"))
	}
	return c.JSON(http.StatusOK, withURL(c, p))
}

// DeletePhotoHandler removes the record, then the stored file.
func DeletePhotoHandler(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return respondError(c, err)
	}
	ctx := c.Request().Context()
	a := app(c)
	p, err := a.Store.GetPhoto(ctx, id)
	if err != nil {
		return respondError(c, err)
	}
	if err := a.Store.DeletePhoto(ctx, id); err != nil {
		return respondError(c, err)
	}
	if err := a.Bucket.Delete(ctx, p.FileKey); err != nil {
		logger.Warn("[API] photo object not removed", "key", p.FileKey, "err", err)
	}
	return c.NoContent(http.StatusNoContent)
}

// GetPhotoFileHandler streams a stored object. It backs the links of the
// in-memory bucket; S3 links point at the object store directly.
func GetPhotoFileHandler(c echo.Context) error {
	key := strings.TrimPrefix(c.Param("*"), "/")
	data, err := app(c).Bucket.Get(c.Request().Context(), key)
	if err != nil {
		return respondError(c, store.ErrNotFound)
	}
	return c.Stream(http.StatusOK, http.DetectContentType(data), bytes.NewReader(data))
}
