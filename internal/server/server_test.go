package server

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kinship-crm/kinship/internal/queue"
	mid "github.com/kinship-crm/kinship/internal/server/middleware"
	"github.com/kinship-crm/kinship/internal/storage"
	"github.com/kinship-crm/kinship/pkg/ai"
	"github.com/kinship-crm/kinship/pkg/ai/aitest"
	"github.com/kinship-crm/kinship/pkg/assist"
	"github.com/kinship-crm/kinship/pkg/common"
	"github.com/kinship-crm/kinship/pkg/export"
	"github.com/kinship-crm/kinship/pkg/relation"
	"github.com/kinship-crm/kinship/pkg/store/memstore"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")

type recorder struct {
	mu   sync.Mutex
	sent []string
}

func (r *recorder) Publish(_ context.Context, q string, _ any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, q)
	return nil
}

func (r *recorder) queues() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.sent...)
}

type testServer struct {
	e     *echo.Echo
	app   *mid.App
	queue *recorder
}

func newTestServer(t *testing.T, client ai.Client) *testServer {
	t.Helper()
	s := memstore.New()
	rel := relation.NewService(s)
	rec := &recorder{}
	app := &mid.App{
		Store:     s,
		Relations: rel,
		Assist:    assist.New(s, rel, client, assist.Options{}),
		Bucket:    storage.NewMemory("http://files.test"),
		Queue:     rec,
	}
	return &testServer{e: New(app), app: app, queue: rec}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	ts.e.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (ts *testServer) person(t *testing.T, first string) common.Person {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/api/persons", map[string]any{"first_name": first})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[common.Person](t, rec)
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, nil)
	rec := ts.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestPersonLifecycle(t *testing.T) {
	ts := newTestServer(t, nil)

	p := ts.person(t, "Maria")
	assert.NotZero(t, p.ID)
	assert.Equal(t, []string{queue.PersonEmbedQueue}, ts.queue.queues())

	path := "/api/persons/" + strconv.FormatInt(p.ID, 10)
	rec := ts.do(t, http.MethodPatch, path, map[string]any{"last_name": "Lopez"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decode[common.Person](t, rec)
	assert.Equal(t, "Maria", got.FirstName)
	assert.Equal(t, "Lopez", got.LastName)

	rec = ts.do(t, http.MethodDelete, path, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = ts.do(t, http.MethodGet, path, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Not found.", decode[map[string]string](t, rec)["detail"])
}

func TestCreatePersonRequiresFirstName(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodPost, "/api/persons", map[string]any{"first_name": "", "last_name": "Lopez"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	fields := decode[map[string][]string](t, rec)
	assert.Equal(t, []string{"This field is required."}, fields["first_name"])
	assert.Empty(t, ts.queue.queues())
}

func TestPagination(t *testing.T) {
	ts := newTestServer(t, nil)
	for _, name := range []string{"Ann", "Ben", "Cat"} {
		ts.person(t, name)
	}

	rec := ts.do(t, http.MethodGet, "/api/persons?page_size=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	first := decode[common.Page[common.Person]](t, rec)
	assert.Equal(t, 3, first.Count)
	assert.Len(t, first.Results, 2)
	require.NotNil(t, first.Next)
	assert.Contains(t, *first.Next, "page=2")
	assert.Nil(t, first.Previous)

	rec = ts.do(t, http.MethodGet, "/api/persons?page_size=2&page=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	second := decode[common.Page[common.Person]](t, rec)
	assert.Len(t, second.Results, 1)
	assert.Nil(t, second.Next)
	require.NotNil(t, second.Previous)

	rec = ts.do(t, http.MethodGet, "/api/persons?page_size=2&page=5", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAuth(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.app.APIKey = "secret"

	rec := ts.do(t, http.MethodGet, "/api/persons", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/persons", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer wrong")
	rec = httptest.NewRecorder()
	ts.e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/persons", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer secret")
	rec = httptest.NewRecorder()
	ts.e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRelationshipCreatesInverse(t *testing.T) {
	ts := newTestServer(t, nil)
	ann, ben := ts.person(t, "Ann"), ts.person(t, "Ben")

	rec := ts.do(t, http.MethodPost, "/api/relationship-types", map[string]any{
		"name": "parent", "inverse_name": "child", "category": "family", "auto_create_inverse": true,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	parent := decode[common.RelationshipType](t, rec)

	rec = ts.do(t, http.MethodPost, "/api/relationships", map[string]any{
		"person_a_id": ann.ID, "person_b_id": ben.ID, "relationship_type_id": parent.ID,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = ts.do(t, http.MethodGet, "/api/relationships", nil)
	page := decode[common.Page[common.Relationship]](t, rec)
	require.Equal(t, 2, page.Count)
	auto := 0
	for _, r := range page.Results {
		if r.AutoCreated {
			auto++
		}
	}
	assert.Equal(t, 1, auto)

	rec = ts.do(t, http.MethodPost, "/api/relationships", map[string]any{
		"person_a_id": ann.ID, "person_b_id": ann.ID, "relationship_type_id": parent.ID,
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode[map[string][]string](t, rec), "person_b_id")
}

func TestRelationshipTypeValidation(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodPost, "/api/relationship-types", map[string]any{"name": "pet", "category": "animals"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode[map[string][]string](t, rec), "category")
}

func TestGraph(t *testing.T) {
	ts := newTestServer(t, nil)
	ann, ben := ts.person(t, "Ann"), ts.person(t, "Ben")
	ts.person(t, "Cat")
	friend, err := ts.app.Relations.CreateType(context.Background(), common.RelationshipType{
		Name: "friend", Category: common.CategorySocial, IsSymmetric: true,
	})
	require.NoError(t, err)
	rec := ts.do(t, http.MethodPost, "/api/relationships", map[string]any{
		"person_a_id": ann.ID, "person_b_id": ben.ID, "relationship_type_id": friend.ID,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = ts.do(t, http.MethodGet, "/api/relationships/graph", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	proj := decode[common.GraphProjection](t, rec)
	assert.Len(t, proj.Nodes, 3)
	assert.Len(t, proj.Edges, 1)

	rec = ts.do(t, http.MethodGet, "/api/relationships/graph?center="+strconv.FormatInt(ann.ID, 10)+"&depth=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	proj = decode[common.GraphProjection](t, rec)
	assert.Len(t, proj.Nodes, 2)

	rec = ts.do(t, http.MethodGet, "/api/relationships/graph?layout=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var rendered struct {
		Nodes []map[string]any `json:"nodes"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rendered))
	assert.Len(t, rendered.Nodes, 3)

	rec = ts.do(t, http.MethodGet, "/api/relationships/graph?depth=9", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPhotoUpload(t *testing.T) {
	ts := newTestServer(t, nil)
	ann := ts.person(t, "Ann")

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	fw, err := w.CreateFormFile("file", "Beach.PNG")
	require.NoError(t, err)
	_, err = fw.Write(pngHeader)
	require.NoError(t, err)
	require.NoError(t, w.WriteField("caption", "At the beach"))
	require.NoError(t, w.WriteField("date_taken", "2024-07-01"))
	require.NoError(t, w.WriteField("person_ids", strconv.FormatInt(ann.ID, 10)))
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/photos", &body)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	rec := httptest.NewRecorder()
	ts.e.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	photo := decode[common.Photo](t, rec)
	assert.Equal(t, "At the beach", photo.Caption)
	assert.Equal(t, []int64{ann.ID}, photo.PersonIDs)
	assert.True(t, strings.HasPrefix(photo.FileKey, "photos/"))
	assert.True(t, strings.HasSuffix(photo.FileKey, ".png"))
	assert.Equal(t, "http://files.test/"+photo.FileKey, photo.FileURL)
	assert.Contains(t, ts.queue.queues(), queue.PhotoDescribeQueue)

	rec = ts.do(t, http.MethodGet, "/files/"+photo.FileKey, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, pngHeader, rec.Body.Bytes())
}

func TestPhotoUploadRejectsNonImage(t *testing.T) {
	ts := newTestServer(t, nil)

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	fw, err := w.CreateFormFile("file", "notes.txt")
	require.NoError(t, err)
	_, err = fw.Write([]byte("just some text"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/photos", &body)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	rec := httptest.NewRecorder()
	ts.e.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode[map[string][]string](t, rec), "file")
}

func TestMe(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodGet, "/api/me", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/me", map[string]any{"first_name": "Sam"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.True(t, decode[common.Person](t, rec).IsOwner)

	rec = ts.do(t, http.MethodPost, "/api/me", map[string]any{"first_name": "Sam"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPatch, "/api/me", map[string]any{"nickname": "Sammy"})
	require.Equal(t, http.StatusOK, rec.Code)
	me := decode[common.Person](t, rec)
	assert.Equal(t, "Sam", me.FirstName)
	assert.Equal(t, "Sammy", me.Nickname)
}

func TestSearchAndDashboard(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.person(t, "Maria")
	ts.person(t, "Bob")

	rec := ts.do(t, http.MethodGet, "/api/search?q=mar", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	res := decode[common.SearchResults](t, rec)
	require.Len(t, res.Persons, 1)
	assert.Equal(t, "Maria", res.Persons[0].FirstName)
	assert.NotNil(t, res.Tags)

	rec = ts.do(t, http.MethodGet, "/api/search", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[common.SearchResults](t, rec).Persons)

	rec = ts.do(t, http.MethodGet, "/api/dashboard", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, decode[common.Stats](t, rec).Persons)
}

func TestExport(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.person(t, "Maria")

	rec := ts.do(t, http.MethodGet, "/api/export/preview", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[common.ExportPreview](t, rec).Persons)

	rec = ts.do(t, http.MethodGet, "/api/export?format=xlsx", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, export.ContentTypeXLSX, rec.Header().Get(echo.HeaderContentType))
	assert.Contains(t, rec.Header().Get(echo.HeaderContentDisposition), ".xlsx")
	assert.Equal(t, []byte("PK"), rec.Body.Bytes()[:2])

	rec = ts.do(t, http.MethodGet, "/api/export?format=csv", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode[map[string][]string](t, rec), "format")
}

func TestAssistantUnavailable(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodPost, "/api/ai/chat", map[string]any{"message": "who is Maria?"})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestAssistantChat(t *testing.T) {
	fake := &aitest.Fake{}
	ts := newTestServer(t, fake)
	maria := ts.person(t, "Maria")
	fake.ChatReply = "That is [[" + strconv.FormatInt(maria.ID, 10) + "]]."

	rec := ts.do(t, http.MethodPost, "/api/ai/chat", map[string]any{"message": "who is Maria?"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[common.ChatResponse](t, rec)
	assert.Equal(t, []int64{maria.ID}, res.PersonIDs)

	rec = ts.do(t, http.MethodPost, "/api/ai/chat", map[string]any{})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode[map[string][]string](t, rec), "message")
}

func TestGroupParentValidation(t *testing.T) {
	ts := newTestServer(t, nil)
	group := func(name string, parent *int64) common.Group {
		rec := ts.do(t, http.MethodPost, "/api/groups", map[string]any{"name": name, "parent_id": parent})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		return decode[common.Group](t, rec)
	}
	a := group("A", nil)
	b := group("B", &a.ID)

	tests := []struct {
		name   string
		method string
		path   string
		body   map[string]any
	}{
		{"self parent", http.MethodPatch, "/api/groups/" + strconv.FormatInt(a.ID, 10), map[string]any{"parent_id": a.ID}},
		{"loop via patch", http.MethodPatch, "/api/groups/" + strconv.FormatInt(a.ID, 10), map[string]any{"parent_id": b.ID}},
		{"dangling on create", http.MethodPost, "/api/groups", map[string]any{"name": "C", "parent_id": 999}},
		{"dangling on patch", http.MethodPatch, "/api/groups/" + strconv.FormatInt(b.ID, 10), map[string]any{"parent_id": 999}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, tt.method, tt.path, tt.body)
			require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			assert.Contains(t, decode[map[string][]string](t, rec), "parent_id")
		})
	}

	rec := ts.do(t, http.MethodGet, "/api/groups/"+strconv.FormatInt(a.ID, 10), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, decode[common.Group](t, rec).ParentID)
}

func TestEditRelationshipRejectsNewPersons(t *testing.T) {
	ts := newTestServer(t, nil)
	ann, ben, cat := ts.person(t, "Ann"), ts.person(t, "Ben"), ts.person(t, "Cat")

	rec := ts.do(t, http.MethodPost, "/api/relationship-types", map[string]any{
		"name": "friend", "category": "social", "is_symmetric": true,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	friend := decode[common.RelationshipType](t, rec)

	rec = ts.do(t, http.MethodPost, "/api/relationships", map[string]any{
		"person_a_id": ann.ID, "person_b_id": ben.ID, "relationship_type_id": friend.ID,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	r := decode[common.Relationship](t, rec)
	path := "/api/relationships/" + strconv.FormatInt(r.ID, 10)

	for field, body := range map[string]map[string]any{
		"person_a_id": {"person_a_id": cat.ID},
		"person_b_id": {"person_b_id": cat.ID},
	} {
		rec = ts.do(t, http.MethodPatch, path, body)
		require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		assert.Contains(t, decode[map[string][]string](t, rec), field)
	}

	rec = ts.do(t, http.MethodPatch, path, map[string]any{"person_a_id": ann.ID, "notes": "met at school"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decode[common.Relationship](t, rec)
	assert.Equal(t, ben.ID, got.PersonBID)
	assert.Equal(t, "met at school", got.Notes)
}

func TestEditRelationshipTypeSyncsInverse(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodPost, "/api/relationship-types", map[string]any{
		"name": "mentor", "inverse_name": "mentee", "category": "professional",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	mentor := decode[common.RelationshipType](t, rec)

	rec = ts.do(t, http.MethodPatch, "/api/relationship-types/"+strconv.FormatInt(mentor.ID, 10), map[string]any{
		"inverse_name": "apprentice", "category": "custom",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	inv, err := ts.app.Store.FindRelationshipType(context.Background(), "apprentice", "mentor")
	require.NoError(t, err)
	assert.Equal(t, "custom", inv.Category)

	rec = ts.do(t, http.MethodPatch, "/api/relationship-types/"+strconv.FormatInt(mentor.ID, 10), map[string]any{"category": "pets"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode[map[string][]string](t, rec), "category")
}
