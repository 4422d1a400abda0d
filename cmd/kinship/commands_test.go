package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kinship-crm/kinship/pkg/common"
	"github.com/kinship-crm/kinship/pkg/graph"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestImportDropsAndCommits(t *testing.T) {
	var imported []common.ContactCandidate
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/ai/parse-contacts":
			var req common.ParseContactsRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Contains(t, req.Text, "Maria")
			writeJSON(w, http.StatusOK, common.ParseContactsResponse{Persons: []common.ContactCandidate{
				{FirstName: "Maria", Company: "Acme"},
				{FirstName: "Bob"},
			}})
		case "/api/ai/bulk-import":
			var req common.BulkImportRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			imported = req.Persons
			writeJSON(w, http.StatusOK, common.BulkImportResult{PersonsCreated: len(req.Persons), Errors: []string{}})
		default:
			t.Errorf("unexpected request %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	out, err := execute(t, "Met Maria from Acme and Bob.", "import", "--url", srv.URL, "--yes", "--drop", "2", "-")
	require.NoError(t, err)
	require.Len(t, imported, 1)
	assert.Equal(t, "Maria", imported[0].FirstName)
	assert.Contains(t, out, "Maria (Acme)")
	assert.Contains(t, out, `"persons_created": 1`)
}

func TestImportFromStdinNeedsYes(t *testing.T) {
	_, err := execute(t, "Maria", "import", "--url", "http://127.0.0.1:1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--yes")
}

func TestImportDeclined(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/ai/bulk-import" {
			t.Error("bulk import must not be called")
		}
		writeJSON(w, http.StatusOK, common.ParseContactsResponse{Persons: []common.ContactCandidate{{FirstName: "Maria"}}})
	}))
	defer srv.Close()

	out, err := execute(t, "n\n", "import", "--url", srv.URL, "https://example.com/team")
	require.NoError(t, err)
	assert.Contains(t, out, "Nothing changed.")
}

func TestGraphPrint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/relationships/graph", r.URL.Path)
		assert.Equal(t, "true", r.URL.Query().Get("layout"))
		assert.Equal(t, "7", r.URL.Query().Get("center"))
		writeJSON(w, http.StatusOK, graph.Rendered{
			Nodes: []graph.RenderedNode{
				{Node: graph.Node{ID: 7, Label: "Ann"}, Point: graph.Point{X: 400, Y: 300}, Focal: true},
				{Node: graph.Node{ID: 8, Label: "Ben"}, Point: graph.Point{X: 550, Y: 300}},
			},
			Edges: []graph.RenderedEdge{{Edge: graph.Edge{ID: 1, Source: 7, Target: 8, Label: "friend"}}},
		})
	}))
	defer srv.Close()

	out, err := execute(t, "", "graph", "--url", srv.URL, "--center", "7")
	require.NoError(t, err)
	assert.Contains(t, out, "Ann")
	assert.Contains(t, out, "*")
	assert.Contains(t, out, "Ann -[friend]- Ben")
}

func TestSearchNotFoundServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Authentication credentials were not provided or are invalid."})
	}))
	defer srv.Close()

	_, err := execute(t, "", "search", "maria", "--url", srv.URL)
	require.Error(t, err)
}

func TestPhotoUpload(t *testing.T) {
	img := filepath.Join(t.TempDir(), "beach")
	require.NoError(t, os.WriteFile(img, []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), 0o600))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/photos", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "Summer", r.FormValue("caption"))
		assert.Equal(t, []string{"3", "4"}, r.MultipartForm.Value["person_ids"])
		writeJSON(w, http.StatusCreated, common.Photo{ID: 9, FileURL: "http://files.test/photos/a.png"})
	}))
	defer srv.Close()

	out, err := execute(t, "", "photo", img, "--url", srv.URL, "--caption", "Summer", "--person", "3", "--person", "4")
	require.NoError(t, err)
	assert.Contains(t, out, "Uploaded photo 9")
}

func TestPhotoRejectsText(t *testing.T) {
	txt := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(txt, []byte("not a photo"), 0o600))

	_, err := execute(t, "", "photo", txt, "--url", "http://127.0.0.1:1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not an image")
}
