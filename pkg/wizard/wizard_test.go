package wizard

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/kinship-crm/kinship/pkg/common"
)

type fakeAPI struct {
	mu       sync.Mutex
	calls    []string
	parsed   []common.ContactCandidate
	imported []common.ContactCandidate
	err      error
	block    chan struct{}

	person      common.Person
	nextTagID   int64
	tagPatch    []int64
	suggestions []common.TagSuggestion
	relErrs     map[int64]error
}

func (f *fakeAPI) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeAPI) ParseContacts(ctx context.Context, req common.ParseContactsRequest) (common.ParseContactsResponse, error) {
	f.record("parse:" + req.Text + req.URL)
	if f.block != nil {
		<-f.block
	}
	if f.err != nil {
		return common.ParseContactsResponse{}, f.err
	}
	return common.ParseContactsResponse{Persons: f.parsed}, nil
}

func (f *fakeAPI) BulkImport(ctx context.Context, req common.BulkImportRequest) (common.BulkImportResult, error) {
	f.record("import")
	if f.err != nil {
		return common.BulkImportResult{}, f.err
	}
	f.imported = req.Persons
	return common.BulkImportResult{PersonsCreated: len(req.Persons), Errors: []string{}}, nil
}

func (f *fakeAPI) SuggestRelationships(ctx context.Context, req common.SuggestRelationshipsRequest) (common.SuggestRelationshipsResponse, error) {
	f.record("suggest-relationships")
	return common.SuggestRelationshipsResponse{Suggestions: []common.RelationshipSuggestion{
		{PersonAID: 1, PersonAName: "Ann", PersonBID: 2, PersonBName: "Ben", RelationshipTypeID: 1},
		{PersonAID: 1, PersonAName: "Ann", PersonBID: 3, PersonBName: "Cat", RelationshipTypeID: 1},
	}}, nil
}

func (f *fakeAPI) ApplyRelationshipSuggestion(ctx context.Context, s common.RelationshipSuggestion) (common.Relationship, error) {
	f.record("apply-relationship")
	if err := f.relErrs[s.PersonBID]; err != nil {
		return common.Relationship{}, err
	}
	return common.Relationship{PersonAID: s.PersonAID, PersonBID: s.PersonBID}, nil
}

func (f *fakeAPI) SuggestTags(ctx context.Context, req common.SuggestTagsRequest) (common.SuggestTagsResponse, error) {
	f.record("suggest-tags")
	return common.SuggestTagsResponse{Suggestions: f.suggestions}, nil
}

func (f *fakeAPI) CreateTag(ctx context.Context, tag common.Tag) (common.Tag, error) {
	f.record("create-tag:" + tag.Name)
	f.nextTagID++
	tag.ID = f.nextTagID
	return tag, nil
}

func (f *fakeAPI) GetPerson(ctx context.Context, id int64) (common.Person, error) {
	f.record("get-person")
	return f.person, nil
}

func (f *fakeAPI) SetPersonTags(ctx context.Context, personID int64, tagIDs []int64) (common.Person, error) {
	f.record("set-tags")
	f.tagPatch = tagIDs
	return f.person, nil
}

func twoCandidates() []common.ContactCandidate {
	return []common.ContactCandidate{
		{FirstName: "Maria", LastName: "Lopez", Company: "Acme"},
		{FirstName: "Tom", LastName: "Baker"},
	}
}

func TestContactImportRemoveThenCommit(t *testing.T) {
	ctx := context.Background()
	api := &fakeAPI{parsed: twoCandidates()}
	w := NewContactImport(api)

	if err := w.Parse(ctx, "Met Maria Lopez from Acme and Tom Baker"); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if w.Step() != StepPreview {
		t.Fatalf("Step() = %v, want preview", w.Step())
	}
	if got := len(w.Candidates()); got != 2 {
		t.Fatalf("len(Candidates()) = %d, want 2", got)
	}
	if err := w.Remove(1); err != nil {
		t.Fatalf("Remove(1) error = %v", err)
	}
	if err := w.Commit(ctx); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	if len(api.imported) != 1 || api.imported[0].FirstName != "Maria" {
		t.Fatalf("imported = %+v, want only Maria", api.imported)
	}
	res, ok := w.Result()
	if !ok || res.PersonsCreated != 1 {
		t.Fatalf("Result() = %+v, %v, want persons_created 1", res, ok)
	}
	if w.Step() != StepResult {
		t.Fatalf("Step() = %v, want result", w.Step())
	}
}

func TestContactImportURLInput(t *testing.T) {
	api := &fakeAPI{parsed: twoCandidates()}
	w := NewContactImport(api)
	if err := w.Parse(context.Background(), "  https://example.com/team  "); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if api.calls[0] != "parse:https://example.com/team" {
		t.Fatalf("calls = %v", api.calls)
	}
	if got := contactsRequest("see https://example.com"); got.URL != "" {
		t.Fatalf("text with a link treated as URL: %+v", got)
	}
}

func TestCancelMakesNoCalls(t *testing.T) {
	ctx := context.Background()
	api := &fakeAPI{parsed: twoCandidates()}
	w := NewContactImport(api)
	if err := w.Parse(ctx, "text"); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if err := w.Edit(0, common.ContactCandidate{FirstName: "Mary"}); err != nil {
		t.Fatalf("Edit() error = %v", err)
	}

	before := len(api.calls)
	w.Cancel()
	if len(api.calls) != before {
		t.Fatalf("Cancel() made calls: %v", api.calls[before:])
	}
	if w.Step() != StepInput || len(w.Candidates()) != 0 || w.Input() != "" {
		t.Fatalf("Cancel() left state: step=%v candidates=%d input=%q", w.Step(), len(w.Candidates()), w.Input())
	}
}

func TestReopenResets(t *testing.T) {
	ctx := context.Background()
	api := &fakeAPI{parsed: twoCandidates()}
	w := NewContactImport(api)
	if err := w.Parse(ctx, "text"); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if err := w.Commit(ctx); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	if err := w.Back(); !errors.Is(err, ErrWrongStep) {
		t.Fatalf("Back() from result error = %v, want ErrWrongStep", err)
	}

	w.Open()
	if w.Step() != StepInput {
		t.Fatalf("Step() = %v, want input", w.Step())
	}
	if _, ok := w.Result(); ok {
		t.Fatal("Result() still available after Open()")
	}
	if err := w.Parse(ctx, "again"); err != nil {
		t.Fatalf("Parse() after reopen error = %v", err)
	}
}

func TestBusyWhileInFlight(t *testing.T) {
	api := &fakeAPI{parsed: twoCandidates(), block: make(chan struct{})}
	w := NewContactImport(api)

	done := make(chan error)
	go func() { done <- w.Parse(context.Background(), "text") }()

	for !w.Busy() {
	}
	if err := w.Parse(context.Background(), "other"); !errors.Is(err, ErrBusy) {
		t.Fatalf("second Parse() error = %v, want ErrBusy", err)
	}
	close(api.block)
	if err := <-done; err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if w.Busy() {
		t.Fatal("Busy() after completion")
	}
}

func TestCanceledResultDropped(t *testing.T) {
	api := &fakeAPI{parsed: twoCandidates(), block: make(chan struct{})}
	w := NewContactImport(api)

	done := make(chan error)
	go func() { done <- w.Parse(context.Background(), "text") }()
	for !w.Busy() {
	}
	w.Cancel()
	close(api.block)

	if err := <-done; !errors.Is(err, ErrCanceled) {
		t.Fatalf("Parse() error = %v, want ErrCanceled", err)
	}
	if w.Step() != StepInput || len(w.Candidates()) != 0 {
		t.Fatalf("canceled parse leaked state: step=%v", w.Step())
	}
}

func TestStepGuards(t *testing.T) {
	ctx := context.Background()
	w := NewContactImport(&fakeAPI{parsed: twoCandidates()})

	tests := []struct {
		name string
		run  func() error
		want error
	}{
		{"commit in input", func() error { return w.Commit(ctx) }, ErrWrongStep},
		{"remove in input", func() error { return w.Remove(0) }, ErrWrongStep},
		{"back in input", w.Back, ErrWrongStep},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.run(); !errors.Is(err, tt.want) {
				t.Fatalf("error = %v, want %v", err, tt.want)
			}
		})
	}

	if err := w.Parse(ctx, "text"); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if err := w.Edit(5, common.ContactCandidate{}); !errors.Is(err, ErrIndex) {
		t.Fatalf("Edit(5) error = %v, want ErrIndex", err)
	}
	if err := w.Parse(ctx, "text"); !errors.Is(err, ErrWrongStep) {
		t.Fatalf("Parse() in preview error = %v, want ErrWrongStep", err)
	}
	if err := w.Back(); err != nil {
		t.Fatalf("Back() error = %v", err)
	}
	if w.Input() != "text" {
		t.Fatalf("Back() dropped input: %q", w.Input())
	}
}

func TestNoCandidates(t *testing.T) {
	ctx := context.Background()
	w := NewContactImport(&fakeAPI{})
	if err := w.Parse(ctx, "nothing here"); !errors.Is(err, ErrNoCandidates) {
		t.Fatalf("Parse() error = %v, want ErrNoCandidates", err)
	}
	if w.Step() != StepInput {
		t.Fatalf("Step() = %v, want input", w.Step())
	}

	api := &fakeAPI{parsed: twoCandidates()[:1]}
	w = NewContactImport(api)
	if err := w.Parse(ctx, "text"); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if err := w.Remove(0); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if err := w.Commit(ctx); !errors.Is(err, ErrNoCandidates) {
		t.Fatalf("Commit() error = %v, want ErrNoCandidates", err)
	}
	for _, c := range api.calls {
		if c == "import" {
			t.Fatal("empty commit reached the backend")
		}
	}
}

func TestCommitErrorKeepsPreview(t *testing.T) {
	ctx := context.Background()
	api := &fakeAPI{parsed: twoCandidates()}
	w := NewContactImport(api)
	if err := w.Parse(ctx, "text"); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	api.err = errors.New("backend down")
	if err := w.Commit(ctx); err == nil {
		t.Fatal("Commit() error = nil")
	}
	if w.Step() != StepPreview || len(w.Candidates()) != 2 {
		t.Fatalf("failed commit changed state: step=%v candidates=%d", w.Step(), len(w.Candidates()))
	}
	if w.Err() == nil {
		t.Fatal("Err() = nil after failed commit")
	}

	api.err = nil
	if err := w.Commit(ctx); err != nil {
		t.Fatalf("retry Commit() error = %v", err)
	}
	if w.Err() != nil {
		t.Fatalf("Err() = %v after successful retry", w.Err())
	}
}

func TestRelationshipSuggestionsPartialFailure(t *testing.T) {
	ctx := context.Background()
	api := &fakeAPI{relErrs: map[int64]error{3: errors.New("duplicate")}}
	w := NewRelationshipSuggestions(api, 1)
	if err := w.Parse(ctx, ""); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if err := w.Commit(ctx); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	res, _ := w.Result()
	if res.RelationshipsCreated != 1 || len(res.Errors) != 1 {
		t.Fatalf("Result() = %+v, want 1 created and 1 error", res)
	}
}

func TestTagSuggestionsCreateAndAttach(t *testing.T) {
	ctx := context.Background()
	existing := int64(7)
	api := &fakeAPI{
		person:    common.Person{ID: 1, TagIDs: []int64{7}},
		nextTagID: 10,
		suggestions: []common.TagSuggestion{
			{Name: "climbing"},
			{Name: "work", TagID: &existing},
		},
	}
	w := NewTagSuggestions(api, 1)
	if err := w.Parse(ctx, ""); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if err := w.Commit(ctx); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	res, _ := w.Result()
	if res.TagsCreated != 1 || res.TagsAttached != 1 {
		t.Fatalf("Result() = %+v, want 1 created and 1 attached", res)
	}
	if len(api.tagPatch) != 2 || api.tagPatch[0] != 7 || api.tagPatch[1] != 11 {
		t.Fatalf("tag patch = %v, want [7 11]", api.tagPatch)
	}
}
