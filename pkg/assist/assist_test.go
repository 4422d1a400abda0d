package assist

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/kinship-crm/kinship/pkg/ai/aitest"
	"github.com/kinship-crm/kinship/pkg/common"
	"github.com/kinship-crm/kinship/pkg/loader"
	"github.com/kinship-crm/kinship/pkg/loader/web"
	"github.com/kinship-crm/kinship/pkg/relation"
	"github.com/kinship-crm/kinship/pkg/store"
	"github.com/kinship-crm/kinship/pkg/store/memstore"
)

type fixture struct {
	svc    *Service
	store  *memstore.Store
	rel    *relation.Service
	fake   *aitest.Fake
	ann    common.Person
	ben    common.Person
	friend common.RelationshipType
}

func newFixture(t *testing.T, opts Options) fixture {
	t.Helper()
	ctx := context.Background()
	s := memstore.New()
	rel := relation.NewService(s)
	fake := &aitest.Fake{Structured: map[string]any{}}

	f := fixture{store: s, rel: rel, fake: fake}
	var err error
	if f.ann, err = s.CreatePerson(ctx, common.Person{FirstName: "Ann", LastName: "Smith", Notes: "climbs every weekend"}); err != nil {
		t.Fatalf("CreatePerson() error = %v", err)
	}
	if f.ben, err = s.CreatePerson(ctx, common.Person{FirstName: "Ben", LastName: "Smith"}); err != nil {
		t.Fatalf("CreatePerson() error = %v", err)
	}
	if f.friend, err = rel.CreateType(ctx, common.RelationshipType{Name: "friend", Category: common.CategorySocial, IsSymmetric: true}); err != nil {
		t.Fatalf("CreateType() error = %v", err)
	}

	f.svc = New(s, rel, fake, opts)
	f.svc.now = func() time.Time { return time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC) }
	return f
}

func TestUnavailableWithoutModel(t *testing.T) {
	s := memstore.New()
	svc := New(s, relation.NewService(s), nil, Options{})
	if _, err := svc.ParseContacts(context.Background(), common.ParseContactsRequest{Text: "x"}); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("ParseContacts() error = %v, want ErrUnavailable", err)
	}
	if _, err := svc.Chat(context.Background(), common.ChatRequest{Message: "x"}); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("Chat() error = %v, want ErrUnavailable", err)
	}
}

func TestParseContactsFromText(t *testing.T) {
	f := newFixture(t, Options{})
	f.fake.Structured["contacts"] = common.ParseContactsResponse{Persons: []common.ContactCandidate{
		{FirstName: " Maria ", LastName: "Lopez", Company: "Acme"},
		{FirstName: "", LastName: ""},
	}}

	res, err := f.svc.ParseContacts(context.Background(), common.ParseContactsRequest{Text: "Met Maria Lopez from Acme"})
	if err != nil {
		t.Fatalf("ParseContacts() error = %v", err)
	}
	if len(res.Persons) != 1 || res.Persons[0].FirstName != "Maria" {
		t.Fatalf("Persons = %+v, want only Maria", res.Persons)
	}
	if !strings.Contains(f.fake.Prompts[0], "2024-05-01") || !strings.Contains(f.fake.Prompts[0], "Maria Lopez") {
		t.Fatalf("prompt misses date or text: %s", f.fake.Prompts[0])
	}

	if _, err := f.svc.ParseContacts(context.Background(), common.ParseContactsRequest{Text: "  "}); !errors.Is(err, ErrEmptyInput) {
		t.Fatalf("empty input error = %v, want ErrEmptyInput", err)
	}
}

func TestParseContactsFromURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		fmt.Fprint(w, "Team: Carla Diaz, head of research")
	}))
	defer srv.Close()

	f := newFixture(t, Options{Pages: web.NewPageLoader(srv.Client())})
	f.fake.Structured["contacts"] = common.ParseContactsResponse{Persons: []common.ContactCandidate{{FirstName: "Carla", LastName: "Diaz"}}}

	res, err := f.svc.ParseContacts(context.Background(), common.ParseContactsRequest{URL: srv.URL + "/team"})
	if err != nil {
		t.Fatalf("ParseContacts() error = %v", err)
	}
	if len(res.Persons) != 1 {
		t.Fatalf("Persons = %+v", res.Persons)
	}
	if !strings.Contains(f.fake.Prompts[0], "Carla Diaz, head of research") {
		t.Fatalf("page text missing from prompt: %s", f.fake.Prompts[0])
	}
}

func TestBulkImportPartialFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	if _, err := f.store.CreateTag(ctx, common.Tag{Name: "school"}); err != nil {
		t.Fatalf("CreateTag() error = %v", err)
	}

	res, err := f.svc.BulkImport(ctx, common.BulkImportRequest{Persons: []common.ContactCandidate{
		{FirstName: "Maria", Tags: []string{"School", "climbing"}, Company: "Acme", Title: "CTO"},
		{FirstName: "", LastName: "Nobody"},
		{FirstName: "Tom", Tags: []string{"climbing", "climbing"}},
	}})
	if err != nil {
		t.Fatalf("BulkImport() error = %v", err)
	}
	if res.PersonsCreated != 2 || res.TagsCreated != 1 || res.EmploymentsCreated != 1 || len(res.Errors) != 1 {
		t.Fatalf("result = %+v, want 2 persons, 1 tag, 1 employment, 1 error", res)
	}

	persons, total, _ := f.store.ListPersons(ctx, store.ListParams{Search: "Tom"})
	if total != 1 || len(persons[0].TagIDs) != 1 {
		t.Fatalf("Tom = %+v, want one deduplicated tag", persons)
	}
	jobs, _, _ := f.store.ListEmployments(ctx, store.ListParams{})
	if len(jobs) != 1 || jobs[0].Company != "Acme" || !jobs[0].IsCurrent {
		t.Fatalf("employments = %+v", jobs)
	}
}

func TestParseAndApplyUpdates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	f.fake.Structured["profile_updates"] = common.ParseUpdatesResponse{Updates: []common.ProfileUpdate{
		{PersonID: f.ann.ID, Field: common.UpdateFieldEmail, Value: "ann@example.com", Label: "work"},
		{PersonID: 999, Field: common.UpdateFieldNickname, Value: "ghost"},
		{PersonID: f.ben.ID, Field: "shoe_size", Value: "44"},
		{PersonID: f.ben.ID, Field: common.UpdateFieldJob, Value: "Globex", Label: "Engineer"},
	}}

	parsed, err := f.svc.ParseUpdates(ctx, common.ParseUpdatesRequest{Text: "Ann's work mail is ann@example.com, Ben joined Globex"})
	if err != nil {
		t.Fatalf("ParseUpdates() error = %v", err)
	}
	if len(parsed.Updates) != 2 || parsed.Updates[0].PersonName != "Ann Smith" {
		t.Fatalf("Updates = %+v, want the two valid ones", parsed.Updates)
	}

	updates := append(parsed.Updates,
		common.ProfileUpdate{PersonID: f.ann.ID, Field: common.UpdateFieldBirthday, Value: "not a date"},
		common.ProfileUpdate{PersonID: f.ann.ID, Field: common.UpdateFieldAnecdote, Value: "Climbed the Eiger together"},
	)
	res, err := f.svc.ApplyUpdates(ctx, common.ApplyUpdatesRequest{Updates: updates})
	if err != nil {
		t.Fatalf("ApplyUpdates() error = %v", err)
	}
	if res.PersonsUpdated != 1 || res.EmploymentsCreated != 1 || res.AnecdotesCreated != 1 || len(res.Errors) != 1 {
		t.Fatalf("result = %+v", res)
	}

	ann, _ := f.store.GetPerson(ctx, f.ann.ID)
	if len(ann.Emails) != 1 || ann.Emails[0] != (common.ContactEntry{Label: "work", Value: "ann@example.com"}) {
		t.Fatalf("Emails = %+v", ann.Emails)
	}
	anecdotes, _, _ := f.store.ListAnecdotes(ctx, store.ListParams{PersonID: f.ann.ID})
	if len(anecdotes) != 1 || anecdotes[0].Title != "Climbed the Eiger together" {
		t.Fatalf("anecdotes = %+v", anecdotes)
	}
}

func TestSuggestRelationshipsFilters(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	cat, err := f.store.CreatePerson(ctx, common.Person{FirstName: "Cat"})
	if err != nil {
		t.Fatalf("CreatePerson() error = %v", err)
	}
	if _, err := f.rel.Create(ctx, common.Relationship{PersonAID: f.ann.ID, PersonBID: f.ben.ID, RelationshipTypeID: f.friend.ID}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	f.fake.Structured["relationship_suggestions"] = common.SuggestRelationshipsResponse{Suggestions: []common.RelationshipSuggestion{
		{PersonAID: f.ben.ID, PersonBID: f.ann.ID, RelationshipTypeID: f.friend.ID, Confidence: 0.9},
		{PersonAID: f.ann.ID, PersonBID: cat.ID, RelationshipTypeID: f.friend.ID, Confidence: 0.5},
		{PersonAID: f.ann.ID, PersonBID: cat.ID, RelationshipTypeID: f.friend.ID, Confidence: 0.8},
		{PersonAID: f.ann.ID, PersonBID: f.ann.ID, RelationshipTypeID: f.friend.ID, Confidence: 0.9},
		{PersonAID: f.ann.ID, PersonBID: cat.ID, RelationshipTypeID: 999, Confidence: 0.9},
		{PersonAID: f.ben.ID, PersonBID: cat.ID, RelationshipTypeID: f.friend.ID, Confidence: 0.2},
	}}

	res, err := f.svc.SuggestRelationships(ctx, common.SuggestRelationshipsRequest{})
	if err != nil {
		t.Fatalf("SuggestRelationships() error = %v", err)
	}
	if len(res.Suggestions) != 1 {
		t.Fatalf("Suggestions = %+v, want one", res.Suggestions)
	}
	got := res.Suggestions[0]
	if got.PersonBName != "Cat" || got.TypeName != "friend" || got.Confidence != 0.5 {
		t.Fatalf("suggestion = %+v", got)
	}

	created, err := f.svc.ApplyRelationshipSuggestion(ctx, got)
	if err != nil {
		t.Fatalf("ApplyRelationshipSuggestion() error = %v", err)
	}
	if created.PersonBID != cat.ID {
		t.Fatalf("created = %+v", created)
	}
	if _, err := f.svc.ApplyRelationshipSuggestion(ctx, got); !errors.Is(err, relation.ErrDuplicate) {
		t.Fatalf("second apply error = %v, want ErrDuplicate", err)
	}
}

func TestSuggestTags(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	climbing, _ := f.store.CreateTag(ctx, common.Tag{Name: "climbing"})
	family, _ := f.store.CreateTag(ctx, common.Tag{Name: "family"})
	f.ann.TagIDs = []int64{family.ID}
	if _, err := f.store.UpdatePerson(ctx, f.ann); err != nil {
		t.Fatalf("UpdatePerson() error = %v", err)
	}

	f.fake.Structured["tag_suggestions"] = common.SuggestTagsResponse{Suggestions: []common.TagSuggestion{
		{Name: "Climbing", Reason: "climbs every weekend"},
		{Name: "family"},
		{Name: "outdoors"},
		{Name: "outdoors"},
	}}
	res, err := f.svc.SuggestTags(ctx, common.SuggestTagsRequest{PersonID: f.ann.ID})
	if err != nil {
		t.Fatalf("SuggestTags() error = %v", err)
	}
	if len(res.Suggestions) != 2 {
		t.Fatalf("Suggestions = %+v, want climbing and outdoors", res.Suggestions)
	}
	if res.Suggestions[0].TagID == nil || *res.Suggestions[0].TagID != climbing.ID {
		t.Fatalf("existing tag not matched: %+v", res.Suggestions[0])
	}
	if res.Suggestions[1].TagID != nil || res.Suggestions[1].Name != "outdoors" {
		t.Fatalf("new tag = %+v", res.Suggestions[1])
	}

	if _, err := f.svc.SuggestTags(ctx, common.SuggestTagsRequest{PersonID: 999}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("unknown person error = %v, want ErrNotFound", err)
	}
}

func TestChatToolsAndCitations(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	f.fake.ToolCalls = [][2]string{
		{"search_persons", `{"query":"Smith"}`},
		{"get_person", fmt.Sprintf(`{"id":%d}`, f.ann.ID)},
	}
	f.fake.ChatReply = fmt.Sprintf("Ann Smith [[%d]] climbs. Unknown [[999]].", f.ann.ID)

	res, err := f.svc.Chat(ctx, common.ChatRequest{
		Message: "Who climbs?",
		History: []common.ChatMessage{{Role: "user", Message: "hi"}, {Role: "assistant", Message: "hello"}},
	})
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if len(res.PersonIDs) != 1 || res.PersonIDs[0] != f.ann.ID {
		t.Fatalf("PersonIDs = %v, want [%d]", res.PersonIDs, f.ann.ID)
	}
	if len(f.fake.ToolResults) != 2 {
		t.Fatalf("ToolResults = %v", f.fake.ToolResults)
	}
	if !strings.Contains(f.fake.ToolResults[0], "Ben Smith") {
		t.Fatalf("search result = %s", f.fake.ToolResults[0])
	}
	if !strings.Contains(f.fake.ToolResults[1], "climbs every weekend") {
		t.Fatalf("person detail = %s", f.fake.ToolResults[1])
	}
}

func TestCitedPersons(t *testing.T) {
	tests := []struct {
		text string
		want []int64
	}{
		{"", []int64{}},
		{"Ann [[3]] and Ben [[4]] and Ann again [[3]]", []int64{3, 4}},
		{"[[x]] [[ 5 ]] [[6]]", []int64{6}},
	}
	for _, tt := range tests {
		got := citedPersons(tt.text)
		if fmt.Sprint(got) != fmt.Sprint(tt.want) {
			t.Errorf("citedPersons(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestSmartSearchTextFallback(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	f.fake.Structured["smart_search"] = smartSelection{PersonIDs: []int64{f.ann.ID, 999}, Explanation: "Ann climbs."}

	res, err := f.svc.SmartSearch(ctx, common.SmartSearchRequest{Query: "who climbs mountains"})
	if err != nil {
		t.Fatalf("SmartSearch() error = %v", err)
	}
	if len(res.Persons) != 1 || res.Persons[0].ID != f.ann.ID || res.Explanation != "Ann climbs." {
		t.Fatalf("result = %+v", res)
	}
}

func TestSmartSearchUsesEmbeddings(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	vec := func(x float32) []float32 {
		v := make([]float32, 4)
		v[0], v[1] = x, 1-x
		return v
	}
	f.fake.Embeddings = map[string][]float32{"sporty people": vec(1)}
	if err := f.store.SetPersonEmbedding(ctx, f.ben.ID, vec(0.9)); err != nil {
		t.Fatalf("SetPersonEmbedding() error = %v", err)
	}
	f.fake.Structured["smart_search"] = smartSelection{PersonIDs: []int64{f.ben.ID}, Explanation: "close match"}

	res, err := f.svc.SmartSearch(ctx, common.SmartSearchRequest{Query: "sporty people"})
	if err != nil {
		t.Fatalf("SmartSearch() error = %v", err)
	}
	if len(res.Persons) != 1 || res.Persons[0].ID != f.ben.ID {
		t.Fatalf("result = %+v", res)
	}
	if strings.Contains(f.fake.Prompts[len(f.fake.Prompts)-1], "Ann Smith") {
		t.Fatal("candidate list should only hold embedded persons")
	}
}

func TestEmbedMissing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	n, err := f.svc.EmbedMissing(ctx, 0)
	if err != nil {
		t.Fatalf("EmbedMissing() error = %v", err)
	}
	if n != 2 {
		t.Fatalf("EmbedMissing() = %d, want 2", n)
	}
	ids, _ := f.store.PersonsMissingEmbedding(ctx, 0)
	if len(ids) != 0 {
		t.Fatalf("still missing: %v", ids)
	}
}

func TestEmbedMissingBatches(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	extra := embedBatch + 3
	for i := range extra {
		if _, err := f.store.CreatePerson(ctx, common.Person{FirstName: "P" + strconv.Itoa(i)}); err != nil {
			t.Fatalf("CreatePerson() error = %v", err)
		}
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if n, err := f.svc.EmbedMissing(cancelled, 0); !errors.Is(err, context.Canceled) || n != 0 {
		t.Fatalf("EmbedMissing(cancelled) = %d, %v; want 0, context.Canceled", n, err)
	}

	n, err := f.svc.EmbedMissing(ctx, 0)
	if err != nil {
		t.Fatalf("EmbedMissing() error = %v", err)
	}
	if want := extra + 2; n != want {
		t.Fatalf("EmbedMissing() = %d, want %d", n, want)
	}
	if ids, _ := f.store.PersonsMissingEmbedding(ctx, 0); len(ids) != 0 {
		t.Fatalf("still missing: %v", ids)
	}
}

type fakeDescriber struct {
	sources []loader.Source
}

func (d *fakeDescriber) Describe(_ context.Context, src loader.Source) (string, error) {
	d.sources = append(d.sources, src)
	return "Two people on a summit.", nil
}

func TestDescribePhoto(t *testing.T) {
	ctx := context.Background()
	d := &fakeDescriber{}
	f := newFixture(t, Options{Photos: d})
	photo, err := f.store.CreatePhoto(ctx, common.Photo{FileKey: "photos/abc.jpg", PersonIDs: []int64{f.ann.ID}})
	if err != nil {
		t.Fatalf("CreatePhoto() error = %v", err)
	}

	for range 2 {
		if err := f.svc.DescribePhoto(ctx, photo.ID); err != nil {
			t.Fatalf("DescribePhoto() error = %v", err)
		}
	}
	got, _ := f.store.GetPhoto(ctx, photo.ID)
	if got.AIDescription != "Two people on a summit." || len(got.PersonIDs) != 1 {
		t.Fatalf("photo = %+v", got)
	}
	if len(d.sources) != 1 || d.sources[0].Path != "photos/abc.jpg" {
		t.Fatalf("describer calls = %+v", d.sources)
	}
}
