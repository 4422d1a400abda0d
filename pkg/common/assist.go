package common

// ContactCandidate is a person extracted from free text, not yet stored.
type ContactCandidate struct {
	FirstName string         `json:"first_name" jsonschema:"required"`
	LastName  string         `json:"last_name,omitempty"`
	Nickname  string         `json:"nickname,omitempty"`
	Birthday  *Date          `json:"birthday,omitempty"`
	Notes     string         `json:"notes,omitempty"`
	Emails    []ContactEntry `json:"emails,omitempty"`
	Phones    []ContactEntry `json:"phones,omitempty"`
	Addresses []ContactEntry `json:"addresses,omitempty"`
	Tags      []string       `json:"tags,omitempty"`
	Company   string         `json:"company,omitempty"`
	Title     string         `json:"title,omitempty"`
}

type ParseContactsRequest struct {
	Text string `json:"text"`
	// URL, when set, is fetched and reduced to its readable text first.
	URL string `json:"url,omitempty"`
}

type ParseContactsResponse struct {
	Persons []ContactCandidate `json:"persons"`
}

type BulkImportRequest struct {
	Persons []ContactCandidate `json:"persons" validate:"required,min=1,dive"`
}

// BulkImportResult reports what an import created. A failed record adds an
// entry to Errors and does not undo the records that succeeded.
type BulkImportResult struct {
	PersonsCreated     int      `json:"persons_created"`
	TagsCreated        int      `json:"tags_created"`
	EmploymentsCreated int      `json:"employments_created"`
	Errors             []string `json:"errors"`
}

// Profile update fields understood by apply-updates.
const (
	UpdateFieldNickname = "nickname"
	UpdateFieldBirthday = "birthday"
	UpdateFieldNotes    = "notes"
	UpdateFieldEmail    = "email"
	UpdateFieldPhone    = "phone"
	UpdateFieldAddress  = "address"
	UpdateFieldJob      = "employment"
	UpdateFieldAnecdote = "anecdote"
)

// ProfileUpdate is one proposed change to an existing person.
type ProfileUpdate struct {
	PersonID   int64  `json:"person_id" jsonschema:"required"`
	PersonName string `json:"person_name,omitempty"`
	Field      string `json:"field" jsonschema:"required,enum=nickname,enum=birthday,enum=notes,enum=email,enum=phone,enum=address,enum=employment,enum=anecdote"`
	Value      string `json:"value" jsonschema:"required"`
	Label      string `json:"label,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

type ParseUpdatesRequest struct {
	Text string `json:"text"`
}

type ParseUpdatesResponse struct {
	Updates []ProfileUpdate `json:"updates"`
}

type ApplyUpdatesRequest struct {
	Updates []ProfileUpdate `json:"updates" validate:"required,min=1"`
}

type ApplyUpdatesResult struct {
	PersonsUpdated     int      `json:"persons_updated"`
	AnecdotesCreated   int      `json:"anecdotes_created"`
	EmploymentsCreated int      `json:"employments_created"`
	Errors             []string `json:"errors"`
}

// RelationshipSuggestion is a relationship the assistant believes exists
// between two stored persons.
type RelationshipSuggestion struct {
	PersonAID          int64   `json:"person_a_id" jsonschema:"required"`
	PersonAName        string  `json:"person_a_name,omitempty"`
	PersonBID          int64   `json:"person_b_id" jsonschema:"required"`
	PersonBName        string  `json:"person_b_name,omitempty"`
	RelationshipTypeID int64   `json:"relationship_type_id" jsonschema:"required"`
	TypeName           string  `json:"type_name,omitempty"`
	Confidence         float64 `json:"confidence"`
	Reason             string  `json:"reason,omitempty"`
}

type SuggestRelationshipsRequest struct {
	// PersonID limits suggestions to one person; zero looks at everyone.
	PersonID int64  `json:"person_id,omitempty"`
	Text     string `json:"text,omitempty"`
}

type SuggestRelationshipsResponse struct {
	Suggestions []RelationshipSuggestion `json:"suggestions"`
}

// ApplySuggestionsResult is the outcome of applying a batch of
// relationship suggestions one request at a time.
type ApplySuggestionsResult struct {
	RelationshipsCreated int      `json:"relationships_created"`
	Errors               []string `json:"errors"`
}

type TagSuggestion struct {
	Name   string `json:"name" jsonschema:"required"`
	TagID  *int64 `json:"tag_id"`
	Reason string `json:"reason,omitempty"`
}

type SuggestTagsRequest struct {
	PersonID int64 `json:"person_id" validate:"required"`
}

type SuggestTagsResponse struct {
	Suggestions []TagSuggestion `json:"suggestions"`
}

// ApplyTagsResult reports the outcome of attaching suggested tags.
type ApplyTagsResult struct {
	TagsCreated  int      `json:"tags_created"`
	TagsAttached int      `json:"tags_attached"`
	Errors       []string `json:"errors"`
}

type ChatMessage struct {
	Role    string `json:"role" validate:"oneof=user assistant"`
	Message string `json:"message"`
}

type ChatRequest struct {
	Message string        `json:"message" validate:"required"`
	History []ChatMessage `json:"history,omitempty"`
}

type ChatResponse struct {
	Reply     string  `json:"reply"`
	PersonIDs []int64 `json:"person_ids"`
}

type SmartSearchRequest struct {
	Query string `json:"query" validate:"required"`
}

type SmartSearchResponse struct {
	Persons     []Person `json:"persons"`
	Explanation string   `json:"explanation"`
}

// SearchResults is the response of the plain text search.
type SearchResults struct {
	Persons   []Person   `json:"persons"`
	Anecdotes []Anecdote `json:"anecdotes"`
	Tags      []Tag      `json:"tags"`
	Groups    []Group    `json:"groups"`
}

// ExportPreview counts the records an export would contain.
type ExportPreview struct {
	Persons       int `json:"persons"`
	Relationships int `json:"relationships"`
	Anecdotes     int `json:"anecdotes"`
	Photos        int `json:"photos"`
	Employments   int `json:"employments"`
	Tags          int `json:"tags"`
	Groups        int `json:"groups"`
}
