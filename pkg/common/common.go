package common

import (
	"time"
)

// Relationship categories. Unknown categories are treated as CategoryCustom
// wherever a category drives presentation.
const (
	CategoryFamily       = "family"
	CategoryProfessional = "professional"
	CategorySocial       = "social"
	CategoryCustom       = "custom"
)

// Anecdote types.
const (
	AnecdoteMemory = "memory"
	AnecdoteJoke   = "joke"
	AnecdoteQuote  = "quote"
	AnecdoteNote   = "note"
)

// ContactEntry is a single labeled contact value such as a work email or a
// home address. Persons carry lists of them per contact kind.
type ContactEntry struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// Person is a tracked individual. Exactly one person per installation may
// carry IsOwner; that person is exposed through the /me resource.
type Person struct {
	ID        int64          `json:"id"`
	FirstName string         `json:"first_name"`
	LastName  string         `json:"last_name"`
	Nickname  string         `json:"nickname"`
	Birthday  *Date          `json:"birthday"`
	Notes     string         `json:"notes"`
	Emails    []ContactEntry `json:"emails"`
	Phones    []ContactEntry `json:"phones"`
	Addresses []ContactEntry `json:"addresses"`
	TagIDs    []int64        `json:"tag_ids"`
	GroupIDs  []int64        `json:"group_ids"`
	IsOwner   bool           `json:"is_owner"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// FullName joins the name fields for display purposes.
func (p Person) FullName() string {
	if p.LastName == "" {
		return p.FirstName
	}
	if p.FirstName == "" {
		return p.LastName
	}
	return p.FirstName + " " + p.LastName
}

// Tag is a free label attached to persons and anecdotes.
type Tag struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Color       string `json:"color"`
	Description string `json:"description"`
}

// Group is a named collection of persons. Groups form a tree through
// ParentID and a group can never be its own ancestor.
type Group struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Color       string `json:"color"`
	Description string `json:"description"`
	ParentID    *int64 `json:"parent_id"`
}

// RelationshipType describes how two persons relate. Symmetric types use
// the same name in both directions, asymmetric ones (parent/child) carry a
// distinct InverseName.
type RelationshipType struct {
	ID                int64  `json:"id"`
	Name              string `json:"name"`
	InverseName       string `json:"inverse_name"`
	Category          string `json:"category"`
	IsSymmetric       bool   `json:"is_symmetric"`
	AutoCreateInverse bool   `json:"auto_create_inverse"`
}

// Relationship is a directed edge from PersonAID to PersonBID. When
// AutoCreated is set the record was generated as the inverse of the record
// referenced by InverseID.
type Relationship struct {
	ID                 int64     `json:"id"`
	PersonAID          int64     `json:"person_a_id"`
	PersonBID          int64     `json:"person_b_id"`
	RelationshipTypeID int64     `json:"relationship_type_id"`
	Strength           *int      `json:"strength"`
	StartDate          *Date     `json:"start_date"`
	Notes              string    `json:"notes"`
	AutoCreated        bool      `json:"auto_created"`
	InverseID          *int64    `json:"inverse_id"`
	CreatedAt          time.Time `json:"created_at"`
}

// PersonRelationship is a relationship seen from one person's perspective.
// It is produced by merging both stored directions.
type PersonRelationship struct {
	RelationshipID     int64  `json:"relationship_id"`
	OtherPersonID      int64  `json:"other_person_id"`
	OtherPersonName    string `json:"other_person_name"`
	RelationshipTypeID int64  `json:"relationship_type_id"`
	TypeName           string `json:"type_name"`
	Category           string `json:"category"`
	Strength           *int   `json:"strength"`
	StartDate          *Date  `json:"start_date"`
	Notes              string `json:"notes"`
	AutoCreated        bool   `json:"auto_created"`
	Reversed           bool   `json:"reversed"`
}

// Anecdote is a memory, joke, quote or note about one or more persons.
type Anecdote struct {
	ID           int64     `json:"id"`
	Title        string    `json:"title"`
	Content      string    `json:"content"`
	Date         *Date     `json:"date"`
	Location     string    `json:"location"`
	AnecdoteType string    `json:"anecdote_type"`
	PersonIDs    []int64   `json:"person_ids"`
	TagIDs       []int64   `json:"tag_ids"`
	CreatedAt    time.Time `json:"created_at"`
}

// Photo is an uploaded image stored in object storage under FileKey.
type Photo struct {
	ID            int64     `json:"id"`
	FileKey       string    `json:"file_key"`
	FileURL       string    `json:"file_url,omitempty"`
	Caption       string    `json:"caption"`
	DateTaken     *Date     `json:"date_taken"`
	Location      string    `json:"location"`
	Latitude      *float64  `json:"latitude"`
	Longitude     *float64  `json:"longitude"`
	AIDescription string    `json:"ai_description"`
	PersonIDs     []int64   `json:"person_ids"`
	AnecdoteID    *int64    `json:"anecdote_id"`
	CreatedAt     time.Time `json:"created_at"`
}

// Employment is a position held by a person.
type Employment struct {
	ID         int64  `json:"id"`
	PersonID   int64  `json:"person_id"`
	Company    string `json:"company"`
	Title      string `json:"title"`
	Department string `json:"department"`
	StartDate  *Date  `json:"start_date"`
	EndDate    *Date  `json:"end_date"`
	IsCurrent  bool   `json:"is_current"`
}

// Page is the paginated envelope used by every collection endpoint.
type Page[T any] struct {
	Count    int     `json:"count"`
	Next     *string `json:"next"`
	Previous *string `json:"previous"`
	Results  []T     `json:"results"`
}

// Stats is the dashboard summary.
type Stats struct {
	Persons       int      `json:"persons"`
	Relationships int      `json:"relationships"`
	Anecdotes     int      `json:"anecdotes"`
	Photos        int      `json:"photos"`
	Tags          int      `json:"tags"`
	Groups        int      `json:"groups"`
	Employments   int      `json:"employments"`
	RecentPersons []Person `json:"recent_persons"`
}

// GraphNode and GraphEdge form the raw graph projection returned by the
// backend before any layout is applied.
type GraphNode struct {
	ID     int64  `json:"id"`
	Label  string `json:"label"`
	Avatar string `json:"avatar,omitempty"`
}

type GraphEdge struct {
	ID                 int64  `json:"id"`
	Source             int64  `json:"source"`
	Target             int64  `json:"target"`
	RelationshipTypeID int64  `json:"relationship_type_id"`
	Label              string `json:"label"`
	Category           string `json:"category"`
	Strength           *int   `json:"strength"`
	IsSymmetric        bool   `json:"is_symmetric"`
}

// GraphProjection is the payload of /relationships/graph.
type GraphProjection struct {
	Nodes             []GraphNode        `json:"nodes"`
	Edges             []GraphEdge        `json:"edges"`
	RelationshipTypes []RelationshipType `json:"relationship_types"`
	CenterPersonID    *int64             `json:"center_person_id"`
}
