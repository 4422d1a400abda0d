package store

import (
	"context"
	"errors"

	"github.com/kinship-crm/kinship/pkg/common"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a write violates a uniqueness rule,
	// for example a second owner profile.
	ErrConflict = errors.New("conflict")
)

// ListParams narrows and paginates a collection query. Zero values mean
// "no filter"; Limit <= 0 returns everything.
type ListParams struct {
	Search     string
	PersonID   int64
	TagID      int64
	GroupID    int64
	TypeID     int64
	AnecdoteID int64
	Category   string
	Limit      int
	Offset     int
}

// PersonStore persists persons together with their tag and group
// memberships.
type PersonStore interface {
	ListPersons(ctx context.Context, params ListParams) ([]common.Person, int, error)
	GetPerson(ctx context.Context, id int64) (common.Person, error)
	GetOwner(ctx context.Context) (common.Person, error)
	CreatePerson(ctx context.Context, p common.Person) (common.Person, error)
	UpdatePerson(ctx context.Context, p common.Person) (common.Person, error)
	DeletePerson(ctx context.Context, id int64) error
	SetPersonEmbedding(ctx context.Context, id int64, embedding []float32) error
	SimilarPersons(ctx context.Context, embedding []float32, limit int) ([]common.Person, error)
	PersonsMissingEmbedding(ctx context.Context, limit int) ([]int64, error)
}

type TagStore interface {
	ListTags(ctx context.Context, params ListParams) ([]common.Tag, int, error)
	GetTag(ctx context.Context, id int64) (common.Tag, error)
	GetTagByName(ctx context.Context, name string) (common.Tag, error)
	CreateTag(ctx context.Context, t common.Tag) (common.Tag, error)
	UpdateTag(ctx context.Context, t common.Tag) (common.Tag, error)
	DeleteTag(ctx context.Context, id int64) error
}

type GroupStore interface {
	ListGroups(ctx context.Context, params ListParams) ([]common.Group, int, error)
	GetGroup(ctx context.Context, id int64) (common.Group, error)
	CreateGroup(ctx context.Context, g common.Group) (common.Group, error)
	UpdateGroup(ctx context.Context, g common.Group) (common.Group, error)
	DeleteGroup(ctx context.Context, id int64) error
}

// RelationshipStore persists relationship types and relationship records.
// It performs no consistency work of its own; pairing rules live in the
// relation package.
type RelationshipStore interface {
	ListRelationshipTypes(ctx context.Context, params ListParams) ([]common.RelationshipType, int, error)
	GetRelationshipType(ctx context.Context, id int64) (common.RelationshipType, error)
	FindRelationshipType(ctx context.Context, name, inverseName string) (common.RelationshipType, error)
	CreateRelationshipType(ctx context.Context, t common.RelationshipType) (common.RelationshipType, error)
	UpdateRelationshipType(ctx context.Context, t common.RelationshipType) (common.RelationshipType, error)
	DeleteRelationshipType(ctx context.Context, id int64) error

	ListRelationships(ctx context.Context, params ListParams) ([]common.Relationship, int, error)
	GetRelationship(ctx context.Context, id int64) (common.Relationship, error)
	FindRelationships(ctx context.Context, personA, personB, typeID int64) ([]common.Relationship, error)
	CreateRelationship(ctx context.Context, r common.Relationship) (common.Relationship, error)
	UpdateRelationship(ctx context.Context, r common.Relationship) (common.Relationship, error)
	DeleteRelationship(ctx context.Context, id int64) error
	ListUnpairedAutoCreated(ctx context.Context) ([]common.Relationship, error)
}

type AnecdoteStore interface {
	ListAnecdotes(ctx context.Context, params ListParams) ([]common.Anecdote, int, error)
	GetAnecdote(ctx context.Context, id int64) (common.Anecdote, error)
	CreateAnecdote(ctx context.Context, a common.Anecdote) (common.Anecdote, error)
	UpdateAnecdote(ctx context.Context, a common.Anecdote) (common.Anecdote, error)
	DeleteAnecdote(ctx context.Context, id int64) error
}

type PhotoStore interface {
	ListPhotos(ctx context.Context, params ListParams) ([]common.Photo, int, error)
	GetPhoto(ctx context.Context, id int64) (common.Photo, error)
	CreatePhoto(ctx context.Context, p common.Photo) (common.Photo, error)
	UpdatePhoto(ctx context.Context, p common.Photo) (common.Photo, error)
	DeletePhoto(ctx context.Context, id int64) error
}

type EmploymentStore interface {
	ListEmployments(ctx context.Context, params ListParams) ([]common.Employment, int, error)
	GetEmployment(ctx context.Context, id int64) (common.Employment, error)
	CreateEmployment(ctx context.Context, e common.Employment) (common.Employment, error)
	UpdateEmployment(ctx context.Context, e common.Employment) (common.Employment, error)
	DeleteEmployment(ctx context.Context, id int64) error
}

// Store is the full persistence surface used by the server. WithTx runs fn
// against a transactional view of the store; the transaction commits when
// fn returns nil and rolls back otherwise.
type Store interface {
	PersonStore
	TagStore
	GroupStore
	RelationshipStore
	AnecdoteStore
	PhotoStore
	EmploymentStore

	Stats(ctx context.Context) (common.Stats, error)
	WithTx(ctx context.Context, fn func(tx Store) error) error
}
