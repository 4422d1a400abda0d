package client

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/kinship-crm/kinship/pkg/client/cache"
	"github.com/kinship-crm/kinship/pkg/common"
	"github.com/kinship-crm/kinship/pkg/logger"
)

// Cache key prefixes. A mutation drops every prefix whose data it can
// change.
const (
	keyPersons       = "persons:"
	keyRelationships = "relationships:"
	keyGraph         = "graph:"
	keyDashboard     = "dashboard:"
	keyTags          = "tags:"
	keyGroups        = "groups:"
	keyTypes         = "types:"
)

// Queries is the cached read side of the client. Reads go through the
// cache and collapse concurrent identical requests; writes go straight to
// the server and then invalidate. Nothing outside this type writes to the
// cache.
type Queries struct {
	c     *Client
	cache cache.Cache
	ttl   time.Duration
	group singleflight.Group

	genMu sync.Mutex
	gens  map[string]uint64 // prefix -> invalidation count
}

// NewQueries wraps c. A ttl <= 0 keeps entries until they are invalidated.
func NewQueries(c *Client, store cache.Cache, ttl time.Duration) *Queries {
	return &Queries{c: c, cache: store, ttl: ttl, gens: map[string]uint64{}}
}

// Client returns the uncached client.
func (q *Queries) Client() *Client { return q.c }

// prefixOf returns the invalidation prefix of key, e.g. "persons:".
func prefixOf(key string) string {
	return key[:strings.IndexByte(key, ':')+1]
}

func (q *Queries) generation(prefix string) uint64 {
	q.genMu.Lock()
	defer q.genMu.Unlock()
	return q.gens[prefix]
}

// read serves key from the cache or fetches it. A fetch that overlaps an
// invalidation of its prefix is returned to its callers but not stored,
// and reads after the invalidation start a new fetch instead of joining it.
func read[T any](ctx context.Context, q *Queries, key string, fetch func(context.Context) (T, error)) (T, error) {
	var out T
	if raw, ok, err := q.cache.Get(ctx, key); err != nil {
		logger.Warn("[Cache] read failed", "key", key, "err", err)
	} else if ok {
		if err := json.Unmarshal(raw, &out); err == nil {
			return out, nil
		}
	}

	prefix := prefixOf(key)
	gen := q.generation(prefix)
	flight := key + "@" + strconv.FormatUint(gen, 10)

	v, err, _ := q.group.Do(flight, func() (any, error) {
		fresh, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(fresh)
		if err != nil {
			return fresh, nil
		}

		q.genMu.Lock()
		defer q.genMu.Unlock()
		if q.gens[prefix] != gen {
			logger.Debug("[Cache] dropped stale fetch", "key", key)
			return fresh, nil
		}
		if err := q.cache.Set(ctx, key, raw, q.ttl); err != nil {
			logger.Warn("[Cache] write failed", "key", key, "err", err)
		}
		return fresh, nil
	})
	if err != nil {
		return out, err
	}
	return v.(T), nil
}

func (q *Queries) invalidate(ctx context.Context, prefixes ...string) {
	q.genMu.Lock()
	for _, p := range prefixes {
		q.gens[p]++
	}
	q.genMu.Unlock()

	for _, p := range prefixes {
		if err := q.cache.InvalidatePrefix(ctx, p); err != nil {
			logger.Warn("[Cache] invalidate failed", "prefix", p, "err", err)
		}
	}
}

func listKey(prefix string, opts ListOptions) string {
	return prefix + "list:" + opts.values().Encode()
}

func (q *Queries) Person(ctx context.Context, id int64) (common.Person, error) {
	return read(ctx, q, fmt.Sprintf("%s%d", keyPersons, id), func(ctx context.Context) (common.Person, error) {
		return q.c.Persons.Get(ctx, id)
	})
}

func (q *Queries) Persons(ctx context.Context, opts ListOptions) (common.Page[common.Person], error) {
	return read(ctx, q, listKey(keyPersons, opts), func(ctx context.Context) (common.Page[common.Person], error) {
		return q.c.Persons.List(ctx, opts)
	})
}

func (q *Queries) PersonRelationships(ctx context.Context, personID int64) ([]common.PersonRelationship, error) {
	return read(ctx, q, fmt.Sprintf("%s%d", keyRelationships, personID), func(ctx context.Context) ([]common.PersonRelationship, error) {
		return q.c.PersonRelationships(ctx, personID)
	})
}

func (q *Queries) Tags(ctx context.Context) ([]common.Tag, error) {
	return read(ctx, q, keyTags+"all", func(ctx context.Context) ([]common.Tag, error) {
		return q.c.Tags.All(ctx, ListOptions{})
	})
}

func (q *Queries) Groups(ctx context.Context) ([]common.Group, error) {
	return read(ctx, q, keyGroups+"all", func(ctx context.Context) ([]common.Group, error) {
		return q.c.Groups.All(ctx, ListOptions{})
	})
}

func (q *Queries) RelationshipTypes(ctx context.Context) ([]common.RelationshipType, error) {
	return read(ctx, q, keyTypes+"all", func(ctx context.Context) ([]common.RelationshipType, error) {
		return q.c.RelationshipTypes.All(ctx, ListOptions{})
	})
}

func (q *Queries) Graph(ctx context.Context, opts GraphOptions) (common.GraphProjection, error) {
	return read(ctx, q, keyGraph+opts.values().Encode(), func(ctx context.Context) (common.GraphProjection, error) {
		return q.c.Graph(ctx, opts)
	})
}

func (q *Queries) Dashboard(ctx context.Context) (common.Stats, error) {
	return read(ctx, q, keyDashboard+"stats", q.c.Dashboard)
}

func (q *Queries) CreatePerson(ctx context.Context, v any) (common.Person, error) {
	p, err := q.c.Persons.Create(ctx, v)
	if err == nil {
		q.invalidate(ctx, keyPersons, keyGraph, keyDashboard)
	}
	return p, err
}

func (q *Queries) UpdatePerson(ctx context.Context, id int64, patch any) (common.Person, error) {
	p, err := q.c.Persons.Update(ctx, id, patch)
	if err == nil {
		q.invalidate(ctx, keyPersons, keyRelationships, keyGraph, keyDashboard)
	}
	return p, err
}

func (q *Queries) DeletePerson(ctx context.Context, id int64) error {
	err := q.c.Persons.Delete(ctx, id)
	if err == nil {
		q.invalidate(ctx, keyPersons, keyRelationships, keyGraph, keyDashboard)
	}
	return err
}

func (q *Queries) CreateRelationship(ctx context.Context, v any) (common.Relationship, error) {
	r, err := q.c.Relationships.Create(ctx, v)
	if err == nil {
		q.invalidate(ctx, keyRelationships, keyGraph, keyDashboard)
	}
	return r, err
}

func (q *Queries) UpdateRelationship(ctx context.Context, id int64, patch any) (common.Relationship, error) {
	r, err := q.c.Relationships.Update(ctx, id, patch)
	if err == nil {
		q.invalidate(ctx, keyRelationships, keyGraph)
	}
	return r, err
}

func (q *Queries) DeleteRelationship(ctx context.Context, id int64) error {
	err := q.c.Relationships.Delete(ctx, id)
	if err == nil {
		q.invalidate(ctx, keyRelationships, keyGraph, keyDashboard)
	}
	return err
}

func (q *Queries) CreateTag(ctx context.Context, tag common.Tag) (common.Tag, error) {
	t, err := q.c.Tags.Create(ctx, tag)
	if err == nil {
		q.invalidate(ctx, keyTags, keyDashboard)
	}
	return t, err
}

func (q *Queries) CreateGroup(ctx context.Context, group common.Group) (common.Group, error) {
	g, err := q.c.Groups.Create(ctx, group)
	if err == nil {
		q.invalidate(ctx, keyGroups, keyDashboard)
	}
	return g, err
}

func (q *Queries) CreateRelationshipType(ctx context.Context, t common.RelationshipType) (common.RelationshipType, error) {
	created, err := q.c.RelationshipTypes.Create(ctx, t)
	if err == nil {
		q.invalidate(ctx, keyTypes, keyGraph)
	}
	return created, err
}

// BulkImport runs the import and invalidates what it may have created,
// even when some records failed.
func (q *Queries) BulkImport(ctx context.Context, req common.BulkImportRequest) (common.BulkImportResult, error) {
	res, err := q.c.BulkImport(ctx, req)
	if err == nil {
		q.invalidate(ctx, keyPersons, keyTags, keyGraph, keyDashboard)
	}
	return res, err
}

func (q *Queries) ParseContacts(ctx context.Context, req common.ParseContactsRequest) (common.ParseContactsResponse, error) {
	return q.c.ParseContacts(ctx, req)
}

func (q *Queries) ParseUpdates(ctx context.Context, req common.ParseUpdatesRequest) (common.ParseUpdatesResponse, error) {
	return q.c.ParseUpdates(ctx, req)
}

func (q *Queries) ApplyUpdates(ctx context.Context, req common.ApplyUpdatesRequest) (common.ApplyUpdatesResult, error) {
	res, err := q.c.ApplyUpdates(ctx, req)
	if err == nil {
		q.invalidate(ctx, keyPersons, keyDashboard)
	}
	return res, err
}

func (q *Queries) SuggestRelationships(ctx context.Context, req common.SuggestRelationshipsRequest) (common.SuggestRelationshipsResponse, error) {
	return q.c.SuggestRelationships(ctx, req)
}

func (q *Queries) ApplyRelationshipSuggestion(ctx context.Context, s common.RelationshipSuggestion) (common.Relationship, error) {
	r, err := q.c.ApplyRelationshipSuggestion(ctx, s)
	if err == nil {
		q.invalidate(ctx, keyRelationships, keyGraph, keyDashboard)
	}
	return r, err
}

func (q *Queries) SuggestTags(ctx context.Context, req common.SuggestTagsRequest) (common.SuggestTagsResponse, error) {
	return q.c.SuggestTags(ctx, req)
}

func (q *Queries) GetPerson(ctx context.Context, id int64) (common.Person, error) {
	return q.Person(ctx, id)
}

func (q *Queries) SetPersonTags(ctx context.Context, personID int64, tagIDs []int64) (common.Person, error) {
	return q.UpdatePerson(ctx, personID, map[string]any{"tag_ids": tagIDs})
}
