// Package memstore is an in-memory implementation of store.Store. It backs
// handler and service tests and the server's -memory mode; it is not
// durable.
package memstore

import (
	"context"
	"math"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/kinship-crm/kinship/pkg/common"
	"github.com/kinship-crm/kinship/pkg/store"
)

type memoryState struct {
	nextID            int64
	persons           map[int64]common.Person
	embeddings        map[int64][]float32
	tags              map[int64]common.Tag
	groups            map[int64]common.Group
	relationshipTypes map[int64]common.RelationshipType
	relationships     map[int64]common.Relationship
	anecdotes         map[int64]common.Anecdote
	photos            map[int64]common.Photo
	employments       map[int64]common.Employment
}

func newState() *memoryState {
	return &memoryState{
		persons:           map[int64]common.Person{},
		embeddings:        map[int64][]float32{},
		tags:              map[int64]common.Tag{},
		groups:            map[int64]common.Group{},
		relationshipTypes: map[int64]common.RelationshipType{},
		relationships:     map[int64]common.Relationship{},
		anecdotes:         map[int64]common.Anecdote{},
		photos:            map[int64]common.Photo{},
		employments:       map[int64]common.Employment{},
	}
}

func (s *memoryState) clone() *memoryState {
	c := &memoryState{
		nextID:            s.nextID,
		persons:           cloneMap(s.persons),
		embeddings:        cloneMap(s.embeddings),
		tags:              cloneMap(s.tags),
		groups:            cloneMap(s.groups),
		relationshipTypes: cloneMap(s.relationshipTypes),
		relationships:     cloneMap(s.relationships),
		anecdotes:         cloneMap(s.anecdotes),
		photos:            cloneMap(s.photos),
		employments:       cloneMap(s.employments),
	}
	return c
}

func cloneMap[V any](m map[int64]V) map[int64]V {
	out := make(map[int64]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Store keeps every record in maps guarded by mu. Transactions operate on
// a copy of the state that replaces the live state on commit; txMu is held
// for the whole transaction and by every live write, so no write can land
// between the copy and the commit. Reads do not wait for transactions.
type Store struct {
	mu    *sync.Mutex
	txMu  *sync.Mutex
	state *memoryState
	now   func() time.Time
}

// New returns an empty store.
func New() *Store {
	return &Store{
		mu:    &sync.Mutex{},
		txMu:  &sync.Mutex{},
		state: newState(),
		now:   time.Now,
	}
}

// lockWrite takes the locks of a mutating call and returns their release.
func (s *Store) lockWrite() func() {
	s.txMu.Lock()
	s.mu.Lock()
	return func() {
		s.mu.Unlock()
		s.txMu.Unlock()
	}
}

func (s *Store) id() int64 {
	s.state.nextID++
	return s.state.nextID
}

func (s *Store) WithTx(ctx context.Context, fn func(tx store.Store) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	snapshot := s.state.clone()
	s.mu.Unlock()

	tx := &Store{
		mu:    &sync.Mutex{},
		txMu:  &sync.Mutex{},
		state: snapshot,
		now:   s.now,
	}
	if err := fn(tx); err != nil {
		return err
	}

	s.mu.Lock()
	s.state = snapshot
	s.mu.Unlock()
	return nil
}

func (s *Store) Stats(ctx context.Context) (common.Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	recent := sortedValues(s.state.persons)
	slices.SortFunc(recent, func(a, b common.Person) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if len(recent) > 5 {
		recent = recent[:5]
	}

	return common.Stats{
		Persons:       len(s.state.persons),
		Relationships: len(s.state.relationships),
		Anecdotes:     len(s.state.anecdotes),
		Photos:        len(s.state.photos),
		Tags:          len(s.state.tags),
		Groups:        len(s.state.groups),
		Employments:   len(s.state.employments),
		RecentPersons: recent,
	}, nil
}

func sortedValues[V any](m map[int64]V) []V {
	keys := make([]int64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	out := make([]V, 0, len(keys))
	for _, k := range keys {
		out = append(out, m[k])
	}
	return out
}

func paginate[V any](items []V, params store.ListParams) ([]V, int) {
	total := len(items)
	if params.Offset > 0 {
		if params.Offset >= total {
			return []V{}, total
		}
		items = items[params.Offset:]
	}
	if params.Limit > 0 && len(items) > params.Limit {
		items = items[:params.Limit]
	}
	return items, total
}

func matches(search string, fields ...string) bool {
	if search == "" {
		return true
	}
	needle := strings.ToLower(search)
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), needle) {
			return true
		}
	}
	return false
}

func cosineDistance(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range min(len(a), len(b)) {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}
