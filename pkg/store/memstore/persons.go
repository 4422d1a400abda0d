package memstore

import (
	"cmp"
	"context"
	"slices"

	"github.com/kinship-crm/kinship/pkg/common"
	"github.com/kinship-crm/kinship/pkg/store"
)

func (s *Store) ListPersons(ctx context.Context, params store.ListParams) ([]common.Person, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []common.Person{}
	for _, p := range sortedValues(s.state.persons) {
		if !matches(params.Search, p.FirstName, p.LastName, p.Nickname, p.Notes) {
			continue
		}
		if params.TagID != 0 && !slices.Contains(p.TagIDs, params.TagID) {
			continue
		}
		if params.GroupID != 0 && !slices.Contains(p.GroupIDs, params.GroupID) {
			continue
		}
		out = append(out, p)
	}
	slices.SortStableFunc(out, func(a, b common.Person) int {
		if c := cmp.Compare(a.LastName, b.LastName); c != 0 {
			return c
		}
		return cmp.Compare(a.FirstName, b.FirstName)
	})
	page, total := paginate(out, params)
	return page, total, nil
}

func (s *Store) GetPerson(ctx context.Context, id int64) (common.Person, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.state.persons[id]
	if !ok {
		return common.Person{}, store.ErrNotFound
	}
	return p, nil
}

func (s *Store) GetOwner(ctx context.Context) (common.Person, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.state.persons {
		if p.IsOwner {
			return p, nil
		}
	}
	return common.Person{}, store.ErrNotFound
}

func (s *Store) ownerTaken(exceptID int64) bool {
	for _, p := range s.state.persons {
		if p.IsOwner && p.ID != exceptID {
			return true
		}
	}
	return false
}

func (s *Store) CreatePerson(ctx context.Context, p common.Person) (common.Person, error) {
	defer s.lockWrite()()

	if p.IsOwner && s.ownerTaken(0) {
		return common.Person{}, store.ErrConflict
	}
	p.ID = s.id()
	p.TagIDs = store.DedupeIDs(p.TagIDs)
	p.GroupIDs = store.DedupeIDs(p.GroupIDs)
	p.CreatedAt = s.now()
	p.UpdatedAt = p.CreatedAt
	s.state.persons[p.ID] = p
	return p, nil
}

func (s *Store) UpdatePerson(ctx context.Context, p common.Person) (common.Person, error) {
	defer s.lockWrite()()

	existing, ok := s.state.persons[p.ID]
	if !ok {
		return common.Person{}, store.ErrNotFound
	}
	if p.IsOwner && s.ownerTaken(p.ID) {
		return common.Person{}, store.ErrConflict
	}
	p.TagIDs = store.DedupeIDs(p.TagIDs)
	p.GroupIDs = store.DedupeIDs(p.GroupIDs)
	p.CreatedAt = existing.CreatedAt
	p.UpdatedAt = s.now()
	s.state.persons[p.ID] = p
	return p, nil
}

// DeletePerson mirrors the ON DELETE CASCADE rules of the SQL schema.
func (s *Store) DeletePerson(ctx context.Context, id int64) error {
	defer s.lockWrite()()

	if _, ok := s.state.persons[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.state.persons, id)
	delete(s.state.embeddings, id)

	for rid, r := range s.state.relationships {
		if r.PersonAID == id || r.PersonBID == id {
			s.deleteRelationshipLocked(rid)
		}
	}
	for eid, e := range s.state.employments {
		if e.PersonID == id {
			delete(s.state.employments, eid)
		}
	}
	for aid, a := range s.state.anecdotes {
		a.PersonIDs = slices.DeleteFunc(slices.Clone(a.PersonIDs), func(v int64) bool { return v == id })
		s.state.anecdotes[aid] = a
	}
	for pid, ph := range s.state.photos {
		ph.PersonIDs = slices.DeleteFunc(slices.Clone(ph.PersonIDs), func(v int64) bool { return v == id })
		s.state.photos[pid] = ph
	}
	return nil
}

func (s *Store) SetPersonEmbedding(ctx context.Context, id int64, embedding []float32) error {
	defer s.lockWrite()()

	if _, ok := s.state.persons[id]; !ok {
		return store.ErrNotFound
	}
	s.state.embeddings[id] = slices.Clone(embedding)
	return nil
}

func (s *Store) SimilarPersons(ctx context.Context, embedding []float32, limit int) ([]common.Person, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	type scored struct {
		person   common.Person
		distance float64
	}
	candidates := []scored{}
	for id, emb := range s.state.embeddings {
		p, ok := s.state.persons[id]
		if !ok {
			continue
		}
		candidates = append(candidates, scored{person: p, distance: cosineDistance(embedding, emb)})
	}
	slices.SortFunc(candidates, func(a, b scored) int {
		if c := cmp.Compare(a.distance, b.distance); c != 0 {
			return c
		}
		return cmp.Compare(a.person.ID, b.person.ID)
	})

	out := make([]common.Person, 0, limit)
	for _, c := range candidates {
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, c.person)
	}
	return out, nil
}

func (s *Store) PersonsMissingEmbedding(ctx context.Context, limit int) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := []int64{}
	for _, p := range sortedValues(s.state.persons) {
		if _, ok := s.state.embeddings[p.ID]; ok {
			continue
		}
		ids = append(ids, p.ID)
		if limit > 0 && len(ids) >= limit {
			break
		}
	}
	return ids, nil
}
