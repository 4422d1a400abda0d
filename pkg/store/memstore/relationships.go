package memstore

import (
	"cmp"
	"context"
	"slices"

	"github.com/kinship-crm/kinship/pkg/common"
	"github.com/kinship-crm/kinship/pkg/store"
)

func (s *Store) ListRelationshipTypes(ctx context.Context, params store.ListParams) ([]common.RelationshipType, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []common.RelationshipType{}
	for _, t := range sortedValues(s.state.relationshipTypes) {
		if !matches(params.Search, t.Name, t.InverseName) {
			continue
		}
		if params.Category != "" && t.Category != params.Category {
			continue
		}
		out = append(out, t)
	}
	slices.SortStableFunc(out, func(a, b common.RelationshipType) int {
		return cmp.Compare(a.Name, b.Name)
	})
	page, total := paginate(out, params)
	return page, total, nil
}

func (s *Store) GetRelationshipType(ctx context.Context, id int64) (common.RelationshipType, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.state.relationshipTypes[id]
	if !ok {
		return common.RelationshipType{}, store.ErrNotFound
	}
	return t, nil
}

func (s *Store) FindRelationshipType(ctx context.Context, name, inverseName string) (common.RelationshipType, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range sortedValues(s.state.relationshipTypes) {
		if t.Name == name && t.InverseName == inverseName {
			return t, nil
		}
	}
	return common.RelationshipType{}, store.ErrNotFound
}

func (s *Store) CreateRelationshipType(ctx context.Context, t common.RelationshipType) (common.RelationshipType, error) {
	defer s.lockWrite()()

	for _, existing := range s.state.relationshipTypes {
		if existing.Name == t.Name && existing.InverseName == t.InverseName {
			return common.RelationshipType{}, store.ErrConflict
		}
	}
	t.ID = s.id()
	s.state.relationshipTypes[t.ID] = t
	return t, nil
}

func (s *Store) UpdateRelationshipType(ctx context.Context, t common.RelationshipType) (common.RelationshipType, error) {
	defer s.lockWrite()()

	if _, ok := s.state.relationshipTypes[t.ID]; !ok {
		return common.RelationshipType{}, store.ErrNotFound
	}
	for id, existing := range s.state.relationshipTypes {
		if id != t.ID && existing.Name == t.Name && existing.InverseName == t.InverseName {
			return common.RelationshipType{}, store.ErrConflict
		}
	}
	s.state.relationshipTypes[t.ID] = t
	return t, nil
}

func (s *Store) DeleteRelationshipType(ctx context.Context, id int64) error {
	defer s.lockWrite()()

	if _, ok := s.state.relationshipTypes[id]; !ok {
		return store.ErrNotFound
	}
	for _, r := range s.state.relationships {
		if r.RelationshipTypeID == id {
			// RESTRICT in the SQL schema
			return store.ErrConflict
		}
	}
	delete(s.state.relationshipTypes, id)
	return nil
}

func (s *Store) ListRelationships(ctx context.Context, params store.ListParams) ([]common.Relationship, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []common.Relationship{}
	for _, r := range sortedValues(s.state.relationships) {
		if params.PersonID != 0 && r.PersonAID != params.PersonID && r.PersonBID != params.PersonID {
			continue
		}
		if params.TypeID != 0 && r.RelationshipTypeID != params.TypeID {
			continue
		}
		if params.Search != "" && !matches(params.Search, r.Notes) {
			continue
		}
		out = append(out, r)
	}
	page, total := paginate(out, params)
	return page, total, nil
}

func (s *Store) GetRelationship(ctx context.Context, id int64) (common.Relationship, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.state.relationships[id]
	if !ok {
		return common.Relationship{}, store.ErrNotFound
	}
	return r, nil
}

func (s *Store) FindRelationships(ctx context.Context, personA, personB, typeID int64) ([]common.Relationship, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []common.Relationship{}
	for _, r := range sortedValues(s.state.relationships) {
		if r.PersonAID == personA && r.PersonBID == personB && (typeID == 0 || r.RelationshipTypeID == typeID) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Store) CreateRelationship(ctx context.Context, r common.Relationship) (common.Relationship, error) {
	defer s.lockWrite()()

	if _, ok := s.state.persons[r.PersonAID]; !ok {
		return common.Relationship{}, store.ErrNotFound
	}
	if _, ok := s.state.persons[r.PersonBID]; !ok {
		return common.Relationship{}, store.ErrNotFound
	}
	if _, ok := s.state.relationshipTypes[r.RelationshipTypeID]; !ok {
		return common.Relationship{}, store.ErrNotFound
	}
	r.ID = s.id()
	r.CreatedAt = s.now()
	s.state.relationships[r.ID] = r
	return r, nil
}

func (s *Store) UpdateRelationship(ctx context.Context, r common.Relationship) (common.Relationship, error) {
	defer s.lockWrite()()

	existing, ok := s.state.relationships[r.ID]
	if !ok {
		return common.Relationship{}, store.ErrNotFound
	}
	r.CreatedAt = existing.CreatedAt
	s.state.relationships[r.ID] = r
	return r, nil
}

func (s *Store) DeleteRelationship(ctx context.Context, id int64) error {
	defer s.lockWrite()()

	if _, ok := s.state.relationships[id]; !ok {
		return store.ErrNotFound
	}
	s.deleteRelationshipLocked(id)
	return nil
}

// deleteRelationshipLocked applies ON DELETE SET NULL to the partner's
// inverse_id.
func (s *Store) deleteRelationshipLocked(id int64) {
	delete(s.state.relationships, id)
	for rid, r := range s.state.relationships {
		if r.InverseID != nil && *r.InverseID == id {
			r.InverseID = nil
			s.state.relationships[rid] = r
		}
	}
}

func (s *Store) ListUnpairedAutoCreated(ctx context.Context) ([]common.Relationship, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []common.Relationship{}
	for _, r := range sortedValues(s.state.relationships) {
		if r.AutoCreated && r.InverseID == nil {
			out = append(out, r)
		}
	}
	return out, nil
}
