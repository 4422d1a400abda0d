package memstore

import (
	"cmp"
	"context"
	"slices"
	"strings"

	"github.com/kinship-crm/kinship/pkg/common"
	"github.com/kinship-crm/kinship/pkg/store"
)

func (s *Store) ListTags(ctx context.Context, params store.ListParams) ([]common.Tag, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []common.Tag{}
	for _, t := range sortedValues(s.state.tags) {
		if matches(params.Search, t.Name, t.Description) {
			out = append(out, t)
		}
	}
	slices.SortStableFunc(out, func(a, b common.Tag) int { return cmp.Compare(a.Name, b.Name) })
	page, total := paginate(out, params)
	return page, total, nil
}

func (s *Store) GetTag(ctx context.Context, id int64) (common.Tag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.state.tags[id]
	if !ok {
		return common.Tag{}, store.ErrNotFound
	}
	return t, nil
}

func (s *Store) GetTagByName(ctx context.Context, name string) (common.Tag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range sortedValues(s.state.tags) {
		if strings.EqualFold(t.Name, name) {
			return t, nil
		}
	}
	return common.Tag{}, store.ErrNotFound
}

func (s *Store) CreateTag(ctx context.Context, t common.Tag) (common.Tag, error) {
	defer s.lockWrite()()

	for _, existing := range s.state.tags {
		if strings.EqualFold(existing.Name, t.Name) {
			return common.Tag{}, store.ErrConflict
		}
	}
	t.ID = s.id()
	s.state.tags[t.ID] = t
	return t, nil
}

func (s *Store) UpdateTag(ctx context.Context, t common.Tag) (common.Tag, error) {
	defer s.lockWrite()()

	if _, ok := s.state.tags[t.ID]; !ok {
		return common.Tag{}, store.ErrNotFound
	}
	s.state.tags[t.ID] = t
	return t, nil
}

func (s *Store) DeleteTag(ctx context.Context, id int64) error {
	defer s.lockWrite()()

	if _, ok := s.state.tags[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.state.tags, id)
	for pid, p := range s.state.persons {
		p.TagIDs = slices.DeleteFunc(slices.Clone(p.TagIDs), func(v int64) bool { return v == id })
		s.state.persons[pid] = p
	}
	for aid, a := range s.state.anecdotes {
		a.TagIDs = slices.DeleteFunc(slices.Clone(a.TagIDs), func(v int64) bool { return v == id })
		s.state.anecdotes[aid] = a
	}
	return nil
}

func (s *Store) ListGroups(ctx context.Context, params store.ListParams) ([]common.Group, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []common.Group{}
	for _, g := range sortedValues(s.state.groups) {
		if matches(params.Search, g.Name, g.Description) {
			out = append(out, g)
		}
	}
	slices.SortStableFunc(out, func(a, b common.Group) int { return cmp.Compare(a.Name, b.Name) })
	page, total := paginate(out, params)
	return page, total, nil
}

func (s *Store) GetGroup(ctx context.Context, id int64) (common.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.state.groups[id]
	if !ok {
		return common.Group{}, store.ErrNotFound
	}
	return g, nil
}

func (s *Store) CreateGroup(ctx context.Context, g common.Group) (common.Group, error) {
	defer s.lockWrite()()

	if g.ParentID != nil {
		if _, ok := s.state.groups[*g.ParentID]; !ok {
			return common.Group{}, store.ErrNotFound
		}
	}
	g.ID = s.id()
	s.state.groups[g.ID] = g
	return g, nil
}

func (s *Store) UpdateGroup(ctx context.Context, g common.Group) (common.Group, error) {
	defer s.lockWrite()()

	if _, ok := s.state.groups[g.ID]; !ok {
		return common.Group{}, store.ErrNotFound
	}
	s.state.groups[g.ID] = g
	return g, nil
}

// DeleteGroup detaches children (ON DELETE SET NULL) and memberships.
func (s *Store) DeleteGroup(ctx context.Context, id int64) error {
	defer s.lockWrite()()

	if _, ok := s.state.groups[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.state.groups, id)
	for gid, g := range s.state.groups {
		if g.ParentID != nil && *g.ParentID == id {
			g.ParentID = nil
			s.state.groups[gid] = g
		}
	}
	for pid, p := range s.state.persons {
		p.GroupIDs = slices.DeleteFunc(slices.Clone(p.GroupIDs), func(v int64) bool { return v == id })
		s.state.persons[pid] = p
	}
	return nil
}

func (s *Store) ListAnecdotes(ctx context.Context, params store.ListParams) ([]common.Anecdote, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []common.Anecdote{}
	for _, a := range sortedValues(s.state.anecdotes) {
		if !matches(params.Search, a.Title, a.Content, a.Location) {
			continue
		}
		if params.PersonID != 0 && !slices.Contains(a.PersonIDs, params.PersonID) {
			continue
		}
		if params.TagID != 0 && !slices.Contains(a.TagIDs, params.TagID) {
			continue
		}
		out = append(out, a)
	}
	slices.SortStableFunc(out, func(a, b common.Anecdote) int {
		if common.DateBefore(b.Date, a.Date) {
			return -1
		}
		if common.DateBefore(a.Date, b.Date) {
			return 1
		}
		return cmp.Compare(b.ID, a.ID)
	})
	page, total := paginate(out, params)
	return page, total, nil
}

func (s *Store) GetAnecdote(ctx context.Context, id int64) (common.Anecdote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.state.anecdotes[id]
	if !ok {
		return common.Anecdote{}, store.ErrNotFound
	}
	return a, nil
}

func (s *Store) CreateAnecdote(ctx context.Context, a common.Anecdote) (common.Anecdote, error) {
	defer s.lockWrite()()

	a.ID = s.id()
	a.PersonIDs = store.DedupeIDs(a.PersonIDs)
	a.TagIDs = store.DedupeIDs(a.TagIDs)
	a.CreatedAt = s.now()
	s.state.anecdotes[a.ID] = a
	return a, nil
}

func (s *Store) UpdateAnecdote(ctx context.Context, a common.Anecdote) (common.Anecdote, error) {
	defer s.lockWrite()()

	existing, ok := s.state.anecdotes[a.ID]
	if !ok {
		return common.Anecdote{}, store.ErrNotFound
	}
	a.PersonIDs = store.DedupeIDs(a.PersonIDs)
	a.TagIDs = store.DedupeIDs(a.TagIDs)
	a.CreatedAt = existing.CreatedAt
	s.state.anecdotes[a.ID] = a
	return a, nil
}

func (s *Store) DeleteAnecdote(ctx context.Context, id int64) error {
	defer s.lockWrite()()

	if _, ok := s.state.anecdotes[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.state.anecdotes, id)
	for pid, p := range s.state.photos {
		if p.AnecdoteID != nil && *p.AnecdoteID == id {
			p.AnecdoteID = nil
			s.state.photos[pid] = p
		}
	}
	return nil
}

func (s *Store) ListPhotos(ctx context.Context, params store.ListParams) ([]common.Photo, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []common.Photo{}
	for _, p := range sortedValues(s.state.photos) {
		if !matches(params.Search, p.Caption, p.Location, p.AIDescription) {
			continue
		}
		if params.PersonID != 0 && !slices.Contains(p.PersonIDs, params.PersonID) {
			continue
		}
		if params.AnecdoteID != 0 && (p.AnecdoteID == nil || *p.AnecdoteID != params.AnecdoteID) {
			continue
		}
		out = append(out, p)
	}
	page, total := paginate(out, params)
	return page, total, nil
}

func (s *Store) GetPhoto(ctx context.Context, id int64) (common.Photo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.state.photos[id]
	if !ok {
		return common.Photo{}, store.ErrNotFound
	}
	return p, nil
}

func (s *Store) CreatePhoto(ctx context.Context, p common.Photo) (common.Photo, error) {
	defer s.lockWrite()()

	p.ID = s.id()
	p.PersonIDs = store.DedupeIDs(p.PersonIDs)
	p.CreatedAt = s.now()
	s.state.photos[p.ID] = p
	return p, nil
}

func (s *Store) UpdatePhoto(ctx context.Context, p common.Photo) (common.Photo, error) {
	defer s.lockWrite()()

	existing, ok := s.state.photos[p.ID]
	if !ok {
		return common.Photo{}, store.ErrNotFound
	}
	p.PersonIDs = store.DedupeIDs(p.PersonIDs)
	p.CreatedAt = existing.CreatedAt
	s.state.photos[p.ID] = p
	return p, nil
}

func (s *Store) DeletePhoto(ctx context.Context, id int64) error {
	defer s.lockWrite()()

	if _, ok := s.state.photos[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.state.photos, id)
	return nil
}

func (s *Store) ListEmployments(ctx context.Context, params store.ListParams) ([]common.Employment, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []common.Employment{}
	for _, e := range sortedValues(s.state.employments) {
		if params.PersonID != 0 && e.PersonID != params.PersonID {
			continue
		}
		if !matches(params.Search, e.Company, e.Title, e.Department) {
			continue
		}
		out = append(out, e)
	}
	page, total := paginate(out, params)
	return page, total, nil
}

func (s *Store) GetEmployment(ctx context.Context, id int64) (common.Employment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.state.employments[id]
	if !ok {
		return common.Employment{}, store.ErrNotFound
	}
	return e, nil
}

func (s *Store) CreateEmployment(ctx context.Context, e common.Employment) (common.Employment, error) {
	defer s.lockWrite()()

	if _, ok := s.state.persons[e.PersonID]; !ok {
		return common.Employment{}, store.ErrNotFound
	}
	e.ID = s.id()
	s.state.employments[e.ID] = e
	return e, nil
}

func (s *Store) UpdateEmployment(ctx context.Context, e common.Employment) (common.Employment, error) {
	defer s.lockWrite()()

	if _, ok := s.state.employments[e.ID]; !ok {
		return common.Employment{}, store.ErrNotFound
	}
	s.state.employments[e.ID] = e
	return e, nil
}

func (s *Store) DeleteEmployment(ctx context.Context, id int64) error {
	defer s.lockWrite()()

	if _, ok := s.state.employments[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.state.employments, id)
	return nil
}
