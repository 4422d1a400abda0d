package pgx

import (
	"context"

	"github.com/kinship-crm/kinship/pkg/common"
	"github.com/kinship-crm/kinship/pkg/store"
)

const tagSelect = "SELECT t.id, t.name, t.color, t.description FROM tags t"

func scanTag(row scanner) (common.Tag, error) {
	var t common.Tag
	err := row.Scan(&t.ID, &t.Name, &t.Color, &t.Description)
	return t, err
}

func (s *Store) ListTags(ctx context.Context, params store.ListParams) ([]common.Tag, int, error) {
	f := &filter{}
	f.search(params.Search, "t.name", "t.description")
	total, err := s.count(ctx, "FROM tags t", f)
	if err != nil {
		return nil, 0, err
	}

	page, args := f.page(params)
	rows, err := s.conn.Query(ctx, tagSelect+f.where()+" ORDER BY t.name, t.id"+page, args...)
	if err != nil {
		return nil, 0, mapErr(err)
	}
	tags, err := collect(rows, scanTag)
	return tags, total, err
}

func (s *Store) GetTag(ctx context.Context, id int64) (common.Tag, error) {
	t, err := scanTag(s.conn.QueryRow(ctx, tagSelect+" WHERE t.id = $1", id))
	return t, mapErr(err)
}

func (s *Store) GetTagByName(ctx context.Context, name string) (common.Tag, error) {
	t, err := scanTag(s.conn.QueryRow(ctx, tagSelect+" WHERE lower(t.name) = lower($1)", name))
	return t, mapErr(err)
}

func (s *Store) CreateTag(ctx context.Context, t common.Tag) (common.Tag, error) {
	err := s.conn.QueryRow(ctx,
		"INSERT INTO tags (name, color, description) VALUES ($1, $2, $3) RETURNING id",
		t.Name, t.Color, t.Description,
	).Scan(&t.ID)
	return t, mapErr(err)
}

func (s *Store) UpdateTag(ctx context.Context, t common.Tag) (common.Tag, error) {
	err := mustAffect(s.conn.Exec(ctx,
		"UPDATE tags SET name = $2, color = $3, description = $4 WHERE id = $1",
		t.ID, t.Name, t.Color, t.Description,
	))
	return t, err
}

func (s *Store) DeleteTag(ctx context.Context, id int64) error {
	return mustAffect(s.conn.Exec(ctx, "DELETE FROM tags WHERE id = $1", id))
}

const groupSelect = "SELECT g.id, g.name, g.color, g.description, g.parent_id FROM groups g"

func scanGroup(row scanner) (common.Group, error) {
	var g common.Group
	err := row.Scan(&g.ID, &g.Name, &g.Color, &g.Description, &g.ParentID)
	return g, err
}

func (s *Store) ListGroups(ctx context.Context, params store.ListParams) ([]common.Group, int, error) {
	f := &filter{}
	f.search(params.Search, "g.name", "g.description")
	total, err := s.count(ctx, "FROM groups g", f)
	if err != nil {
		return nil, 0, err
	}

	page, args := f.page(params)
	rows, err := s.conn.Query(ctx, groupSelect+f.where()+" ORDER BY g.name, g.id"+page, args...)
	if err != nil {
		return nil, 0, mapErr(err)
	}
	groups, err := collect(rows, scanGroup)
	return groups, total, err
}

func (s *Store) GetGroup(ctx context.Context, id int64) (common.Group, error) {
	g, err := scanGroup(s.conn.QueryRow(ctx, groupSelect+" WHERE g.id = $1", id))
	return g, mapErr(err)
}

func (s *Store) CreateGroup(ctx context.Context, g common.Group) (common.Group, error) {
	err := s.conn.QueryRow(ctx,
		"INSERT INTO groups (name, color, description, parent_id) VALUES ($1, $2, $3, $4) RETURNING id",
		g.Name, g.Color, g.Description, g.ParentID,
	).Scan(&g.ID)
	return g, mapErr(err)
}

func (s *Store) UpdateGroup(ctx context.Context, g common.Group) (common.Group, error) {
	err := mustAffect(s.conn.Exec(ctx,
		"UPDATE groups SET name = $2, color = $3, description = $4, parent_id = $5 WHERE id = $1",
		g.ID, g.Name, g.Color, g.Description, g.ParentID,
	))
	return g, err
}

// DeleteGroup detaches child groups through ON DELETE SET NULL.
func (s *Store) DeleteGroup(ctx context.Context, id int64) error {
	return mustAffect(s.conn.Exec(ctx, "DELETE FROM groups WHERE id = $1", id))
}
