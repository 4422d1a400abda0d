package pgx

import (
	"context"

	"github.com/kinship-crm/kinship/pkg/common"
	"github.com/kinship-crm/kinship/pkg/store"
)

const typeSelect = `
SELECT t.id, t.name, t.inverse_name, t.category, t.is_symmetric, t.auto_create_inverse
FROM relationship_types t`

func scanType(row scanner) (common.RelationshipType, error) {
	var t common.RelationshipType
	err := row.Scan(&t.ID, &t.Name, &t.InverseName, &t.Category, &t.IsSymmetric, &t.AutoCreateInverse)
	return t, err
}

func (s *Store) ListRelationshipTypes(ctx context.Context, params store.ListParams) ([]common.RelationshipType, int, error) {
	f := &filter{}
	f.search(params.Search, "t.name", "t.inverse_name")
	if params.Category != "" {
		f.add("t.category = ?", params.Category)
	}
	total, err := s.count(ctx, "FROM relationship_types t", f)
	if err != nil {
		return nil, 0, err
	}

	page, args := f.page(params)
	rows, err := s.conn.Query(ctx, typeSelect+f.where()+" ORDER BY t.name, t.id"+page, args...)
	if err != nil {
		return nil, 0, mapErr(err)
	}
	types, err := collect(rows, scanType)
	return types, total, err
}

func (s *Store) GetRelationshipType(ctx context.Context, id int64) (common.RelationshipType, error) {
	t, err := scanType(s.conn.QueryRow(ctx, typeSelect+" WHERE t.id = $1", id))
	return t, mapErr(err)
}

func (s *Store) FindRelationshipType(ctx context.Context, name, inverseName string) (common.RelationshipType, error) {
	t, err := scanType(s.conn.QueryRow(ctx,
		typeSelect+" WHERE t.name = $1 AND t.inverse_name = $2", name, inverseName))
	return t, mapErr(err)
}

func (s *Store) CreateRelationshipType(ctx context.Context, t common.RelationshipType) (common.RelationshipType, error) {
	err := s.conn.QueryRow(ctx, `
		INSERT INTO relationship_types (name, inverse_name, category, is_symmetric, auto_create_inverse)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		t.Name, t.InverseName, t.Category, t.IsSymmetric, t.AutoCreateInverse,
	).Scan(&t.ID)
	return t, mapErr(err)
}

func (s *Store) UpdateRelationshipType(ctx context.Context, t common.RelationshipType) (common.RelationshipType, error) {
	err := mustAffect(s.conn.Exec(ctx, `
		UPDATE relationship_types
		SET name = $2, inverse_name = $3, category = $4, is_symmetric = $5, auto_create_inverse = $6
		WHERE id = $1`,
		t.ID, t.Name, t.InverseName, t.Category, t.IsSymmetric, t.AutoCreateInverse,
	))
	return t, err
}

// DeleteRelationshipType fails with store.ErrConflict while relationships
// still use the type.
func (s *Store) DeleteRelationshipType(ctx context.Context, id int64) error {
	return mustAffect(s.conn.Exec(ctx, "DELETE FROM relationship_types WHERE id = $1", id))
}

const relationshipSelect = `
SELECT r.id, r.person_a_id, r.person_b_id, r.relationship_type_id, r.strength,
       r.start_date, r.notes, r.auto_created, r.inverse_id, r.created_at
FROM relationships r`

func scanRelationship(row scanner) (common.Relationship, error) {
	var r common.Relationship
	var strength *int16
	err := row.Scan(
		&r.ID,
		&r.PersonAID,
		&r.PersonBID,
		&r.RelationshipTypeID,
		&strength,
		&r.StartDate,
		&r.Notes,
		&r.AutoCreated,
		&r.InverseID,
		&r.CreatedAt,
	)
	if strength != nil {
		v := int(*strength)
		r.Strength = &v
	}
	return r, err
}

func (s *Store) ListRelationships(ctx context.Context, params store.ListParams) ([]common.Relationship, int, error) {
	f := &filter{}
	if params.PersonID != 0 {
		f.add("(r.person_a_id = ? OR r.person_b_id = ?)", params.PersonID)
	}
	if params.TypeID != 0 {
		f.add("r.relationship_type_id = ?", params.TypeID)
	}
	f.search(params.Search, "r.notes")
	total, err := s.count(ctx, "FROM relationships r", f)
	if err != nil {
		return nil, 0, err
	}

	page, args := f.page(params)
	rows, err := s.conn.Query(ctx, relationshipSelect+f.where()+" ORDER BY r.id"+page, args...)
	if err != nil {
		return nil, 0, mapErr(err)
	}
	rels, err := collect(rows, scanRelationship)
	return rels, total, err
}

func (s *Store) GetRelationship(ctx context.Context, id int64) (common.Relationship, error) {
	r, err := scanRelationship(s.conn.QueryRow(ctx, relationshipSelect+" WHERE r.id = $1", id))
	return r, mapErr(err)
}

func (s *Store) FindRelationships(ctx context.Context, personA, personB, typeID int64) ([]common.Relationship, error) {
	rows, err := s.conn.Query(ctx, relationshipSelect+`
		WHERE r.person_a_id = $1 AND r.person_b_id = $2
		  AND ($3::bigint = 0 OR r.relationship_type_id = $3)
		ORDER BY r.id`,
		personA, personB, typeID,
	)
	if err != nil {
		return nil, mapErr(err)
	}
	return collect(rows, scanRelationship)
}

func (s *Store) CreateRelationship(ctx context.Context, r common.Relationship) (common.Relationship, error) {
	err := s.conn.QueryRow(ctx, `
		INSERT INTO relationships
		    (person_a_id, person_b_id, relationship_type_id, strength, start_date, notes, auto_created, inverse_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at`,
		r.PersonAID, r.PersonBID, r.RelationshipTypeID, r.Strength, r.StartDate, r.Notes, r.AutoCreated, r.InverseID,
	).Scan(&r.ID, &r.CreatedAt)
	return r, mapErr(err)
}

func (s *Store) UpdateRelationship(ctx context.Context, r common.Relationship) (common.Relationship, error) {
	err := s.conn.QueryRow(ctx, `
		UPDATE relationships
		SET person_a_id = $2, person_b_id = $3, relationship_type_id = $4, strength = $5,
		    start_date = $6, notes = $7, auto_created = $8, inverse_id = $9
		WHERE id = $1
		RETURNING created_at`,
		r.ID, r.PersonAID, r.PersonBID, r.RelationshipTypeID, r.Strength, r.StartDate, r.Notes, r.AutoCreated, r.InverseID,
	).Scan(&r.CreatedAt)
	return r, mapErr(err)
}

// DeleteRelationship clears the partner's inverse_id through ON DELETE SET
// NULL.
func (s *Store) DeleteRelationship(ctx context.Context, id int64) error {
	return mustAffect(s.conn.Exec(ctx, "DELETE FROM relationships WHERE id = $1", id))
}

func (s *Store) ListUnpairedAutoCreated(ctx context.Context) ([]common.Relationship, error) {
	rows, err := s.conn.Query(ctx, relationshipSelect+" WHERE r.auto_created AND r.inverse_id IS NULL ORDER BY r.id")
	if err != nil {
		return nil, mapErr(err)
	}
	return collect(rows, scanRelationship)
}
