package pgx

import (
	"context"

	"github.com/kinship-crm/kinship/pkg/common"
	"github.com/kinship-crm/kinship/pkg/store"

	"github.com/pgvector/pgvector-go"
)

var personSelect = `
SELECT p.id, p.first_name, p.last_name, p.nickname, p.birthday, p.notes,
       p.emails, p.phones, p.addresses, p.is_owner, p.created_at, p.updated_at,
       ` + linkSelect("person_tags", "person_id", "tag_id", "p.id") + `,
       ` + linkSelect("person_groups", "person_id", "group_id", "p.id") + `
FROM persons p`

func scanPerson(row scanner) (common.Person, error) {
	var p common.Person
	err := row.Scan(
		&p.ID,
		&p.FirstName,
		&p.LastName,
		&p.Nickname,
		&p.Birthday,
		&p.Notes,
		&p.Emails,
		&p.Phones,
		&p.Addresses,
		&p.IsOwner,
		&p.CreatedAt,
		&p.UpdatedAt,
		&p.TagIDs,
		&p.GroupIDs,
	)
	p.Emails = contacts(p.Emails)
	p.Phones = contacts(p.Phones)
	p.Addresses = contacts(p.Addresses)
	return p, err
}

func personFilter(params store.ListParams) *filter {
	f := &filter{}
	f.search(params.Search, "p.first_name", "p.last_name", "p.nickname", "p.notes")
	if params.TagID != 0 {
		f.add("EXISTS (SELECT 1 FROM person_tags t WHERE t.person_id = p.id AND t.tag_id = ?)", params.TagID)
	}
	if params.GroupID != 0 {
		f.add("EXISTS (SELECT 1 FROM person_groups g WHERE g.person_id = p.id AND g.group_id = ?)", params.GroupID)
	}
	return f
}

func (s *Store) ListPersons(ctx context.Context, params store.ListParams) ([]common.Person, int, error) {
	f := personFilter(params)
	total, err := s.count(ctx, "FROM persons p", f)
	if err != nil {
		return nil, 0, err
	}

	page, args := f.page(params)
	rows, err := s.conn.Query(ctx, personSelect+f.where()+" ORDER BY p.last_name, p.first_name, p.id"+page, args...)
	if err != nil {
		return nil, 0, mapErr(err)
	}
	persons, err := collect(rows, scanPerson)
	return persons, total, err
}

func (s *Store) GetPerson(ctx context.Context, id int64) (common.Person, error) {
	p, err := scanPerson(s.conn.QueryRow(ctx, personSelect+" WHERE p.id = $1", id))
	return p, mapErr(err)
}

func (s *Store) GetOwner(ctx context.Context) (common.Person, error) {
	p, err := scanPerson(s.conn.QueryRow(ctx, personSelect+" WHERE p.is_owner"))
	return p, mapErr(err)
}

func (s *Store) CreatePerson(ctx context.Context, p common.Person) (common.Person, error) {
	err := s.atomic(ctx, func(q pgxIConn) error {
		err := q.QueryRow(ctx, `
			INSERT INTO persons (first_name, last_name, nickname, birthday, notes, emails, phones, addresses, is_owner)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			RETURNING id, created_at, updated_at`,
			p.FirstName, p.LastName, p.Nickname, p.Birthday, p.Notes,
			contacts(p.Emails), contacts(p.Phones), contacts(p.Addresses), p.IsOwner,
		).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
		if err != nil {
			return mapErr(err)
		}
		return s.writePersonLinks(ctx, q, p)
	})
	if err != nil {
		return common.Person{}, err
	}
	return s.GetPerson(ctx, p.ID)
}

func (s *Store) UpdatePerson(ctx context.Context, p common.Person) (common.Person, error) {
	err := s.atomic(ctx, func(q pgxIConn) error {
		tag, err := q.Exec(ctx, `
			UPDATE persons
			SET first_name = $2, last_name = $3, nickname = $4, birthday = $5, notes = $6,
			    emails = $7, phones = $8, addresses = $9, is_owner = $10, updated_at = now()
			WHERE id = $1`,
			p.ID, p.FirstName, p.LastName, p.Nickname, p.Birthday, p.Notes,
			contacts(p.Emails), contacts(p.Phones), contacts(p.Addresses), p.IsOwner,
		)
		if err := mustAffect(tag, err); err != nil {
			return err
		}
		return s.writePersonLinks(ctx, q, p)
	})
	if err != nil {
		return common.Person{}, err
	}
	return s.GetPerson(ctx, p.ID)
}

func (s *Store) writePersonLinks(ctx context.Context, q pgxIConn, p common.Person) error {
	if err := replaceLinks(ctx, q, "person_tags", "person_id", p.ID, "tag_id", p.TagIDs); err != nil {
		return err
	}
	return replaceLinks(ctx, q, "person_groups", "person_id", p.ID, "group_id", p.GroupIDs)
}

// DeletePerson relies on ON DELETE CASCADE for relationships, employments
// and join rows.
func (s *Store) DeletePerson(ctx context.Context, id int64) error {
	return mustAffect(s.conn.Exec(ctx, "DELETE FROM persons WHERE id = $1", id))
}

func (s *Store) SetPersonEmbedding(ctx context.Context, id int64, embedding []float32) error {
	return mustAffect(s.conn.Exec(ctx,
		"UPDATE persons SET embedding = $2 WHERE id = $1",
		id, pgvector.NewVector(embedding),
	))
}

func (s *Store) SimilarPersons(ctx context.Context, embedding []float32, limit int) ([]common.Person, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.conn.Query(ctx,
		personSelect+" WHERE p.embedding IS NOT NULL ORDER BY p.embedding <=> $1, p.id LIMIT $2",
		pgvector.NewVector(embedding), limit,
	)
	if err != nil {
		return nil, mapErr(err)
	}
	return collect(rows, scanPerson)
}

func (s *Store) PersonsMissingEmbedding(ctx context.Context, limit int) ([]int64, error) {
	query := "SELECT id FROM persons WHERE embedding IS NULL ORDER BY id"
	args := []any{}
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}
	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, mapErr(err)
	}
	return collect(rows, func(row scanner) (int64, error) {
		var id int64
		err := row.Scan(&id)
		return id, err
	})
}
