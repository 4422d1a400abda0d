package pgx

import (
	"context"

	"github.com/kinship-crm/kinship/pkg/common"
	"github.com/kinship-crm/kinship/pkg/store"
)

var anecdoteSelect = `
SELECT a.id, a.title, a.content, a.date, a.location, a.anecdote_type, a.created_at,
       ` + linkSelect("anecdote_persons", "anecdote_id", "person_id", "a.id") + `,
       ` + linkSelect("anecdote_tags", "anecdote_id", "tag_id", "a.id") + `
FROM anecdotes a`

func scanAnecdote(row scanner) (common.Anecdote, error) {
	var a common.Anecdote
	err := row.Scan(
		&a.ID,
		&a.Title,
		&a.Content,
		&a.Date,
		&a.Location,
		&a.AnecdoteType,
		&a.CreatedAt,
		&a.PersonIDs,
		&a.TagIDs,
	)
	return a, err
}

func (s *Store) ListAnecdotes(ctx context.Context, params store.ListParams) ([]common.Anecdote, int, error) {
	f := &filter{}
	f.search(params.Search, "a.title", "a.content", "a.location")
	if params.PersonID != 0 {
		f.add("EXISTS (SELECT 1 FROM anecdote_persons l WHERE l.anecdote_id = a.id AND l.person_id = ?)", params.PersonID)
	}
	if params.TagID != 0 {
		f.add("EXISTS (SELECT 1 FROM anecdote_tags l WHERE l.anecdote_id = a.id AND l.tag_id = ?)", params.TagID)
	}
	total, err := s.count(ctx, "FROM anecdotes a", f)
	if err != nil {
		return nil, 0, err
	}

	page, args := f.page(params)
	rows, err := s.conn.Query(ctx, anecdoteSelect+f.where()+" ORDER BY a.date DESC NULLS LAST, a.id DESC"+page, args...)
	if err != nil {
		return nil, 0, mapErr(err)
	}
	anecdotes, err := collect(rows, scanAnecdote)
	return anecdotes, total, err
}

func (s *Store) GetAnecdote(ctx context.Context, id int64) (common.Anecdote, error) {
	a, err := scanAnecdote(s.conn.QueryRow(ctx, anecdoteSelect+" WHERE a.id = $1", id))
	return a, mapErr(err)
}

func (s *Store) CreateAnecdote(ctx context.Context, a common.Anecdote) (common.Anecdote, error) {
	err := s.atomic(ctx, func(q pgxIConn) error {
		err := q.QueryRow(ctx, `
			INSERT INTO anecdotes (title, content, date, location, anecdote_type)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id`,
			a.Title, a.Content, a.Date, a.Location, a.AnecdoteType,
		).Scan(&a.ID)
		if err != nil {
			return mapErr(err)
		}
		return writeAnecdoteLinks(ctx, q, a)
	})
	if err != nil {
		return common.Anecdote{}, err
	}
	return s.GetAnecdote(ctx, a.ID)
}

func (s *Store) UpdateAnecdote(ctx context.Context, a common.Anecdote) (common.Anecdote, error) {
	err := s.atomic(ctx, func(q pgxIConn) error {
		err := mustAffect(q.Exec(ctx, `
			UPDATE anecdotes
			SET title = $2, content = $3, date = $4, location = $5, anecdote_type = $6
			WHERE id = $1`,
			a.ID, a.Title, a.Content, a.Date, a.Location, a.AnecdoteType,
		))
		if err != nil {
			return err
		}
		return writeAnecdoteLinks(ctx, q, a)
	})
	if err != nil {
		return common.Anecdote{}, err
	}
	return s.GetAnecdote(ctx, a.ID)
}

func writeAnecdoteLinks(ctx context.Context, q pgxIConn, a common.Anecdote) error {
	if err := replaceLinks(ctx, q, "anecdote_persons", "anecdote_id", a.ID, "person_id", a.PersonIDs); err != nil {
		return err
	}
	return replaceLinks(ctx, q, "anecdote_tags", "anecdote_id", a.ID, "tag_id", a.TagIDs)
}

func (s *Store) DeleteAnecdote(ctx context.Context, id int64) error {
	return mustAffect(s.conn.Exec(ctx, "DELETE FROM anecdotes WHERE id = $1", id))
}

var photoSelect = `
SELECT ph.id, ph.file_key, ph.caption, ph.date_taken, ph.location, ph.latitude, ph.longitude,
       ph.ai_description, ph.anecdote_id, ph.created_at,
       ` + linkSelect("photo_persons", "photo_id", "person_id", "ph.id") + `
FROM photos ph`

func scanPhoto(row scanner) (common.Photo, error) {
	var p common.Photo
	err := row.Scan(
		&p.ID,
		&p.FileKey,
		&p.Caption,
		&p.DateTaken,
		&p.Location,
		&p.Latitude,
		&p.Longitude,
		&p.AIDescription,
		&p.AnecdoteID,
		&p.CreatedAt,
		&p.PersonIDs,
	)
	return p, err
}

func (s *Store) ListPhotos(ctx context.Context, params store.ListParams) ([]common.Photo, int, error) {
	f := &filter{}
	f.search(params.Search, "ph.caption", "ph.location", "ph.ai_description")
	if params.PersonID != 0 {
		f.add("EXISTS (SELECT 1 FROM photo_persons l WHERE l.photo_id = ph.id AND l.person_id = ?)", params.PersonID)
	}
	if params.AnecdoteID != 0 {
		f.add("ph.anecdote_id = ?", params.AnecdoteID)
	}
	total, err := s.count(ctx, "FROM photos ph", f)
	if err != nil {
		return nil, 0, err
	}

	page, args := f.page(params)
	rows, err := s.conn.Query(ctx, photoSelect+f.where()+" ORDER BY ph.date_taken DESC NULLS LAST, ph.id DESC"+page, args...)
	if err != nil {
		return nil, 0, mapErr(err)
	}
	photos, err := collect(rows, scanPhoto)
	return photos, total, err
}

func (s *Store) GetPhoto(ctx context.Context, id int64) (common.Photo, error) {
	p, err := scanPhoto(s.conn.QueryRow(ctx, photoSelect+" WHERE ph.id = $1", id))
	return p, mapErr(err)
}

func (s *Store) CreatePhoto(ctx context.Context, p common.Photo) (common.Photo, error) {
	err := s.atomic(ctx, func(q pgxIConn) error {
		err := q.QueryRow(ctx, `
			INSERT INTO photos (file_key, caption, date_taken, location, latitude, longitude, ai_description, anecdote_id)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING id`,
			p.FileKey, p.Caption, p.DateTaken, p.Location, p.Latitude, p.Longitude, p.AIDescription, p.AnecdoteID,
		).Scan(&p.ID)
		if err != nil {
			return mapErr(err)
		}
		return replaceLinks(ctx, q, "photo_persons", "photo_id", p.ID, "person_id", p.PersonIDs)
	})
	if err != nil {
		return common.Photo{}, err
	}
	return s.GetPhoto(ctx, p.ID)
}

func (s *Store) UpdatePhoto(ctx context.Context, p common.Photo) (common.Photo, error) {
	err := s.atomic(ctx, func(q pgxIConn) error {
		err := mustAffect(q.Exec(ctx, `
			UPDATE photos
			SET file_key = $2, caption = $3, date_taken = $4, location = $5, latitude = $6,
			    longitude = $7, ai_description = $8, anecdote_id = $9
			WHERE id = $1`,
			p.ID, p.FileKey, p.Caption, p.DateTaken, p.Location, p.Latitude, p.Longitude, p.AIDescription, p.AnecdoteID,
		))
		if err != nil {
			return err
		}
		return replaceLinks(ctx, q, "photo_persons", "photo_id", p.ID, "person_id", p.PersonIDs)
	})
	if err != nil {
		return common.Photo{}, err
	}
	return s.GetPhoto(ctx, p.ID)
}

func (s *Store) DeletePhoto(ctx context.Context, id int64) error {
	return mustAffect(s.conn.Exec(ctx, "DELETE FROM photos WHERE id = $1", id))
}

const employmentSelect = `
SELECT e.id, e.person_id, e.company, e.title, e.department, e.start_date, e.end_date, e.is_current
FROM employments e`

func scanEmployment(row scanner) (common.Employment, error) {
	var e common.Employment
	err := row.Scan(&e.ID, &e.PersonID, &e.Company, &e.Title, &e.Department, &e.StartDate, &e.EndDate, &e.IsCurrent)
	return e, err
}

func (s *Store) ListEmployments(ctx context.Context, params store.ListParams) ([]common.Employment, int, error) {
	f := &filter{}
	if params.PersonID != 0 {
		f.add("e.person_id = ?", params.PersonID)
	}
	f.search(params.Search, "e.company", "e.title", "e.department")
	total, err := s.count(ctx, "FROM employments e", f)
	if err != nil {
		return nil, 0, err
	}

	page, args := f.page(params)
	rows, err := s.conn.Query(ctx, employmentSelect+f.where()+" ORDER BY e.id"+page, args...)
	if err != nil {
		return nil, 0, mapErr(err)
	}
	employments, err := collect(rows, scanEmployment)
	return employments, total, err
}

func (s *Store) GetEmployment(ctx context.Context, id int64) (common.Employment, error) {
	e, err := scanEmployment(s.conn.QueryRow(ctx, employmentSelect+" WHERE e.id = $1", id))
	return e, mapErr(err)
}

func (s *Store) CreateEmployment(ctx context.Context, e common.Employment) (common.Employment, error) {
	err := s.conn.QueryRow(ctx, `
		INSERT INTO employments (person_id, company, title, department, start_date, end_date, is_current)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		e.PersonID, e.Company, e.Title, e.Department, e.StartDate, e.EndDate, e.IsCurrent,
	).Scan(&e.ID)
	return e, mapErr(err)
}

func (s *Store) UpdateEmployment(ctx context.Context, e common.Employment) (common.Employment, error) {
	err := mustAffect(s.conn.Exec(ctx, `
		UPDATE employments
		SET person_id = $2, company = $3, title = $4, department = $5, start_date = $6, end_date = $7, is_current = $8
		WHERE id = $1`,
		e.ID, e.PersonID, e.Company, e.Title, e.Department, e.StartDate, e.EndDate, e.IsCurrent,
	))
	return e, err
}

func (s *Store) DeleteEmployment(ctx context.Context, id int64) error {
	return mustAffect(s.conn.Exec(ctx, "DELETE FROM employments WHERE id = $1", id))
}
