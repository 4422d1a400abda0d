// Package pgx implements store.Store on PostgreSQL. Person embeddings use
// pgvector; the schema lives in the migrations directory.
package pgx

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/kinship-crm/kinship/pkg/common"
	"github.com/kinship-crm/kinship/pkg/store"

	pgxv5 "github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type pgxIConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, optionsAndArgs ...any) (pgxv5.Rows, error)
	QueryRow(ctx context.Context, sql string, optionsAndArgs ...any) pgxv5.Row
	Begin(ctx context.Context) (pgxv5.Tx, error)
}

// Store implements store.Store using a pgx pool or transaction.
type Store struct {
	conn pgxIConn
}

// New returns a Store running queries on conn, usually a *pgxpool.Pool.
func New(conn pgxIConn) *Store {
	return &Store{conn: conn}
}

// WithTx runs fn in a transaction. Nested calls use savepoints.
func (s *Store) WithTx(ctx context.Context, fn func(tx store.Store) error) error {
	return s.atomic(ctx, func(q pgxIConn) error {
		return fn(&Store{conn: q})
	})
}

func (s *Store) atomic(ctx context.Context, fn func(q pgxIConn) error) error {
	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

const statsSQL = `
SELECT
    (SELECT count(*) FROM persons),
    (SELECT count(*) FROM relationships),
    (SELECT count(*) FROM anecdotes),
    (SELECT count(*) FROM photos),
    (SELECT count(*) FROM tags),
    (SELECT count(*) FROM groups),
    (SELECT count(*) FROM employments)
`

// Stats returns the dashboard counts and the five newest persons.
func (s *Store) Stats(ctx context.Context) (common.Stats, error) {
	var st common.Stats
	err := s.conn.QueryRow(ctx, statsSQL).Scan(
		&st.Persons,
		&st.Relationships,
		&st.Anecdotes,
		&st.Photos,
		&st.Tags,
		&st.Groups,
		&st.Employments,
	)
	if err != nil {
		return common.Stats{}, mapErr(err)
	}

	rows, err := s.conn.Query(ctx, personSelect+" ORDER BY p.created_at DESC, p.id DESC LIMIT 5")
	if err != nil {
		return common.Stats{}, mapErr(err)
	}
	st.RecentPersons, err = collect(rows, scanPerson)
	if err != nil {
		return common.Stats{}, err
	}
	return st, nil
}

// mapErr translates driver errors into store errors. Foreign key failures
// on insert mean a referenced row is missing, on delete that the row is
// still in use.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgxv5.ErrNoRows) {
		return store.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return fmt.Errorf("%w: %s", store.ErrConflict, pgErr.ConstraintName)
		case "23503":
			if strings.Contains(pgErr.Detail, "still referenced") {
				return fmt.Errorf("%w: %s", store.ErrConflict, pgErr.ConstraintName)
			}
			return fmt.Errorf("%w: %s", store.ErrNotFound, pgErr.ConstraintName)
		}
	}
	return err
}

func mustAffect(tag pgconn.CommandTag, err error) error {
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func collect[T any](rows pgxv5.Rows, scan func(scanner) (T, error)) ([]T, error) {
	defer rows.Close()
	out := []T{}
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, mapErr(err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, mapErr(err)
	}
	return out, nil
}

// filter accumulates WHERE conditions. A "?" in a condition is replaced by
// the positional parameter of its argument.
type filter struct {
	conds []string
	args  []any
}

func (f *filter) add(cond string, arg any) {
	f.args = append(f.args, arg)
	f.conds = append(f.conds, strings.ReplaceAll(cond, "?", "$"+strconv.Itoa(len(f.args))))
}

func (f *filter) where() string {
	if len(f.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(f.conds, " AND ")
}

func (f *filter) search(term string, columns ...string) {
	if term == "" {
		return
	}
	parts := make([]string, len(columns))
	for i, c := range columns {
		parts[i] = c + " ILIKE '%' || ? || '%'"
	}
	f.add("("+strings.Join(parts, " OR ")+")", term)
}

// page returns the LIMIT/OFFSET clause and the arguments including it.
func (f *filter) page(params store.ListParams) (string, []any) {
	args := append([]any{}, f.args...)
	clause := ""
	if params.Limit > 0 {
		args = append(args, params.Limit)
		clause += " LIMIT $" + strconv.Itoa(len(args))
	}
	if params.Offset > 0 {
		args = append(args, params.Offset)
		clause += " OFFSET $" + strconv.Itoa(len(args))
	}
	return clause, args
}

func (s *Store) count(ctx context.Context, from string, f *filter) (int, error) {
	var n int
	if err := s.conn.QueryRow(ctx, "SELECT count(*) "+from+f.where(), f.args...).Scan(&n); err != nil {
		return 0, mapErr(err)
	}
	return n, nil
}

// replaceLinks rewrites the rows of a join table owned by ownerID, keeping
// the order of ids.
func replaceLinks(ctx context.Context, q pgxIConn, table, ownerCol string, ownerID int64, otherCol string, ids []int64) error {
	if _, err := q.Exec(ctx, "DELETE FROM "+table+" WHERE "+ownerCol+" = $1", ownerID); err != nil {
		return mapErr(err)
	}
	ids = store.DedupeIDs(ids)
	if len(ids) == 0 {
		return nil
	}
	_, err := q.Exec(ctx,
		"INSERT INTO "+table+" ("+ownerCol+", "+otherCol+", position) "+
			"SELECT $1, v.id, v.ord FROM unnest($2::bigint[]) WITH ORDINALITY AS v(id, ord)",
		ownerID, ids,
	)
	return mapErr(err)
}

func linkSelect(table, ownerCol, otherCol, owner string) string {
	return "COALESCE((SELECT array_agg(l." + otherCol + " ORDER BY l.position) FROM " + table +
		" l WHERE l." + ownerCol + " = " + owner + "), '{}')"
}

func contacts(entries []common.ContactEntry) []common.ContactEntry {
	if entries == nil {
		return []common.ContactEntry{}
	}
	return entries
}

var _ store.Store = (*Store)(nil)
