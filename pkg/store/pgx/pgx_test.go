package pgx

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/kinship-crm/kinship/pkg/store"

	pgxv5 "github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestFilterPlaceholders(t *testing.T) {
	f := &filter{}
	f.search("ann", "p.first_name", "p.last_name")
	f.add("(r.person_a_id = ? OR r.person_b_id = ?)", int64(3))
	page, args := f.page(store.ListParams{Limit: 10, Offset: 20})

	where := f.where()
	want := " WHERE (p.first_name ILIKE '%' || $1 || '%' OR p.last_name ILIKE '%' || $1 || '%')" +
		" AND (r.person_a_id = $2 OR r.person_b_id = $2)"
	if where != want {
		t.Errorf("where() =\n%s\nwant\n%s", where, want)
	}
	if page != " LIMIT $3 OFFSET $4" {
		t.Errorf("page() = %q", page)
	}
	if len(args) != 4 || args[2] != 10 || args[3] != 20 {
		t.Errorf("args = %v", args)
	}
	if len(f.args) != 2 {
		t.Errorf("page() must not grow the filter args, got %v", f.args)
	}
}

func TestFilterEmpty(t *testing.T) {
	f := &filter{}
	f.search("")
	if f.where() != "" {
		t.Errorf("where() = %q, want empty", f.where())
	}
	page, args := f.page(store.ListParams{})
	if page != "" || len(args) != 0 {
		t.Errorf("page() = %q %v", page, args)
	}
}

func TestMapErr(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"no rows", pgxv5.ErrNoRows, store.ErrNotFound},
		{"wrapped no rows", fmt.Errorf("get: %w", pgxv5.ErrNoRows), store.ErrNotFound},
		{"unique", &pgconn.PgError{Code: "23505", ConstraintName: "persons_single_owner"}, store.ErrConflict},
		{"missing reference", &pgconn.PgError{Code: "23503", Detail: `Key (tag_id)=(9) is not present in table "tags".`}, store.ErrNotFound},
		{"still referenced", &pgconn.PgError{Code: "23503", Detail: `Key (id)=(1) is still referenced from table "relationships".`}, store.ErrConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := mapErr(tt.err); !errors.Is(got, tt.want) {
				t.Errorf("mapErr() = %v, want %v", got, tt.want)
			}
		})
	}

	other := errors.New("boom")
	if mapErr(other) != other {
		t.Error("unrelated errors must pass through")
	}
	if mapErr(nil) != nil {
		t.Error("mapErr(nil) != nil")
	}
}

func TestLinkSelect(t *testing.T) {
	got := linkSelect("person_tags", "person_id", "tag_id", "p.id")
	if !strings.Contains(got, "array_agg(l.tag_id ORDER BY l.position)") || !strings.Contains(got, "l.person_id = p.id") {
		t.Errorf("linkSelect() = %s", got)
	}
}
