// Package export dumps the whole catalog as JSON or as an XLSX workbook
// with one sheet per entity.
package export

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kinship-crm/kinship/pkg/common"
	"github.com/kinship-crm/kinship/pkg/store"
)

const (
	FormatJSON = "json"
	FormatXLSX = "xlsx"
)

const (
	ContentTypeJSON = "application/json"
	ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var ErrUnknownFormat = errors.New("format must be json or xlsx")

// Dump is the full content of an installation.
type Dump struct {
	ExportedAt        time.Time                 `json:"exported_at"`
	Persons           []common.Person           `json:"persons"`
	RelationshipTypes []common.RelationshipType `json:"relationship_types"`
	Relationships     []common.Relationship     `json:"relationships"`
	Anecdotes         []common.Anecdote         `json:"anecdotes"`
	Photos            []common.Photo            `json:"photos"`
	Employments       []common.Employment       `json:"employments"`
	Tags              []common.Tag              `json:"tags"`
	Groups            []common.Group            `json:"groups"`
}

// Preview counts the records an export would contain.
func Preview(ctx context.Context, s store.Store) (common.ExportPreview, error) {
	var p common.ExportPreview
	one := store.ListParams{Limit: 1}
	g, ctx := errgroup.WithContext(ctx)
	count := func(dst *int, fn func() (int, error)) {
		g.Go(func() error {
			n, err := fn()
			*dst = n
			return err
		})
	}
	count(&p.Persons, func() (int, error) { _, n, err := s.ListPersons(ctx, one); return n, err })
	count(&p.Relationships, func() (int, error) { _, n, err := s.ListRelationships(ctx, one); return n, err })
	count(&p.Anecdotes, func() (int, error) { _, n, err := s.ListAnecdotes(ctx, one); return n, err })
	count(&p.Photos, func() (int, error) { _, n, err := s.ListPhotos(ctx, one); return n, err })
	count(&p.Employments, func() (int, error) { _, n, err := s.ListEmployments(ctx, one); return n, err })
	count(&p.Tags, func() (int, error) { _, n, err := s.ListTags(ctx, one); return n, err })
	count(&p.Groups, func() (int, error) { _, n, err := s.ListGroups(ctx, one); return n, err })
	if err := g.Wait(); err != nil {
		return common.ExportPreview{}, fmt.Errorf("export preview: %w", err)
	}
	return p, nil
}

// Collect loads every record.
func Collect(ctx context.Context, s store.Store) (Dump, error) {
	d := Dump{ExportedAt: time.Now().UTC()}
	all := store.ListParams{}
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) { d.Persons, _, err = s.ListPersons(ctx, all); return })
	g.Go(func() (err error) { d.RelationshipTypes, _, err = s.ListRelationshipTypes(ctx, all); return })
	g.Go(func() (err error) { d.Relationships, _, err = s.ListRelationships(ctx, all); return })
	g.Go(func() (err error) { d.Anecdotes, _, err = s.ListAnecdotes(ctx, all); return })
	g.Go(func() (err error) { d.Photos, _, err = s.ListPhotos(ctx, all); return })
	g.Go(func() (err error) { d.Employments, _, err = s.ListEmployments(ctx, all); return })
	g.Go(func() (err error) { d.Tags, _, err = s.ListTags(ctx, all); return })
	g.Go(func() (err error) { d.Groups, _, err = s.ListGroups(ctx, all); return })
	if err := g.Wait(); err != nil {
		return Dump{}, fmt.Errorf("export: %w", err)
	}
	return d, nil
}

// Render encodes d in the given format and returns the body, its content
// type and a file name.
func Render(d Dump, format string) ([]byte, string, string, error) {
	name := "kinship-export-" + d.ExportedAt.Format("20060102-150405")
	switch format {
	case "", FormatJSON:
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetIndent("", "  ")
		if err := enc.Encode(d); err != nil {
			return nil, "", "", err
		}
		return buf.Bytes(), ContentTypeJSON, name + ".json", nil
	case FormatXLSX:
		body, err := Workbook(d)
		if err != nil {
			return nil, "", "", err
		}
		return body, ContentTypeXLSX, name + ".xlsx", nil
	default:
		return nil, "", "", ErrUnknownFormat
	}
}
