// Package assist implements the AI actions of the API: parsing free text
// into contacts and profile updates, bulk import, relationship and tag
// suggestions, chat, smart search and the background enrichment jobs.
package assist

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/kinship-crm/kinship/pkg/ai"
	"github.com/kinship-crm/kinship/pkg/common"
	"github.com/kinship-crm/kinship/pkg/loader"
	"github.com/kinship-crm/kinship/pkg/relation"
	"github.com/kinship-crm/kinship/pkg/store"
)

var (
	// ErrUnavailable is returned when no model client is configured.
	ErrUnavailable = errors.New("ai assistant is not configured")
	// ErrEmptyInput is returned when a request carries nothing to work on.
	ErrEmptyInput = errors.New("input is empty")
)

const defaultContextTokens = 6000

// PhotoDescriber produces a text description of a stored photo.
type PhotoDescriber interface {
	Describe(ctx context.Context, src loader.Source) (string, error)
}

type Options struct {
	// Pages fetches the readable text of a URL for contact parsing.
	Pages loader.Loader
	// Photos describes uploaded photos for the describe job.
	Photos PhotoDescriber
	// ContextTokens bounds the catalog text put into a single prompt.
	ContextTokens int
}

type Service struct {
	store         store.Store
	relations     *relation.Service
	ai            ai.Client
	pages         loader.Loader
	photos        PhotoDescriber
	contextTokens int
	now           func() time.Time
}

// New creates the assistant. client may be nil, in which case every model
// backed call fails with ErrUnavailable.
func New(s store.Store, relations *relation.Service, client ai.Client, opts Options) *Service {
	if opts.ContextTokens <= 0 {
		opts.ContextTokens = defaultContextTokens
	}
	return &Service{
		store:         s,
		relations:     relations,
		ai:            client,
		pages:         opts.Pages,
		photos:        opts.Photos,
		contextTokens: opts.ContextTokens,
		now:           time.Now,
	}
}

func (s *Service) model() (ai.Client, error) {
	if s.ai == nil {
		return nil, ErrUnavailable
	}
	return s.ai, nil
}

func (s *Service) today() string {
	return s.now().Format(common.DateLayout)
}

// catalog is the set of records prompts are built from.
type catalog struct {
	persons     []common.Person
	byID        map[int64]common.Person
	tags        map[int64]common.Tag
	employments map[int64][]common.Employment
}

func (s *Service) loadCatalog(ctx context.Context) (*catalog, error) {
	persons, _, err := s.store.ListPersons(ctx, store.ListParams{})
	if err != nil {
		return nil, fmt.Errorf("list persons: %w", err)
	}
	tags, _, err := s.store.ListTags(ctx, store.ListParams{})
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	employments, _, err := s.store.ListEmployments(ctx, store.ListParams{})
	if err != nil {
		return nil, fmt.Errorf("list employments: %w", err)
	}

	c := &catalog{
		persons:     persons,
		byID:        make(map[int64]common.Person, len(persons)),
		tags:        make(map[int64]common.Tag, len(tags)),
		employments: make(map[int64][]common.Employment),
	}
	for _, p := range persons {
		c.byID[p.ID] = p
	}
	for _, t := range tags {
		c.tags[t.ID] = t
	}
	for _, e := range employments {
		c.employments[e.PersonID] = append(c.employments[e.PersonID], e)
	}
	return c, nil
}

func (c *catalog) tagNames(p common.Person) []string {
	names := make([]string, 0, len(p.TagIDs))
	for _, id := range p.TagIDs {
		if t, ok := c.tags[id]; ok {
			names = append(names, t.Name)
		}
	}
	return names
}

// line renders one person as a single prompt line.
func (c *catalog) line(p common.Person) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d: %s", p.ID, p.FullName())
	if p.Nickname != "" {
		fmt.Fprintf(&b, " (%q)", p.Nickname)
	}
	if p.Birthday != nil {
		fmt.Fprintf(&b, "; born %s", p.Birthday)
	}
	if names := c.tagNames(p); len(names) > 0 {
		fmt.Fprintf(&b, "; tags: %s", strings.Join(names, ", "))
	}
	for _, e := range c.employments[p.ID] {
		if !e.IsCurrent {
			continue
		}
		if e.Title != "" {
			fmt.Fprintf(&b, "; %s at %s", e.Title, e.Company)
		} else {
			fmt.Fprintf(&b, "; works at %s", e.Company)
		}
	}
	if notes := oneLine(p.Notes); notes != "" {
		fmt.Fprintf(&b, "; notes: %s", notes)
	}
	return b.String()
}

// lines renders persons, putting the ones in first at the top so they
// survive the token budget.
func (c *catalog) lines(first ...int64) []string {
	ordered := make([]common.Person, 0, len(c.persons))
	for _, id := range first {
		if p, ok := c.byID[id]; ok {
			ordered = append(ordered, p)
		}
	}
	for _, p := range c.persons {
		if !slices.Contains(first, p.ID) {
			ordered = append(ordered, p)
		}
	}
	out := make([]string, len(ordered))
	for i, p := range ordered {
		out[i] = c.line(p)
	}
	return out
}

func (s *Service) pack(lines []string) string {
	text, _ := ai.PackLines(lines, s.contextTokens)
	if text == "" {
		return "(none)\n"
	}
	return text
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// document is the text a person's embedding is computed from.
func (c *catalog) document(p common.Person) string {
	parts := []string{p.FullName()}
	if p.Nickname != "" {
		parts = append(parts, "nickname "+p.Nickname)
	}
	if names := c.tagNames(p); len(names) > 0 {
		parts = append(parts, "tags: "+strings.Join(names, ", "))
	}
	for _, e := range c.employments[p.ID] {
		parts = append(parts, strings.TrimSpace(e.Title+" at "+e.Company+" "+e.Department))
	}
	for _, a := range p.Addresses {
		parts = append(parts, a.Value)
	}
	if p.Notes != "" {
		parts = append(parts, oneLine(p.Notes))
	}
	return strings.Join(parts, "\n")
}
