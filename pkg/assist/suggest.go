package assist

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/kinship-crm/kinship/pkg/ai"
	"github.com/kinship-crm/kinship/pkg/common"
	"github.com/kinship-crm/kinship/pkg/store"
)

const (
	minConfidence  = 0.4
	maxTagProposal = 5
)

// SuggestRelationships proposes relationships between stored persons,
// centered on req.PersonID when set. Suggestions that already exist in
// either direction, reference unknown records or fall below the
// confidence threshold are dropped.
func (s *Service) SuggestRelationships(ctx context.Context, req common.SuggestRelationshipsRequest) (common.SuggestRelationshipsResponse, error) {
	client, err := s.model()
	if err != nil {
		return common.SuggestRelationshipsResponse{}, err
	}

	cat, err := s.loadCatalog(ctx)
	if err != nil {
		return common.SuggestRelationshipsResponse{}, err
	}
	if req.PersonID != 0 {
		if _, ok := cat.byID[req.PersonID]; !ok {
			return common.SuggestRelationshipsResponse{}, fmt.Errorf("person %d: %w", req.PersonID, store.ErrNotFound)
		}
	}
	types, _, err := s.store.ListRelationshipTypes(ctx, store.ListParams{})
	if err != nil {
		return common.SuggestRelationshipsResponse{}, err
	}
	rels, _, err := s.store.ListRelationships(ctx, store.ListParams{PersonID: req.PersonID})
	if err != nil {
		return common.SuggestRelationshipsResponse{}, err
	}

	typeByID := make(map[int64]common.RelationshipType, len(types))
	typeLines := make([]string, len(types))
	for i, t := range types {
		typeByID[t.ID] = t
		typeLines[i] = fmt.Sprintf("%d: %s / %s", t.ID, t.Name, t.InverseName)
	}
	existing := make(map[[2]int64]struct{}, len(rels))
	relLines := make([]string, 0, len(rels))
	for _, r := range rels {
		existing[[2]int64{r.PersonAID, r.PersonBID}] = struct{}{}
		existing[[2]int64{r.PersonBID, r.PersonAID}] = struct{}{}
		if r.AutoCreated {
			continue
		}
		relLines = append(relLines, fmt.Sprintf("%s is %s of %s",
			cat.byID[r.PersonAID].FullName(), typeByID[r.RelationshipTypeID].Name, cat.byID[r.PersonBID].FullName()))
	}

	extra := strings.TrimSpace(req.Text)
	if extra == "" {
		extra = "(none)"
	}
	prompt := fmt.Sprintf(ai.SuggestRelationshipsPrompt,
		strings.Join(typeLines, "\n"),
		s.pack(cat.lines(req.PersonID)),
		s.pack(relLines),
		extra,
	)

	var res common.SuggestRelationshipsResponse
	if err := client.GenerateCompletionWithFormat(ctx, "relationship_suggestions", "Suggested relationships", prompt, &res); err != nil {
		return common.SuggestRelationshipsResponse{}, fmt.Errorf("suggest relationships: %w", err)
	}

	out := make([]common.RelationshipSuggestion, 0, len(res.Suggestions))
	seen := map[[2]int64]struct{}{}
	for _, sg := range res.Suggestions {
		a, okA := cat.byID[sg.PersonAID]
		b, okB := cat.byID[sg.PersonBID]
		t, okT := typeByID[sg.RelationshipTypeID]
		if !okA || !okB || !okT || a.ID == b.ID || sg.Confidence < minConfidence {
			continue
		}
		if req.PersonID != 0 && a.ID != req.PersonID && b.ID != req.PersonID {
			continue
		}
		pair := [2]int64{a.ID, b.ID}
		if _, ok := existing[pair]; ok {
			continue
		}
		if _, ok := seen[pair]; ok {
			continue
		}
		seen[pair] = struct{}{}
		seen[[2]int64{b.ID, a.ID}] = struct{}{}

		sg.PersonAName = a.FullName()
		sg.PersonBName = b.FullName()
		sg.TypeName = t.Name
		out = append(out, sg)
	}
	slices.SortStableFunc(out, func(x, y common.RelationshipSuggestion) int {
		switch {
		case x.Confidence > y.Confidence:
			return -1
		case x.Confidence < y.Confidence:
			return 1
		}
		return 0
	})
	return common.SuggestRelationshipsResponse{Suggestions: out}, nil
}

// ApplyRelationshipSuggestion creates the suggested relationship through
// the consistency rules, so inverse records are paired as usual.
func (s *Service) ApplyRelationshipSuggestion(ctx context.Context, sg common.RelationshipSuggestion) (common.Relationship, error) {
	return s.relations.Create(ctx, common.Relationship{
		PersonAID:          sg.PersonAID,
		PersonBID:          sg.PersonBID,
		RelationshipTypeID: sg.RelationshipTypeID,
		Notes:              sg.Reason,
	})
}

// SuggestTags proposes up to five tags for a person. Names matching an
// existing tag carry its id; tags the person already has are dropped.
func (s *Service) SuggestTags(ctx context.Context, req common.SuggestTagsRequest) (common.SuggestTagsResponse, error) {
	client, err := s.model()
	if err != nil {
		return common.SuggestTagsResponse{}, err
	}

	cat, err := s.loadCatalog(ctx)
	if err != nil {
		return common.SuggestTagsResponse{}, err
	}
	p, ok := cat.byID[req.PersonID]
	if !ok {
		return common.SuggestTagsResponse{}, fmt.Errorf("person %d: %w", req.PersonID, store.ErrNotFound)
	}

	byName := make(map[string]common.Tag, len(cat.tags))
	names := make([]string, 0, len(cat.tags))
	for _, t := range cat.tags {
		byName[strings.ToLower(t.Name)] = t
		names = append(names, t.Name)
	}
	slices.Sort(names)

	person := cat.line(p)
	if len(p.Emails) > 0 || len(p.Addresses) > 0 {
		person += "\n" + cat.document(p)
	}
	prompt := fmt.Sprintf(ai.SuggestTagsPrompt, s.pack(names), person)

	var res common.SuggestTagsResponse
	if err := client.GenerateCompletionWithFormat(ctx, "tag_suggestions", "Suggested tags", prompt, &res); err != nil {
		return common.SuggestTagsResponse{}, fmt.Errorf("suggest tags: %w", err)
	}

	out := make([]common.TagSuggestion, 0, maxTagProposal)
	seen := map[string]struct{}{}
	for _, sg := range res.Suggestions {
		name := strings.ToLower(strings.TrimSpace(sg.Name))
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}

		sg.Name = name
		sg.TagID = nil
		if t, ok := byName[name]; ok {
			if slices.Contains(p.TagIDs, t.ID) {
				continue
			}
			id := t.ID
			sg.TagID = &id
			sg.Name = t.Name
		}
		out = append(out, sg)
		if len(out) == maxTagProposal {
			break
		}
	}
	return common.SuggestTagsResponse{Suggestions: out}, nil
}
