package wizard

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/kinship-crm/kinship/pkg/common"
)

// ContactAPI is the backend surface used by the contact import workflow.
type ContactAPI interface {
	ParseContacts(ctx context.Context, req common.ParseContactsRequest) (common.ParseContactsResponse, error)
	BulkImport(ctx context.Context, req common.BulkImportRequest) (common.BulkImportResult, error)
}

// NewContactImport parses free text or a single URL into contact candidates
// and imports the kept ones with one bulk request.
func NewContactImport(api ContactAPI) *Wizard[common.ContactCandidate, common.BulkImportResult] {
	return New(
		func(ctx context.Context, input string) ([]common.ContactCandidate, error) {
			res, err := api.ParseContacts(ctx, contactsRequest(input))
			if err != nil {
				return nil, err
			}
			return res.Persons, nil
		},
		func(ctx context.Context, candidates []common.ContactCandidate) (common.BulkImportResult, error) {
			return api.BulkImport(ctx, common.BulkImportRequest{Persons: candidates})
		},
	)
}

func contactsRequest(input string) common.ParseContactsRequest {
	trimmed := strings.TrimSpace(input)
	if !strings.ContainsAny(trimmed, " \t\n") &&
		(strings.HasPrefix(trimmed, "http://") || strings.HasPrefix(trimmed, "https://")) {
		return common.ParseContactsRequest{URL: trimmed}
	}
	return common.ParseContactsRequest{Text: input}
}

// UpdateAPI is the backend surface used by the profile update workflow.
type UpdateAPI interface {
	ParseUpdates(ctx context.Context, req common.ParseUpdatesRequest) (common.ParseUpdatesResponse, error)
	ApplyUpdates(ctx context.Context, req common.ApplyUpdatesRequest) (common.ApplyUpdatesResult, error)
}

// NewProfileUpdates extracts changes to existing persons from free text.
func NewProfileUpdates(api UpdateAPI) *Wizard[common.ProfileUpdate, common.ApplyUpdatesResult] {
	return New(
		func(ctx context.Context, input string) ([]common.ProfileUpdate, error) {
			res, err := api.ParseUpdates(ctx, common.ParseUpdatesRequest{Text: input})
			if err != nil {
				return nil, err
			}
			return res.Updates, nil
		},
		func(ctx context.Context, updates []common.ProfileUpdate) (common.ApplyUpdatesResult, error) {
			return api.ApplyUpdates(ctx, common.ApplyUpdatesRequest{Updates: updates})
		},
	)
}

// RelationshipAPI is the backend surface used by the relationship
// suggestion workflow.
type RelationshipAPI interface {
	SuggestRelationships(ctx context.Context, req common.SuggestRelationshipsRequest) (common.SuggestRelationshipsResponse, error)
	ApplyRelationshipSuggestion(ctx context.Context, s common.RelationshipSuggestion) (common.Relationship, error)
}

// NewRelationshipSuggestions asks for relationship suggestions around
// personID (zero for everyone) and optional context text. Accepted
// suggestions are applied one by one; failures are collected in the result
// and do not stop the remaining ones.
func NewRelationshipSuggestions(api RelationshipAPI, personID int64) *Wizard[common.RelationshipSuggestion, common.ApplySuggestionsResult] {
	return New(
		func(ctx context.Context, input string) ([]common.RelationshipSuggestion, error) {
			res, err := api.SuggestRelationships(ctx, common.SuggestRelationshipsRequest{
				PersonID: personID,
				Text:     input,
			})
			if err != nil {
				return nil, err
			}
			return res.Suggestions, nil
		},
		func(ctx context.Context, suggestions []common.RelationshipSuggestion) (common.ApplySuggestionsResult, error) {
			result := common.ApplySuggestionsResult{Errors: []string{}}
			for _, s := range suggestions {
				if _, err := api.ApplyRelationshipSuggestion(ctx, s); err != nil {
					if ctx.Err() != nil {
						return result, ctx.Err()
					}
					result.Errors = append(result.Errors, fmt.Sprintf("%s / %s: %v", s.PersonAName, s.PersonBName, err))
					continue
				}
				result.RelationshipsCreated++
			}
			return result, nil
		},
	)
}

// TagAPI is the backend surface used by the tag suggestion workflow.
type TagAPI interface {
	SuggestTags(ctx context.Context, req common.SuggestTagsRequest) (common.SuggestTagsResponse, error)
	CreateTag(ctx context.Context, tag common.Tag) (common.Tag, error)
	GetPerson(ctx context.Context, id int64) (common.Person, error)
	SetPersonTags(ctx context.Context, personID int64, tagIDs []int64) (common.Person, error)
}

// NewTagSuggestions proposes tags for one person. Suggestions without a
// tag id are created first; all accepted tags are then added to the
// person's existing ones.
func NewTagSuggestions(api TagAPI, personID int64) *Wizard[common.TagSuggestion, common.ApplyTagsResult] {
	return New(
		func(ctx context.Context, _ string) ([]common.TagSuggestion, error) {
			res, err := api.SuggestTags(ctx, common.SuggestTagsRequest{PersonID: personID})
			if err != nil {
				return nil, err
			}
			return res.Suggestions, nil
		},
		func(ctx context.Context, suggestions []common.TagSuggestion) (common.ApplyTagsResult, error) {
			result := common.ApplyTagsResult{Errors: []string{}}
			person, err := api.GetPerson(ctx, personID)
			if err != nil {
				return result, err
			}

			ids := slices.Clone(person.TagIDs)
			for _, s := range suggestions {
				id := s.TagID
				if id == nil {
					tag, err := api.CreateTag(ctx, common.Tag{Name: s.Name})
					if err != nil {
						result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", s.Name, err))
						continue
					}
					result.TagsCreated++
					id = &tag.ID
				}
				if slices.Contains(ids, *id) {
					continue
				}
				ids = append(ids, *id)
				result.TagsAttached++
			}

			if result.TagsAttached == 0 {
				return result, nil
			}
			if _, err := api.SetPersonTags(ctx, personID, ids); err != nil {
				return result, err
			}
			return result, nil
		},
	)
}
