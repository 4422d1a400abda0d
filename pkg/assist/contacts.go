package assist

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kinship-crm/kinship/pkg/ai"
	"github.com/kinship-crm/kinship/pkg/common"
	"github.com/kinship-crm/kinship/pkg/loader"
	"github.com/kinship-crm/kinship/pkg/logger"
	"github.com/kinship-crm/kinship/pkg/store"
)

// ParseContacts extracts contact candidates from text, from the readable
// text of a URL, or from both. Nothing is stored.
func (s *Service) ParseContacts(ctx context.Context, req common.ParseContactsRequest) (common.ParseContactsResponse, error) {
	client, err := s.model()
	if err != nil {
		return common.ParseContactsResponse{}, err
	}

	text := strings.TrimSpace(req.Text)
	if u := strings.TrimSpace(req.URL); u != "" {
		if s.pages == nil {
			return common.ParseContactsResponse{}, errors.New("url import is not configured")
		}
		page, err := s.pages.Text(ctx, loader.Source{Path: u})
		if err != nil {
			return common.ParseContactsResponse{}, fmt.Errorf("fetch %s: %w", u, err)
		}
		text = strings.TrimSpace(text + "\n\n" + string(page))
	}
	if text == "" {
		return common.ParseContactsResponse{}, ErrEmptyInput
	}
	text = s.pack(strings.Split(text, "\n"))

	var res common.ParseContactsResponse
	prompt := fmt.Sprintf(ai.ParseContactsPrompt, s.today(), text)
	if err := client.GenerateCompletionWithFormat(ctx, "contacts", "People mentioned in the text", prompt, &res); err != nil {
		return common.ParseContactsResponse{}, fmt.Errorf("parse contacts: %w", err)
	}

	persons := make([]common.ContactCandidate, 0, len(res.Persons))
	for _, c := range res.Persons {
		c.FirstName = strings.TrimSpace(c.FirstName)
		c.LastName = strings.TrimSpace(c.LastName)
		if c.FirstName == "" && c.LastName == "" {
			continue
		}
		persons = append(persons, c)
	}
	logger.Debug("[Assist] parsed contacts", "count", len(persons))
	return common.ParseContactsResponse{Persons: persons}, nil
}

// BulkImport stores each candidate in its own transaction together with
// its tags and current employment. A failing record is reported in Errors
// and leaves the others in place.
func (s *Service) BulkImport(ctx context.Context, req common.BulkImportRequest) (common.BulkImportResult, error) {
	res := common.BulkImportResult{Errors: []string{}}
	for i, c := range req.Persons {
		tagsCreated, employed, err := s.importContact(ctx, c)
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			res.Errors = append(res.Errors, fmt.Sprintf("%d (%s): %v", i, strings.TrimSpace(c.FirstName+" "+c.LastName), err))
			continue
		}
		res.PersonsCreated++
		res.TagsCreated += tagsCreated
		if employed {
			res.EmploymentsCreated++
		}
	}
	logger.Info("[Assist] bulk import", "created", res.PersonsCreated, "failed", len(res.Errors))
	return res, nil
}

func (s *Service) importContact(ctx context.Context, c common.ContactCandidate) (int, bool, error) {
	if strings.TrimSpace(c.FirstName) == "" {
		return 0, false, errors.New("first_name is required")
	}

	tagsCreated := 0
	employed := false
	err := s.store.WithTx(ctx, func(tx store.Store) error {
		tagsCreated = 0
		employed = false

		p := common.Person{
			FirstName: strings.TrimSpace(c.FirstName),
			LastName:  strings.TrimSpace(c.LastName),
			Nickname:  c.Nickname,
			Birthday:  c.Birthday,
			Notes:     c.Notes,
			Emails:    c.Emails,
			Phones:    c.Phones,
			Addresses: c.Addresses,
		}
		for _, name := range c.Tags {
			tag, created, err := ensureTag(ctx, tx, name)
			if err != nil {
				return err
			}
			if tag.ID == 0 {
				continue
			}
			if created {
				tagsCreated++
			}
			p.TagIDs = append(p.TagIDs, tag.ID)
		}
		p.TagIDs = store.DedupeIDs(p.TagIDs)

		created, err := tx.CreatePerson(ctx, p)
		if err != nil {
			return err
		}
		if strings.TrimSpace(c.Company) == "" {
			return nil
		}
		_, err = tx.CreateEmployment(ctx, common.Employment{
			PersonID:  created.ID,
			Company:   strings.TrimSpace(c.Company),
			Title:     strings.TrimSpace(c.Title),
			IsCurrent: true,
		})
		employed = err == nil
		return err
	})
	return tagsCreated, employed, err
}

// ensureTag returns the tag with the given name, creating it when missing.
// A blank name yields a zero tag.
func ensureTag(ctx context.Context, tx store.Store, name string) (common.Tag, bool, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return common.Tag{}, false, nil
	}
	tag, err := tx.GetTagByName(ctx, name)
	if err == nil {
		return tag, false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return common.Tag{}, false, err
	}
	tag, err = tx.CreateTag(ctx, common.Tag{Name: name})
	return tag, err == nil, err
}
