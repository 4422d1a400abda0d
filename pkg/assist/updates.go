package assist

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/kinship-crm/kinship/pkg/ai"
	"github.com/kinship-crm/kinship/pkg/common"
	"github.com/kinship-crm/kinship/pkg/logger"
	"github.com/kinship-crm/kinship/pkg/store"
)

var updateFields = []string{
	common.UpdateFieldNickname,
	common.UpdateFieldBirthday,
	common.UpdateFieldNotes,
	common.UpdateFieldEmail,
	common.UpdateFieldPhone,
	common.UpdateFieldAddress,
	common.UpdateFieldJob,
	common.UpdateFieldAnecdote,
}

const maxTitleLength = 80

// ParseUpdates turns a note into proposed changes to known persons.
// Proposals for unknown persons or fields are dropped.
func (s *Service) ParseUpdates(ctx context.Context, req common.ParseUpdatesRequest) (common.ParseUpdatesResponse, error) {
	client, err := s.model()
	if err != nil {
		return common.ParseUpdatesResponse{}, err
	}
	if strings.TrimSpace(req.Text) == "" {
		return common.ParseUpdatesResponse{}, ErrEmptyInput
	}

	cat, err := s.loadCatalog(ctx)
	if err != nil {
		return common.ParseUpdatesResponse{}, err
	}
	known := make([]string, len(cat.persons))
	for i, p := range cat.persons {
		known[i] = fmt.Sprintf("%d: %s", p.ID, p.FullName())
	}

	var res common.ParseUpdatesResponse
	prompt := fmt.Sprintf(ai.ParseUpdatesPrompt, s.today(), s.pack(known), req.Text)
	if err := client.GenerateCompletionWithFormat(ctx, "profile_updates", "Updates to known persons", prompt, &res); err != nil {
		return common.ParseUpdatesResponse{}, fmt.Errorf("parse updates: %w", err)
	}

	updates := make([]common.ProfileUpdate, 0, len(res.Updates))
	for _, u := range res.Updates {
		p, ok := cat.byID[u.PersonID]
		if !ok || !slices.Contains(updateFields, u.Field) || strings.TrimSpace(u.Value) == "" {
			continue
		}
		u.PersonName = p.FullName()
		updates = append(updates, u)
	}
	return common.ParseUpdatesResponse{Updates: updates}, nil
}

// ApplyUpdates applies each update on its own. Failures are reported per
// update and do not undo the others.
func (s *Service) ApplyUpdates(ctx context.Context, req common.ApplyUpdatesRequest) (common.ApplyUpdatesResult, error) {
	res := common.ApplyUpdatesResult{Errors: []string{}}
	touched := map[int64]struct{}{}
	for i, u := range req.Updates {
		err := s.store.WithTx(ctx, func(tx store.Store) error {
			return applyUpdate(ctx, tx, u, &res)
		})
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			res.Errors = append(res.Errors, fmt.Sprintf("%d (%s %s): %v", i, u.Field, u.PersonName, err))
			continue
		}
		if u.Field != common.UpdateFieldJob && u.Field != common.UpdateFieldAnecdote {
			touched[u.PersonID] = struct{}{}
		}
	}
	res.PersonsUpdated = len(touched)
	logger.Info("[Assist] applied updates", "persons", res.PersonsUpdated, "failed", len(res.Errors))
	return res, nil
}

func applyUpdate(ctx context.Context, tx store.Store, u common.ProfileUpdate, res *common.ApplyUpdatesResult) error {
	p, err := tx.GetPerson(ctx, u.PersonID)
	if err != nil {
		return err
	}
	value := strings.TrimSpace(u.Value)
	if value == "" {
		return errors.New("value is empty")
	}
	label := strings.TrimSpace(u.Label)
	if label == "" {
		label = "other"
	}

	switch u.Field {
	case common.UpdateFieldNickname:
		p.Nickname = value
	case common.UpdateFieldBirthday:
		d, err := common.ParseDate(value)
		if err != nil {
			return err
		}
		p.Birthday = &d
	case common.UpdateFieldNotes:
		if p.Notes != "" {
			p.Notes += "\n"
		}
		p.Notes += value
	case common.UpdateFieldEmail:
		p.Emails = appendContact(p.Emails, label, value)
	case common.UpdateFieldPhone:
		p.Phones = appendContact(p.Phones, label, value)
	case common.UpdateFieldAddress:
		p.Addresses = appendContact(p.Addresses, label, value)
	case common.UpdateFieldJob:
		if err := endCurrentJobs(ctx, tx, p.ID); err != nil {
			return err
		}
		if _, err := tx.CreateEmployment(ctx, common.Employment{
			PersonID:  p.ID,
			Company:   value,
			Title:     strings.TrimSpace(u.Label),
			IsCurrent: true,
		}); err != nil {
			return err
		}
		res.EmploymentsCreated++
		return nil
	case common.UpdateFieldAnecdote:
		title := strings.TrimSpace(u.Label)
		if title == "" {
			title = truncate(oneLine(value), maxTitleLength)
		}
		if _, err := tx.CreateAnecdote(ctx, common.Anecdote{
			Title:        title,
			Content:      value,
			AnecdoteType: common.AnecdoteMemory,
			PersonIDs:    []int64{p.ID},
		}); err != nil {
			return err
		}
		res.AnecdotesCreated++
		return nil
	default:
		return fmt.Errorf("unknown field %q", u.Field)
	}

	_, err = tx.UpdatePerson(ctx, p)
	return err
}

// appendContact adds an entry unless the same value is already present.
func appendContact(entries []common.ContactEntry, label, value string) []common.ContactEntry {
	for _, e := range entries {
		if strings.EqualFold(e.Value, value) {
			return entries
		}
	}
	return append(entries, common.ContactEntry{Label: label, Value: value})
}

func endCurrentJobs(ctx context.Context, tx store.Store, personID int64) error {
	jobs, _, err := tx.ListEmployments(ctx, store.ListParams{PersonID: personID})
	if err != nil {
		return err
	}
	for _, j := range jobs {
		if !j.IsCurrent {
			continue
		}
		j.IsCurrent = false
		if _, err := tx.UpdateEmployment(ctx, j); err != nil {
			return err
		}
	}
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
