package relation

import (
	"cmp"
	"context"
	"slices"

	"github.com/kinship-crm/kinship/pkg/common"
	"github.com/kinship-crm/kinship/pkg/store"
)

// ListForPerson returns every relationship of personID from that person's
// point of view. Records stored with the person as person_b are reported
// with roles swapped, under the same name for symmetric types and the
// inverse name otherwise. A record is skipped when its paired inverse
// already represents that direction. The list is sorted by type name, then
// start date with undated entries last, then id.
func (s *Service) ListForPerson(ctx context.Context, personID int64) ([]common.PersonRelationship, error) {
	if _, err := s.store.GetPerson(ctx, personID); err != nil {
		return nil, err
	}

	rels, _, err := s.store.ListRelationships(ctx, store.ListParams{PersonID: personID})
	if err != nil {
		return nil, err
	}
	types, _, err := s.store.ListRelationshipTypes(ctx, store.ListParams{})
	if err != nil {
		return nil, err
	}

	byID := make(map[int64]common.RelationshipType, len(types))
	byNames := make(map[[2]string]common.RelationshipType, len(types))
	for _, t := range types {
		byID[t.ID] = t
		byNames[[2]string{t.Name, t.InverseName}] = t
	}
	outgoing := map[int64]struct{}{}
	for _, r := range rels {
		if r.PersonAID == personID {
			outgoing[r.ID] = struct{}{}
		}
	}

	names := map[int64]string{}
	nameOf := func(id int64) (string, error) {
		if n, ok := names[id]; ok {
			return n, nil
		}
		p, err := s.store.GetPerson(ctx, id)
		if err != nil {
			return "", err
		}
		names[id] = p.FullName()
		return names[id], nil
	}

	out := make([]common.PersonRelationship, 0, len(rels))
	for _, r := range rels {
		t := byID[r.RelationshipTypeID]
		entry := common.PersonRelationship{
			RelationshipID:     r.ID,
			RelationshipTypeID: t.ID,
			TypeName:           t.Name,
			Category:           t.Category,
			Strength:           r.Strength,
			StartDate:          r.StartDate,
			Notes:              r.Notes,
			AutoCreated:        r.AutoCreated,
		}

		if r.PersonAID == personID {
			entry.OtherPersonID = r.PersonBID
		} else {
			if r.InverseID != nil {
				if _, ok := outgoing[*r.InverseID]; ok {
					continue
				}
			}
			entry.OtherPersonID = r.PersonAID
			entry.Reversed = true
			if !t.IsSymmetric {
				entry.TypeName = t.InverseName
				if inv, ok := byNames[[2]string{t.InverseName, t.Name}]; ok {
					entry.RelationshipTypeID = inv.ID
				}
			}
		}

		name, err := nameOf(entry.OtherPersonID)
		if err != nil {
			return nil, err
		}
		entry.OtherPersonName = name
		out = append(out, entry)
	}

	slices.SortFunc(out, func(a, b common.PersonRelationship) int {
		if c := cmp.Compare(a.TypeName, b.TypeName); c != 0 {
			return c
		}
		if common.DateBefore(a.StartDate, b.StartDate) {
			return -1
		}
		if common.DateBefore(b.StartDate, a.StartDate) {
			return 1
		}
		return cmp.Compare(a.RelationshipID, b.RelationshipID)
	})
	return out, nil
}
