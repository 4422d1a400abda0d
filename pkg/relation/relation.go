// Package relation keeps relationship records consistent in both
// directions. Symmetric types are stored once; asymmetric types with
// auto_create_inverse are stored as a linked pair whose second half is
// marked auto_created.
package relation

import (
	"context"
	"errors"
	"fmt"

	"github.com/kinship-crm/kinship/pkg/common"
	"github.com/kinship-crm/kinship/pkg/logger"
	"github.com/kinship-crm/kinship/pkg/store"
)

var (
	ErrSelfRelationship = errors.New("a person cannot be related to themselves")
	ErrDuplicate        = errors.New("relationship already exists")
	ErrInvalidStrength  = errors.New("strength must be between 1 and 5")
	ErrEndpointsChanged = errors.New("the persons of an existing relationship cannot be changed")
)

const (
	MinStrength = 1
	MaxStrength = 5
)

// Service applies the pairing rules on top of a store. Every mutating call
// runs in a single store transaction.
type Service struct {
	store store.Store
}

func NewService(s store.Store) *Service {
	return &Service{store: s}
}

// Create stores r and, for asymmetric auto-inverse types, its inverse. The
// returned record is the manual half with InverseID set when a partner was
// created. The partner starts with the same strength and start date but no
// notes; afterwards the halves are edited independently.
func (s *Service) Create(ctx context.Context, r common.Relationship) (common.Relationship, error) {
	if r.PersonAID == r.PersonBID {
		return common.Relationship{}, ErrSelfRelationship
	}
	if err := checkStrength(r.Strength); err != nil {
		return common.Relationship{}, err
	}

	var created common.Relationship
	err := s.store.WithTx(ctx, func(tx store.Store) error {
		if _, err := tx.GetPerson(ctx, r.PersonAID); err != nil {
			return fmt.Errorf("person_a: %w", err)
		}
		if _, err := tx.GetPerson(ctx, r.PersonBID); err != nil {
			return fmt.Errorf("person_b: %w", err)
		}
		t, err := tx.GetRelationshipType(ctx, r.RelationshipTypeID)
		if err != nil {
			return fmt.Errorf("relationship_type: %w", err)
		}

		if err := checkDuplicate(ctx, tx, r.PersonAID, r.PersonBID, t, 0); err != nil {
			return err
		}

		r.AutoCreated = false
		r.InverseID = nil
		created, err = tx.CreateRelationship(ctx, r)
		if err != nil {
			return err
		}

		if t.IsSymmetric || !t.AutoCreateInverse {
			return nil
		}

		inv, err := inverseType(ctx, tx, t)
		if err != nil {
			return err
		}
		partner, err := tx.CreateRelationship(ctx, common.Relationship{
			PersonAID:          r.PersonBID,
			PersonBID:          r.PersonAID,
			RelationshipTypeID: inv.ID,
			Strength:           r.Strength,
			StartDate:          r.StartDate,
			AutoCreated:        true,
			InverseID:          &created.ID,
		})
		if err != nil {
			return err
		}
		created.InverseID = &partner.ID
		created, err = tx.UpdateRelationship(ctx, created)
		return err
	})
	if err != nil {
		return common.Relationship{}, err
	}

	logger.Debug("[Relation] created", "id", created.ID, "paired", created.InverseID != nil)
	return created, nil
}

// Update writes the direction-specific fields of r (strength, notes) to r
// only. The persons cannot change; a different pair fails with
// ErrEndpointsChanged. A changed type or start date is carried over to the paired record:
// the partner's type is re-derived as the inverse of the new type, a switch
// to a symmetric type removes an auto-created partner, and a switch to an
// asymmetric auto-inverse type creates one.
func (s *Service) Update(ctx context.Context, r common.Relationship) (common.Relationship, error) {
	if err := checkStrength(r.Strength); err != nil {
		return common.Relationship{}, err
	}

	var updated common.Relationship
	err := s.store.WithTx(ctx, func(tx store.Store) error {
		existing, err := tx.GetRelationship(ctx, r.ID)
		if err != nil {
			return err
		}
		t, err := tx.GetRelationshipType(ctx, r.RelationshipTypeID)
		if err != nil {
			return fmt.Errorf("relationship_type: %w", err)
		}

		if r.PersonAID != existing.PersonAID || r.PersonBID != existing.PersonBID {
			return ErrEndpointsChanged
		}
		// the pair link is owned by this package
		r.AutoCreated = existing.AutoCreated
		r.InverseID = existing.InverseID

		typeChanged := existing.RelationshipTypeID != r.RelationshipTypeID
		if typeChanged {
			if err := checkDuplicate(ctx, tx, r.PersonAID, r.PersonBID, t, r.ID); err != nil {
				return err
			}
		}

		partner, hasPartner, err := loadPartner(ctx, tx, existing)
		if err != nil {
			return err
		}

		switch {
		case !typeChanged:
		case t.IsSymmetric:
			if hasPartner {
				if partner.AutoCreated {
					if err := tx.DeleteRelationship(ctx, partner.ID); err != nil {
						return err
					}
				} else {
					partner.InverseID = nil
					if _, err := tx.UpdateRelationship(ctx, partner); err != nil {
						return err
					}
				}
				hasPartner = false
			}
			// an edited auto-created half is the user's record from now on
			r.AutoCreated = false
			r.InverseID = nil
		case hasPartner:
			inv, err := inverseType(ctx, tx, t)
			if err != nil {
				return err
			}
			partner.RelationshipTypeID = inv.ID
		case t.AutoCreateInverse && !r.AutoCreated:
			inv, err := inverseType(ctx, tx, t)
			if err != nil {
				return err
			}
			partner, err = tx.CreateRelationship(ctx, common.Relationship{
				PersonAID:          r.PersonBID,
				PersonBID:          r.PersonAID,
				RelationshipTypeID: inv.ID,
				Strength:           r.Strength,
				StartDate:          r.StartDate,
				AutoCreated:        true,
				InverseID:          &r.ID,
			})
			if err != nil {
				return err
			}
			r.InverseID = &partner.ID
		}

		if hasPartner {
			partner.StartDate = r.StartDate
			if _, err := tx.UpdateRelationship(ctx, partner); err != nil {
				return err
			}
		}

		updated, err = tx.UpdateRelationship(ctx, r)
		return err
	})
	if err != nil {
		return common.Relationship{}, err
	}
	return updated, nil
}

// Delete removes a relationship. Deleting a manual record also removes its
// auto-created partner; deleting an auto-created record leaves the manual
// half in place with its pair link cleared.
func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.store.WithTx(ctx, func(tx store.Store) error {
		r, err := tx.GetRelationship(ctx, id)
		if err != nil {
			return err
		}

		if !r.AutoCreated {
			partner, ok, err := loadPartner(ctx, tx, r)
			if err != nil {
				return err
			}
			if ok && partner.AutoCreated {
				if err := tx.DeleteRelationship(ctx, partner.ID); err != nil {
					return err
				}
				logger.Debug("[Relation] removed auto-created partner", "id", partner.ID, "of", r.ID)
			}
		}
		return tx.DeleteRelationship(ctx, id)
	})
}

// SweepOrphans removes auto-created records whose manual partner no longer
// exists and returns how many were removed.
func (s *Service) SweepOrphans(ctx context.Context) (int, error) {
	orphans, err := s.store.ListUnpairedAutoCreated(ctx)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, r := range orphans {
		err := s.store.DeleteRelationship(ctx, r.ID)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return removed, err
		}
		removed++
	}
	if removed > 0 {
		logger.Info("[Relation] swept orphaned auto-created relationships", "count", removed)
	}
	return removed, nil
}

// loadPartner returns the record r is paired with. A dangling link counts
// as no partner.
func loadPartner(ctx context.Context, tx store.Store, r common.Relationship) (common.Relationship, bool, error) {
	if r.InverseID == nil {
		return common.Relationship{}, false, nil
	}
	p, err := tx.GetRelationship(ctx, *r.InverseID)
	if errors.Is(err, store.ErrNotFound) {
		return common.Relationship{}, false, nil
	}
	if err != nil {
		return common.Relationship{}, false, err
	}
	return p, true, nil
}

// checkDuplicate rejects a second record expressing the same relationship
// between a and b. For symmetric types either direction counts; for
// asymmetric types the inverse type in the opposite direction counts too.
func checkDuplicate(ctx context.Context, tx store.Store, a, b int64, t common.RelationshipType, exceptID int64) error {
	same, err := tx.FindRelationships(ctx, a, b, t.ID)
	if err != nil {
		return err
	}
	if hasOther(same, exceptID) {
		return ErrDuplicate
	}

	reverseType := t.ID
	if !t.IsSymmetric {
		inv, err := tx.FindRelationshipType(ctx, t.InverseName, t.Name)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		reverseType = inv.ID
	}
	reverse, err := tx.FindRelationships(ctx, b, a, reverseType)
	if err != nil {
		return err
	}
	for _, r := range reverse {
		if r.ID == exceptID {
			continue
		}
		// our own auto-created partner is not a duplicate
		if r.InverseID != nil && *r.InverseID == exceptID && exceptID != 0 {
			continue
		}
		return ErrDuplicate
	}
	return nil
}

func hasOther(rs []common.Relationship, exceptID int64) bool {
	for _, r := range rs {
		if r.ID != exceptID {
			return true
		}
	}
	return false
}

func checkStrength(s *int) error {
	if s == nil {
		return nil
	}
	if *s < MinStrength || *s > MaxStrength {
		return ErrInvalidStrength
	}
	return nil
}
