package relation

import (
	"context"
	"errors"
	"slices"

	"github.com/kinship-crm/kinship/pkg/common"
	"github.com/kinship-crm/kinship/pkg/logger"
	"github.com/kinship-crm/kinship/pkg/store"
)

var ErrInvalidCategory = errors.New("category must be one of family, professional, social, custom")

// Categories lists the accepted relationship type categories.
var Categories = []string{
	common.CategoryFamily,
	common.CategoryProfessional,
	common.CategorySocial,
	common.CategoryCustom,
}

// DefaultTypes are the types a fresh catalog starts with. Asymmetric types
// are listed once; CreateType adds their inverse.
var DefaultTypes = []common.RelationshipType{
	{Name: "spouse", Category: common.CategoryFamily, IsSymmetric: true},
	{Name: "sibling", Category: common.CategoryFamily, IsSymmetric: true},
	{Name: "parent", InverseName: "child", Category: common.CategoryFamily, AutoCreateInverse: true},
	{Name: "grandparent", InverseName: "grandchild", Category: common.CategoryFamily, AutoCreateInverse: true},
	{Name: "cousin", Category: common.CategoryFamily, IsSymmetric: true},
	{Name: "colleague", Category: common.CategoryProfessional, IsSymmetric: true},
	{Name: "manager", InverseName: "report", Category: common.CategoryProfessional, AutoCreateInverse: true},
	{Name: "mentor", InverseName: "mentee", Category: common.CategoryProfessional, AutoCreateInverse: true},
	{Name: "friend", Category: common.CategorySocial, IsSymmetric: true},
	{Name: "neighbor", Category: common.CategorySocial, IsSymmetric: true},
	{Name: "partner", Category: common.CategorySocial, IsSymmetric: true},
}

// CreateType stores a relationship type. Symmetric types get their own name
// as inverse name. For asymmetric types the inverse row (names swapped) is
// created as well unless it already exists, so pair creation can always
// resolve it.
func (s *Service) CreateType(ctx context.Context, t common.RelationshipType) (common.RelationshipType, error) {
	if !slices.Contains(Categories, t.Category) {
		return common.RelationshipType{}, ErrInvalidCategory
	}
	normalizeType(&t)

	var created common.RelationshipType
	err := s.store.WithTx(ctx, func(tx store.Store) error {
		var err error
		created, err = tx.CreateRelationshipType(ctx, t)
		if err != nil {
			return err
		}
		if created.IsSymmetric {
			return nil
		}
		_, err = inverseType(ctx, tx, created)
		return err
	})
	if err != nil {
		return common.RelationshipType{}, err
	}
	return created, nil
}

// UpdateType rewrites a relationship type and keeps its inverse row in
// step: the inverse gets the swapped names and the same category. A type
// turned symmetric leaves its former inverse row alone since records may
// still use it; a type turned asymmetric gains an inverse row.
func (s *Service) UpdateType(ctx context.Context, t common.RelationshipType) (common.RelationshipType, error) {
	if !slices.Contains(Categories, t.Category) {
		return common.RelationshipType{}, ErrInvalidCategory
	}
	normalizeType(&t)

	var updated common.RelationshipType
	err := s.store.WithTx(ctx, func(tx store.Store) error {
		existing, err := tx.GetRelationshipType(ctx, t.ID)
		if err != nil {
			return err
		}
		inv, hasInverse, err := storedInverse(ctx, tx, existing)
		if err != nil {
			return err
		}

		updated, err = tx.UpdateRelationshipType(ctx, t)
		if err != nil {
			return err
		}
		if updated.IsSymmetric {
			return nil
		}
		if !hasInverse {
			_, err = inverseType(ctx, tx, updated)
			return err
		}
		if inv.Name == updated.InverseName && inv.InverseName == updated.Name && inv.Category == updated.Category {
			return nil
		}
		inv.Name = updated.InverseName
		inv.InverseName = updated.Name
		inv.Category = updated.Category
		inv.IsSymmetric = false
		if _, err := tx.UpdateRelationshipType(ctx, inv); err != nil {
			return err
		}
		logger.Debug("[Relation] synced inverse type", "id", inv.ID, "of", updated.ID)
		return nil
	})
	if err != nil {
		return common.RelationshipType{}, err
	}
	return updated, nil
}

// normalizeType gives symmetric types their own name as inverse name and
// marks a type whose inverse name equals its name as symmetric.
func normalizeType(t *common.RelationshipType) {
	if t.IsSymmetric || t.InverseName == "" {
		t.InverseName = t.Name
	}
	if t.InverseName == t.Name {
		t.IsSymmetric = true
	}
}

// storedInverse looks up the existing inverse row of t without creating
// one.
func storedInverse(ctx context.Context, tx store.Store, t common.RelationshipType) (common.RelationshipType, bool, error) {
	if t.IsSymmetric {
		return common.RelationshipType{}, false, nil
	}
	inv, err := tx.FindRelationshipType(ctx, t.InverseName, t.Name)
	if errors.Is(err, store.ErrNotFound) || (err == nil && inv.ID == t.ID) {
		return common.RelationshipType{}, false, nil
	}
	if err != nil {
		return common.RelationshipType{}, false, err
	}
	return inv, true, nil
}

// inverseType resolves the type with name and inverse name swapped,
// creating it when missing. Symmetric types are their own inverse.
func inverseType(ctx context.Context, tx store.Store, t common.RelationshipType) (common.RelationshipType, error) {
	if t.IsSymmetric {
		return t, nil
	}
	inv, err := tx.FindRelationshipType(ctx, t.InverseName, t.Name)
	if err == nil {
		return inv, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return common.RelationshipType{}, err
	}
	return tx.CreateRelationshipType(ctx, common.RelationshipType{
		Name:        t.InverseName,
		InverseName: t.Name,
		Category:    t.Category,
	})
}
