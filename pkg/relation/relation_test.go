package relation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kinship-crm/kinship/pkg/common"
	"github.com/kinship-crm/kinship/pkg/store"
	"github.com/kinship-crm/kinship/pkg/store/memstore"
)

type fixture struct {
	svc    *Service
	store  *memstore.Store
	ann    common.Person
	ben    common.Person
	cat    common.Person
	friend common.RelationshipType
	parent common.RelationshipType
	child  common.RelationshipType
	mentor common.RelationshipType
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	s := memstore.New()
	svc := NewService(s)

	f := fixture{svc: svc, store: s}
	var err error
	for _, p := range []struct {
		dst  *common.Person
		name string
	}{{&f.ann, "Ann"}, {&f.ben, "Ben"}, {&f.cat, "Cat"}} {
		*p.dst, err = s.CreatePerson(ctx, common.Person{FirstName: p.name})
		if err != nil {
			t.Fatalf("CreatePerson(%s) error = %v", p.name, err)
		}
	}

	f.friend, err = svc.CreateType(ctx, common.RelationshipType{Name: "friend", Category: common.CategorySocial, IsSymmetric: true})
	if err != nil {
		t.Fatalf("CreateType(friend) error = %v", err)
	}
	f.parent, err = svc.CreateType(ctx, common.RelationshipType{
		Name: "parent", InverseName: "child", Category: common.CategoryFamily, AutoCreateInverse: true,
	})
	if err != nil {
		t.Fatalf("CreateType(parent) error = %v", err)
	}
	f.child, err = s.FindRelationshipType(ctx, "child", "parent")
	if err != nil {
		t.Fatalf("inverse type not created: %v", err)
	}
	f.mentor, err = svc.CreateType(ctx, common.RelationshipType{
		Name: "mentor", InverseName: "mentee", Category: common.CategoryProfessional,
	})
	if err != nil {
		t.Fatalf("CreateType(mentor) error = %v", err)
	}
	return f
}

func allRelationships(t *testing.T, s store.RelationshipStore) []common.Relationship {
	t.Helper()
	rs, _, err := s.ListRelationships(context.Background(), store.ListParams{})
	if err != nil {
		t.Fatal(err)
	}
	return rs
}

func TestCreateRejectsSelf(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Create(context.Background(), common.Relationship{
		PersonAID: f.ann.ID, PersonBID: f.ann.ID, RelationshipTypeID: f.friend.ID,
	})
	if !errors.Is(err, ErrSelfRelationship) {
		t.Fatalf("Create() error = %v, want %v", err, ErrSelfRelationship)
	}
}

func TestCreateRejectsUnknownPerson(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Create(context.Background(), common.Relationship{
		PersonAID: f.ann.ID, PersonBID: 999, RelationshipTypeID: f.friend.ID,
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("Create() error = %v, want not found", err)
	}
}

func TestCreateRejectsInvalidStrength(t *testing.T) {
	f := newFixture(t)
	s := 9
	_, err := f.svc.Create(context.Background(), common.Relationship{
		PersonAID: f.ann.ID, PersonBID: f.ben.ID, RelationshipTypeID: f.friend.ID, Strength: &s,
	})
	if !errors.Is(err, ErrInvalidStrength) {
		t.Fatalf("Create() error = %v, want %v", err, ErrInvalidStrength)
	}
}

func TestSymmetricSingleRecord(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	if _, err := f.svc.Create(ctx, common.Relationship{
		PersonAID: f.ann.ID, PersonBID: f.ben.ID, RelationshipTypeID: f.friend.ID,
	}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if got := len(allRelationships(t, f.store)); got != 1 {
		t.Fatalf("stored relationships = %d, want 1", got)
	}

	list, err := f.svc.ListForPerson(ctx, f.ben.ID)
	if err != nil {
		t.Fatalf("ListForPerson() error = %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("ListForPerson(ben) = %+v, want one entry", list)
	}
	got := list[0]
	if got.OtherPersonID != f.ann.ID || got.TypeName != "friend" || !got.Reversed {
		t.Fatalf("ListForPerson(ben)[0] = %+v, want friend Ann reversed", got)
	}

	_, err = f.svc.Create(ctx, common.Relationship{
		PersonAID: f.ben.ID, PersonBID: f.ann.ID, RelationshipTypeID: f.friend.ID,
	})
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("reverse Create() error = %v, want %v", err, ErrDuplicate)
	}
	_, err = f.svc.Create(ctx, common.Relationship{
		PersonAID: f.ann.ID, PersonBID: f.ben.ID, RelationshipTypeID: f.friend.ID,
	})
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("repeat Create() error = %v, want %v", err, ErrDuplicate)
	}
}

func TestAutoInversePair(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	strength := 4

	created, err := f.svc.Create(ctx, common.Relationship{
		PersonAID: f.ann.ID, PersonBID: f.ben.ID, RelationshipTypeID: f.parent.ID,
		Strength: &strength, Notes: "proud",
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	rels := allRelationships(t, f.store)
	if len(rels) != 2 {
		t.Fatalf("stored relationships = %d, want 2", len(rels))
	}
	if created.InverseID == nil {
		t.Fatal("manual half has no inverse link")
	}
	partner, err := f.store.GetRelationship(ctx, *created.InverseID)
	if err != nil {
		t.Fatalf("GetRelationship(partner) error = %v", err)
	}
	if !partner.AutoCreated || created.AutoCreated {
		t.Fatalf("auto_created flags = %v/%v, want false/true", created.AutoCreated, partner.AutoCreated)
	}
	if partner.PersonAID != f.ben.ID || partner.PersonBID != f.ann.ID || partner.RelationshipTypeID != f.child.ID {
		t.Fatalf("partner = %+v, want (ben, ann, child)", partner)
	}
	if partner.InverseID == nil || *partner.InverseID != created.ID {
		t.Fatalf("partner inverse = %v, want %d", partner.InverseID, created.ID)
	}
	if partner.Notes != "" {
		t.Fatalf("partner notes = %q, want empty", partner.Notes)
	}

	listAnn, _ := f.svc.ListForPerson(ctx, f.ann.ID)
	listBen, _ := f.svc.ListForPerson(ctx, f.ben.ID)
	if len(listAnn) != 1 || listAnn[0].TypeName != "parent" {
		t.Fatalf("ListForPerson(ann) = %+v", listAnn)
	}
	if len(listBen) != 1 || listBen[0].TypeName != "child" || listBen[0].Reversed {
		t.Fatalf("ListForPerson(ben) = %+v", listBen)
	}

	_, err = f.svc.Create(ctx, common.Relationship{
		PersonAID: f.ben.ID, PersonBID: f.ann.ID, RelationshipTypeID: f.child.ID,
	})
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("Create(child) error = %v, want %v", err, ErrDuplicate)
	}
}

func TestAsymmetricWithoutAutoInverse(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	if _, err := f.svc.Create(ctx, common.Relationship{
		PersonAID: f.ann.ID, PersonBID: f.cat.ID, RelationshipTypeID: f.mentor.ID,
	}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if got := len(allRelationships(t, f.store)); got != 1 {
		t.Fatalf("stored relationships = %d, want 1", got)
	}

	list, _ := f.svc.ListForPerson(ctx, f.cat.ID)
	if len(list) != 1 || list[0].TypeName != "mentee" || !list[0].Reversed {
		t.Fatalf("ListForPerson(cat) = %+v, want reversed mentee", list)
	}
}

func TestDeleteCascade(t *testing.T) {
	ctx := context.Background()

	t.Run("manual half removes partner", func(t *testing.T) {
		f := newFixture(t)
		created, err := f.svc.Create(ctx, common.Relationship{
			PersonAID: f.ann.ID, PersonBID: f.ben.ID, RelationshipTypeID: f.parent.ID,
		})
		if err != nil {
			t.Fatal(err)
		}
		if err := f.svc.Delete(ctx, created.ID); err != nil {
			t.Fatalf("Delete() error = %v", err)
		}
		if got := allRelationships(t, f.store); len(got) != 0 {
			t.Fatalf("remaining relationships = %+v, want none", got)
		}
	})

	t.Run("auto half keeps manual", func(t *testing.T) {
		f := newFixture(t)
		created, err := f.svc.Create(ctx, common.Relationship{
			PersonAID: f.ann.ID, PersonBID: f.ben.ID, RelationshipTypeID: f.parent.ID,
		})
		if err != nil {
			t.Fatal(err)
		}
		if err := f.svc.Delete(ctx, *created.InverseID); err != nil {
			t.Fatalf("Delete() error = %v", err)
		}
		got := allRelationships(t, f.store)
		if len(got) != 1 || got[0].ID != created.ID {
			t.Fatalf("remaining relationships = %+v, want only %d", got, created.ID)
		}
		if got[0].InverseID != nil {
			t.Fatalf("manual inverse link = %v, want cleared", *got[0].InverseID)
		}
	})

	t.Run("missing", func(t *testing.T) {
		f := newFixture(t)
		if err := f.svc.Delete(ctx, 404); !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("Delete() error = %v, want not found", err)
		}
	})
}

func TestUpdateKeepsDirectionalFields(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	s1, s2 := 2, 5

	created, err := f.svc.Create(ctx, common.Relationship{
		PersonAID: f.ann.ID, PersonBID: f.ben.ID, RelationshipTypeID: f.parent.ID, Strength: &s1,
	})
	if err != nil {
		t.Fatal(err)
	}

	start := common.NewDate(time.Date(2001, 5, 4, 0, 0, 0, 0, time.UTC))
	created.Strength = &s2
	created.Notes = "changed"
	created.StartDate = &start
	if _, err := f.svc.Update(ctx, created); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	partner, _ := f.store.GetRelationship(ctx, *created.InverseID)
	if partner.Strength == nil || *partner.Strength != s1 {
		t.Fatalf("partner strength = %v, want %d", partner.Strength, s1)
	}
	if partner.Notes != "" {
		t.Fatalf("partner notes = %q, want untouched", partner.Notes)
	}
	if partner.StartDate == nil || !partner.StartDate.Equal(start.Time) {
		t.Fatalf("partner start date = %v, want %v", partner.StartDate, start)
	}
}

func TestUpdateTypeChange(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	created, err := f.svc.Create(ctx, common.Relationship{
		PersonAID: f.ann.ID, PersonBID: f.ben.ID, RelationshipTypeID: f.parent.ID,
	})
	if err != nil {
		t.Fatal(err)
	}

	// parent -> mentor re-derives the partner as mentee
	created.RelationshipTypeID = f.mentor.ID
	updated, err := f.svc.Update(ctx, created)
	if err != nil {
		t.Fatalf("Update(mentor) error = %v", err)
	}
	partner, _ := f.store.GetRelationship(ctx, *updated.InverseID)
	mentee, _ := f.store.FindRelationshipType(ctx, "mentee", "mentor")
	if partner.RelationshipTypeID != mentee.ID {
		t.Fatalf("partner type = %d, want mentee %d", partner.RelationshipTypeID, mentee.ID)
	}

	// mentor -> friend drops the auto-created partner
	updated.RelationshipTypeID = f.friend.ID
	updated, err = f.svc.Update(ctx, updated)
	if err != nil {
		t.Fatalf("Update(friend) error = %v", err)
	}
	if updated.InverseID != nil {
		t.Fatalf("symmetric record keeps inverse link %d", *updated.InverseID)
	}
	if got := len(allRelationships(t, f.store)); got != 1 {
		t.Fatalf("stored relationships = %d, want 1", got)
	}

	// friend -> parent creates a new partner
	updated.RelationshipTypeID = f.parent.ID
	updated, err = f.svc.Update(ctx, updated)
	if err != nil {
		t.Fatalf("Update(parent) error = %v", err)
	}
	if updated.InverseID == nil {
		t.Fatal("asymmetric auto-inverse record has no partner")
	}
	if got := len(allRelationships(t, f.store)); got != 2 {
		t.Fatalf("stored relationships = %d, want 2", got)
	}
}

func TestListForPersonOrdering(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	old := common.NewDate(time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC))
	if _, err := f.svc.Create(ctx, common.Relationship{
		PersonAID: f.ann.ID, PersonBID: f.cat.ID, RelationshipTypeID: f.friend.ID,
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Create(ctx, common.Relationship{
		PersonAID: f.ben.ID, PersonBID: f.ann.ID, RelationshipTypeID: f.friend.ID, StartDate: &old,
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Create(ctx, common.Relationship{
		PersonAID: f.ann.ID, PersonBID: f.ben.ID, RelationshipTypeID: f.mentor.ID,
	}); err != nil {
		t.Fatal(err)
	}

	list, err := f.svc.ListForPerson(ctx, f.ann.ID)
	if err != nil {
		t.Fatal(err)
	}
	want := []struct {
		typeName string
		other    int64
	}{
		{"friend", f.ben.ID},
		{"friend", f.cat.ID},
		{"mentor", f.ben.ID},
	}
	if len(list) != len(want) {
		t.Fatalf("ListForPerson() = %+v", list)
	}
	for i, w := range want {
		if list[i].TypeName != w.typeName || list[i].OtherPersonID != w.other {
			t.Fatalf("ListForPerson()[%d] = %+v, want %s with %d", i, list[i], w.typeName, w.other)
		}
	}

	if _, err := f.svc.ListForPerson(ctx, 999); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("ListForPerson(missing) error = %v, want not found", err)
	}
}

func TestSweepOrphans(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	created, err := f.svc.Create(ctx, common.Relationship{
		PersonAID: f.ann.ID, PersonBID: f.ben.ID, RelationshipTypeID: f.parent.ID,
	})
	if err != nil {
		t.Fatal(err)
	}
	// bypass the service, as a raw delete would
	if err := f.store.DeleteRelationship(ctx, created.ID); err != nil {
		t.Fatal(err)
	}

	n, err := f.svc.SweepOrphans(ctx)
	if err != nil {
		t.Fatalf("SweepOrphans() error = %v", err)
	}
	if n != 1 {
		t.Fatalf("SweepOrphans() = %d, want 1", n)
	}
	if got := allRelationships(t, f.store); len(got) != 0 {
		t.Fatalf("remaining relationships = %+v", got)
	}
}

func TestCreateType(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	if _, err := f.svc.CreateType(ctx, common.RelationshipType{Name: "x", Category: "pets"}); !errors.Is(err, ErrInvalidCategory) {
		t.Fatalf("CreateType() error = %v, want %v", err, ErrInvalidCategory)
	}
	if f.friend.InverseName != "friend" || !f.friend.IsSymmetric {
		t.Fatalf("friend type = %+v", f.friend)
	}
	if f.child.Category != common.CategoryFamily || f.child.AutoCreateInverse {
		t.Fatalf("derived child type = %+v", f.child)
	}
}

func TestUpdateRejectsEndpointChange(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	created, err := f.svc.Create(ctx, common.Relationship{
		PersonAID: f.ann.ID, PersonBID: f.ben.ID, RelationshipTypeID: f.friend.ID,
	})
	if err != nil {
		t.Fatal(err)
	}

	moved := created
	moved.PersonBID = f.cat.ID
	if _, err := f.svc.Update(ctx, moved); !errors.Is(err, ErrEndpointsChanged) {
		t.Fatalf("Update() error = %v, want %v", err, ErrEndpointsChanged)
	}
	got, _ := f.store.GetRelationship(ctx, created.ID)
	if got.PersonBID != f.ben.ID {
		t.Fatalf("person_b = %d after rejected update, want %d", got.PersonBID, f.ben.ID)
	}
}

func TestUpdateTypeSyncsInverse(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	parent := f.parent
	parent.InverseName = "kid"
	parent.Category = common.CategoryCustom
	updated, err := f.svc.UpdateType(ctx, parent)
	if err != nil {
		t.Fatalf("UpdateType() error = %v", err)
	}
	if updated.InverseName != "kid" || updated.IsSymmetric {
		t.Fatalf("UpdateType() = %+v", updated)
	}

	inv, err := f.store.GetRelationshipType(ctx, f.child.ID)
	if err != nil {
		t.Fatalf("GetRelationshipType(child) error = %v", err)
	}
	if inv.Name != "kid" || inv.InverseName != "parent" || inv.Category != common.CategoryCustom {
		t.Fatalf("inverse type = %+v, want kid/parent in custom", inv)
	}
	if _, err := f.store.FindRelationshipType(ctx, "child", "parent"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("stale child/parent row still present: %v", err)
	}

	// editing the inverse side updates the forward row too
	inv.Name = "offspring"
	if _, err := f.svc.UpdateType(ctx, inv); err != nil {
		t.Fatalf("UpdateType(inverse) error = %v", err)
	}
	fwd, _ := f.store.GetRelationshipType(ctx, f.parent.ID)
	if fwd.InverseName != "offspring" {
		t.Fatalf("forward type = %+v, want inverse name offspring", fwd)
	}
}

func TestUpdateTypeEdges(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	bad := f.friend
	bad.Category = "pets"
	if _, err := f.svc.UpdateType(ctx, bad); !errors.Is(err, ErrInvalidCategory) {
		t.Fatalf("UpdateType() error = %v, want %v", err, ErrInvalidCategory)
	}

	// symmetric to asymmetric gains an inverse row
	friend := f.friend
	friend.IsSymmetric = false
	friend.InverseName = "befriended"
	if _, err := f.svc.UpdateType(ctx, friend); err != nil {
		t.Fatalf("UpdateType() error = %v", err)
	}
	if _, err := f.store.FindRelationshipType(ctx, "befriended", "friend"); err != nil {
		t.Fatalf("inverse row not created: %v", err)
	}

	// asymmetric to symmetric leaves the old inverse row in place
	parent := f.parent
	parent.IsSymmetric = true
	updated, err := f.svc.UpdateType(ctx, parent)
	if err != nil {
		t.Fatalf("UpdateType() error = %v", err)
	}
	if updated.InverseName != "parent" {
		t.Fatalf("UpdateType() inverse name = %q, want parent", updated.InverseName)
	}
	if _, err := f.store.GetRelationshipType(ctx, f.child.ID); err != nil {
		t.Fatalf("child row removed: %v", err)
	}

	missing := f.mentor
	missing.ID = 999
	if _, err := f.svc.UpdateType(ctx, missing); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("UpdateType() error = %v, want %v", err, store.ErrNotFound)
	}
}
