package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kinship-crm/kinship/pkg/common"
	"github.com/kinship-crm/kinship/pkg/store"
)

func TestWriteDuringTxIsKept(t *testing.T) {
	ctx := context.Background()
	s := New()

	var txTag common.Tag
	inTx := make(chan struct{})
	release := make(chan struct{})
	txErr := make(chan error, 1)
	go func() {
		txErr <- s.WithTx(ctx, func(tx store.Store) error {
			var err error
			txTag, err = tx.CreateTag(ctx, common.Tag{Name: "family"})
			close(inTx)
			<-release
			return err
		})
	}()
	<-inTx

	created := make(chan common.Person, 1)
	go func() {
		p, err := s.CreatePerson(ctx, common.Person{FirstName: "Ana"})
		if err != nil {
			t.Errorf("CreatePerson() error = %v", err)
		}
		created <- p
	}()

	if _, n, err := s.ListTags(ctx, store.ListParams{}); err != nil || n != 0 {
		t.Fatalf("ListTags() during tx = %d, %v; want 0 uncommitted tags", n, err)
	}
	select {
	case <-created:
		t.Fatal("CreatePerson() finished while a transaction was open")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	if err := <-txErr; err != nil {
		t.Fatalf("WithTx() error = %v", err)
	}
	ana := <-created

	if ana.ID == txTag.ID {
		t.Fatalf("person and tag share id %d", ana.ID)
	}
	if _, err := s.GetPerson(ctx, ana.ID); err != nil {
		t.Errorf("GetPerson(%d) after commit error = %v", ana.ID, err)
	}
	if _, err := s.GetTag(ctx, txTag.ID); err != nil {
		t.Errorf("GetTag(%d) after commit error = %v", txTag.ID, err)
	}
}

func TestTxRollback(t *testing.T) {
	ctx := context.Background()
	s := New()
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(tx store.Store) error {
		if _, err := tx.CreatePerson(ctx, common.Person{FirstName: "Ben"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("WithTx() error = %v, want boom", err)
	}
	if _, n, _ := s.ListPersons(ctx, store.ListParams{}); n != 0 {
		t.Fatalf("ListPersons() = %d after rollback, want 0", n)
	}

	p, err := s.CreatePerson(ctx, common.Person{FirstName: "Cat"})
	if err != nil {
		t.Fatalf("CreatePerson() error = %v", err)
	}
	if p.ID != 1 {
		t.Errorf("CreatePerson() id = %d, want 1", p.ID)
	}
}
