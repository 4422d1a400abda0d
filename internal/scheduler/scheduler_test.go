package scheduler

import (
	"context"
	"errors"
	"testing"

	"github.com/kinship-crm/kinship/pkg/leaselock"
)

type fakeLocker struct {
	keys []string
	busy bool
}

func (f *fakeLocker) Do(ctx context.Context, key string, _ leaselock.Options, fn func(ctx context.Context) error) error {
	f.keys = append(f.keys, key)
	if f.busy {
		return leaselock.ErrBusy
	}
	return fn(ctx)
}

type fakeSweeper struct{ calls int }

func (f *fakeSweeper) SweepOrphans(context.Context) (int, error) {
	f.calls++
	return 2, nil
}

type fakeEmbedder struct{ limit int }

func (f *fakeEmbedder) EmbedMissing(_ context.Context, limit int) (int, error) {
	f.limit = limit
	return 0, errors.New("no model")
}

func TestRunNowUsesLease(t *testing.T) {
	locker := &fakeLocker{}
	s := New(locker, "worker-a")
	sweeper := &fakeSweeper{}
	if err := s.Add(SweepJob(sweeper, "@every 15m")); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	if err := s.RunNow(context.Background(), "relationship-sweep"); err != nil {
		t.Fatalf("RunNow() error = %v", err)
	}
	if sweeper.calls != 1 || len(locker.keys) != 1 || locker.keys[0] != "job:relationship-sweep" {
		t.Fatalf("calls = %d, keys = %v", sweeper.calls, locker.keys)
	}
}

func TestRunNowSkipsWhenBusy(t *testing.T) {
	s := New(&fakeLocker{busy: true}, "")
	sweeper := &fakeSweeper{}
	if err := s.Add(SweepJob(sweeper, "@every 15m")); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if err := s.RunNow(context.Background(), "relationship-sweep"); err != nil {
		t.Fatalf("RunNow() error = %v", err)
	}
	if sweeper.calls != 0 {
		t.Fatalf("job ran while lock was busy")
	}
}

func TestRunNowReportsJobError(t *testing.T) {
	s := New(nil, "")
	emb := &fakeEmbedder{}
	if err := s.Add(EmbedJob(emb, "@hourly", 50)); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if err := s.RunNow(context.Background(), "embedding-backfill"); err == nil {
		t.Fatal("RunNow() error = nil, want job error")
	}
	if emb.limit != 50 {
		t.Fatalf("limit = %d, want 50", emb.limit)
	}
}

func TestAddRejects(t *testing.T) {
	s := New(nil, "")
	if err := s.Add(Job{Name: "x", Schedule: "not a schedule", Run: func(context.Context) error { return nil }}); err == nil {
		t.Fatal("Add() accepted an invalid schedule")
	}
	job := Job{Name: "y", Schedule: "@daily", Run: func(context.Context) error { return nil }}
	if err := s.Add(job); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if err := s.Add(job); err == nil {
		t.Fatal("Add() accepted a duplicate name")
	}
	if err := s.RunNow(context.Background(), "missing"); err == nil {
		t.Fatal("RunNow() of unknown job succeeded")
	}
}
