package storage

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/kinship-crm/kinship/pkg/loader"
)

func TestNewKey(t *testing.T) {
	key, err := NewKey("photos/", "Beach.JPG")
	if err != nil {
		t.Fatalf("NewKey() error = %v", err)
	}
	if !strings.HasPrefix(key, "photos/") || !strings.HasSuffix(key, ".jpg") {
		t.Fatalf("NewKey() = %q", key)
	}
	other, _ := NewKey("photos", "Beach.JPG")
	if other == key {
		t.Fatal("NewKey() returned the same key twice")
	}
}

func TestMemoryBucket(t *testing.T) {
	ctx := context.Background()
	b := NewMemory("http://localhost:8080/files/")

	key, err := b.Put(ctx, "photos", "ann.png", []byte("png-bytes"))
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	got, err := b.Get(ctx, key)
	if err != nil || string(got) != "png-bytes" {
		t.Fatalf("Get() = %q, %v", got, err)
	}

	enc, err := b.Base64(ctx, loader.Source{ID: "1", Path: key})
	if err != nil {
		t.Fatalf("Base64() error = %v", err)
	}
	if enc.FileType != "image/png" {
		t.Fatalf("FileType = %q, want image/png", enc.FileType)
	}

	link, _ := b.URL(ctx, key)
	if link != "http://localhost:8080/files/"+key {
		t.Fatalf("URL() = %q", link)
	}

	if err := b.Delete(ctx, key); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := b.Get(ctx, key); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get() after delete error = %v, want ErrNotFound", err)
	}
}
