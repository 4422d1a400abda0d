package image

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/kinship-crm/kinship/pkg/ai/aitest"
	"github.com/kinship-crm/kinship/pkg/loader"
	fileloader "github.com/kinship-crm/kinship/pkg/loader/io"
)

func TestDescribe(t *testing.T) {
	dir := t.TempDir()
	img := filepath.Join(dir, "beach.jpg")
	if err := os.WriteFile(img, []byte{0xff, 0xd8, 0xff}, 0o600); err != nil {
		t.Fatal(err)
	}
	txt := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(txt, []byte("hello"), 0o600); err != nil {
		t.Fatal(err)
	}

	fake := &aitest.Fake{Description: "  Two people on a beach at sunset.\n"}
	d := NewDescriber(fake, fileloader.NewFileLoader())

	got, err := d.Describe(context.Background(), loader.Source{Path: img})
	if err != nil {
		t.Fatalf("Describe() error = %v", err)
	}
	if got != "Two people on a beach at sunset." {
		t.Errorf("Describe() = %q", got)
	}
	if len(fake.Images) != 1 || fake.Images[0].FileType != "image/jpeg" {
		t.Errorf("images sent = %+v", fake.Images)
	}

	if _, err := d.Describe(context.Background(), loader.Source{Path: txt}); !errors.Is(err, ErrNotImage) {
		t.Errorf("Describe(text) error = %v, want ErrNotImage", err)
	}
}
