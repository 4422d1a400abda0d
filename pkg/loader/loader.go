package loader

import (
	"context"
	"encoding/base64"
	"mime"
	"path"
	"strings"
)

// Base64 is binary content prepared for a vision model.
type Base64 struct {
	Base64   string `json:"base64"`
	FileType string `json:"file_type"` // MIME type, e.g. image/jpeg
}

// DataURL returns the content as a data: URL.
func (b Base64) DataURL() string {
	return "data:" + b.FileType + ";base64," + b.Base64
}

// Source identifies content a Loader can read. Path is a filesystem path,
// an object key or a URL depending on the Loader.
type Source struct {
	ID   string
	Path string
}

// Loader reads the contents of a Source.
// Implementations may load files from disk, object storage or the web.
type Loader interface {
	Text(ctx context.Context, src Source) ([]byte, error)
	Base64(ctx context.Context, src Source) (Base64, error)
}

// CacheKey returns the key loaders use to cache results for src.
func CacheKey(src Source) string {
	if src.ID == "" {
		return src.Path
	}
	return src.ID + ":" + src.Path
}

// MimeType guesses the MIME type from the file extension of p.
func MimeType(p string) string {
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	if t := mime.TypeByExtension(strings.ToLower(path.Ext(p))); t != "" {
		if i := strings.IndexByte(t, ';'); i >= 0 {
			t = t[:i]
		}
		return t
	}
	return "application/octet-stream"
}

// Encode wraps raw bytes as Base64. An empty mimeType is guessed from name.
func Encode(data []byte, mimeType string, name string) Base64 {
	if mimeType == "" {
		mimeType = MimeType(name)
	}
	return Base64{
		Base64:   base64.StdEncoding.EncodeToString(data),
		FileType: mimeType,
	}
}
