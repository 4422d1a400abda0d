// Package io reads sources from the local filesystem.
package io

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sync"

	"github.com/kinship-crm/kinship/pkg/loader"

	"golang.org/x/sync/singleflight"
)

// DefaultMaxSize matches the server's photo upload limit.
const DefaultMaxSize = 20 << 20

// FileLoader reads local files and keeps their contents for reuse.
type FileLoader struct {
	MaxSize int64

	cache   map[string][]byte
	cacheMu sync.RWMutex
	group   singleflight.Group
}

func NewFileLoader() *FileLoader {
	return &FileLoader{
		MaxSize: DefaultMaxSize,
		cache:   make(map[string][]byte),
	}
}

// Text returns the raw bytes of src.Path. Directories and files larger
// than MaxSize are rejected.
func (l *FileLoader) Text(ctx context.Context, src loader.Source) ([]byte, error) {
	key := loader.CacheKey(src)

	l.cacheMu.RLock()
	data, ok := l.cache[key]
	l.cacheMu.RUnlock()
	if ok {
		return data, nil
	}

	result, err, _ := l.group.Do(key, func() (any, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		info, err := os.Stat(src.Path)
		if err != nil {
			return nil, err
		}
		if info.IsDir() {
			return nil, fmt.Errorf("%s is a directory", src.Path)
		}
		if l.MaxSize > 0 && info.Size() > l.MaxSize {
			return nil, fmt.Errorf("%s is %d bytes, limit is %d", src.Path, info.Size(), l.MaxSize)
		}
		data, err := os.ReadFile(src.Path)
		if err != nil {
			return nil, err
		}

		l.cacheMu.Lock()
		l.cache[key] = data
		l.cacheMu.Unlock()
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]byte), nil
}

// Base64 returns the file encoded for a vision model. The MIME type comes
// from the extension, or from the content when the extension is unknown.
func (l *FileLoader) Base64(ctx context.Context, src loader.Source) (loader.Base64, error) {
	data, err := l.Text(ctx, src)
	if err != nil {
		return loader.Base64{}, err
	}
	return loader.Encode(data, ContentType(data, src.Path), src.Path), nil
}

// ContentType guesses the MIME type of a local file.
func ContentType(data []byte, name string) string {
	if t := loader.MimeType(name); t != "application/octet-stream" {
		return t
	}
	t := http.DetectContentType(data)
	for i := range len(t) {
		if t[i] == ';' {
			return t[:i]
		}
	}
	return t
}

var _ loader.Loader = (*FileLoader)(nil)
