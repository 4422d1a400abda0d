// Package storage keeps uploaded photo files. Objects are addressed by
// keys of the form "<prefix>/<nanoid>.<ext>".
package storage

import (
	"context"
	"errors"
	"path"
	"strings"
	"sync"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/kinship-crm/kinship/pkg/loader"
)

var ErrNotFound = errors.New("object not found")

// Bucket stores binary objects. Buckets also satisfy loader.Loader so the
// image describer can read photos straight from storage.
type Bucket interface {
	loader.Loader
	Put(ctx context.Context, prefix, name string, data []byte) (string, error)
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	// URL returns a link a browser can fetch the object from.
	URL(ctx context.Context, key string) (string, error)
}

// NewKey builds a fresh object key that keeps the extension of name.
func NewKey(prefix, name string) (string, error) {
	id, err := gonanoid.New()
	if err != nil {
		return "", err
	}
	ext := strings.ToLower(path.Ext(name))
	return strings.TrimSuffix(prefix, "/") + "/" + id + ext, nil
}

// Memory is a Bucket held in process memory. It backs the server when no
// object storage is configured and is used in tests.
type Memory struct {
	mu      sync.RWMutex
	objects map[string][]byte
	baseURL string
}

// NewMemory returns an empty bucket whose URLs are baseURL + "/" + key.
func NewMemory(baseURL string) *Memory {
	return &Memory{objects: map[string][]byte{}, baseURL: strings.TrimSuffix(baseURL, "/")}
}

func (m *Memory) Put(_ context.Context, prefix, name string, data []byte) (string, error) {
	key, err := NewKey(prefix, name)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	m.objects[key] = append([]byte(nil), data...)
	m.mu.Unlock()
	return key, nil
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.objects, key)
	m.mu.Unlock()
	return nil
}

func (m *Memory) URL(_ context.Context, key string) (string, error) {
	return m.baseURL + "/" + key, nil
}

func (m *Memory) Text(ctx context.Context, src loader.Source) ([]byte, error) {
	return m.Get(ctx, src.Path)
}

func (m *Memory) Base64(ctx context.Context, src loader.Source) (loader.Base64, error) {
	data, err := m.Get(ctx, src.Path)
	if err != nil {
		return loader.Base64{}, err
	}
	return loader.Encode(data, "", src.Path), nil
}

var _ Bucket = (*Memory)(nil)
