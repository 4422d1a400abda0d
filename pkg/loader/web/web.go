package web

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/kinship-crm/kinship/pkg/loader"

	"codeberg.org/readeck/go-readability/v2"
	"golang.org/x/sync/singleflight"
)

// maxBody bounds how much of a page is read.
const maxBody = 5 << 20

// PageLoader fetches web pages and extracts their readable text.
// For HTML pages it uses readability to extract the main content.
type PageLoader struct {
	client *http.Client

	cache   map[string][]byte
	cacheMu sync.RWMutex
	group   singleflight.Group
}

// NewPageLoader creates a loader using client, or a client with a 30 second
// timeout when nil.
func NewPageLoader(client *http.Client) *PageLoader {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &PageLoader{
		client: client,
		cache:  make(map[string][]byte),
	}
}

func (l *PageLoader) fetch(ctx context.Context, rawURL string) (*http.Response, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid url: %q", rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch url: %w", err)
	}
	if resp.StatusCode >= 400 {
		resp.Body.Close()
		return nil, fmt.Errorf("failed to fetch url: status %d", resp.StatusCode)
	}
	return resp, nil
}

// Text fetches src.Path and returns its readable text. HTML is reduced to
// the main article, other content types are returned as-is.
func (l *PageLoader) Text(ctx context.Context, src loader.Source) ([]byte, error) {
	key := loader.CacheKey(src)

	l.cacheMu.RLock()
	if cached, ok := l.cache[key]; ok {
		l.cacheMu.RUnlock()
		return cached, nil
	}
	l.cacheMu.RUnlock()

	result, err, _ := l.group.Do(key, func() (any, error) {
		resp, err := l.fetch(ctx, src.Path)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		body := io.LimitReader(resp.Body, maxBody)

		var text []byte
		if strings.Contains(resp.Header.Get("Content-Type"), "text/html") {
			article, err := readability.FromReader(body, resp.Request.URL)
			if err != nil {
				return nil, fmt.Errorf("failed to parse html: %w", err)
			}
			var builder strings.Builder
			if err := article.RenderText(&builder); err != nil {
				return nil, fmt.Errorf("failed to render article text: %w", err)
			}
			text = []byte(strings.TrimSpace(builder.String()))
		} else {
			text, err = io.ReadAll(body)
			if err != nil {
				return nil, err
			}
		}

		l.cacheMu.Lock()
		l.cache[key] = text
		l.cacheMu.Unlock()

		return text, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]byte), nil
}

// Base64 fetches src.Path and returns its content encoded as base64.
func (l *PageLoader) Base64(ctx context.Context, src loader.Source) (loader.Base64, error) {
	resp, err := l.fetch(ctx, src.Path)
	if err != nil {
		return loader.Base64{}, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return loader.Base64{}, err
	}

	contentType := resp.Header.Get("Content-Type")
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = contentType[:i]
	}
	return loader.Encode(data, strings.TrimSpace(contentType), resp.Request.URL.Path), nil
}

var _ loader.Loader = (*PageLoader)(nil)
