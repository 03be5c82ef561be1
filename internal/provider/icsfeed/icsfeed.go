// Package icsfeed is a provider source for subscribed iCalendar feed URLs.
// Feeds are fetched with conditional requests (ETag / If-Modified-Since) and
// a disk-backed body cache so flaky feed hosts degrade to stale data instead
// of errors.
package icsfeed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"meetsched/internal/ical"
	appLog "meetsched/internal/log"
	"meetsched/internal/model"
)

const (
	metaFileName = "meta.json"
	bodyFileName = "body.ics"

	fetchTimeout = 15 * time.Second
)

// cacheMeta holds the conditional-request state for one feed URL.
type cacheMeta struct {
	URL          string    `json:"url"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Feed fetches iCalendar subscription feeds. The Fetch token is the feed URL.
type Feed struct {
	client   *http.Client
	cacheDir string
}

// New creates a feed source caching under cacheDir. An empty cacheDir uses a
// relative directory so development runs need no privileged paths.
func New(cacheDir string) *Feed {
	if cacheDir == "" {
		cacheDir = "./var/feed-cache"
	}
	return &Feed{
		client:   &http.Client{Timeout: fetchTimeout},
		cacheDir: cacheDir,
	}
}

func (f *Feed) Name() string { return "ics-feed" }

// Fetch downloads the feed at token, parses it and returns the events
// intersecting window. A 304 or a network failure falls back to the cached
// body when one exists.
func (f *Feed) Fetch(ctx context.Context, token string, window model.SearchRange) ([]model.Event, error) {
	body, err := f.fetchBody(ctx, token)
	if err != nil {
		return nil, err
	}

	cal, err := ical.Parse(string(body), feedLabel(token))
	if err != nil {
		return nil, err
	}

	var events []model.Event
	for _, e := range cal.Events {
		if e.Recurrence != nil || intersects(e, window) {
			events = append(events, e)
		}
	}
	return events, nil
}

func (f *Feed) fetchBody(ctx context.Context, feedURL string) ([]byte, error) {
	if feedURL == "" {
		return nil, errors.New("feed URL is empty")
	}

	cachePath := f.cachePath(feedURL)
	if err := os.MkdirAll(cachePath, 0o700); err != nil {
		return nil, err
	}

	meta, _ := loadMeta(cachePath)
	cached, _ := os.ReadFile(filepath.Join(cachePath, bodyFileName))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, err
	}
	if meta.ETag != "" {
		req.Header.Set("If-None-Match", meta.ETag)
	}
	if meta.LastModified != "" {
		req.Header.Set("If-Modified-Since", meta.LastModified)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		if len(cached) > 0 {
			appLog.Warn("feed fetch failed, using cached body", "url", redactURL(feedURL), "error", err.Error())
			return cached, nil
		}
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		if err := saveCache(cachePath, cacheMeta{
			URL:          feedURL,
			ETag:         resp.Header.Get("ETag"),
			LastModified: resp.Header.Get("Last-Modified"),
			UpdatedAt:    time.Now().UTC(),
		}, body); err != nil {
			appLog.Warn("feed cache save failed", "url", redactURL(feedURL), "error", err.Error())
		}
		appLog.Info("feed fetched", "url", redactURL(feedURL), "bytes", len(body))
		return body, nil

	case http.StatusNotModified:
		if len(cached) == 0 {
			return nil, errors.New("feed returned 304 but no cached body exists")
		}
		appLog.Debug("feed not modified, using cache", "url", redactURL(feedURL))
		return cached, nil

	default:
		if len(cached) > 0 {
			appLog.Warn("feed returned non-OK status, using cached body",
				"url", redactURL(feedURL), "status", resp.StatusCode)
			return cached, nil
		}
		return nil, errors.New("feed fetch failed: " + resp.Status)
	}
}

// cachePath keys the cache directory by a hash of the URL so tokens and
// query strings never land on disk as path components.
func (f *Feed) cachePath(feedURL string) string {
	sum := sha256.Sum256([]byte(feedURL))
	return filepath.Join(f.cacheDir, hex.EncodeToString(sum[:8]))
}

func loadMeta(cachePath string) (cacheMeta, error) {
	var meta cacheMeta
	data, err := os.ReadFile(filepath.Join(cachePath, metaFileName))
	if err != nil {
		return meta, err
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return cacheMeta{}, err
	}
	return meta, nil
}

func saveCache(cachePath string, meta cacheMeta, body []byte) error {
	// Body first, so metadata never references a missing body.
	if err := os.WriteFile(filepath.Join(cachePath, bodyFileName), body, 0o600); err != nil {
		return err
	}
	data, err := json.MarshalIndent(&meta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(cachePath, metaFileName), data, 0o600)
}

func intersects(e model.Event, window model.SearchRange) bool {
	return !e.Start.After(window.End) && !e.End.Before(window.Start)
}

// feedLabel derives a stable participant label from the feed host.
func feedLabel(feedURL string) string {
	u, err := url.Parse(feedURL)
	if err != nil || u.Host == "" {
		return "feed"
	}
	return "feed-" + u.Host
}

// redactURL keeps the scheme and host for logs and drops path, query and
// credentials. Feed URLs routinely embed access tokens.
func redactURL(feedURL string) string {
	u, err := url.Parse(feedURL)
	if err != nil || u.Host == "" {
		return "(redacted)"
	}
	return u.Scheme + "://" + u.Host + "/..."
}
