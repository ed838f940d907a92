// Package resolve turns template source references into local files or text.
package resolve

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/MimeLyc/timeline-renderer/internal/fetch"
	"github.com/MimeLyc/timeline-renderer/internal/template"
	"github.com/MimeLyc/timeline-renderer/pkg/log"
	"golang.org/x/sync/singleflight"
)

// Downloader fetches a URL into a local file.
type Downloader interface {
	Fetch(ctx context.Context, rawURL string) (string, error)
}

var (
	placeholderPattern = regexp.MustCompile(`^\{\{\s*([^{}\s]+)\s*\}\}$`)
	tokenPattern       = regexp.MustCompile(`\{\{\s*([^{}\s]+)\s*\}\}`)
)

type result struct {
	value string
	ok    bool
	err   error
}

// Session resolves references for one render job. Every distinct reference
// and every distinct URL is fetched at most once; downloaded files are
// tracked until Cleanup.
type Session struct {
	fetcher      Downloader
	placeholders map[string]string
	assets       map[string]template.Asset
	localDir     string

	group singleflight.Group

	mu    sync.Mutex
	refs  map[string]result
	urls  map[string]result
	temps []string
}

// NewSession binds the request's placeholder and asset tables. localDir is
// where uploaded files live.
func NewSession(fetcher Downloader, placeholders map[string]string, assets []template.Asset, localDir string) *Session {
	byID := make(map[string]template.Asset, len(assets))
	for _, a := range assets {
		if a.ID != "" {
			byID[a.ID] = a
		}
	}
	if placeholders == nil {
		placeholders = map[string]string{}
	}
	return &Session{
		fetcher:      fetcher,
		placeholders: placeholders,
		assets:       byID,
		localDir:     localDir,
		refs:         make(map[string]result),
		urls:         make(map[string]result),
	}
}

// PlaceholderKey extracts key from a "{{key}}" reference.
func PlaceholderKey(ref string) (string, bool) {
	m := placeholderPattern.FindStringSubmatch(strings.TrimSpace(ref))
	if m == nil {
		return "", false
	}
	return m[1], true
}

// Resolve maps a media reference to a local path. ok is false when the
// reference cannot be resolved and the block should be skipped; err is set
// only for fetch failures.
func (s *Session) Resolve(ctx context.Context, ref string) (path string, ok bool, err error) {
	r := s.memo(s.refs, "ref:"+ref, ref, func() result {
		return s.resolveRef(ctx, ref)
	})
	return r.value, r.ok, r.err
}

func (s *Session) resolveRef(ctx context.Context, ref string) result {
	ref = strings.TrimSpace(ref)
	if fetch.IsRemote(ref) {
		return s.fetchURL(ctx, ref)
	}

	key, isPlaceholder := PlaceholderKey(ref)
	if !isPlaceholder {
		return result{}
	}
	value, found := s.placeholders[key]
	if !found || strings.TrimSpace(value) == "" {
		log.Warn("placeholder %q has no value", key)
		return result{}
	}
	if fetch.IsRemote(value) {
		return s.fetchURL(ctx, value)
	}
	return s.resolveAsset(ctx, value)
}

func (s *Session) resolveAsset(ctx context.Context, id string) result {
	asset, found := s.assets[id]
	if !found || asset.URL == "" {
		log.Warn("asset %q not found", id)
		return result{}
	}
	if fetch.IsRemote(asset.URL) {
		return s.fetchURL(ctx, asset.URL)
	}

	local := filepath.Join(s.localDir, filepath.Base(asset.URL))
	if _, err := os.Stat(local); err != nil {
		log.Warn("asset %q: local file %s unavailable: %v", id, local, err)
		return result{}
	}
	return result{value: local, ok: true}
}

func (s *Session) fetchURL(ctx context.Context, rawURL string) result {
	return s.memo(s.urls, "url:"+rawURL, rawURL, func() result {
		p, err := s.fetcher.Fetch(ctx, rawURL)
		if err != nil {
			return result{err: err}
		}
		s.mu.Lock()
		s.temps = append(s.temps, p)
		s.mu.Unlock()
		return result{value: p, ok: true}
	})
}

// memo returns the cached result for key, computing it once even under
// concurrent callers.
func (s *Session) memo(cache map[string]result, flightKey, key string, compute func() result) result {
	s.mu.Lock()
	if r, hit := cache[key]; hit {
		s.mu.Unlock()
		return r
	}
	s.mu.Unlock()

	v, _, _ := s.group.Do(flightKey, func() (any, error) {
		s.mu.Lock()
		if r, hit := cache[key]; hit {
			s.mu.Unlock()
			return r, nil
		}
		s.mu.Unlock()

		r := compute()
		s.mu.Lock()
		cache[key] = r
		s.mu.Unlock()
		return r, nil
	})
	return v.(result)
}

// ResolveText loads subtitle content. URLs and asset files are read from
// disk; a placeholder whose value is neither is taken as literal content, as
// is any other non-empty reference.
func (s *Session) ResolveText(ctx context.Context, ref string) (string, bool, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", false, nil
	}

	if fetch.IsRemote(ref) {
		return s.readResult(s.fetchURL(ctx, ref))
	}

	key, isPlaceholder := PlaceholderKey(ref)
	if !isPlaceholder {
		return ref, true, nil
	}
	value, found := s.placeholders[key]
	if !found || strings.TrimSpace(value) == "" {
		log.Warn("subtitle placeholder %q has no value", key)
		return "", false, nil
	}
	if fetch.IsRemote(value) {
		return s.readResult(s.fetchURL(ctx, value))
	}
	if _, isAsset := s.assets[value]; isAsset {
		return s.readResult(s.resolveAsset(ctx, value))
	}
	return value, true, nil
}

func (s *Session) readResult(r result) (string, bool, error) {
	if r.err != nil {
		return "", false, r.err
	}
	if !r.ok {
		return "", false, nil
	}
	data, err := os.ReadFile(r.value)
	if err != nil {
		log.Warn("read subtitle source %s: %v", r.value, err)
		return "", false, nil
	}
	return string(data), true, nil
}

// SubstituteText replaces {{key}} tokens in text; unknown keys stay as-is.
func (s *Session) SubstituteText(text string) string {
	return tokenPattern.ReplaceAllStringFunc(text, func(token string) string {
		key := tokenPattern.FindStringSubmatch(token)[1]
		if v, ok := s.placeholders[key]; ok {
			return v
		}
		return token
	})
}

// TempFiles lists the files downloaded so far.
func (s *Session) TempFiles() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.temps...)
}

// Cleanup removes every downloaded file. Missing files are not an error.
func (s *Session) Cleanup() error {
	s.mu.Lock()
	temps := s.temps
	s.temps = nil
	s.mu.Unlock()

	var errList []error
	for _, p := range temps {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			errList = append(errList, err)
		}
	}
	return errors.Join(errList...)
}
