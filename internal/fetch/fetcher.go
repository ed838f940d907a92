// Package fetch downloads remote sources into temporary files.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	"github.com/MimeLyc/timeline-renderer/internal/errs"
	"github.com/MimeLyc/timeline-renderer/internal/metrics"
	"github.com/MimeLyc/timeline-renderer/pkg/log"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	DefaultTimeout      = 60 * time.Second
	DefaultMaxRedirects = 5
)

// Fetcher streams URLs to uniquely named files under a temp directory.
type Fetcher struct {
	client       *http.Client
	dir          string
	timeout      time.Duration
	maxRedirects int
}

type Option func(*Fetcher)

func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) {
		if d > 0 {
			f.timeout = d
		}
	}
}

func WithMaxRedirects(n int) Option {
	return func(f *Fetcher) {
		if n >= 0 {
			f.maxRedirects = n
		}
	}
}

// WithTransport swaps the round tripper, mainly for tests.
func WithTransport(rt http.RoundTripper) Option {
	return func(f *Fetcher) {
		f.client.Transport = rt
	}
}

// New creates a fetcher writing into dir (os.TempDir when empty).
func New(dir string, opts ...Option) *Fetcher {
	f := &Fetcher{
		client: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			// redirects are followed by fetch itself so the hop count is visible
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		dir:          dir,
		timeout:      DefaultTimeout,
		maxRedirects: DefaultMaxRedirects,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *Fetcher) Dir() string {
	if f.dir == "" {
		return os.TempDir()
	}
	return f.dir
}

// Fetch downloads rawURL and returns the local path. On any failure the
// partial file is removed before the error is returned.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	started := time.Now()
	p, err := f.fetch(ctx, rawURL)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded || errors.Is(err, context.DeadlineExceeded) {
			err = errs.NewWithCause(errs.ErrTimeout,
				fmt.Sprintf("fetch timeout after %s", f.timeout), err).WithContext("url", rawURL)
		}
		metrics.FetchTotal.WithLabelValues("error").Inc()
		log.Warn("fetch %s failed: %v", rawURL, err)
		return "", err
	}

	metrics.FetchTotal.WithLabelValues("ok").Inc()
	log.Debug("fetched %s -> %s in %s", rawURL, p, time.Since(started).Round(time.Millisecond))
	return p, nil
}

func (f *Fetcher) fetch(ctx context.Context, rawURL string) (string, error) {
	for hops := 0; ; hops++ {
		resp, err := f.get(ctx, rawURL)
		if err != nil {
			return "", err
		}

		if !isRedirect(resp.StatusCode) {
			return f.receive(resp, rawURL)
		}

		next, err := f.redirectTarget(resp, hops)
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
		if err != nil {
			return "", err
		}
		rawURL = next
	}
}

func (f *Fetcher) get(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, errs.NewWithCause(errs.ErrNetwork, "invalid url", err).WithContext("url", rawURL)
	}
	req.Header.Set("User-Agent", "timeline-renderer/1.0")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, errs.NewWithCause(errs.ErrNetwork, "request failed", err).WithContext("url", rawURL)
	}
	return resp, nil
}

func (f *Fetcher) receive(resp *http.Response, rawURL string) (string, error) {
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", errs.Newf(errs.ErrNetwork, "unexpected status %d", resp.StatusCode).WithContext("url", rawURL)
	}
	return f.save(resp.Body, extensionOf(resp.Request.URL))
}

func (f *Fetcher) redirectTarget(resp *http.Response, hops int) (string, error) {
	location := resp.Header.Get("Location")
	if location == "" {
		return "", errs.Newf(errs.ErrNetwork, "redirect %d without location", resp.StatusCode)
	}
	if hops >= f.maxRedirects {
		return "", errs.Newf(errs.ErrNetwork, "too many redirects (%d)", hops+1).WithContext("location", location)
	}
	target, err := resp.Request.URL.Parse(location)
	if err != nil {
		return "", errs.NewWithCause(errs.ErrNetwork, "broken redirect location", err).WithContext("location", location)
	}
	return target.String(), nil
}

func (f *Fetcher) save(body io.Reader, ext string) (path string, err error) {
	if err := os.MkdirAll(f.Dir(), 0o755); err != nil {
		return "", errs.NewWithCause(errs.ErrFileWrite, "create temp dir", err)
	}
	out, err := os.CreateTemp(f.Dir(), "fetch-*"+ext)
	if err != nil {
		return "", errs.NewWithCause(errs.ErrFileWrite, "create temp file", err)
	}
	defer func() {
		if err != nil {
			_ = out.Close()
			_ = os.Remove(out.Name())
		}
	}()

	n, err := io.Copy(out, body)
	metrics.FetchBytes.Add(float64(n))
	if err != nil {
		return "", errs.NewWithCause(errs.ErrNetwork, "download interrupted", err)
	}
	if err := out.Close(); err != nil {
		return "", errs.NewWithCause(errs.ErrFileWrite, "close temp file", err)
	}
	return out.Name(), nil
}

func isRedirect(status int) bool {
	switch status {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	}
	return false
}

// extensionOf keeps the URL's extension so the engine can sniff the format.
func extensionOf(u *url.URL) string {
	ext := strings.ToLower(path.Ext(u.Path))
	if len(ext) > 6 || strings.ContainsAny(ext, "/\\") {
		return ""
	}
	return ext
}

// IsRemote reports whether ref is an http(s) URL.
func IsRemote(ref string) bool {
	lower := strings.ToLower(strings.TrimSpace(ref))
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}
