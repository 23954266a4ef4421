package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/sethvargo/go-retry"
	"golang.org/x/net/html/charset"

	"ReviewGuard/internal/config"
	"ReviewGuard/internal/document"
)

const (
	defaultMaxBytes = 8 << 20
	backoffBase     = 250 * time.Millisecond
)

// ErrTooLarge is returned when a page exceeds the configured size limit.
var ErrTooLarge = errors.New("page exceeds size limit")

// Fetcher downloads pages and decodes them to UTF-8 HTML trees.
type Fetcher struct {
	client    *http.Client
	userAgent string
	maxBytes  int64
	retries   uint64
	backoff   time.Duration
	logger    *slog.Logger
}

// NewFetcher builds a fetcher from configuration.
func NewFetcher(cfg config.FetchConfig, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout.Std()
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	maxBytes := cfg.MaxBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxBytes
	}
	return &Fetcher{
		client:    &http.Client{Timeout: timeout},
		userAgent: cfg.UserAgent,
		maxBytes:  maxBytes,
		retries:   cfg.Retries,
		backoff:   backoffBase,
		logger:    logger,
	}
}

// Fetch downloads pageURL. Network errors, 429 and 5xx responses are retried
// with Fibonacci backoff; other statuses fail immediately.
func (f *Fetcher) Fetch(ctx context.Context, pageURL string) (*goquery.Document, error) {
	backoff := retry.WithMaxRetries(f.retries, retry.NewFibonacci(f.backoff))

	attempt := 0
	doc, err := retry.DoValue(ctx, backoff, func(ctx context.Context) (*goquery.Document, error) {
		attempt++
		doc, err := f.fetchOnce(ctx, pageURL)
		if err != nil {
			f.logger.Debug("fetch attempt failed", "url", pageURL, "attempt", attempt, "error", err)
		}
		return doc, err
	})
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", pageURL, err)
	}
	return doc, nil
}

func (f *Fetcher) fetchOnce(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, retry.RetryableError(fmt.Errorf("do request: %w", err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError:
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, retry.RetryableError(fmt.Errorf("unexpected status %s", resp.Status))
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}

	return f.decode(resp.Body, resp.Header.Get("Content-Type"))
}

// decode enforces the size limit and converts the declared or sniffed charset.
func (f *Fetcher) decode(r io.Reader, contentType string) (*goquery.Document, error) {
	limited := &io.LimitedReader{R: r, N: f.maxBytes + 1}
	utf8Reader, err := charset.NewReader(limited, contentType)
	if err != nil {
		return nil, fmt.Errorf("detect charset: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(utf8Reader)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	if limited.N <= 0 {
		return nil, fmt.Errorf("%w (%d bytes)", ErrTooLarge, f.maxBytes)
	}
	return doc, nil
}

// Load opens source as a live document: http(s) URLs are fetched, anything
// else is read from disk.
func (f *Fetcher) Load(ctx context.Context, source string) (*document.Document, error) {
	if IsRemote(source) {
		doc, err := f.Fetch(ctx, source)
		if err != nil {
			return nil, err
		}
		return document.New(doc), nil
	}

	file, err := os.Open(source)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", source, err)
	}
	defer file.Close()

	doc, err := f.decode(file, "text/html")
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", source, err)
	}
	return document.New(doc), nil
}

// IsRemote reports whether source is an http(s) URL.
func IsRemote(source string) bool {
	u, err := url.Parse(strings.TrimSpace(source))
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
