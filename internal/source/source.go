// Package source validates and retrieves emote media from the 7TV CDN.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	"github.com/hszk-dev/emoteclip/internal/infrastructure/metrics"
)

const (
	// DefaultTimeout bounds one download end to end.
	DefaultTimeout = 15 * time.Second
	// DefaultMaxBytes caps the size of a downloaded emote.
	DefaultMaxBytes int64 = 32 << 20
)

// DefaultAllowedHosts are the host suffixes emotes may be fetched from.
var DefaultAllowedHosts = []string{"7tv.app", "7tvcdn.net"}

var (
	ErrInvalidURL       = errors.New("invalid URL")
	ErrHostNotAllowed   = errors.New("host not allowed")
	ErrUnexpectedStatus = errors.New("unexpected upstream status")
	ErrTooLarge         = errors.New("source exceeds size limit")
)

// ValidateURL checks that raw is an absolute http(s) URL whose host is one
// of allowed or a subdomain of one.
func ValidateURL(raw string, allowed []string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, ErrInvalidURL
	}

	host := strings.ToLower(u.Hostname())
	for _, suffix := range allowed {
		suffix = strings.ToLower(strings.TrimPrefix(suffix, "."))
		if host == suffix || strings.HasSuffix(host, "."+suffix) {
			return u, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrHostNotAllowed, host)
}

// Object is a fetched upstream file held in memory.
type Object struct {
	Body        []byte
	ContentType string
	Filename    string
}

// Downloader fetches emote media over HTTP with a size limit.
type Downloader struct {
	httpClient *http.Client
	maxBytes   int64
}

// NewDownloader creates a Downloader. Zero values select the defaults.
func NewDownloader(timeout time.Duration, maxBytes int64) *Downloader {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Downloader{
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   timeout / 3,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:          20,
				IdleConnTimeout:       90 * time.Second,
				ResponseHeaderTimeout: timeout / 2,
			},
		},
		maxBytes: maxBytes,
	}
}

// Download writes the body at rawURL to dest and returns the byte count.
// dest is removed when the download fails.
func (d *Downloader) Download(ctx context.Context, rawURL, dest string) (n int64, err error) {
	resp, err := d.get(ctx, rawURL)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	f, err := os.Create(dest)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", dest, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close %s: %w", dest, cerr)
		}
		if err != nil {
			_ = os.Remove(dest)
		}
	}()

	n, err = io.Copy(f, io.LimitReader(resp.Body, d.maxBytes+1))
	if err != nil {
		recordDownload(metrics.UpstreamError)
		return n, fmt.Errorf("read body: %w", err)
	}
	if n > d.maxBytes {
		recordDownload(metrics.UpstreamError)
		return n, ErrTooLarge
	}

	recordDownload(metrics.UpstreamSuccess)
	return n, nil
}

// Fetch reads the body at rawURL into memory for proxying.
func (d *Downloader) Fetch(ctx context.Context, rawURL string) (*Object, error) {
	resp, err := d.get(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, d.maxBytes+1))
	if err != nil {
		recordDownload(metrics.UpstreamError)
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > d.maxBytes {
		recordDownload(metrics.UpstreamError)
		return nil, ErrTooLarge
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	recordDownload(metrics.UpstreamSuccess)
	return &Object{
		Body:        body,
		ContentType: contentType,
		Filename:    filenameOf(resp.Request.URL),
	}, nil
}

func (d *Downloader) get(ctx context.Context, rawURL string) (*http.Response, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, ErrInvalidURL
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		recordDownload(metrics.UpstreamError)
		return nil, fmt.Errorf("download request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		recordDownload(metrics.UpstreamError)
		return nil, fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}
	return resp, nil
}

// filenameOf returns the unescaped last path segment, or "emote".
func filenameOf(u *url.URL) string {
	name := path.Base(u.Path)
	if name == "." || name == "/" || name == "" {
		return "emote"
	}
	return name
}

func recordDownload(status string) {
	metrics.UpstreamRequestsTotal.WithLabelValues(metrics.UpstreamDownload, status).Inc()
}
