// Package fetch retrieves the remote catalog, checksum manifests, and
// per-assembly data files over HTTP and persists them byte-exact.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

const (
	// DefaultTimeout is the HTTP request timeout. Genomic archives run
	// to hundreds of megabytes, so this is generous.
	DefaultTimeout = 10 * time.Minute
	// DefaultUserAgent is the User-Agent header sent with requests.
	DefaultUserAgent = "refseqdl/1.0"
)

// Downloader performs blocking HTTP GETs with a shared client. Fetches
// are sequential and are not retried; a transport failure surfaces
// immediately to the caller.
type Downloader struct {
	client    *http.Client
	userAgent string
}

// NewDownloader creates a downloader with the default client settings.
func NewDownloader() *Downloader {
	return &Downloader{
		client: &http.Client{
			Timeout: DefaultTimeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				// Allow up to 10 redirects
				if len(via) >= 10 {
					return fmt.Errorf("too many redirects")
				}
				return nil
			},
		},
		userAgent: DefaultUserAgent,
	}
}

// Get fetches url and returns the response body. Used for the catalog
// and checksum manifests, which are consumed in memory.
func (d *Downloader) Get(ctx context.Context, url string) ([]byte, error) {
	resp, err := d.get(ctx, url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

// DownloadToFile fetches url and writes the body to destPath without
// any transformation: the persisted bytes must hash to the published
// checksum. The body is staged in a temp file and renamed into place so
// a failed fetch never leaves a partial file at destPath.
func (d *Downloader) DownloadToFile(ctx context.Context, url, destPath string) error {
	resp, err := d.get(ctx, url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	tmpPath := destPath + ".tmp"
	tmpFile, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	if _, err := io.Copy(tmpFile, resp.Body); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write body: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

func (d *Downloader) get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", d.userAgent)

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("GET %s: unexpected status code: %d", url, resp.StatusCode)
	}
	return resp, nil
}

// JoinURL appends a path element to a base URL.
func JoinURL(base, name string) string {
	return strings.TrimSuffix(base, "/") + "/" + name
}
