// Package fetch holds the HTTP helpers every provider shares.
package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"product-promo-pipeline/chain"
)

const userAgent = "Mozilla/5.0 (compatible; ProductPromoPipeline/1.0)"

// MaxDownload caps any single download
const MaxDownload = 200 * 1024 * 1024

// ErrTooLarge means a download exceeded MaxDownload and was discarded
var ErrTooLarge = errors.New("download exceeds size limit")

// NewClient returns the HTTP client providers use. The timeout is a backstop;
// per-attempt contexts from the provider chain are usually tighter.
func NewClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

// Download streams url into outPath and rejects bodies smaller than minBytes
// or larger than MaxDownload
func Download(ctx context.Context, client *http.Client, url, outPath string, minBytes int64) error {
	return download(ctx, client, url, outPath, minBytes, MaxDownload)
}

func download(ctx context.Context, client *http.Client, url, outPath string, minBytes, limit int64) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download %s: HTTP %d", url, resp.StatusCode)
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0755); err != nil {
		return err
	}
	f, err := os.Create(outPath)
	if err != nil {
		return err
	}
	n, err := io.Copy(f, io.LimitReader(resp.Body, limit+1))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && n > limit {
		err = ErrTooLarge
	}
	if err != nil {
		os.Remove(outPath)
		return fmt.Errorf("download %s: %w", url, err)
	}
	if n < minBytes {
		os.Remove(outPath)
		return fmt.Errorf("download %s: file too small (%d bytes)", url, n)
	}
	return nil
}

// GetJSON performs req and decodes a 2xx JSON body into v. Non-2xx answers
// become chain.StatusError, or chain.Initializing for retryStatus.
func GetJSON(client *http.Client, req *http.Request, provider string, retryStatus int, v any) error {
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", userAgent)
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16*1024*1024))
	if err != nil {
		return err
	}
	if err := chain.CheckStatus(provider, resp, body, retryStatus); err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%s: malformed response: %w", provider, err)
	}
	return nil
}

// Body performs req and returns the raw 2xx body
func Body(client *http.Client, req *http.Request, provider string, retryStatus int) ([]byte, error) {
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", userAgent)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxDownload+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > MaxDownload {
		return nil, fmt.Errorf("%s: %w", provider, ErrTooLarge)
	}
	if err := chain.CheckStatus(provider, resp, body, retryStatus); err != nil {
		return nil, err
	}
	return body, nil
}
