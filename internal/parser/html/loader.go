package html

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"strings"
	"time"

	"sheetetl/internal/sheet"
)

// loader reads an HTML workbook from disk or over HTTP with one timeout
// policy.
type loader struct {
	client  *http.Client
	timeout time.Duration
}

func isURL(path string) bool {
	return strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://")
}

// open returns the document body for path. The caller closes it.
//
// On non-2xx HTTP responses the error includes the status code and up to
// 4KB of the response body.
func (l *loader) open(ctx context.Context, path string) (io.ReadCloser, error) {
	if !isURL(path) {
		f, err := os.Open(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("%w: %s", sheet.ErrFileNotFound, path)
			}
			return nil, fmt.Errorf("open %s: %w", path, err)
		}
		return f, nil
	}

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, path, nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("User-Agent", "sheetetl/1.0")

	resp, err := l.client.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("http get: %w", err)
	}
	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("%w: %s (http 404)", sheet.ErrFileNotFound, path)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("http status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return &cancelBody{ReadCloser: resp.Body, cancel: cancel}, nil
}

type cancelBody struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelBody) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}
