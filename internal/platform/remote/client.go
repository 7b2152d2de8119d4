package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

var ErrFetch = errors.New("remote fetch failed")

// FetchError is returned for transport failures and non-2xx responses.
type FetchError struct {
	URL        string
	StatusCode int // zero for transport failures
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("There was an error getting the url %s: %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("There was an error getting the url %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

func (e *FetchError) Is(target error) bool { return target == ErrFetch }

type Client struct {
	httpClient *http.Client
	userAgent  string
	limiter    *rate.Limiter
}

// NewClient builds a fetcher. rps <= 0 disables rate limiting.
func NewClient(userAgent string, rps float64, timeout time.Duration) *Client {
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		userAgent: userAgent,
		limiter:   rate.NewLimiter(limit, 1),
	}
}

// Fetch downloads url into dest. The body is written to a hidden temporary file
// next to dest and renamed over it once complete, so dest is either the old file
// or the complete new one.
func (c *Client) Fetch(ctx context.Context, url, dest string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return &FetchError{URL: url, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return &FetchError{URL: url, Err: err}
	}
	req.Header.Set("User-Agent", c.userAgent)

	log.Info("Downloading remote file", "url", url, "dest", dest)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &FetchError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// drain a little so the connection can be reused
		_, _ = io.CopyN(io.Discard, resp.Body, 4<<10)
		return &FetchError{URL: url, StatusCode: resp.StatusCode, Err: fmt.Errorf("unexpected status code: %d", resp.StatusCode)}
	}

	n, err := writeFileAtomic(dest, resp.Body)
	if err != nil {
		return &FetchError{URL: url, Err: err}
	}
	log.Info("Downloaded remote file", "url", url, "dest", dest, "size", humanize.Bytes(uint64(n)))
	return nil
}

// writeFileAtomic copies r into a temp file in dest's directory and renames it onto dest.
func writeFileAtomic(dest string, r io.Reader) (int64, error) {
	dir, base := filepath.Split(dest)
	if dir == "" {
		dir = "."
	}
	tmpPath := filepath.Join(dir, "."+base+".tmp-"+uuid.NewString())

	out, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(out, r)
	if err == nil {
		err = out.Sync()
	}
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmpPath)
		return 0, err
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		os.Remove(tmpPath)
		return 0, err
	}
	return n, nil
}

// WriteFile stores r at dest with the same temp-then-rename guarantee as Fetch.
func WriteFile(dest string, r io.Reader) (int64, error) {
	return writeFileAtomic(dest, r)
}
