package scrape

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// DefaultUserAgent is sent with every request unless Fetcher.UserAgent is set.
const DefaultUserAgent = "buildidx"

// FetchError is returned when a URL could not be retrieved: either the
// request failed (Err != nil) or the server answered with a status other
// than 200 OK.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetching %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("fetching %s: unexpected HTTP status code: got %d, want %d", e.URL, e.StatusCode, http.StatusOK)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Fetcher issues GET requests on behalf of the scraper and the package
// downloader. A nil Limiter means no rate limit.
type Fetcher struct {
	Client    *http.Client
	Limiter   *rate.Limiter
	UserAgent string

	// Timeout bounds each request including reading its body, unless
	// Client sets its own timeout. Zero means no limit.
	Timeout time.Duration
}

func (f *Fetcher) client() *http.Client {
	c := http.DefaultClient
	if f == nil {
		return c
	}
	if f.Client != nil {
		c = f.Client
	}
	if f.Timeout > 0 && c.Timeout == 0 {
		withTimeout := *c
		withTimeout.Timeout = f.Timeout
		return &withTimeout
	}
	return c
}

// Get returns the response for uri. The caller must close the body. Any
// status but HTTP 200 results in a *FetchError.
func (f *Fetcher) Get(ctx context.Context, uri string) (*http.Response, error) {
	if f != nil && f.Limiter != nil {
		if err := f.Limiter.Wait(ctx); err != nil {
			return nil, &FetchError{URL: uri, Err: err}
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, &FetchError{URL: uri, Err: err}
	}
	ua := DefaultUserAgent
	if f != nil && f.UserAgent != "" {
		ua = f.UserAgent
	}
	req.Header.Set("User-Agent", ua)
	resp, err := f.client().Do(req)
	if err != nil {
		return nil, &FetchError{URL: uri, Err: err}
	}
	if got, want := resp.StatusCode, http.StatusOK; got != want {
		// Discard the Body (for Keep-Alive).
		io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		resp.Body.Close()
		return nil, &FetchError{URL: uri, StatusCode: got}
	}
	return resp, nil
}
