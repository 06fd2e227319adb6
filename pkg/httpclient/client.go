package httpclient

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// ClientType represents the header profile used for requests
type ClientType string

const (
	// BrowserClient uses browser-like headers. michigan.gov and the Legistar
	// calendar both reject plain Go requests but accept a browser profile.
	BrowserClient ClientType = "browser"

	// PlainClient identifies the scraper honestly. Used for feeds (Trumba)
	// that serve any User-Agent.
	PlainClient ClientType = "plain"
)

// Client wraps an http.Client with a header profile, a request timeout, and
// a politeness rate limiter shared by every request to the same source.
type Client struct {
	client     *http.Client
	clientType ClientType
	limiter    *rate.Limiter
}

// New creates a client for one source. rps bounds outbound requests per
// second against that source's site; rps <= 0 disables the limiter.
func New(clientType ClientType, timeout time.Duration, rps float64) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	var limiter *rate.Limiter
	if rps > 0 {
		limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}

	return &Client{
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
		clientType: clientType,
		limiter:    limiter,
	}
}

// Do executes a request after waiting for the rate limiter, with the
// profile's headers applied.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(req.Context()); err != nil {
			return nil, err
		}
	}
	c.setHeaders(req)
	return c.client.Do(req)
}

// Get is a convenience method for context-aware GET requests.
func (c *Client) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	return c.Do(req)
}

func (c *Client) setHeaders(req *http.Request) {
	switch c.clientType {
	case BrowserClient:
		req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36")
		req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
		req.Header.Set("Accept-Language", "en-US,en;q=0.9")
		req.Header.Set("Connection", "keep-alive")
		req.Header.Set("Upgrade-Insecure-Requests", "1")

	case PlainClient:
		req.Header.Set("User-Agent", "civic-watch/1.0 (+public records aggregation)")
	}
}
