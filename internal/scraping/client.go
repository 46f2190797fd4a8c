package scraping

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"odds-crawler/internal/errs"
)

// PageFetcher retrieves documents from the source site. HTML pages go through
// FetchPage; the JSON/XHR endpoints go through FetchData, which sends the
// headers the site's client-side API expects.
type PageFetcher interface {
	FetchPage(ctx context.Context, url string) ([]byte, error)
	FetchData(ctx context.Context, url, referer string) ([]byte, error)
}

// ClientOptions parameterise the HTTP client.
type ClientOptions struct {
	BaseURL      string
	UserAgent    string
	Timeout      time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
}

// Client is the shared HTTP implementation of PageFetcher. All requests pass
// through the politeness budget and retry transient failures with
// exponential backoff.
type Client struct {
	opts    ClientOptions
	budget  Budget
	client  *http.Client
	logger  zerolog.Logger
	baseURL string
}

// NewClient constructs a budgeted fetcher.
func NewClient(opts ClientOptions, budget Budget, logger zerolog.Logger) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = time.Second
	}
	if budget == nil {
		budget = Unlimited()
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")

	return &Client{
		opts:    opts,
		budget:  budget,
		client:  &http.Client{Timeout: timeout},
		logger:  logger.With().Str("component", "scraping_client").Logger(),
		baseURL: baseURL,
	}
}

// BaseURL returns the configured site root.
func (c *Client) BaseURL() string { return c.baseURL }

// FetchPage retrieves an HTML document.
func (c *Client) FetchPage(ctx context.Context, url string) ([]byte, error) {
	headers := map[string]string{
		"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
		"Accept-Language": "en-US,en;q=0.5",
	}
	return c.fetch(ctx, url, headers)
}

// FetchData retrieves a JSON endpoint with the XHR headers the site expects.
func (c *Client) FetchData(ctx context.Context, url, referer string) ([]byte, error) {
	headers := map[string]string{
		"Accept":           "application/json, text/plain, */*",
		"X-Requested-With": "XMLHttpRequest",
	}
	if referer != "" {
		headers["Referer"] = referer
	}
	return c.fetch(ctx, url, headers)
}

func (c *Client) fetch(ctx context.Context, url string, headers map[string]string) ([]byte, error) {
	var lastErr error
	attempts := c.opts.MaxRetries + 1
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			backoff := c.opts.RetryBackoff << (attempt - 1)
			c.logger.Debug().Str("url", url).Int("attempt", attempt).Dur("backoff", backoff).Msg("retrying after transient failure")
			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
		}

		body, err := c.doOnce(ctx, url, headers)
		if err == nil {
			return body, nil
		}
		if !errs.IsTransient(err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("exhausted %d attempts for %s: %w", attempts, url, lastErr)
}

func (c *Client) doOnce(ctx context.Context, url string, headers map[string]string) ([]byte, error) {
	release, err := c.budget.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if ua := strings.TrimSpace(c.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, errs.Transient(err)
		}
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errs.Transient(err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return body, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, errs.Transient(fmt.Errorf("http %d from %s", resp.StatusCode, url))
	default:
		return nil, fmt.Errorf("http %d from %s", resp.StatusCode, url)
	}
}

func isTimeout(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

var _ PageFetcher = (*Client)(nil)
