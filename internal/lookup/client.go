// Package lookup implements the outbound half of the pipeline: the HTTP
// client that queries third-party lookup APIs, the shaper that normalizes
// their payloads into a branded envelope, and the redactor that strips
// configured brand strings from rendered text.
package lookup

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"lookupbot/internal/domain"
)

// Client performs one bounded-timeout GET per invocation. There are no
// retries: the caller surfaces the failure to the user immediately.
type Client struct {
	http   *http.Client
	logger *slog.Logger
}

func NewClient(timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	transport := &http.Transport{
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: timeout,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &Client{
		http: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		logger: logger,
	}
}

// Fetch performs a single GET against url. Every outcome funnels into the
// LookupResult union; no error escapes this boundary.
func (c *Client) Fetch(ctx context.Context, url string) domain.LookupResult {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		c.logger.Warn("lookup request build failed", "err", err)
		return domain.LookupResult{Reason: domain.FailNetwork}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if isTimeout(err) {
			c.logger.Warn("lookup timed out", "url", url)
			return domain.LookupResult{Reason: domain.FailTimeout}
		}
		c.logger.Warn("lookup transport error", "url", url, "err", err)
		return domain.LookupResult{Reason: domain.FailNetwork}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("lookup non-200 status", "url", url, "status", resp.StatusCode)
		return domain.LookupResult{Reason: domain.FailHTTP, Status: resp.StatusCode}
	}

	var payload any
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(&payload); err != nil {
		c.logger.Warn("lookup body not valid JSON", "url", url, "err", err)
		return domain.LookupResult{Reason: domain.FailDecode}
	}

	return domain.LookupResult{Payload: payload}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
