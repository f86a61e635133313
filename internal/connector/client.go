package connector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/uniboxhq/inbox-sync/internal/model"
	"github.com/uniboxhq/inbox-sync/pkg/circuitbreaker"
	apperrors "github.com/uniboxhq/inbox-sync/pkg/errors"
)

// httpClient wraps provider HTTP calls with the shared policies every
// connector needs: bounded timeout, client-side rate limiting, a
// circuit breaker per provider, and status-to-error mapping.
type httpClient struct {
	source  model.SourceKind
	client  *http.Client
	limiter *rate.Limiter
	breaker *circuitbreaker.CircuitBreaker
}

func newHTTPClient(source model.SourceKind, timeout time.Duration, rps float64) *httpClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if rps <= 0 {
		rps = 5
	}
	return &httpClient{
		source:  source,
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(rps), int(rps)+1),
		breaker: circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{
			Name:        string(source),
			MaxFailures: 5,
			Timeout:     30 * time.Second,
		}),
	}
}

func (c *httpClient) getJSON(ctx context.Context, url, token string, out interface{}) error {
	return c.doJSON(ctx, http.MethodGet, url, token, nil, out)
}

func (c *httpClient) postJSON(ctx context.Context, url, token string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request body: %w", err)
	}
	return c.doJSON(ctx, http.MethodPost, url, token, payload, out)
}

func (c *httpClient) doJSON(ctx context.Context, method, url, token string, body []byte, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return apperrors.TransientNetwork(string(c.source), err)
	}

	var raw []byte
	err := c.breaker.Execute(func() error {
		var reqBody io.Reader
		if body != nil {
			reqBody = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
		if err != nil {
			return apperrors.TransientNetwork(string(c.source), err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.client.Do(req)
		if err != nil {
			return apperrors.TransientNetwork(string(c.source), err)
		}
		defer resp.Body.Close()

		if err := c.checkStatus(resp); err != nil {
			return err
		}

		raw, err = io.ReadAll(io.LimitReader(resp.Body, 16<<20))
		if err != nil {
			return apperrors.TransientNetwork(string(c.source), err)
		}
		return nil
	})
	if err == circuitbreaker.ErrOpen {
		return apperrors.TransientNetwork(string(c.source), err)
	}
	if err != nil {
		return err
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return apperrors.MalformedPayload(string(c.source), err)
	}
	return nil
}

// checkStatus maps provider HTTP status codes onto the sync error
// taxonomy so the orchestrator can pick the right retry policy.
func (c *httpClient) checkStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return apperrors.AuthExpired(string(c.source),
			fmt.Errorf("provider returned status %d", resp.StatusCode))
	case resp.StatusCode == http.StatusTooManyRequests:
		return apperrors.RateLimited(string(c.source), retryAfter(resp))
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity:
		return apperrors.MalformedPayload(string(c.source),
			fmt.Errorf("provider rejected request with status %d", resp.StatusCode))
	default:
		return apperrors.TransientNetwork(string(c.source),
			fmt.Errorf("unexpected status %d", resp.StatusCode))
	}
}

func retryAfter(resp *http.Response) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return 0
}
