// services/http_retry.go
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// StatusError is a non-2xx answer from a downstream service.
type StatusError struct {
	Service    string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d: %s", e.Service, e.StatusCode, e.Body)
}

// serviceClient is the shared JSON-over-HTTP plumbing for outbound calls.
// 5xx, 429 and transport errors are retried with exponential backoff;
// other statuses fail immediately.
type serviceClient struct {
	Name          string
	BaseURL       string
	Token         string
	HTTPClient    *http.Client
	MaxRetries    uint64
	RetryInterval time.Duration
}

func (c *serviceClient) do(ctx context.Context, method, path string, headers map[string]string, in, out any) error {
	var payload []byte
	if in != nil {
		var err error
		if payload, err = json.Marshal(in); err != nil {
			return fmt.Errorf("encode %s request: %w", c.Name, err)
		}
	}

	op := func() error {
		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.Token)
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := c.HTTPClient.Do(req)
		if err != nil {
			return fmt.Errorf("call %s: %w", c.Name, err)
		}
		defer resp.Body.Close()

		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return &StatusError{Service: c.Name, StatusCode: resp.StatusCode, Body: string(raw)}
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return backoff.Permanent(&StatusError{Service: c.Name, StatusCode: resp.StatusCode, Body: string(raw)})
		}
		if out != nil && len(raw) > 0 {
			if err := json.Unmarshal(raw, out); err != nil {
				return backoff.Permanent(fmt.Errorf("decode %s response: %w", c.Name, err))
			}
		}
		return nil
	}

	b := backoff.NewExponentialBackOff()
	if c.RetryInterval > 0 {
		b.InitialInterval = c.RetryInterval
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(b, c.MaxRetries), ctx)
	return backoff.RetryNotify(op, policy, func(err error, wait time.Duration) {
		log.Printf("⚠️ [%s] %s %s failed, retrying in %s: %v", c.Name, method, path, wait, err)
	})
}
