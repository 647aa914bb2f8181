package collab

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// HTTPError carries the status and body of a non-2xx collaborator response.
type HTTPError struct {
	Method     string
	URL        string
	StatusCode int
	Body       []byte
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http error: %s %s status=%d body=%s", e.Method, e.URL, e.StatusCode, snippet(e.Body, 500))
}

func snippet(b []byte, max int) string {
	s := strings.TrimSpace(string(b))
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

// RetryConfig controls how often a collaborator call is retried and how long to wait between
// attempts.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryConfig retries three times with exponential backoff starting at 300ms.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   300 * time.Millisecond,
		MaxDelay:    5 * time.Second,
	}
}

// postJSON sends payload to url and decodes the response into out. Transient network errors,
// 5xx, 408 and 429 responses are retried.
func postJSON(ctx context.Context, client *http.Client, cfg RetryConfig, url string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request payload: %w", err)
	}
	if cfg.MaxAttempts <= 0 {
		cfg = DefaultRetryConfig()
	}

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			if err := sleepBackoff(ctx, attempt-1, cfg, retryAfter(lastErr)); err != nil {
				return err
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("failed to create request to %s: %w", url, err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("failed to call %s: %w", url, err)
			if isRetryableNetErr(err) {
				continue
			}
			return lastErr
		}
		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("failed to read response from %s: %w", url, err)
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			herr := &retryableHTTPError{
				HTTPError:  &HTTPError{Method: req.Method, URL: url, StatusCode: resp.StatusCode, Body: respBody},
				retryAfter: parseRetryAfter(resp),
			}
			lastErr = herr.HTTPError
			if isRetryableStatus(resp.StatusCode) {
				lastErr = herr
				continue
			}
			return lastErr
		}

		if out == nil {
			return nil
		}
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to decode response from %s: %w body=%s", url, err, snippet(respBody, 500))
		}
		return nil
	}

	var rerr *retryableHTTPError
	if errors.As(lastErr, &rerr) {
		return rerr.HTTPError
	}
	return lastErr
}

type retryableHTTPError struct {
	*HTTPError
	retryAfter time.Duration
}

func (e *retryableHTTPError) Unwrap() error { return e.HTTPError }

func retryAfter(err error) time.Duration {
	var rerr *retryableHTTPError
	if errors.As(err, &rerr) {
		return rerr.retryAfter
	}
	return 0
}

func isRetryableStatus(code int) bool {
	return code >= 500 || code == http.StatusTooManyRequests || code == http.StatusRequestTimeout
}

func isRetryableNetErr(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var nerr net.Error
	if errors.As(err, &nerr) {
		return nerr.Timeout()
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection reset") || strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "broken pipe") || strings.Contains(msg, "eof")
}

func sleepBackoff(ctx context.Context, attempt int, cfg RetryConfig, hint time.Duration) error {
	sleep := hint
	if sleep <= 0 {
		sleep = cfg.BaseDelay * time.Duration(1<<(attempt-1))
		if half := int64(sleep / 2); half > 0 {
			sleep += time.Duration(rand.Int63n(half))
		}
	}
	if cfg.MaxDelay > 0 && sleep > cfg.MaxDelay {
		sleep = cfg.MaxDelay
	}
	t := time.NewTimer(sleep)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// parseRetryAfter reads a Retry-After header given in seconds.
func parseRetryAfter(resp *http.Response) time.Duration {
	v := strings.TrimSpace(resp.Header.Get("Retry-After"))
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}
