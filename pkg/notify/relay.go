package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/platinummonkey/masthead/pkg/observability"
)

// SignatureHeader carries the HMAC-SHA256 of the request body
const SignatureHeader = "X-Masthead-Signature"

// RelayDispatcher posts notifications to a mail relay over HTTP.
// The relay owns templating and delivery.
type RelayDispatcher struct {
	url    string
	secret string
	client *http.Client
	retry  *RetryPolicy
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewRelayDispatcher creates a dispatcher posting to url. An empty secret
// disables signing.
func NewRelayDispatcher(url, secret string, timeout time.Duration, retry *RetryPolicy) *RelayDispatcher {
	if retry == nil {
		retry = NewRetryPolicy(DefaultRetryConfig())
	}
	return &RelayDispatcher{
		url:    url,
		secret: secret,
		client: &http.Client{Timeout: timeout},
		retry:  retry,
		sleep:  sleepContext,
	}
}

// Dispatch sends n, retrying transient failures with exponential backoff.
// 4xx responses other than 429 are not retried.
func (d *RelayDispatcher) Dispatch(ctx context.Context, n *Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	logger := observability.FromContext(ctx).WithFields(map[string]interface{}{
		"notification_id": n.ID,
		"kind":            string(n.Kind),
	})

	for attempt := 1; ; attempt++ {
		err = d.send(ctx, n, payload)
		if !d.retry.ShouldRetry(attempt, err) {
			return err
		}

		delay := d.retry.NextRetryDelay(attempt)
		logger.WithError(err).WithField("attempt", attempt).Warnf("notification delivery failed, retrying in %s", delay)
		if err := d.sleep(ctx, delay); err != nil {
			return fmt.Errorf("notification %s abandoned: %w", n.ID, err)
		}
	}
}

func (d *RelayDispatcher) send(ctx context.Context, n *Notification, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(payload))
	if err != nil {
		return &permanentError{err: fmt.Errorf("failed to create request: %w", err)}
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Masthead-Notification", string(n.Kind))
	req.Header.Set("X-Masthead-Notification-ID", n.ID)
	if d.secret != "" {
		req.Header.Set(SignatureHeader, Sign(payload, d.secret))
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	err = fmt.Errorf("relay returned non-2xx status: %d", resp.StatusCode)
	if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
		return &permanentError{err: err}
	}
	return err
}

// Sign returns the signature header value for payload
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
