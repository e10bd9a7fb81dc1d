package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"

	"github.com/agentdesk/agentdesk/internal/application/executor"
)

const defaultWebhookTimeout = 10 * time.Second

// WebhookNotifier POSTs messages as JSON to a fixed URL.
type WebhookNotifier struct {
	url      string
	client   *http.Client
	maxTries uint
	backoff  func() backoff.BackOff
	logger   zerolog.Logger
}

type WebhookOption func(*WebhookNotifier)

func WithHTTPClient(c *http.Client) WebhookOption {
	return func(n *WebhookNotifier) { n.client = c }
}

// WithMaxTries bounds delivery attempts. Values below 1 mean a single attempt.
func WithMaxTries(tries uint) WebhookOption {
	return func(n *WebhookNotifier) {
		if tries < 1 {
			tries = 1
		}
		n.maxTries = tries
	}
}

func WithBackOff(f func() backoff.BackOff) WebhookOption {
	return func(n *WebhookNotifier) { n.backoff = f }
}

func NewWebhookNotifier(url string, logger zerolog.Logger, opts ...WebhookOption) *WebhookNotifier {
	n := &WebhookNotifier{
		url:      url,
		client:   &http.Client{Timeout: defaultWebhookTimeout},
		maxTries: 3,
		backoff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 200 * time.Millisecond
			b.MaxInterval = 2 * time.Second
			return b
		},
		logger: logger.With().Str("service", "webhook_notifier").Logger(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Notify delivers msg. Server errors and transport failures are retried;
// other non-2xx responses are not.
func (n *WebhookNotifier) Notify(ctx context.Context, msg executor.Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}

	attempt := 0
	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		return struct{}{}, n.post(ctx, payload)
	}, backoff.WithBackOff(n.backoff()), backoff.WithMaxTries(n.maxTries))
	if err != nil {
		n.logger.Warn().Err(err).Int("attempts", attempt).Str("task_id", msg.TaskID).Msg("webhook delivery failed")
		return fmt.Errorf("webhook delivery: %w", err)
	}
	n.logger.Debug().Int("attempts", attempt).Str("task_id", msg.TaskID).Msg("webhook delivered")
	return nil
}

func (n *WebhookNotifier) post(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(payload))
	if err != nil {
		return backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("webhook returned %d", resp.StatusCode)
	default:
		return backoff.Permanent(fmt.Errorf("webhook returned %d", resp.StatusCode))
	}
}
