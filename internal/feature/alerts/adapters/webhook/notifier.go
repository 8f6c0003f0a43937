// Package webhook delivers alert notifications as JSON POST requests.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"

	"market_etl/internal/feature/alerts/domain/entity"
	"market_etl/internal/feature/alerts/usecase"
	"market_etl/internal/shared/errs"
)

// Payload is the JSON body posted to the destination URL.
type Payload struct {
	Channel string `json:"channel"`
	Text    string `json:"text"`
	SentAt  string `json:"sent_at"`
}

// Notifier posts each notification to Notification.Destination.
// Transport errors and 5xx responses are retried up to MaxRetries times.
type Notifier struct {
	client     *http.Client
	MaxRetries uint64
	BaseDelay  time.Duration
	now        func() time.Time
}

var _ usecase.Notifier = (*Notifier)(nil)

// NewNotifier は Notifier を作成します。client には platform/http.NewHTTPClient を渡します。
func NewNotifier(client *http.Client) *Notifier {
	return &Notifier{client: client, MaxRetries: 2, BaseDelay: 500 * time.Millisecond, now: time.Now}
}

func (n *Notifier) Send(ctx context.Context, msg entity.Notification) error {
	if msg.Destination == "" {
		return fmt.Errorf("%w: webhook: empty destination url", errs.ErrAlertDispatch)
	}
	body, err := json.Marshal(Payload{
		Channel: msg.Channel,
		Text:    msg.Text,
		SentAt:  n.now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("%w: webhook: encode payload: %w", errs.ErrAlertDispatch, err)
	}

	backoff := retry.WithMaxRetries(n.MaxRetries, retry.NewExponential(n.BaseDelay))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		return n.post(ctx, msg.Destination, body)
	})
	if err != nil {
		return fmt.Errorf("%w: webhook: %w", errs.ErrAlertDispatch, err)
	}
	return nil
}

func (n *Notifier) post(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return retry.RetryableError(err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return retry.RetryableError(fmt.Errorf("unexpected status %d", resp.StatusCode))
	default:
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
}
