// Package relay delivers JSON payloads to the automation webhook with
// bounded linear-backoff retry. Delivery is at-most-once effort: there is no
// durable outbox, and exhausted payloads are dropped after logging.
package relay

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/dcampos/wagate/internal/backoff"
	"github.com/dcampos/wagate/internal/observability"
)

const (
	defaultTimeout     = 10 * time.Second
	defaultMaxAttempts = 3
)

// Relay posts payloads to a single webhook endpoint.
type Relay struct {
	client      *resty.Client
	endpoint    string
	maxAttempts int
	backoff     backoff.Linear
	logger      *zap.Logger
	metrics     *observability.Metrics

	sleep func(ctx context.Context, d time.Duration) error
}

func New(endpoint string, maxAttempts int, step, timeout time.Duration, logger *zap.Logger) (*Relay, error) {
	client := resty.New()
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	client.SetTimeout(timeout)
	client.SetRetryCount(0)

	return NewWithClient(endpoint, maxAttempts, step, client, logger)
}

func NewWithClient(endpoint string, maxAttempts int, step time.Duration, client *resty.Client, logger *zap.Logger) (*Relay, error) {
	trimmedEndpoint := strings.TrimSpace(endpoint)
	if trimmedEndpoint == "" {
		return nil, fmt.Errorf("webhook endpoint is required")
	}
	if _, err := url.ParseRequestURI(trimmedEndpoint); err != nil {
		return nil, fmt.Errorf("invalid webhook endpoint: %w", err)
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}
	if maxAttempts < 1 {
		maxAttempts = defaultMaxAttempts
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultTimeout)
	}
	// Retries belong to this relay, not to the HTTP client.
	client.SetRetryCount(0)

	return &Relay{
		client:      client,
		endpoint:    trimmedEndpoint,
		maxAttempts: maxAttempts,
		backoff:     backoff.NewLinear(step),
		logger:      logger,
		sleep:       sleepWithContext,
	}, nil
}

func (r *Relay) SetMetrics(metrics *observability.Metrics) {
	if r == nil {
		return
	}
	r.metrics = metrics
}

// Deliver posts payload to the webhook, retrying failed attempts with linear
// backoff. A nil return means some attempt got a 2xx response. The last
// attempt's error is returned on exhaustion; callers decide whether that is
// fatal (for the message-relay path it is not).
func (r *Relay) Deliver(ctx context.Context, payload any) error {
	if r == nil || r.client == nil {
		return fmt.Errorf("relay is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	logger := observability.WithContextLogger(r.logger, ctx)
	start := time.Now()

	var lastErr error
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		if r.metrics != nil {
			r.metrics.IncDeliveryAttempt()
		}

		lastErr = r.post(ctx, payload)
		if lastErr == nil {
			if r.metrics != nil {
				r.metrics.IncDelivery("success")
				r.metrics.ObserveDeliveryDuration(time.Since(start))
			}
			if attempt > 1 {
				logger.Info("webhook delivery recovered",
					zap.Int("attempt", attempt),
				)
			}
			return nil
		}

		if errors.Is(lastErr, context.Canceled) {
			break
		}

		logger.Warn("webhook delivery attempt failed",
			zap.Int("attempt", attempt),
			zap.Int("maxAttempts", r.maxAttempts),
			zap.Error(lastErr),
		)

		if attempt == r.maxAttempts {
			break
		}
		if err := r.sleep(ctx, r.backoff.Delay(attempt)); err != nil {
			lastErr = err
			break
		}
	}

	if r.metrics != nil {
		r.metrics.IncDelivery("failure")
		r.metrics.ObserveDeliveryDuration(time.Since(start))
	}
	logger.Error("webhook delivery exhausted retries", zap.Error(lastErr))
	return lastErr
}

func (r *Relay) post(ctx context.Context, payload any) error {
	response, err := r.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(payload).
		Post(r.endpoint)
	if err != nil {
		return &Error{
			Message:   "webhook request failed",
			Transient: !errors.Is(err, context.Canceled),
			Cause:     err,
		}
	}
	if response == nil {
		return &Error{Message: "webhook returned empty response", Transient: true}
	}

	statusCode := response.StatusCode()
	if statusCode >= http.StatusOK && statusCode < http.StatusMultipleChoices {
		return nil
	}

	return &Error{
		StatusCode: statusCode,
		Message:    statusErrorMessage(statusCode, strings.TrimSpace(response.String())),
		Transient:  isTransientHTTPStatus(statusCode),
	}
}

func isTransientHTTPStatus(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests || (statusCode >= http.StatusInternalServerError && statusCode <= 599)
}

func statusErrorMessage(statusCode int, body string) string {
	base := fmt.Sprintf("webhook returned status %d", statusCode)
	if body == "" {
		return base
	}
	return fmt.Sprintf("%s: %s", base, body)
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
