// Package webhook implements the outbound HTTP client that delivers unlock
// notifications to collaborating services. Delivery is at-least-once;
// receivers must dedup on the delivery ID.
package webhook

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
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/tastebook/progression-engine/pkg/logger"
	"github.com/tastebook/progression-engine/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// ClientConfig configures the webhook client.
type ClientConfig struct {
	// Endpoint is the receiver URL deliveries are POSTed to.
	Endpoint string

	// Secret signs each delivery body (HMAC-SHA256). Empty disables signing.
	Secret string

	// Timeout is the per-request HTTP timeout.
	Timeout time.Duration

	// RateLimiterConfig throttles outbound deliveries.
	RateLimiterConfig RateLimiterConfig

	// Logger for structured logging.
	Logger *logger.Logger
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig(endpoint string) ClientConfig {
	return ClientConfig{
		Endpoint:          endpoint,
		Timeout:           10 * time.Second,
		RateLimiterConfig: DefaultRateLimiterConfig(),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// DELIVERY
// ══════════════════════════════════════════════════════════════════════════════

// Delivery is the wire form of one webhook notification.
type Delivery struct {
	ID         string                 `json:"id"`
	Type       string                 `json:"type"`
	OccurredAt time.Time              `json:"occurred_at"`
	Payload    map[string]interface{} `json:"payload"`
}

// NewDelivery creates a delivery with a fresh ID.
func NewDelivery(eventType string, occurredAt time.Time, payload map[string]interface{}) Delivery {
	return Delivery{
		ID:         uuid.NewString(),
		Type:       eventType,
		OccurredAt: occurredAt,
		Payload:    payload,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Client delivers notifications to the configured endpoint.
type Client struct {
	config     ClientConfig
	httpClient *http.Client
	limiter    *RateLimiter
	log        *logger.Logger
}

// NewClient creates a webhook client.
func NewClient(config ClientConfig) *Client {
	if config.Logger == nil {
		config.Logger = logger.Default()
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		limiter: NewRateLimiter(config.RateLimiterConfig),
		log:     config.Logger.With(logger.Component("webhook")),
	}
}

// Send posts the delivery. 5xx and 429 responses come back wrapped as
// retryable, other 4xx as permanent, so callers can hand the error straight
// to a retrier.
func (c *Client) Send(ctx context.Context, delivery Delivery) error {
	if err := c.limiter.Allow(ctx); err != nil {
		return fmt.Errorf("webhook: rate limiter: %w", err)
	}

	body, err := json.Marshal(delivery)
	if err != nil {
		return retry.Permanent(fmt.Errorf("webhook: marshal delivery: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.Endpoint, bytes.NewReader(body))
	if err != nil {
		return retry.Permanent(fmt.Errorf("webhook: create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Delivery-ID", delivery.ID)
	if c.config.Secret != "" {
		req.Header.Set("X-Signature", c.sign(body))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return retry.Retryable(fmt.Errorf("webhook: http request: %w", err))
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests:
		c.limiter.RecordRateLimitHit(parseRetryAfter(resp))
		return retry.Retryable(fmt.Errorf("webhook: receiver rate limited delivery %s", delivery.ID))
	case resp.StatusCode >= 500:
		return retry.Retryable(fmt.Errorf("webhook: receiver error %d: %s", resp.StatusCode, string(respBody)))
	default:
		return retry.Permanent(fmt.Errorf("webhook: receiver rejected delivery %s with %d: %s",
			delivery.ID, resp.StatusCode, string(respBody)))
	}
}

func (c *Client) sign(body []byte) string {
	mac := hmac.New(sha256.New, []byte(c.config.Secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func parseRetryAfter(resp *http.Response) time.Duration {
	if ra := resp.Header.Get("Retry-After"); ra != "" {
		if seconds, err := strconv.Atoi(ra); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return time.Minute
}

// Status reports the limiter state for diagnostics.
func (c *Client) Status() RateLimiterStatus {
	return c.limiter.Status()
}
