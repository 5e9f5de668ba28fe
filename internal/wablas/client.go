// Package wablas calls the Wablas WhatsApp gateway.
package wablas

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// ErrMissingCredentials is returned by New when token or secret is absent.
var ErrMissingCredentials = errors.New("wablas: token and secret are required")

// Delivery statuses. Ordinary delivery failure is data, not an error: the
// caller always gets a Delivery and decides what to log.
const (
	StatusSent   = "sent"
	StatusFailed = "failed"
)

// Delivery is the outcome of one send, with the provider body kept verbatim.
type Delivery struct {
	Status      string
	RawResponse []byte
	Err         error
}

// Config carries gateway connection and delivery-policy settings.
type Config struct {
	BaseURL    string
	Token      string
	Secret     string
	Timeout    time.Duration
	VerifySSL  bool
	SendDelay  time.Duration // minimum pause between consecutive sends
	MaxRetries int           // attempts per message before giving up
	RetryDelay time.Duration // fixed pause between attempts
	Skip       bool          // short-circuit with a fake success (local runs)
}

// Client sends text messages through the Wablas HTTP API.
type Client struct {
	cfg  Config
	http *http.Client

	mu       sync.Mutex
	lastSend time.Time
}

// New validates credentials and builds a client. Skip mode needs none.
func New(cfg Config) (*Client, error) {
	if !cfg.Skip && (cfg.Token == "" || cfg.Secret == "") {
		return nil, ErrMissingCredentials
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://console.wablas.com"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 1
	}

	transport := http.DefaultTransport
	if !cfg.VerifySSL {
		transport = &http.Transport{TLSClientConfig: &tls.Config{InsecureSkipVerify: true}}
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout, Transport: transport},
	}, nil
}

// Send delivers one text message, retrying transient failures up to the
// configured maximum with a fixed delay. It blocks to keep the configured
// minimum gap between consecutive sends.
func (c *Client) Send(ctx context.Context, phone, message string) Delivery {
	if c.cfg.Skip {
		return Delivery{Status: StatusSent, RawResponse: []byte(`{"status":true,"message":"skipped (dry run)"}`)}
	}

	if err := c.pace(ctx); err != nil {
		return Delivery{Status: StatusFailed, Err: err}
	}

	raw, err := backoff.Retry(ctx, func() ([]byte, error) {
		return c.post(ctx, NormalizePhone(phone), message)
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(c.cfg.RetryDelay)),
		backoff.WithMaxTries(uint(c.cfg.MaxRetries)),
	)
	if err != nil {
		var perm *permError
		if errors.As(err, &perm) {
			return Delivery{Status: StatusFailed, RawResponse: perm.body, Err: perm.err}
		}
		return Delivery{Status: StatusFailed, Err: err}
	}
	return Delivery{Status: StatusSent, RawResponse: raw}
}

// permError carries the provider body across backoff.Permanent.
type permError struct {
	err  error
	body []byte
}

func (e *permError) Error() string { return e.err.Error() }

func (c *Client) post(ctx context.Context, phone, message string) ([]byte, error) {
	payload, _ := json.Marshal(map[string]string{
		"phone":   phone,
		"message": message,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+"/api/send-message", bytes.NewReader(payload))
	if err != nil {
		return nil, backoff.Permanent(&permError{err: err})
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", c.cfg.Token+"."+c.cfg.Secret)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("wablas request failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	switch {
	case resp.StatusCode < 300:
		return body, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		// Transient: provider throttling or outage, worth another attempt.
		return nil, fmt.Errorf("wablas error %s: %s", resp.Status, string(body))
	default:
		// Rejected payload (bad number and friends): retrying cannot help.
		return nil, backoff.Permanent(&permError{
			err:  fmt.Errorf("wablas rejected %s: %s", resp.Status, string(body)),
			body: body,
		})
	}
}

// pace blocks until the configured gap since the previous send has elapsed.
func (c *Client) pace(ctx context.Context) error {
	if c.cfg.SendDelay <= 0 {
		return nil
	}
	c.mu.Lock()
	wait := c.cfg.SendDelay - time.Since(c.lastSend)
	if wait < 0 {
		wait = 0
	}
	c.lastSend = time.Now().Add(wait)
	c.mu.Unlock()

	if wait <= 0 {
		return nil
	}
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// NormalizePhone converts an Indonesian phone number to the 62-prefixed digit
// form the gateway expects. Unknown shapes pass through digits-only.
func NormalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	switch {
	case strings.HasPrefix(digits, "62"):
		return digits
	case strings.HasPrefix(digits, "0"):
		return "62" + digits[1:]
	case strings.HasPrefix(digits, "8"):
		return "62" + digits
	default:
		return digits
	}
}
