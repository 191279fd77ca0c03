// Package piclient talks to the Pi Platform REST API and to the Horizon
// endpoint that serves on-chain transaction records.
package piclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/FCJuventus/DoPi-demo/internal/metrics"
	"github.com/FCJuventus/DoPi-demo/models"
)

// DefaultBaseURL is the production Pi Platform API.
const DefaultBaseURL = "https://api.minepi.com"

// DefaultTimeout bounds every outbound call.
const DefaultTimeout = 20 * time.Second

// maxErrorBody caps how much of a failed response is kept in APIError.
const maxErrorBody = 4 << 10

// APIError is returned for non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("piclient: status %d: %s", e.StatusCode, e.Body)
}

// Config configures the platform client.
type Config struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client is the Pi Platform API client.
type Client struct {
	baseURL string
	apiKey  string
	timeout time.Duration
	http    *http.Client
	logger  logrus.FieldLogger
	metrics *metrics.Collector
}

// New builds a client. Zero config fields fall back to the defaults.
func New(cfg Config, logger logrus.FieldLogger, collector *metrics.Collector) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		timeout: cfg.Timeout,
		http:    cfg.HTTPClient,
		logger:  logger.WithField("component", "piclient"),
		metrics: collector,
	}
}

// GetPayment fetches the authoritative description of a payment.
func (c *Client) GetPayment(ctx context.Context, paymentID string) (*models.PiPayment, error) {
	var p models.PiPayment
	err := c.do(ctx, "get_payment", http.MethodGet, "/v2/payments/"+url.PathEscape(paymentID), c.serverAuth(), nil, &p)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Approve acknowledges a payment so the user can sign the transaction.
func (c *Client) Approve(ctx context.Context, paymentID string) (*models.PiPayment, error) {
	var p models.PiPayment
	err := c.do(ctx, "approve", http.MethodPost, "/v2/payments/"+url.PathEscape(paymentID)+"/approve", c.serverAuth(), struct{}{}, &p)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Complete acknowledges the on-chain transaction of a payment.
func (c *Client) Complete(ctx context.Context, paymentID, txid string) (*models.PiPayment, error) {
	var p models.PiPayment
	body := map[string]string{"txid": txid}
	err := c.do(ctx, "complete", http.MethodPost, "/v2/payments/"+url.PathEscape(paymentID)+"/complete", c.serverAuth(), body, &p)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Me resolves a user access token into the user's identity.
func (c *Client) Me(ctx context.Context, accessToken string) (*models.PiMe, error) {
	var me models.PiMe
	err := c.do(ctx, "me", http.MethodGet, "/v2/me", "Bearer "+accessToken, nil, &me)
	if err != nil {
		return nil, err
	}
	return &me, nil
}

func (c *Client) serverAuth() string {
	return "Key " + c.apiKey
}

func (c *Client) do(ctx context.Context, endpoint, method, path, auth string, in, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("piclient: encode %s request: %w", endpoint, err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("piclient: build %s request: %w", endpoint, err)
	}
	req.Header.Set("Authorization", auth)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	started := time.Now()
	resp, err := c.http.Do(req)
	c.metrics.ObserveGateway(endpoint, started)
	if err != nil {
		c.logger.WithError(err).WithField("endpoint", endpoint).Warn("Gateway request failed")
		return fmt.Errorf("piclient: %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	return decodeResponse(resp, endpoint, out)
}

func decodeResponse(resp *http.Response, endpoint string, out interface{}) error {
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("piclient: decode %s response: %w", endpoint, err)
	}
	return nil
}
