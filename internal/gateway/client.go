// Package gateway is the HTTP client for the Push Gateway registration endpoint.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tinywideclouds/go-push-registration/pkg/registration"
)

// RegisterPath is the gateway route that persists a user/token mapping.
const RegisterPath = "/register-token"

// maxErrorBody caps how much of a rejection body is kept for logging.
const maxErrorBody = 1024

// Client posts registration requests to the gateway.
type Client struct {
	endpoint   string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient validates baseURL and builds a client whose calls are bounded by timeout.
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger) (*Client, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return nil, fmt.Errorf("invalid gateway url %q: %w", baseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid gateway url %q: scheme must be http or https", baseURL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid gateway url %q: missing host", baseURL)
	}

	return &Client{
		endpoint:   u.JoinPath(RegisterPath).String(),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.With("component", "GatewayClient"),
	}, nil
}

// Endpoint returns the full registration URL.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Register sends one POST with a JSON body. Any 2xx is success.
func (c *Client) Register(ctx context.Context, req registration.RegistrationRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return &registration.Error{Kind: registration.KindEncoding, Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return &registration.Error{Kind: registration.KindEncoding, Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return &registration.Error{Kind: registration.KindNetworkFailure, Err: err}
	}
	defer resp.Body.Close()

	c.logger.Debug("Token registration response", "status", resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &registration.Error{
			Kind:       registration.KindGatewayRejected,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(snippet)),
		}
	}

	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	return nil
}
