package sentinel

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/forest-guardian/copernicus-stats/internal/properties"
	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2/clientcredentials"
)

// ErrUnauthorized is returned when every configured credential was rejected.
var ErrUnauthorized = errors.New("unauthorized access, check your client ID and secret")

// RemoteError is a non-2xx answer from Sentinel Hub.
type RemoteError struct {
	StatusCode int
	Body       string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("sentinel hub returned status %d: %s", e.StatusCode, e.Body)
}

// Client submits requests to the Sentinel Hub Process and Statistical APIs.
type Client struct {
	baseURL     string
	httpClients []*http.Client
	maxAttempts int
	retryDelay  time.Duration
}

type Option func(*Client)

// WithHTTPClients replaces the OAuth2 clients, one per credential.
func WithHTTPClients(clients ...*http.Client) Option {
	return func(c *Client) { c.httpClients = clients }
}

// WithRetry enables retrying a failed call up to maxAttempts times.
func WithRetry(maxAttempts int, delay time.Duration) Option {
	return func(c *Client) {
		if maxAttempts < 1 {
			maxAttempts = 1
		}
		c.maxAttempts = maxAttempts
		c.retryDelay = delay
	}
}

// NewClient builds a client from the configuration. Each client id/secret pair gets its
// own OAuth2 client; they are tried in order when a credential is rejected.
func NewClient(cfg properties.Config, opts ...Option) (*Client, error) {
	c := &Client{
		baseURL:     cfg.BaseURL,
		maxAttempts: cfg.MaxAttempts,
		retryDelay:  cfg.RetryDelay,
	}
	for i, clientID := range cfg.ClientIDs {
		if i >= len(cfg.ClientSecrets) {
			return nil, fmt.Errorf("mismatched number of client IDs and secrets")
		}
		config := &clientcredentials.Config{
			ClientID:     clientID,
			ClientSecret: cfg.ClientSecrets[i],
			TokenURL:     cfg.TokenURL,
		}
		c.httpClients = append(c.httpClients, config.Client(context.Background()))
	}
	for _, opt := range opts {
		opt(c)
	}
	if len(c.httpClients) == 0 {
		return nil, fmt.Errorf("missing required environment variables: COPERNICUS_CLIENT_ID, COPERNICUS_CLIENT_SECRET")
	}
	if c.maxAttempts < 1 {
		c.maxAttempts = 1
	}
	return c, nil
}

func (c *Client) post(ctx context.Context, path, accept string, payload any) ([]byte, error) {
	requestBody, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request payload: %w", err)
	}

	url := c.baseURL + path
	var lastErr error
	for i, httpClient := range c.httpClients {
		for attempt := 1; attempt <= c.maxAttempts; attempt++ {
			body, err := c.do(ctx, httpClient, url, accept, requestBody)
			if err == nil {
				return body, nil
			}
			lastErr = err
			if errors.Is(err, ErrUnauthorized) || ctx.Err() != nil {
				break
			}
			log.WithFields(log.Fields{"credential": i, "attempt": attempt, "path": path}).
				WithError(err).Warn("sentinel hub request failed")
			if attempt < c.maxAttempts {
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(c.retryDelay):
				}
			}
		}
		if !errors.Is(lastErr, ErrUnauthorized) {
			break
		}
	}
	return nil, lastErr
}

func (c *Client) do(ctx context.Context, httpClient *http.Client, url, accept string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", accept)

	response, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call %s: %w", url, err)
	}
	defer response.Body.Close()

	content, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	switch {
	case response.StatusCode == http.StatusUnauthorized || response.StatusCode == http.StatusForbidden:
		return nil, ErrUnauthorized
	case response.StatusCode < 200 || response.StatusCode >= 300:
		return nil, &RemoteError{StatusCode: response.StatusCode, Body: string(content)}
	}
	return content, nil
}
