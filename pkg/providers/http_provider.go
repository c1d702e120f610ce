package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// maxErrorBody caps how much of an error response is kept in error messages.
const maxErrorBody = 4096

// HTTPProvider is the shared base of HTTP adapters: a pooled client, one
// attempt per request, typed errors and health tracking.
//
// Adapters embed *HTTPProvider and implement Complete and HealthCheck.
type HTTPProvider struct {
	config Config
	client *http.Client

	healthMu sync.RWMutex
	health   Health
}

// NewHTTPProvider creates the base provider with a pooled transport.
func NewHTTPProvider(config Config) *HTTPProvider {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        config.MaxIdleConns,
		MaxIdleConnsPerHost: config.MaxIdleConnsPerHost,
		IdleConnTimeout:     config.IdleConnTimeout,
		ForceAttemptHTTP2:   true,
	}

	return &HTTPProvider{
		config: config,
		client: &http.Client{
			Transport: transport,
			Timeout:   config.Timeout,
		},
		health: Health{
			IsHealthy:             true,
			LastCheck:             time.Now(),
			LastSuccessfulRequest: time.Now(),
		},
	}
}

// Name returns the configured provider name.
func (p *HTTPProvider) Name() string {
	return p.config.Name
}

// Type returns the adapter type.
func (p *HTTPProvider) Type() string {
	return p.config.Type
}

// Config returns the provider configuration.
func (p *HTTPProvider) Config() Config {
	return p.config
}

// DoRequest performs exactly one HTTP request. Non-2xx responses are
// returned as typed errors with the body consumed.
func (p *HTTPProvider) DoRequest(ctx context.Context, method, url string, body []byte, headers map[string]string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, &ProviderError{Provider: p.config.Name, Message: "failed to create request", Cause: err}
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	if req.Header.Get("Content-Type") == "" && body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	slog.Debug("sending request to provider",
		"provider", p.config.Name,
		"method", method,
		"url", url,
	)

	resp, err := p.client.Do(req)
	if err != nil {
		err = p.transportError(ctx, err)
		p.record(false, err)
		return nil, err
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		p.record(true, nil)
		return resp, nil
	}

	errorBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	resp.Body.Close()
	message := string(bytes.TrimSpace(errorBody))

	var statusErr error
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		statusErr = &AuthError{Provider: p.config.Name, StatusCode: resp.StatusCode, Message: message}
	case http.StatusTooManyRequests:
		statusErr = &RateLimitError{
			Provider:   p.config.Name,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
			Message:    message,
		}
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		statusErr = &TimeoutError{Provider: p.config.Name, Timeout: p.config.Timeout, Cause: errors.New(message)}
	default:
		statusErr = &ProviderError{Provider: p.config.Name, StatusCode: resp.StatusCode, Message: message}
	}

	p.record(false, statusErr)
	slog.Warn("provider returned error status",
		"provider", p.config.Name,
		"status", resp.StatusCode,
	)
	return nil, statusErr
}

// transportError classifies a failure that produced no HTTP response.
func (p *HTTPProvider) transportError(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return &TimeoutError{Provider: p.config.Name, Timeout: p.config.Timeout, Cause: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &TimeoutError{Provider: p.config.Name, Timeout: p.config.Timeout, Cause: err}
	}
	if errors.Is(ctx.Err(), context.Canceled) {
		return &ProviderError{Provider: p.config.Name, Message: "request cancelled", Cause: ctx.Err()}
	}
	return &ProviderError{Provider: p.config.Name, Message: "request failed", Cause: err}
}

// DoJSONRequest marshals reqBody, performs one request and decodes the
// response into respBody.
func (p *HTTPProvider) DoJSONRequest(ctx context.Context, method, url string, reqBody interface{}, respBody interface{}, headers map[string]string) error {
	var bodyBytes []byte
	if reqBody != nil {
		var err error
		bodyBytes, err = json.Marshal(reqBody)
		if err != nil {
			return &ValidationError{Field: "request", Message: fmt.Sprintf("failed to marshal request: %v", err)}
		}
	}

	resp, err := p.DoRequest(ctx, method, url, bodyBytes, headers)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	responseBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return p.transportError(ctx, fmt.Errorf("failed to read response: %w", err))
	}

	if respBody != nil && len(responseBytes) > 0 {
		if err := json.Unmarshal(responseBytes, respBody); err != nil {
			return &ParseError{
				Provider:    p.config.Name,
				RawResponse: string(responseBytes),
				Cause:       fmt.Errorf("failed to unmarshal response: %w", err),
			}
		}
	}

	return nil
}

// Close releases idle connections.
func (p *HTTPProvider) Close() error {
	p.client.CloseIdleConnections()
	slog.Debug("provider closed", "provider", p.config.Name)
	return nil
}

// parseRetryAfter parses a Retry-After header in delay-seconds or
// HTTP-date form.
func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(header); err == nil {
		return time.Duration(seconds) * time.Second
	}
	if t, err := http.ParseTime(header); err == nil {
		return time.Until(t)
	}
	return 0
}
