// Package hunter provides a client for the Hunter.io email discovery API.
package hunter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
)

// Client defines the Hunter.io operations.
type Client interface {
	// DomainSearch returns the known email pattern and addresses for a domain.
	DomainSearch(ctx context.Context, domain string) (*DomainSearchData, error)
	// VerifyEmail checks the deliverability of a single address.
	VerifyEmail(ctx context.Context, email string) (*VerifyData, error)
}

// DomainSearchData is the payload of a domain-search response.
type DomainSearchData struct {
	Domain       string        `json:"domain"`
	Pattern      string        `json:"pattern"`
	Organization string        `json:"organization"`
	Emails       []DomainEmail `json:"emails"`
}

// DomainEmail is a single address known for a domain.
type DomainEmail struct {
	Value      string `json:"value"`
	Type       string `json:"type"`
	Confidence int    `json:"confidence"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
}

// Verification outcomes reported by the email-verifier endpoint.
const (
	ResultDeliverable   = "deliverable"
	ResultUndeliverable = "undeliverable"
	ResultRisky         = "risky"
	ResultUnknown       = "unknown"
)

// VerifyData is the payload of an email-verifier response.
type VerifyData struct {
	Email      string `json:"email"`
	Result     string `json:"result"`
	Score      int    `json:"score"`
	SMTPCheck  bool   `json:"smtp_check"`
	AcceptAll  bool   `json:"accept_all"`
	Disposable bool   `json:"disposable"`
}

type envelope struct {
	Data   json.RawMessage `json:"data"`
	Errors []apiError      `json:"errors"`
}

type apiError struct {
	ID      string `json:"id"`
	Code    int    `json:"code"`
	Details string `json:"details"`
}

// Option configures the Hunter client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewClient creates a new Hunter.io client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: "https://api.hunter.io/v2",
		http: &http.Client{
			Timeout: 20 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// retryableStatusCode returns true if the HTTP status code should trigger a retry.
func retryableStatusCode(code int) bool {
	return code == http.StatusTooManyRequests ||
		code == http.StatusInternalServerError ||
		code == http.StatusBadGateway ||
		code == http.StatusServiceUnavailable
}

// retryDo executes an HTTP request with exponential backoff retries on
// transient failures. Returns the response body and status code on success.
func (c *httpClient) retryDo(ctx context.Context, req *http.Request) ([]byte, int, error) {
	const maxAttempts = 3
	backoff := 1 * time.Second

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		retryReq := req.Clone(ctx)

		resp, err := c.http.Do(retryReq)
		if err != nil {
			lastErr = err
			if attempt < maxAttempts {
				select {
				case <-ctx.Done():
					return nil, 0, ctx.Err()
				case <-time.After(backoff):
				}
				backoff *= 2
				continue
			}
			return nil, 0, lastErr
		}

		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return nil, resp.StatusCode, eris.Wrap(readErr, "hunter: read response body")
		}

		if retryableStatusCode(resp.StatusCode) && attempt < maxAttempts {
			lastErr = eris.Errorf("hunter: status %d: %s", resp.StatusCode, string(body))
			select {
			case <-ctx.Done():
				return nil, 0, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			continue
		}

		return body, resp.StatusCode, nil
	}

	return nil, 0, lastErr
}

func (c *httpClient) get(ctx context.Context, path string, params url.Values) (json.RawMessage, error) {
	params.Set("api_key", c.apiKey)
	reqURL := fmt.Sprintf("%s%s?%s", c.baseURL, path, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "hunter: create request")
	}
	req.Header.Set("Accept", "application/json")

	body, statusCode, err := c.retryDo(ctx, req)
	if err != nil {
		return nil, eris.Wrap(err, "hunter: request failed")
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		if statusCode != http.StatusOK {
			return nil, eris.Errorf("hunter: unexpected status %d", statusCode)
		}
		return nil, eris.Wrap(err, "hunter: unmarshal response")
	}
	if statusCode != http.StatusOK {
		if len(env.Errors) > 0 {
			return nil, eris.Errorf("hunter: status %d: %s", statusCode, env.Errors[0].Details)
		}
		return nil, eris.Errorf("hunter: unexpected status %d", statusCode)
	}

	return env.Data, nil
}

func (c *httpClient) DomainSearch(ctx context.Context, domain string) (*DomainSearchData, error) {
	params := url.Values{}
	params.Set("domain", domain)

	raw, err := c.get(ctx, "/domain-search", params)
	if err != nil {
		return nil, err
	}

	var data DomainSearchData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, eris.Wrap(err, "hunter: unmarshal domain-search data")
	}
	return &data, nil
}

func (c *httpClient) VerifyEmail(ctx context.Context, email string) (*VerifyData, error) {
	params := url.Values{}
	params.Set("email", email)

	raw, err := c.get(ctx, "/email-verifier", params)
	if err != nil {
		return nil, err
	}

	var data VerifyData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, eris.Wrap(err, "hunter: unmarshal verifier data")
	}
	return &data, nil
}
