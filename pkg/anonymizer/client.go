// Package anonymizer provides a client for the PII anonymization service.
// The service replaces sensitive spans with <ENTITY_TYPE_N> placeholders and
// returns the mapping back to the original values.
package anonymizer

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/doctrans/internal/resilience"
)

// Client defines the anonymizer operations.
type Client interface {
	// Anonymize redacts a single text.
	Anonymize(ctx context.Context, text, language string) (*Result, error)
	// AnonymizeBatch redacts many texts in one request. Results are aligned
	// with items by position; the service may return fewer results than items.
	AnonymizeBatch(ctx context.Context, items []Item) ([]Result, error)
}

// Item is one text to anonymize.
type Item struct {
	Text     string `json:"text"`
	Language string `json:"language"`
}

// Result is the anonymized form of one text.
type Result struct {
	AnonymizedText string    `json:"anonymized_text"`
	Mappings       []Mapping `json:"mappings"`
}

// Mapping links a placeholder to the value it replaced.
type Mapping struct {
	Token      string `json:"token"`
	EntityType string `json:"entity_type"`
	Original   string `json:"original_value"`
}

type batchRequest struct {
	Items []Item `json:"items"`
}

type batchResponse struct {
	Results []Result `json:"results"`
}

// Option configures the anonymizer client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL.
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

// WithTimeout bounds each request.
func WithTimeout(d time.Duration) Option {
	return func(c *httpClient) {
		c.http.Timeout = d
	}
}

// WithRetry replaces the retry policy for transient failures.
func WithRetry(cfg resilience.RetryPolicy) Option {
	return func(c *httpClient) {
		c.retry = cfg
	}
}

// WithBreaker guards calls with b.
func WithBreaker(b *resilience.Breaker) Option {
	return func(c *httpClient) {
		c.breaker = b
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
	retry   resilience.RetryPolicy
	breaker *resilience.Breaker
}

// NewClient creates a new anonymizer client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: "http://localhost:8090",
		http: &http.Client{
			Timeout: 60 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		retry:   resilience.ServiceRetry(resilience.ServiceAnonymizer, "anonymize", 0),
		breaker: resilience.NewBreaker(resilience.ServiceAnonymizer, resilience.DefaultBreakerConfig()),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) Anonymize(ctx context.Context, text, language string) (*Result, error) {
	var result Result
	if err := c.post(ctx, "/anonymize", Item{Text: text, Language: language}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *httpClient) AnonymizeBatch(ctx context.Context, items []Item) ([]Result, error) {
	if len(items) == 0 {
		return nil, nil
	}
	var resp batchResponse
	if err := c.post(ctx, "/anonymize/batch", batchRequest{Items: items}, &resp); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

// post sends a JSON request through the circuit breaker, retrying transient
// failures, and decodes the JSON response into out.
func (c *httpClient) post(ctx context.Context, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return eris.Wrap(err, "anonymizer: marshal request")
	}

	body, err := resilience.Guard(ctx, c.breaker, c.retry, func(ctx context.Context) ([]byte, error) {
		return c.do(ctx, path, payload)
	})
	if err != nil {
		return eris.Wrapf(err, "anonymizer: request %s", path)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return eris.Wrap(err, "anonymizer: unmarshal response")
	}
	return nil
}

func (c *httpClient) do(ctx context.Context, path string, payload []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, eris.Wrap(err, "anonymizer: create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "anonymizer: read response body")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, resilience.StatusError("anonymizer", resp.StatusCode, body)
	}
	return body, nil
}
