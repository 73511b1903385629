// Package mtclient provides a client for the machine translation service.
package mtclient

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/doctrans/internal/resilience"
)

// Client defines the machine translation operations.
type Client interface {
	// Translate translates items from sourceLang to targetLang. Results are
	// keyed by segment id, not position.
	Translate(ctx context.Context, items []Item, sourceLang, targetLang string) ([]Result, error)
}

// Item is one segment sent for translation.
type Item struct {
	ID      string `json:"id"`
	Content string `json:"content"`
}

// Result is the translation of one segment.
type Result struct {
	SegmentID      string `json:"segmentId"`
	TranslatedText string `json:"translatedText"`
}

type translateRequest struct {
	Segments       []Item `json:"segments"`
	SourceLanguage string `json:"sourceLanguage"`
	TargetLanguage string `json:"targetLanguage"`
}

type translateResponse struct {
	Results []Result `json:"results"`
}

// Option configures the MT client.
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

// WithRateLimit caps outgoing requests per second.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
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
	limiter *rate.Limiter
	retry   resilience.RetryPolicy
	breaker *resilience.Breaker
}

// NewClient creates a new MT client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: "http://localhost:8091",
		http:    &http.Client{Timeout: 120 * time.Second},
		limiter: rate.NewLimiter(2, 2),
		retry:   resilience.ServiceRetry(resilience.ServiceMT, "translate", 0),
		breaker: resilience.NewBreaker(resilience.ServiceMT, resilience.DefaultBreakerConfig()),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) Translate(ctx context.Context, items []Item, sourceLang, targetLang string) ([]Result, error) {
	if len(items) == 0 {
		return nil, nil
	}

	payload, err := json.Marshal(translateRequest{
		Segments:       items,
		SourceLanguage: sourceLang,
		TargetLanguage: targetLang,
	})
	if err != nil {
		return nil, eris.Wrap(err, "mtclient: marshal request")
	}

	body, err := resilience.Guard(ctx, c.breaker, c.retry, func(ctx context.Context) ([]byte, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "mtclient: rate limiter")
		}
		return c.do(ctx, payload)
	})
	if err != nil {
		return nil, eris.Wrap(err, "mtclient: translate")
	}

	var resp translateResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, eris.Wrap(err, "mtclient: unmarshal response")
	}
	return resp.Results, nil
}

func (c *httpClient) do(ctx context.Context, payload []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/translate", bytes.NewReader(payload))
	if err != nil {
		return nil, eris.Wrap(err, "mtclient: create request")
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
		return nil, eris.Wrap(err, "mtclient: read response body")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, resilience.StatusError("mtclient", resp.StatusCode, body)
	}
	return body, nil
}
