package erp

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
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/saftbridge/saftbridge/internal/platform/resilience"
)

// Config carries everything needed to reach one ERP tenant.
type Config struct {
	// BaseURL is the tenant API root, e.g. "https://erp.example.com".
	BaseURL string
	// TokenURL is the OAuth2 token endpoint. Empty means requests go
	// out unauthenticated, which only makes sense against a stub.
	TokenURL     string
	ClientID     string
	ClientSecret string
	// PollInterval and JobTimeout bound the bulk-job wait loop.
	PollInterval time.Duration
	JobTimeout   time.Duration
	// PageSize caps records per bulk result page.
	PageSize int
	// Charset names the encoding of bulk CSV payloads ("utf-8",
	// "windows-1251").
	Charset    string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client is a finance-cloud ERP API client. All outbound calls run
// through a circuit breaker wrapping a jittered retry loop; 4xx
// responses are terminal, 5xx and transport errors retry.
type Client struct {
	httpc        *http.Client
	baseURL      string
	tokenURL     string
	clientID     string
	clientSecret string
	pollInterval time.Duration
	jobTimeout   time.Duration
	pageSize     int
	charset      string
	logger       *slog.Logger
	cb           *gobreaker.CircuitBreaker
	retry        resilience.Config

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// NewClient validates cfg and builds a Client with production
// defaults for anything unset.
func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("erp: base URL is required")
	}
	if _, err := newCharsetReader(cfg.Charset, strings.NewReader("")); err != nil {
		return nil, err
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 10 * time.Minute
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 50000
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Client{
		httpc:        cfg.HTTPClient,
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		tokenURL:     cfg.TokenURL,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		pollInterval: cfg.PollInterval,
		jobTimeout:   cfg.JobTimeout,
		pageSize:     cfg.PageSize,
		charset:      cfg.Charset,
		logger:       cfg.Logger,
		cb:           resilience.NewCircuitBreaker("erp"),
		retry:        resilience.DefaultConfig(),
	}, nil
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// token returns a cached access token, fetching a fresh one when the
// cache is empty or within thirty seconds of expiry.
func (c *Client) token(ctx context.Context) (string, error) {
	if c.tokenURL == "" {
		return "", nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && time.Now().Before(c.tokenExpiry.Add(-30*time.Second)) {
		return c.accessToken, nil
	}

	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {c.clientID},
		"client_secret": {c.clientSecret},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("erp: build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", fmt.Errorf("erp: fetch token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("erp: fetch token: status %d: %w", resp.StatusCode, ErrUnauthorized)
	}

	var tok tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", fmt.Errorf("erp: decode token response: %w", err)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("erp: token response missing access_token: %w", ErrUnauthorized)
	}

	ttl := tok.ExpiresIn
	if ttl <= 0 {
		ttl = 3600
	}
	c.accessToken = tok.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(ttl) * time.Second)
	return c.accessToken, nil
}

func (c *Client) invalidateToken() {
	c.mu.Lock()
	c.accessToken = ""
	c.mu.Unlock()
}

// requestURL resolves path against the tenant root. Absolute URLs and
// server-relative paths (nextRecordsUrl style) pass through.
func (c *Client) requestURL(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	if strings.HasPrefix(path, "/") {
		return c.baseURL + path
	}
	return c.baseURL + "/" + path
}

func (c *Client) newRequest(ctx context.Context, method, path string, payload any) (*http.Request, error) {
	var body io.Reader
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("erp: encode request body: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.requestURL(path), body)
	if err != nil {
		return nil, fmt.Errorf("erp: build request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	tok, err := c.token(ctx)
	if err != nil {
		return nil, err
	}
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	return req, nil
}

// send executes req and maps the status code onto the retry contract.
// The response body is open on success; on failure it is drained and
// closed here.
func (c *Client) send(req *http.Request) (*http.Response, error) {
	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("erp: %s %s: %w", req.Method, req.URL.Path, err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}

	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	resp.Body.Close()
	msg := strings.TrimSpace(string(snippet))

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		// A stale token is the common cause; drop the cache so the
		// retry attempt re-authenticates.
		c.invalidateToken()
		return nil, fmt.Errorf("erp: %s %s: %s: %w", req.Method, req.URL.Path, msg, ErrUnauthorized)
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, resilience.Permanent(fmt.Errorf("erp: %s %s: status %d: %s", req.Method, req.URL.Path, resp.StatusCode, msg))
	default:
		return nil, fmt.Errorf("erp: %s %s: status %d: %s", req.Method, req.URL.Path, resp.StatusCode, msg)
	}
}

// callJSON performs one JSON request/response exchange under the
// breaker and retry loop.
func (c *Client) callJSON(ctx context.Context, method, path string, payload, out any) error {
	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.retry, func() error {
			req, err := c.newRequest(ctx, method, path, payload)
			if err != nil {
				return err
			}
			resp, err := c.send(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			if out == nil {
				_, err := io.Copy(io.Discard, resp.Body)
				return err
			}
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return resilience.Permanent(fmt.Errorf("erp: decode %s response: %w", path, err))
			}
			return nil
		})
	})
	return err
}

// callCSV fetches path and hands the charset-decoded body to handle.
// A failure anywhere, including mid-stream, retries the whole page.
// It returns the result-locator header of the response.
func (c *Client) callCSV(ctx context.Context, path string, handle func(io.Reader) error) (string, error) {
	locator, err := c.cb.Execute(func() (any, error) {
		var loc string
		err := resilience.RetryWithBackoff(ctx, c.retry, func() error {
			req, err := c.newRequest(ctx, http.MethodGet, path, nil)
			if err != nil {
				return err
			}
			req.Header.Set("Accept", "text/csv")

			resp, err := c.send(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			decoded, err := newCharsetReader(c.charset, resp.Body)
			if err != nil {
				return resilience.Permanent(err)
			}
			if err := handle(decoded); err != nil {
				return err
			}
			loc = resp.Header.Get(headerLocator)
			return nil
		})
		return loc, err
	})
	if err != nil {
		return "", err
	}
	return locator.(string), nil
}

type queryPage struct {
	TotalSize      int              `json:"totalSize"`
	Done           bool             `json:"done"`
	NextRecordsURL string           `json:"nextRecordsUrl"`
	Records        []map[string]any `json:"records"`
}

// Query runs q through the paginated REST endpoint and returns every
// record across all pages, flattened.
func (c *Client) Query(ctx context.Context, q string) ([]Record, error) {
	var records []Record

	path := "/api/data/query?q=" + url.QueryEscape(q)
	for path != "" {
		var page queryPage
		if err := c.callJSON(ctx, http.MethodGet, path, nil, &page); err != nil {
			return nil, err
		}
		for _, raw := range page.Records {
			records = append(records, recordFromObject(raw))
		}
		if page.Done || page.NextRecordsURL == "" {
			break
		}
		path = page.NextRecordsURL
	}
	return records, nil
}

// QueryOne runs q and returns the first record, or nil when the
// result set is empty.
func (c *Client) QueryOne(ctx context.Context, q string) (Record, error) {
	records, err := c.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return records[0], nil
}
