// CLAUDE:SUMMARY Bounded single-request loader for SECOP Integrado procurement records from the datos.gov.co Socrata API.
package secop

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const (
	// DefaultURL is the SECOP Integrado resource on datos.gov.co.
	DefaultURL = "https://www.datos.gov.co/resource/rpmr-utcd.json"
	// DefaultLimit is the number of records requested per load.
	DefaultLimit   = 50000
	DefaultTimeout = 60 * time.Second

	maxErrorBody = 512
)

// Record is one procurement contract as returned by the API. Field names and
// presence vary between calls; numbers are kept as json.Number.
type Record = map[string]any

// Client fetches raw records from the remote resource.
type Client struct {
	url    string
	client *http.Client
	logger *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.client = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(cl *Client) { cl.logger = l }
}

// NewClient creates a loader for resourceURL. An empty URL means DefaultURL;
// a non-positive timeout means DefaultTimeout.
func NewClient(resourceURL string, timeout time.Duration, opts ...Option) *Client {
	if resourceURL == "" {
		resourceURL = DefaultURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	c := &Client{
		url:    resourceURL,
		client: &http.Client{Timeout: timeout},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// URL returns the resource URL the client reads from.
func (c *Client) URL() string { return c.url }

// Load issues one request for up to limit records. It never paginates and
// never retries. On failure it returns an empty, non-nil slice together with a
// *ConnectionError or an *UnexpectedError.
func (c *Client) Load(ctx context.Context, limit int) ([]Record, error) {
	empty := []Record{}
	if limit <= 0 {
		return empty, &UnexpectedError{Err: fmt.Errorf("%w: got %d", ErrInvalidLimit, limit)}
	}

	reqURL, err := withLimit(c.url, limit)
	if err != nil {
		return empty, &UnexpectedError{Err: fmt.Errorf("build url: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return empty, &UnexpectedError{Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Warn("secop request failed", "url", reqURL, "error", err)
		return empty, &ConnectionError{URL: reqURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.logger.Warn("secop non-success status", "url", reqURL, "status", resp.StatusCode)
		return empty, &ConnectionError{
			URL:        reqURL,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("%s: %s", resp.Status, bytes.TrimSpace(body)),
		}
	}

	body := &bodyReader{r: resp.Body}
	records, err := decodeRecords(body)
	if err != nil {
		if body.err != nil {
			c.logger.Warn("secop body read failed", "url", reqURL, "error", body.err)
			return empty, &ConnectionError{URL: reqURL, Err: body.err}
		}
		c.logger.Warn("secop payload rejected", "url", reqURL, "error", err)
		return empty, &UnexpectedError{Err: err}
	}

	c.logger.Info("secop records loaded", "rows", len(records), "limit", limit, "duration", time.Since(start))
	return records, nil
}

// bodyReader keeps the first read failure other than io.EOF, so a dropped or
// timed out connection is told apart from a payload that ends early.
type bodyReader struct {
	r   io.Reader
	err error
}

func (b *bodyReader) Read(p []byte) (int, error) {
	n, err := b.r.Read(p)
	if err != nil && !errors.Is(err, io.EOF) && b.err == nil {
		b.err = err
	}
	return n, err
}

// decodeRecords parses a JSON array of objects, keeping numbers as json.Number.
func decodeRecords(r io.Reader) ([]Record, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var raw []json.RawMessage
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	if raw == nil {
		return nil, ErrNotArray
	}

	records := make([]Record, 0, len(raw))
	for i, item := range raw {
		d := json.NewDecoder(bytes.NewReader(item))
		d.UseNumber()
		var rec map[string]any
		if err := d.Decode(&rec); err != nil || rec == nil {
			return nil, fmt.Errorf("%w: element %d", ErrNotArray, i)
		}
		records = append(records, rec)
	}
	return records, nil
}

func withLimit(resourceURL string, limit int) (string, error) {
	u, err := url.Parse(resourceURL)
	if err != nil {
		return "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("invalid resource url %q", resourceURL)
	}
	q := u.Query()
	q.Set("$limit", strconv.Itoa(limit))
	u.RawQuery = q.Encode()
	return u.String(), nil
}
