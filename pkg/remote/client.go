// Package remote is the Remote Store client: it talks to the dashboard's
// REST endpoints with retry on transient failure.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"
)

const (
	// DefaultMaxRetries is the number of retries after the first attempt.
	DefaultMaxRetries = 3

	// DeviceHeader carries the persisted install id.
	DeviceHeader = "X-Device-Id"
)

// DefaultBackoff is the fixed retry schedule. Retries past its end reuse
// the last delay.
var DefaultBackoff = []time.Duration{
	100 * time.Millisecond,
	500 * time.Millisecond,
	1000 * time.Millisecond,
}

// TokenSource supplies the bearer token for the current session. An empty
// token means no Authorization header is sent.
type TokenSource interface {
	Token() string
}

// StaticToken is a fixed TokenSource.
type StaticToken string

func (t StaticToken) Token() string { return string(t) }

// Request describes one REST call. Body, when set, is JSON encoded once and
// resent on every attempt.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   any
	Header http.Header
}

// Client performs requests against the dashboard API.
type Client struct {
	baseURL    string
	http       *http.Client
	tokens     TokenSource
	deviceID   string
	backoff    []time.Duration
	maxRetries int
	log        *slog.Logger
	sleep      func(ctx context.Context, d time.Duration) error
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the transport client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

// WithTokenSource attaches bearer tokens from ts.
func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) { c.tokens = ts }
}

// WithDeviceID sends id in the DeviceHeader of every request.
func WithDeviceID(id string) Option {
	return func(c *Client) { c.deviceID = id }
}

// WithBackoff overrides the retry schedule.
func WithBackoff(delays []time.Duration) Option {
	return func(c *Client) {
		if len(delays) > 0 {
			c.backoff = append([]time.Duration(nil), delays...)
		}
	}
}

// WithMaxRetries overrides DefaultMaxRetries.
func WithMaxRetries(n int) Option {
	return func(c *Client) {
		if n >= 0 {
			c.maxRetries = n
		}
	}
}

// WithLogger sets the logger for retry diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// WithSleep replaces the backoff wait, mainly for tests.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Client) {
		if fn != nil {
			c.sleep = fn
		}
	}
}

// New creates a Client for baseURL. Cookies are kept in a jar so
// session cookies ride along with every request.
func New(baseURL string, opts ...Option) *Client {
	jar, _ := cookiejar.New(nil)
	c := &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http:       &http.Client{Jar: jar},
		backoff:    DefaultBackoff,
		maxRetries: DefaultMaxRetries,
		log:        slog.Default(),
		sleep:      sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// URL resolves path against the base URL. Absolute URLs pass through.
func (c *Client) URL(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.baseURL + path
}

// Do is FetchWithRetry with the client's configured retry count.
func (c *Client) Do(ctx context.Context, req Request) (*http.Response, error) {
	return c.FetchWithRetry(ctx, req, c.maxRetries)
}

// FetchWithRetry performs req, retrying transport errors and 5xx responses
// up to maxRetries times. 4xx responses are returned at once. When retries
// are exhausted the last response, or the last error, is returned. The
// caller owns the response body.
func (c *Client) FetchWithRetry(ctx context.Context, req Request, maxRetries int) (*http.Response, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	var body []byte
	if req.Body != nil {
		var err error
		if body, err = json.Marshal(req.Body); err != nil {
			return nil, fmt.Errorf("remote: encode body: %w", err)
		}
	}
	target := c.URL(req.Path)
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	for attempt := 0; ; attempt++ {
		httpReq, err := c.newRequest(ctx, method, target, body, req.Header)
		if err != nil {
			return nil, err
		}
		resp, err := c.http.Do(httpReq)
		last := attempt >= maxRetries
		switch {
		case err != nil:
			if ctx.Err() != nil || last {
				return nil, err
			}
			c.log.Debug("remote: transport error, retrying", "method", method, "url", target, "attempt", attempt+1, "error", err)
		case resp.StatusCode < http.StatusInternalServerError:
			return resp, nil
		default:
			if last {
				return resp, nil
			}
			c.log.Debug("remote: server error, retrying", "method", method, "url", target, "attempt", attempt+1, "status", resp.StatusCode)
			drain(resp)
		}
		if err := c.sleep(ctx, c.delay(attempt)); err != nil {
			return nil, err
		}
	}
}

func (c *Client) newRequest(ctx context.Context, method, target string, body []byte, header http.Header) (*http.Request, error) {
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	r, err := http.NewRequestWithContext(ctx, method, target, rdr)
	if err != nil {
		return nil, fmt.Errorf("remote: build request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			r.Header.Add(k, v)
		}
	}
	if body != nil && r.Header.Get("Content-Type") == "" {
		r.Header.Set("Content-Type", "application/json")
	}
	r.Header.Set("Accept", "application/json")
	if c.tokens != nil {
		if token := c.tokens.Token(); token != "" {
			r.Header.Set("Authorization", "Bearer "+token)
		}
	}
	if c.deviceID != "" {
		r.Header.Set(DeviceHeader, c.deviceID)
	}
	return r, nil
}

func (c *Client) delay(attempt int) time.Duration {
	if len(c.backoff) == 0 {
		return 0
	}
	if attempt < len(c.backoff) {
		return c.backoff[attempt]
	}
	return c.backoff[len(c.backoff)-1]
}

// SafeParseJSON decodes the response body into v after checking that the
// server declared a JSON content type. The body is always closed.
func SafeParseJSON(resp *http.Response, v any) error {
	defer drain(resp)
	if !isJSON(resp.Header.Get("Content-Type")) {
		return ErrNonJSONResponse
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("remote: decode response: %w", err)
	}
	return nil
}

// SafeFetchJSON performs req with retries and decodes a 2xx JSON body into
// v. Non-2xx responses become a *StatusError.
func (c *Client) SafeFetchJSON(ctx context.Context, req Request, v any) error {
	resp, err := c.Do(ctx, req)
	if err != nil {
		return err
	}
	if err := checkStatus(resp); err != nil {
		return err
	}
	return SafeParseJSON(resp, v)
}

// Send performs req with retries and discards any body. Non-2xx responses
// become a *StatusError.
func (c *Client) Send(ctx context.Context, req Request) error {
	resp, err := c.Do(ctx, req)
	if err != nil {
		return err
	}
	defer drain(resp)
	return checkStatus(resp)
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	defer drain(resp)
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
	return &StatusError{
		Method: resp.Request.Method,
		URL:    resp.Request.URL.Path,
		Code:   resp.StatusCode,
		Body:   strings.TrimSpace(string(snippet)),
	}
}

func isJSON(contentType string) bool {
	if contentType == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.Contains(contentType, "application/json")
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

func drain(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
