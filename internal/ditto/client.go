// Package ditto is a small client for the Eclipse Ditto REST API (v2).
//
// Only the thing-level endpoints the load generator needs are covered:
// create-or-replace, read, JSON patch, features replace, delete and list.
package ditto

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL = "http://localhost:8080"
	DefaultTimeout = 10 * time.Second

	thingsPath = "/api/2/things"

	contentJSON      = "application/json"
	contentJSONPatch = "application/json-patch+json"
)

// ErrMissingAuth is returned by every request when neither a precomputed
// Basic token nor a username is configured.
var ErrMissingAuth = errors.New("ditto: missing credentials (set DITTO_AUTH_BASIC or DITTO_USERNAME/DITTO_PASSWORD)")

// Config holds connection settings. Zero values fall back to defaults.
type Config struct {
	BaseURL string
	// AuthBasic is a precomputed base64("user:pass"). It wins over Username.
	AuthBasic string
	Username  string
	Password  string
	Timeout   time.Duration
	// RatePerSec caps outgoing requests across all callers. 0 disables the cap.
	RatePerSec float64
}

// Client is safe for concurrent use.
type Client struct {
	base    string
	auth    string
	hc      *http.Client
	limiter *rate.Limiter
}

type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client. The configured timeout
// is not applied to a caller-supplied client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.hc = hc
		}
	}
}

// New never fails on missing credentials; that is reported by the first request.
func New(cfg Config, opts ...Option) *Client {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	c := &Client{
		base: base,
		auth: authHeader(cfg),
		hc:   &http.Client{Timeout: timeout},
	}
	if cfg.RatePerSec > 0 {
		burst := int(cfg.RatePerSec)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), burst)
	}
	for _, o := range opts {
		if o != nil {
			o(c)
		}
	}
	return c
}

// BaseURL returns the normalized base URL (no trailing slash).
func (c *Client) BaseURL() string { return c.base }

func authHeader(cfg Config) string {
	if tok := strings.TrimSpace(cfg.AuthBasic); tok != "" {
		return "Basic " + tok
	}
	if cfg.Username != "" {
		return "Basic " + base64.StdEncoding.EncodeToString([]byte(cfg.Username+":"+cfg.Password))
	}
	return ""
}

// Response is the raw outcome of a request that reached the server.
type Response struct {
	StatusCode int
	Body       []byte
}

// OK reports a 2xx status.
func (r Response) OK() bool { return r.StatusCode >= 200 && r.StatusCode < 300 }

func (r Response) Text() string { return string(r.Body) }

// Decode unmarshals the body into v.
func (r Response) Decode(v any) error {
	if len(bytes.TrimSpace(r.Body)) == 0 {
		return io.EOF
	}
	return json.Unmarshal(r.Body, v)
}

// ReplaceState creates or fully replaces the thing with the given body.
func (c *Client) ReplaceState(ctx context.Context, thingID string, body any) (Response, error) {
	return c.do(ctx, http.MethodPut, thingPath(thingID), contentJSON, body)
}

func (c *Client) GetState(ctx context.Context, thingID string) (Response, error) {
	return c.do(ctx, http.MethodGet, thingPath(thingID), "", nil)
}

// PatchOp is one RFC 6902 operation.
type PatchOp struct {
	Op    string `json:"op"`
	Path  string `json:"path"`
	Value any    `json:"value,omitempty"`
	From  string `json:"from,omitempty"`
}

func (c *Client) ApplyPatch(ctx context.Context, thingID string, ops []PatchOp) (Response, error) {
	if ops == nil {
		ops = []PatchOp{}
	}
	return c.do(ctx, http.MethodPatch, thingPath(thingID), contentJSONPatch, ops)
}

// ReplaceFeatures replaces the whole features object of a thing.
func (c *Client) ReplaceFeatures(ctx context.Context, thingID string, features any) (Response, error) {
	return c.do(ctx, http.MethodPut, thingPath(thingID)+"/features", contentJSON, features)
}

func (c *Client) DeleteState(ctx context.Context, thingID string) (Response, error) {
	return c.do(ctx, http.MethodDelete, thingPath(thingID), "", nil)
}

// ListThings returns the things visible to the configured user.
func (c *Client) ListThings(ctx context.Context) (Response, error) {
	return c.do(ctx, http.MethodGet, thingsPath, "", nil)
}

func thingPath(id string) string {
	return thingsPath + "/" + url.PathEscape(id)
}

func (c *Client) do(ctx context.Context, method, path, contentType string, body any) (Response, error) {
	if c.auth == "" {
		return Response{}, ErrMissingAuth
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return Response{}, fmt.Errorf("ditto: rate wait: %w", err)
		}
	}

	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return Response{}, fmt.Errorf("ditto: encode %s %s: %w", method, path, err)
		}
		rdr = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rdr)
	if err != nil {
		return Response{}, err
	}
	req.Header.Set("Accept", contentJSON)
	if contentType == "" {
		contentType = contentJSON
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", c.auth)

	resp, err := c.hc.Do(req)
	if err != nil {
		return Response{}, fmt.Errorf("ditto: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{StatusCode: resp.StatusCode}, fmt.Errorf("ditto: read body: %w", err)
	}
	return Response{StatusCode: resp.StatusCode, Body: b}, nil
}
