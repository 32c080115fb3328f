// Package supabase calls the EduLink stored functions exposed by the Supabase REST API.
package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"edulink/internal/metrics"
)

// DefaultTimeout bounds every RPC round trip.
const DefaultTimeout = 10 * time.Second

const maxResponseBytes = 4 << 20

// Remote procedure names.
const (
	RPCParentOverview        = "parent_overview"
	RPCCreateOrGetParentLink = "create_or_get_parent_link"
	RPCSetAttendance         = "set_attendance_with_feedback"
	RPCGetClassRoll          = "get_class_roll"
	RPCGetTodayClasses       = "get_today_classes"
)

var ErrNotConfigured = errors.New("supabase: url and anon key are required")

// RemoteError is a failure reported by the backend rather than the transport.
type RemoteError struct {
	RPC     string
	Status  int
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
	Hint    string `json:"hint"`
}

func (e *RemoteError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (%s)", e.RPC, msg, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.RPC, msg)
}

// Unauthorized reports whether the backend rejected the caller's credentials.
func (e *RemoteError) Unauthorized() bool {
	return e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden
}

type Config struct {
	URL        string
	AnonKey    string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client is safe for concurrent use.
type Client struct {
	restBase *url.URL
	rpcBase  *url.URL
	anonKey  string
	http     *http.Client
}

func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.URL) == "" || strings.TrimSpace(cfg.AnonKey) == "" {
		return nil, ErrNotConfigured
	}
	base, err := url.Parse(strings.TrimRight(cfg.URL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("supabase: invalid url %q", cfg.URL)
	}
	rest := base.JoinPath("rest", "v1")

	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		hc = &http.Client{Timeout: timeout}
	}
	return &Client{restBase: rest, rpcBase: rest.JoinPath("rpc"), anonKey: cfg.AnonKey, http: hc}, nil
}

type accessTokenKey struct{}

// WithAccessToken makes calls made with ctx run as the signed-in staff user.
func WithAccessToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, accessTokenKey{}, token)
}

func accessToken(ctx context.Context) string {
	s, _ := ctx.Value(accessTokenKey{}).(string)
	return s
}

// Call invokes fn with params and decodes the JSON result into out. A nil out discards it.
func (c *Client) Call(ctx context.Context, fn string, params any, out any) (err error) {
	start := time.Now()
	defer func() { metrics.ObserveRPC(fn, start, err) }()

	body, err := c.post(ctx, fn, params)
	if err != nil {
		return err
	}
	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", fn, err)
	}
	return nil
}

func (c *Client) post(ctx context.Context, fn string, params any) ([]byte, error) {
	if params == nil {
		params = struct{}{}
	}
	payload, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("%s: encode params: %w", fn, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcBase.JoinPath(fn).String(), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%s: create request: %w", fn, err)
	}
	bearer := c.anonKey
	if tok := accessToken(ctx); tok != "" {
		bearer = tok
	}
	req.Header.Set("apikey", c.anonKey)
	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fn, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%s: read response: %w", fn, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, remoteError(fn, resp.StatusCode, body)
	}
	return body, nil
}

// Ping checks that the REST endpoint answers. Any non-5xx response counts as reachable.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.restBase.String()+"/", nil)
	if err != nil {
		return err
	}
	req.Header.Set("apikey", c.anonKey)
	req.Header.Set("Authorization", "Bearer "+c.anonKey)
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("supabase ping: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 500 {
		return fmt.Errorf("supabase ping: status %d", resp.StatusCode)
	}
	return nil
}

func remoteError(fn string, status int, body []byte) *RemoteError {
	re := &RemoteError{RPC: fn, Status: status}
	if err := json.Unmarshal(body, re); err != nil || re.Message == "" {
		// Some gateways answer with {"error": "...", "error_description": "..."} or plain text.
		var alt struct {
			Error string `json:"error"`
			Desc  string `json:"error_description"`
			Msg   string `json:"msg"`
		}
		if json.Unmarshal(body, &alt) == nil {
			re.Message = firstNonEmpty(alt.Desc, alt.Msg, alt.Error)
		}
		if re.Message == "" {
			re.Message = strings.TrimSpace(string(body))
		}
	}
	re.RPC = fn
	re.Status = status
	return re
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
