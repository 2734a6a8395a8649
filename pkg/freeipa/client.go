package freeipa

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const (
	loginPath          = "/ipa/session/login_password"
	jsonPath           = "/ipa/session/json"
	changePasswordPath = "/ipa/session/change_password"
	refererPath        = "/ipa"

	rejectionReasonHeader = "X-IPA-Rejection-Reason"
)

// RPCLogEvent describes one request sent to the FreeIPA server. Params are
// deliberately absent because they may carry passwords.
type RPCLogEvent struct {
	Method   string
	Status   int
	Duration time.Duration
	Err      error
}

// RPCLogger is invoked after every request when configured.
type RPCLogger func(RPCLogEvent)

// Options configure a Client.
type Options struct {
	// VerifySSL enables TLS certificate verification.
	VerifySSL bool
	// Timeout bounds each HTTP request. Zero leaves the base client's timeout.
	Timeout time.Duration
	// HTTPClient is cloned and decorated. Defaults to http.DefaultClient.
	HTTPClient *http.Client
	// APIVersion is sent as the "version" option on every command when set.
	APIVersion string
	// RPCLogger receives per-request diagnostics.
	RPCLogger RPCLogger
}

// Result is the "result" object of a FreeIPA JSON-RPC response, for example
// {"result": {...}, "value": "jdoe", "summary": null}.
type Result map[string]any

// Entry returns the nested "result" member when it is an object.
func (r Result) Entry() map[string]any {
	entry, _ := r["result"].(map[string]any)
	return entry
}

// Values returns the string values of attr on the nested entry. FreeIPA
// encodes most attributes as single- or multi-valued arrays.
func (r Result) Values(attr string) []string {
	entry := r.Entry()
	if entry == nil {
		return nil
	}
	switch v := entry[attr].(type) {
	case string:
		return []string{v}
	case []string:
		return append([]string(nil), v...)
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// Client talks to a single FreeIPA server.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	apiVersion string
	logger     RPCLogger

	seq atomic.Uint64

	mu        sync.RWMutex
	principal string
}

type rpcRequest struct {
	Method string `json:"method"`
	Params []any  `json:"params"`
	ID     uint64 `json:"id"`
}

type rpcResponse struct {
	Result    Result    `json:"result"`
	Error     *RPCError `json:"error"`
	ID        uint64    `json:"id"`
	Principal string    `json:"principal"`
	Version   string    `json:"version"`
}

// NormalizeServerURL accepts either a bare host name or an absolute URL and
// returns the https base URL of the server.
func NormalizeServerURL(server string) (*url.URL, error) {
	server = strings.TrimSpace(server)
	if server == "" {
		return nil, fmt.Errorf("freeipa: server is required")
	}
	if !strings.Contains(server, "://") {
		server = "https://" + server
	}
	u, err := url.Parse(server)
	if err != nil {
		return nil, fmt.Errorf("freeipa: invalid server %q: %w", server, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("freeipa: invalid server %q: missing host", server)
	}
	u.Path = strings.TrimSuffix(strings.TrimSuffix(u.Path, "/"), refererPath)
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}

// New builds a Client without contacting the server.
func New(server string, opts *Options) (*Client, error) {
	if opts == nil {
		opts = &Options{}
	}
	base, err := NormalizeServerURL(server)
	if err != nil {
		return nil, err
	}
	httpClient, err := buildHTTPClient(opts, base.String()+refererPath)
	if err != nil {
		return nil, err
	}
	return &Client{
		baseURL:    base,
		httpClient: httpClient,
		apiVersion: opts.APIVersion,
		logger:     opts.RPCLogger,
	}, nil
}

// Dial builds a Client and logs in with username and password. It performs
// exactly one HTTP round trip.
func Dial(ctx context.Context, server, username, password string, opts *Options) (*Client, error) {
	c, err := New(server, opts)
	if err != nil {
		return nil, err
	}
	if err := c.Login(ctx, username, password); err != nil {
		return nil, err
	}
	return c, nil
}

// Principal returns the user the session was opened for, or the principal
// reported by the server once a command has been issued.
func (c *Client) Principal() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.principal
}

// Login opens a session cookie using the password login endpoint.
func (c *Client) Login(ctx context.Context, username, password string) error {
	form := url.Values{"user": {username}, "password": {password}}
	return c.postForm(ctx, "login", loginPath, form, func(resp *http.Response) error {
		switch resp.StatusCode {
		case http.StatusOK:
			c.mu.Lock()
			c.principal = username
			c.mu.Unlock()
			return nil
		case http.StatusUnauthorized, http.StatusForbidden:
			return &AuthError{Op: "login", Reason: resp.Header.Get(rejectionReasonHeader), Status: resp.StatusCode}
		default:
			return &TransportError{Op: "login", Status: resp.StatusCode}
		}
	})
}

// Call executes a JSON-RPC command. args are the positional arguments and
// options the keyword options; either may be nil.
func (c *Client) Call(ctx context.Context, method string, args []any, options map[string]any) (Result, error) {
	if method == "" {
		return nil, fmt.Errorf("freeipa: method is required")
	}
	if args == nil {
		args = []any{}
	}
	opts := make(map[string]any, len(options)+1)
	for k, v := range options {
		opts[k] = v
	}
	if c.apiVersion != "" {
		if _, ok := opts["version"]; !ok {
			opts["version"] = c.apiVersion
		}
	}
	body, err := json.Marshal(rpcRequest{Method: method, Params: []any{args, opts}, ID: c.seq.Add(1)})
	if err != nil {
		return nil, fmt.Errorf("freeipa: encode %s: %w", method, err)
	}

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(jsonPath), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("freeipa: build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		err = &TransportError{Op: method, Err: err}
		c.log(method, 0, start, err)
		return nil, err
	}
	defer drainAndClose(resp.Body)

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		err := &AuthError{Op: method, Reason: "session expired or not logged in", Status: resp.StatusCode}
		c.log(method, resp.StatusCode, start, err)
		return nil, err
	case resp.StatusCode != http.StatusOK:
		err := &TransportError{Op: method, Status: resp.StatusCode}
		c.log(method, resp.StatusCode, start, err)
		return nil, err
	}

	var decoded rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		err = &TransportError{Op: method, Status: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
		c.log(method, resp.StatusCode, start, err)
		return nil, err
	}
	if decoded.Error != nil {
		decoded.Error.Method = method
		c.log(method, resp.StatusCode, start, decoded.Error)
		return nil, decoded.Error
	}
	if decoded.Principal != "" {
		c.mu.Lock()
		c.principal = decoded.Principal
		c.mu.Unlock()
	}
	c.log(method, resp.StatusCode, start, nil)
	if decoded.Result == nil {
		decoded.Result = Result{}
	}
	return decoded.Result, nil
}

// postForm sends a form-encoded request and hands the response to check.
// The RPC logger sees the error check returns.
func (c *Client) postForm(ctx context.Context, op, path string, form url.Values, check func(*http.Response) error) error {
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(path), strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("freeipa: build %s request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "text/plain")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		err = &TransportError{Op: op, Err: err}
		c.log(op, 0, start, err)
		return err
	}
	defer drainAndClose(resp.Body)
	err = check(resp)
	c.log(op, resp.StatusCode, start, err)
	return err
}

func (c *Client) endpoint(path string) string {
	return c.baseURL.String() + path
}

func (c *Client) log(method string, status int, start time.Time, err error) {
	if c.logger == nil {
		return
	}
	c.logger(RPCLogEvent{Method: method, Status: status, Duration: time.Since(start), Err: err})
}

func buildHTTPClient(opts *Options, referer string) (*http.Client, error) {
	base := opts.HTTPClient
	if base == nil {
		base = http.DefaultClient
	}
	clone := *base
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("freeipa: cookie jar: %w", err)
	}
	clone.Jar = jar
	if opts.Timeout > 0 {
		clone.Timeout = opts.Timeout
	}
	next := defaultRoundTripper(base.Transport)
	if !opts.VerifySSL {
		next = insecureRoundTripper(next)
	}
	clone.Transport = &headerDecorator{next: next, referer: referer}
	return &clone, nil
}

func insecureRoundTripper(next http.RoundTripper) http.RoundTripper {
	t, ok := next.(*http.Transport)
	if !ok {
		return next
	}
	t = t.Clone()
	if t.TLSClientConfig == nil {
		t.TLSClientConfig = &tls.Config{}
	}
	t.TLSClientConfig.InsecureSkipVerify = true
	return t
}

// headerDecorator adds the Referer header FreeIPA requires for CSRF
// protection on every session endpoint.
type headerDecorator struct {
	next    http.RoundTripper
	referer string
}

func (d *headerDecorator) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	if req.Header.Get("Referer") == "" {
		req.Header.Set("Referer", d.referer)
	}
	return d.next.RoundTrip(req)
}

func defaultRoundTripper(next http.RoundTripper) http.RoundTripper {
	if next != nil {
		return next
	}
	return http.DefaultTransport
}

func drainAndClose(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 64<<10))
	_ = body.Close()
}
