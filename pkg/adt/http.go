package adt

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"
)

// maxConcurrentRequests bounds parallel requests to one SAP system.
const maxConcurrentRequests = 5

// adtBasePath is the root of every ADT REST resource.
const adtBasePath = "/sap/bc/adt"

// HTTPDoer is an interface for executing HTTP requests.
// This abstraction allows for easy testing with mock implementations.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Transport handles HTTP communication with SAP ADT REST API.
// It authenticates every request and runs the CSRF handshake for writes.
type Transport struct {
	config     *Config
	httpClient HTTPDoer
	session    *Session
	slots      *semaphore.Weighted

	fetchPolicy    RetryPolicy
	recoveryPolicy RetryPolicy
}

// NewTransport creates a new Transport with the given configuration.
func NewTransport(cfg *Config) *Transport {
	return NewTransportWithClient(cfg, cfg.NewHTTPClient())
}

// NewTransportWithClient creates a new Transport with a custom HTTP client.
// This is useful for testing with mock HTTP clients.
func NewTransportWithClient(cfg *Config, client HTTPDoer) *Transport {
	return &Transport{
		config:         cfg,
		httpClient:     client,
		session:        NewSession(),
		slots:          semaphore.NewWeighted(maxConcurrentRequests),
		fetchPolicy:    DefaultFetchPolicy,
		recoveryPolicy: RecoveryFetchPolicy,
	}
}

// Session returns the CSRF session shared by requests on this transport.
func (t *Transport) Session() *Session {
	return t.session
}

// Close releases idle connections and drops the session state.
func (t *Transport) Close() {
	if c, ok := t.httpClient.(interface{ CloseIdleConnections() }); ok {
		c.CloseIdleConnections()
	}
	t.session.Invalidate()
}

// RequestOptions contains options for an HTTP request.
type RequestOptions struct {
	Method      string
	Headers     map[string]string
	Query       url.Values
	Body        []byte
	ContentType string
	Accept      string
	// Timeout overrides the configured per-request timeout.
	Timeout time.Duration
}

// Response wraps an HTTP response with convenience methods.
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// Text returns the body as a string.
func (r *Response) Text() string {
	return string(r.Body)
}

// Request performs an HTTP request to the ADT API.
//
// POST and PUT always fetch a fresh CSRF token first. A request rejected for
// CSRF reasons is retried exactly once after the token was fetched again with
// the recovery policy; every other failure is returned unchanged.
func (t *Transport) Request(ctx context.Context, path string, opts *RequestOptions) (*Response, error) {
	if opts == nil {
		opts = &RequestOptions{}
	}
	if opts.Method == "" {
		opts.Method = http.MethodGet
	}

	if err := t.slots.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer t.slots.Release(1)

	reqURL, err := t.buildURL(path, opts.Query)
	if err != nil {
		return nil, fmt.Errorf("building URL: %w", err)
	}

	write := isWriteMethod(opts.Method)
	if write {
		if _, err := t.FetchCSRFToken(ctx, t.fetchPolicy); err != nil {
			return nil, fmt.Errorf("fetching CSRF token: %w", err)
		}
	}

	resp, err := t.do(ctx, reqURL, opts, write)
	if err == nil {
		return resp, nil
	}
	if !IsCSRFRejection(err) {
		return nil, err
	}

	t.config.Logger.Warn("CSRF token rejected, refetching", "method", opts.Method, "path", path)
	if _, ferr := t.FetchCSRFToken(ctx, t.recoveryPolicy); ferr != nil {
		return nil, fmt.Errorf("refreshing CSRF token after rejection: %w", ferr)
	}
	return t.do(ctx, reqURL, opts, true)
}

// do issues a single request and reads the full response.
func (t *Transport) do(ctx context.Context, reqURL string, opts *RequestOptions, withToken bool) (*Response, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = t.config.Timeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var bodyReader io.Reader
	if opts.Body != nil {
		bodyReader = bytes.NewReader(opts.Body)
	}

	req, err := http.NewRequestWithContext(ctx, opts.Method, reqURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	t.setHeaders(req, opts, withToken)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Body:       string(body),
			Path:       req.URL.Path,
		}
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       body,
	}, nil
}

// setHeaders applies auth, session and content headers.
func (t *Transport) setHeaders(req *http.Request, opts *RequestOptions, withToken bool) {
	for k, v := range t.config.authHeaders() {
		req.Header[k] = v
	}

	accept := opts.Accept
	if accept == "" {
		accept = "*/*"
	}
	req.Header.Set("Accept", accept)

	if opts.Body != nil {
		contentType := opts.ContentType
		if contentType == "" {
			contentType = "text/plain"
		}
		req.Header.Set("Content-Type", contentType)
	}

	if withToken {
		if token := t.session.Token(); token != "" {
			req.Header.Set("X-CSRF-Token", token)
		}
	}
	if cookies := t.session.Cookies(); cookies != "" {
		req.Header.Set("Cookie", cookies)
	}

	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}
}

// buildURL constructs the full URL for an API request.
// Absolute URLs are kept; relative paths are placed under the ADT base path.
func (t *Transport) buildURL(path string, query url.Values) (string, error) {
	var raw string
	switch {
	case strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://"):
		raw = path
	default:
		if !strings.HasPrefix(path, "/") {
			path = "/" + path
		}
		if !strings.HasPrefix(path, adtBasePath+"/") && path != adtBasePath {
			path = adtBasePath + path
		}
		base := strings.TrimSuffix(strings.TrimSuffix(t.config.BaseURL, "/"), adtBasePath)
		raw = base + path
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}

	q := u.Query()
	if t.config.Client != "" && q.Get("sap-client") == "" {
		q.Set("sap-client", t.config.Client)
	}
	if t.config.Language != "" && q.Get("sap-language") == "" {
		q.Set("sap-language", t.config.Language)
	}
	for k, v := range query {
		for _, val := range v {
			q.Add(k, val)
		}
	}
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// isWriteMethod returns true for the methods that require a CSRF token.
func isWriteMethod(method string) bool {
	return method == http.MethodPost || method == http.MethodPut
}

// APIError represents an error from the ADT API.
type APIError struct {
	StatusCode int
	Body       string
	Path       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("ADT API error: status %d at %s: %s", e.StatusCode, e.Path, e.Body)
}

// IsNotFound returns true if the error is a 404 Not Found error.
func (e *APIError) IsNotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

// IsNotFoundError checks if an error is an API 404 Not Found error.
func IsNotFoundError(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.IsNotFound()
	}
	return false
}

// IsCSRFRejection reports whether err looks like the server refused the CSRF
// token: a 403 whose body mentions CSRF, or any error whose message does.
func IsCSRFRejection(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusForbidden &&
		strings.Contains(strings.ToUpper(apiErr.Body), "CSRF") {
		return true
	}
	return strings.Contains(strings.ToUpper(err.Error()), "CSRF")
}
