package adt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrCSRFTokenUnavailable is returned when no token could be obtained within
// the retry budget.
var ErrCSRFTokenUnavailable = errors.New("CSRF token unavailable")

// FetchCSRFToken obtains a fresh token and stores it, together with any
// cookies the server set, in the transport's session.
func (t *Transport) FetchCSRFToken(ctx context.Context, policy RetryPolicy) (string, error) {
	return t.session.refresh(ctx, func(ctx context.Context) (string, string, error) {
		ctx, cancel := context.WithTimeout(ctx, policy.budget())
		defer cancel()
		return t.fetchCSRFToken(ctx, policy)
	})
}

func (t *Transport) fetchCSRFToken(ctx context.Context, policy RetryPolicy) (string, string, error) {
	attempts := policy.Attempts
	if attempts < 1 {
		attempts = 1
	}

	reqURL, err := t.buildURL(discoveryPath(t.config.BaseURL), nil)
	if err != nil {
		return "", "", fmt.Errorf("building URL: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		token, cookies, err := t.requestCSRFToken(ctx, reqURL)
		if err == nil {
			t.config.Logger.Debug("CSRF token fetched", "attempt", attempt)
			return token, cookies, nil
		}
		lastErr = err
		t.config.Logger.Debug("CSRF token fetch failed", "attempt", attempt, "of", attempts, "err", err)

		if attempt < attempts {
			select {
			case <-ctx.Done():
				return "", "", ctx.Err()
			case <-time.After(policy.Delay):
			}
		}
	}

	return "", "", fmt.Errorf("%w after %d attempts: %v", ErrCSRFTokenUnavailable, attempts, lastErr)
}

// requestCSRFToken performs one discovery request.
//
// A token in the response headers counts as success whatever the status code:
// the discovery endpoint sometimes answers 405 to GET yet still issues a token.
func (t *Transport) requestCSRFToken(ctx context.Context, reqURL string) (string, string, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultCSRFTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return "", "", fmt.Errorf("creating request: %w", err)
	}
	for k, v := range t.config.authHeaders() {
		req.Header[k] = v
	}
	req.Header.Set("X-CSRF-Token", "fetch")
	req.Header.Set("Accept", "application/atomsvc+xml")
	if cookies := t.session.Cookies(); cookies != "" {
		req.Header.Set("Cookie", cookies)
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if token := usableToken(resp.Header.Get("X-CSRF-Token")); token != "" {
		return token, joinCookies(resp), nil
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return "", "", fmt.Errorf("authentication failed (401): check credentials")
	case resp.StatusCode >= 400:
		return "", "", &APIError{StatusCode: resp.StatusCode, Body: string(body), Path: req.URL.Path}
	default:
		return "", "", fmt.Errorf("no CSRF token in response (HTTP %d)", resp.StatusCode)
	}
}

// usableToken filters the placeholder SAP sends when it wants a token.
func usableToken(token string) string {
	if strings.EqualFold(token, "required") || strings.EqualFold(token, "fetch") {
		return ""
	}
	return token
}

// joinCookies renders the response's Set-Cookie values as a Cookie header.
func joinCookies(resp *http.Response) string {
	cookies := resp.Cookies()
	if len(cookies) == 0 {
		return ""
	}
	parts := make([]string, 0, len(cookies))
	for _, c := range cookies {
		parts = append(parts, c.Name+"="+c.Value)
	}
	return strings.Join(parts, "; ")
}

// discoveryPath returns the CSRF bootstrap endpoint for a base URL that may
// or may not already point into the ADT tree.
func discoveryPath(baseURL string) string {
	base := strings.TrimSuffix(baseURL, "/")
	switch {
	case strings.HasSuffix(base, adtBasePath+"/discovery"):
		return base
	case strings.HasSuffix(base, adtBasePath):
		return base + "/discovery"
	default:
		return adtBasePath + "/discovery"
	}
}
