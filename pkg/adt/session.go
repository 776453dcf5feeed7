package adt

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// SessionState tracks where a Session is in the CSRF handshake.
type SessionState int

const (
	// SessionNoToken means no token has been fetched or the last one was invalidated.
	SessionNoToken SessionState = iota
	// SessionFetching means a token fetch is in flight.
	SessionFetching
	// SessionHolding means a token (and possibly cookies) is available.
	SessionHolding
)

func (s SessionState) String() string {
	switch s {
	case SessionNoToken:
		return "no-token"
	case SessionFetching:
		return "fetching"
	case SessionHolding:
		return "holding"
	default:
		return "unknown"
	}
}

// RetryPolicy bounds how often a CSRF token fetch is attempted.
type RetryPolicy struct {
	Attempts int
	Delay    time.Duration
}

// budget is the longest a fetch under p may take: every attempt timing out
// plus the delays between them.
func (p RetryPolicy) budget() time.Duration {
	attempts := max(p.Attempts, 1)
	return time.Duration(attempts)*DefaultCSRFTimeout + time.Duration(attempts-1)*p.Delay
}

var (
	// DefaultFetchPolicy is used for the token fetch that precedes every write.
	DefaultFetchPolicy = RetryPolicy{Attempts: 3, Delay: time.Second}
	// RecoveryFetchPolicy is used after the server rejected a token.
	RecoveryFetchPolicy = RetryPolicy{Attempts: 5, Delay: 2 * time.Second}
)

// Session holds the CSRF token and cookies shared by all requests of one connection.
// Concurrent refreshes are collapsed into a single fetch.
type Session struct {
	mu      sync.RWMutex
	token   string
	cookies string
	state   SessionState

	refreshes singleflight.Group
}

// NewSession returns an empty session in the NoToken state.
func NewSession() *Session {
	return &Session{}
}

// Token returns the current CSRF token, or "" if none is held.
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// Cookies returns the cookie header value captured with the last token.
func (s *Session) Cookies() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cookies
}

// State returns the current handshake state.
func (s *Session) State() SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Invalidate drops the token and cookies.
func (s *Session) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	s.cookies = ""
	s.state = SessionNoToken
}

func (s *Session) setState(state SessionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

// store records a fetched token. Cookies are only replaced when the
// response carried some.
func (s *Session) store(token, cookies string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	if cookies != "" {
		s.cookies = cookies
	}
	s.state = SessionHolding
}

// tokenFetcher performs one complete fetch, retries included.
type tokenFetcher func(ctx context.Context) (token, cookies string, err error)

// refresh runs fetch, sharing the result with any caller that arrives while
// it is in flight. The shared fetch is detached from the cancellation of
// whichever caller started it; each caller stops waiting when its own ctx
// ends. fetch must bound its own duration.
func (s *Session) refresh(ctx context.Context, fetch tokenFetcher) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	fetchCtx := context.WithoutCancel(ctx)
	ch := s.refreshes.DoChan("csrf", func() (any, error) {
		s.setState(SessionFetching)
		token, cookies, err := fetch(fetchCtx)
		if err != nil {
			s.Invalidate()
			return "", err
		}
		s.store(token, cookies)
		return token, nil
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}
