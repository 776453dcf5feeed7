package adt

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func TestSession_Lifecycle(t *testing.T) {
	s := NewSession()
	if s.State() != SessionNoToken {
		t.Fatalf("new session state = %v, want no-token", s.State())
	}

	tok, err := s.refresh(context.Background(), func(context.Context) (string, string, error) {
		return "abc", "SAP_SESSIONID=1", nil
	})
	if err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	if tok != "abc" || s.Token() != "abc" {
		t.Errorf("token = %v / %v, want abc", tok, s.Token())
	}
	if s.Cookies() != "SAP_SESSIONID=1" {
		t.Errorf("cookies = %v", s.Cookies())
	}
	if s.State() != SessionHolding {
		t.Errorf("state = %v, want holding", s.State())
	}

	s.Invalidate()
	if s.Token() != "" || s.Cookies() != "" || s.State() != SessionNoToken {
		t.Errorf("Invalidate left %q %q %v", s.Token(), s.Cookies(), s.State())
	}
}

func TestSession_FailedRefreshInvalidates(t *testing.T) {
	s := NewSession()
	s.store("old", "c=1")

	boom := errors.New("boom")
	_, err := s.refresh(context.Background(), func(context.Context) (string, string, error) {
		return "", "", boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	if s.Token() != "" || s.State() != SessionNoToken {
		t.Errorf("failed refresh should drop the token, got %q %v", s.Token(), s.State())
	}
}

func TestSessionState_String(t *testing.T) {
	tests := map[SessionState]string{
		SessionNoToken:   "no-token",
		SessionFetching:  "fetching",
		SessionHolding:   "holding",
		SessionState(42): "unknown",
	}
	for state, want := range tests {
		if got := state.String(); got != want {
			t.Errorf("String() = %v, want %v", got, want)
		}
	}
}

func TestSession_CanceledCallerDoesNotFailWaiters(t *testing.T) {
	s := NewSession()
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	fetchErrs := make(chan error, 2)
	fetch := func(ctx context.Context) (string, string, error) {
		once.Do(func() { close(started) })
		<-release
		fetchErrs <- ctx.Err()
		return "shared", "", nil
	}

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := s.refresh(firstCtx, fetch)
		firstErr <- err
	}()
	<-started

	type result struct {
		token string
		err   error
	}
	second := make(chan result, 1)
	go func() {
		tok, err := s.refresh(context.Background(), fetch)
		second <- result{tok, err}
	}()

	cancelFirst()
	if err := <-firstErr; !errors.Is(err, context.Canceled) {
		t.Fatalf("first caller err = %v, want context.Canceled", err)
	}

	close(release)
	got := <-second
	if got.err != nil || got.token != "shared" {
		t.Fatalf("second caller = %q, %v; want shared token", got.token, got.err)
	}
	if err := <-fetchErrs; err != nil {
		t.Errorf("shared fetch saw ctx error %v after the first caller left", err)
	}
	if s.Token() != "shared" || s.State() != SessionHolding {
		t.Errorf("session = %q %v, want shared/holding", s.Token(), s.State())
	}
}
