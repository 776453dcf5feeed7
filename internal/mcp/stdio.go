package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/mark3labs/mcp-go/mcp"
)

// stdioSession is the single client session of a stdio connection.
type stdioSession struct {
	notifications chan mcp.JSONRPCNotification
	initialized   atomic.Bool
}

func (s *stdioSession) SessionID() string { return "stdio" }

func (s *stdioSession) NotificationChannel() chan<- mcp.JSONRPCNotification {
	return s.notifications
}

func (s *stdioSession) Initialize() { s.initialized.Store(true) }

func (s *stdioSession) Initialized() bool { return s.initialized.Load() }

// ServeStdio starts the MCP server on stdin/stdout. It returns when stdin is
// closed or the process receives SIGINT/SIGTERM.
func (s *Server) ServeStdio() error {
	defer s.Reset()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := s.Listen(ctx, os.Stdin, os.Stdout)
	if errors.Is(err, context.Canceled) {
		s.logger.Info("shutting down")
		return nil
	}
	return err
}

// Listen serves newline-delimited JSON-RPC messages from in, writing
// responses and notifications to out. It returns nil at EOF.
func (s *Server) Listen(ctx context.Context, in io.Reader, out io.Writer) error {
	session := &stdioSession{notifications: make(chan mcp.JSONRPCNotification, 100)}
	if err := s.mcpServer.RegisterSession(session); err != nil {
		return fmt.Errorf("register session: %w", err)
	}
	defer s.mcpServer.UnregisterSession(session.SessionID())
	ctx = s.mcpServer.WithContext(ctx, session)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w := &messageWriter{out: out}
	go func() {
		for {
			select {
			case n := <-session.notifications:
				if err := w.write(n); err != nil {
					s.logger.Error("writing notification", "err", err)
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		reader := bufio.NewReader(in)
		for {
			line, err := reader.ReadString('\n')
			if len(line) > 0 {
				select {
				case lines <- line:
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				readErr <- err
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-readErr:
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("reading input: %w", err)
		case line := <-lines:
			var raw json.RawMessage
			var resp mcp.JSONRPCMessage
			if err := json.Unmarshal([]byte(line), &raw); err != nil {
				resp = mcp.NewJSONRPCError(nil, mcp.PARSE_ERROR, "Parse error", nil)
			} else {
				resp = s.HandleMessage(ctx, raw)
			}
			if resp == nil {
				continue
			}
			if err := w.write(resp); err != nil {
				return fmt.Errorf("writing response: %w", err)
			}
		}
	}
}

// HandleMessage dispatches one JSON-RPC message. A tool call rejected by
// argument validation is answered with an invalid-params error instead of a
// result.
func (s *Server) HandleMessage(ctx context.Context, raw json.RawMessage) mcp.JSONRPCMessage {
	resp := s.mcpServer.HandleMessage(ctx, raw)
	r, ok := resp.(mcp.JSONRPCResponse)
	if !ok {
		return resp
	}
	result, ok := r.Result.(mcp.CallToolResult)
	if !ok || !isInvalidParams(&result) {
		return resp
	}
	message := "invalid params"
	if len(result.Content) == 1 {
		if text, ok := result.Content[0].(mcp.TextContent); ok {
			message = text.Text
		}
	}
	return mcp.NewJSONRPCError(r.ID, mcp.INVALID_PARAMS, message, nil)
}

// messageWriter serializes writes from the response loop and the
// notification goroutine.
type messageWriter struct {
	mu  sync.Mutex
	out io.Writer
}

func (w *messageWriter) write(msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	_, err = fmt.Fprintf(w.out, "%s\n", data)
	return err
}
