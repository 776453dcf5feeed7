// Package logging builds the loggers used by the server.
//
// stdout carries the MCP protocol, so every logger writes to stderr or a
// caller supplied writer.
package logging

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

const prefix = "abap-adt-mcp"

// New returns a logger writing to w at the given level
// (debug, info, warn or error; empty means warn).
func New(level string, w io.Writer) (*log.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	if w == nil {
		w = os.Stderr
	}

	logger := log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
		Prefix:          prefix,
	})
	logger.SetLevel(lvl)
	return logger, nil
}

// ParseLevel converts a user supplied level name.
func ParseLevel(level string) (log.Level, error) {
	level = strings.ToLower(strings.TrimSpace(level))
	if level == "" {
		return log.WarnLevel, nil
	}
	if level == "warning" {
		level = "warn"
	}
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return 0, fmt.Errorf("invalid log level %q: use debug, info, warn or error", level)
	}
	return lvl, nil
}

// NewTestLogger creates a debug logger that writes to a buffer for testing.
func NewTestLogger() (*log.Logger, *bytes.Buffer) {
	var buf bytes.Buffer

	logger := log.NewWithOptions(&buf, log.Options{
		ReportTimestamp: false,
		Prefix:          "test",
	})
	logger.SetLevel(log.DebugLevel)

	return logger, &buf
}
