// Package logging provides leveled logging and assignment tracing.
// It offers two complementary outputs:
//   - A leveled slog.Logger for stderr (operational output)
//   - An AssignmentLog for JSONL assignment traces (.abtest/assignments.jsonl)
package logging

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// LevelTrace sits below slog.LevelDebug. At this level the sweep also logs
// each raw record it writes and the sample that picked it.
const LevelTrace = slog.LevelDebug - 4

// levels maps the logging.level config values to slog levels.
var levels = map[string]slog.Level{
	"info":  slog.LevelInfo,
	"debug": slog.LevelDebug,
	"trace": LevelTrace,
}

// ParseLevel maps a logging.level value to a slog.Level, ignoring case.
// Empty or unknown values fall back to info; config.Validate rejects
// unknown values before a logger is built.
func ParseLevel(s string) slog.Level {
	if lvl, ok := levels[strings.ToLower(s)]; ok {
		return lvl
	}
	return slog.LevelInfo
}

// NewLogger returns the operational logger for a CLI run. Records go to w
// (stderr for the CLI) as text, with LevelTrace printed as TRACE.
func NewLogger(level string, w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:       ParseLevel(level),
		ReplaceAttr: labelTrace,
	}))
}

func labelTrace(_ []string, a slog.Attr) slog.Attr {
	if a.Key != slog.LevelKey {
		return a
	}
	if lvl, ok := a.Value.Any().(slog.Level); ok && lvl == LevelTrace {
		a.Value = slog.StringValue("TRACE")
	}
	return a
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// AssignmentEvent is one line of the assignment trace.
type AssignmentEvent struct {
	Experiment string  `json:"experiment"`
	Action     string  `json:"action"` // "assigned", "kept"
	VariantID  string  `json:"variant_id,omitempty"`
	Sample     float64 `json:"sample,omitempty"`
	Time       string  `json:"time"`
}

// Assignment trace actions.
const (
	ActionAssigned = "assigned"
	ActionKept     = "kept"
)

// AssignmentLog appends assignment events to a JSONL file.
// It is safe for concurrent use. A nil AssignmentLog is safe to use;
// all methods are no-ops on a nil receiver.
type AssignmentLog struct {
	mu   sync.Mutex
	file *os.File
}

// NewAssignmentLog opens dir/assignments.jsonl for append.
// At "info" level it returns nil and creates nothing. It also returns nil
// when the file cannot be opened.
func NewAssignmentLog(dir string, level string) *AssignmentLog {
	if ParseLevel(level) == slog.LevelInfo {
		return nil
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil
	}

	path := filepath.Join(dir, "assignments.jsonl")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil
	}

	return &AssignmentLog{file: f}
}

// Log writes ev as a single JSONL line, stamping Time when unset.
func (al *AssignmentLog) Log(ev AssignmentEvent) {
	if al == nil || al.file == nil {
		return
	}

	if ev.Time == "" {
		ev.Time = time.Now().UTC().Format(time.RFC3339Nano)
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	data = append(data, '\n')

	al.mu.Lock()
	defer al.mu.Unlock()
	if al.file != nil {
		_, _ = al.file.Write(data)
	}
}

// Close closes the underlying file.
func (al *AssignmentLog) Close() {
	if al == nil || al.file == nil {
		return
	}

	al.mu.Lock()
	defer al.mu.Unlock()

	al.file.Close()
	al.file = nil
}
