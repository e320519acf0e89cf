// Package logbook keeps the human-readable activity journal: sign-ins, stage
// actions and file transfers, one line each. The TUI tails it in its log
// panel; structured diagnostics go to internal/logging instead.
package logbook

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Level represents the severity of a log entry.
type Level string

const (
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

const timeLayout = "2006-01-02 15:04:05"

// DefaultMaxEntries bounds the journal. Older entries are dropped when the
// file grows past it.
const DefaultMaxEntries = 2000

// Entry is one parsed journal line.
type Entry struct {
	Time    time.Time
	Level   Level
	Message string
}

func (e Entry) String() string {
	return fmt.Sprintf("%s %-5s %s", e.Time.Local().Format(timeLayout), e.Level, e.Message)
}

// ParseEntry reads a line written by Append. Lines that do not match the
// layout come back as INFO messages with a zero time.
func ParseEntry(line string) Entry {
	if len(line) > len(timeLayout) {
		if ts, err := time.ParseInLocation(timeLayout, line[:len(timeLayout)], time.Local); err == nil {
			rest := strings.TrimSpace(line[len(timeLayout):])
			level, message, _ := strings.Cut(rest, " ")
			switch Level(level) {
			case LevelInfo, LevelWarn, LevelError:
				return Entry{Time: ts, Level: Level(level), Message: strings.TrimSpace(message)}
			}
		}
	}
	return Entry{Level: LevelInfo, Message: line}
}

// Logbook is safe for concurrent use. A nil *Logbook discards everything.
type Logbook struct {
	path       string
	maxEntries int
	now        func() time.Time

	mu      sync.Mutex
	written int
}

// Option customises a Logbook.
type Option func(*Logbook)

// WithMaxEntries overrides DefaultMaxEntries. Zero or less disables trimming.
func WithMaxEntries(n int) Option {
	return func(l *Logbook) { l.maxEntries = n }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Logbook) { l.now = now }
}

// New opens the journal at path, creating its directory.
func New(path string, opts ...Option) (*Logbook, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("logbook: %w", err)
	}
	l := &Logbook{path: path, maxEntries: DefaultMaxEntries, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Path returns the file backing this logbook.
func (l *Logbook) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// Append writes one entry. Newlines in message are flattened so each entry
// stays on one line. Write errors are dropped; the journal is best effort.
func (l *Logbook) Append(level Level, message string) {
	if l == nil {
		return
	}
	entry := Entry{
		Time:    l.now(),
		Level:   level,
		Message: strings.Join(strings.Fields(message), " "),
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return
	}
	_, err = fmt.Fprintln(file, entry.String())
	_ = file.Close()
	if err != nil {
		return
	}
	l.written++
	if l.maxEntries > 0 && l.written >= l.maxEntries/4 {
		l.written = 0
		l.trimLocked()
	}
}

// trimLocked rewrites the file with the newest maxEntries lines.
func (l *Logbook) trimLocked() {
	lines, total := l.readLocked(l.maxEntries)
	if total <= l.maxEntries {
		return
	}
	tmp := l.path + ".tmp"
	if err := os.WriteFile(tmp, []byte(strings.Join(lines, "\n")+"\n"), 0o600); err != nil {
		return
	}
	_ = os.Rename(tmp, l.path)
}

// Tail returns up to maxLines of the most recent entries along with the
// total number of entries in the file.
func (l *Logbook) Tail(maxLines int) ([]string, int) {
	if l == nil || maxLines <= 0 {
		return nil, 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.readLocked(maxLines)
}

// Entries is Tail, parsed.
func (l *Logbook) Entries(maxLines int) []Entry {
	lines, _ := l.Tail(maxLines)
	out := make([]Entry, 0, len(lines))
	for _, line := range lines {
		out = append(out, ParseEntry(line))
	}
	return out
}

func (l *Logbook) readLocked(maxLines int) ([]string, int) {
	file, err := os.Open(l.path)
	if err != nil {
		return nil, 0
	}
	defer file.Close()

	// ring holds the last maxLines lines; next is the slot to overwrite.
	ring := make([]string, 0, maxLines)
	next, total := 0, 0
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		total++
		if len(ring) < maxLines {
			ring = append(ring, scanner.Text())
			continue
		}
		ring[next] = scanner.Text()
		next = (next + 1) % maxLines
	}
	if total == 0 {
		return nil, 0
	}
	return append(ring[next:], ring[:next]...), total
}

// Action records a workflow action. Refusals the user can fix (stale data,
// invalid form) are warnings; anything else that is not "ok" is an error.
func (l *Logbook) Action(txID int64, stage int, action, outcome string) {
	level := LevelError
	switch outcome {
	case "ok":
		level = LevelInfo
	case "conflict", "invalid", "not-pending":
		level = LevelWarn
	}
	l.Append(level, fmt.Sprintf("transaction=%d stage=%d action=%s outcome=%s", txID, stage, action, outcome))
}

// Info appends an informational entry.
func (l *Logbook) Info(format string, args ...any) {
	l.Append(LevelInfo, fmt.Sprintf(format, args...))
}

// Warn appends a warning entry.
func (l *Logbook) Warn(format string, args ...any) {
	l.Append(LevelWarn, fmt.Sprintf(format, args...))
}

// Error appends an error entry.
func (l *Logbook) Error(format string, args ...any) {
	l.Append(LevelError, fmt.Sprintf(format, args...))
}
