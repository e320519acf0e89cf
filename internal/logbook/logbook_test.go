package logbook

import (
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestTailReturnsRecentLinesAndTotal(t *testing.T) {
	book, err := New(filepath.Join(t.TempDir(), "activity.log"))
	if err != nil {
		t.Fatalf("new logbook: %v", err)
	}
	for i := 0; i < 5; i++ {
		book.Info("entry-%d", i)
	}
	lines, total := book.Tail(3)
	if total != 5 {
		t.Fatalf("total lines = %d, want 5", total)
	}
	if len(lines) != 3 {
		t.Fatalf("len(lines) = %d, want 3", len(lines))
	}
	for idx, want := range []string{"entry-2", "entry-3", "entry-4"} {
		if !strings.Contains(lines[idx], want) {
			t.Fatalf("line %d = %q, missing %s", idx, lines[idx], want)
		}
	}
}

func TestActionLevelFollowsOutcome(t *testing.T) {
	book, err := New(filepath.Join(t.TempDir(), "activity.log"))
	if err != nil {
		t.Fatalf("new logbook: %v", err)
	}
	book.Action(12, 4, "approved", "ok")
	book.Action(12, 4, "approved", "conflict")
	book.Action(12, 4, "approved", "failed")

	entries := book.Entries(10)
	if len(entries) != 3 {
		t.Fatalf("entries = %d, want 3", len(entries))
	}
	want := []Level{LevelInfo, LevelWarn, LevelError}
	for i, entry := range entries {
		if entry.Level != want[i] {
			t.Fatalf("entry %d level = %s, want %s", i, entry.Level, want[i])
		}
	}
	if entries[0].Message != "transaction=12 stage=4 action=approved outcome=ok" {
		t.Fatalf("unexpected message %q", entries[0].Message)
	}
}

func TestAppendFlattensNewlines(t *testing.T) {
	clock := time.Date(2026, 3, 1, 9, 30, 0, 0, time.Local)
	book, err := New(filepath.Join(t.TempDir(), "activity.log"), WithClock(func() time.Time { return clock }))
	if err != nil {
		t.Fatalf("new logbook: %v", err)
	}
	book.Error("upload failed:\n  too large")

	entries := book.Entries(1)
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	got := entries[0]
	if got.Message != "upload failed: too large" || got.Level != LevelError {
		t.Fatalf("unexpected entry %+v", got)
	}
	if !got.Time.Equal(clock) {
		t.Fatalf("time = %s, want %s", got.Time, clock)
	}
}

func TestJournalIsTrimmed(t *testing.T) {
	book, err := New(filepath.Join(t.TempDir(), "activity.log"), WithMaxEntries(8))
	if err != nil {
		t.Fatalf("new logbook: %v", err)
	}
	for i := 0; i < 20; i++ {
		book.Info("entry-%d", i)
	}
	lines, total := book.Tail(100)
	if total > 8 {
		t.Fatalf("total = %d, want at most 8", total)
	}
	if !strings.Contains(lines[len(lines)-1], "entry-19") {
		t.Fatalf("newest entry lost: %q", lines[len(lines)-1])
	}
}

func TestParseEntryKeepsForeignLines(t *testing.T) {
	entry := ParseEntry("not a journal line")
	if entry.Level != LevelInfo || entry.Message != "not a journal line" || !entry.Time.IsZero() {
		t.Fatalf("unexpected entry %+v", entry)
	}
}

func TestNilLogbookIsSafe(t *testing.T) {
	var book *Logbook
	book.Info("ignored")
	book.Action(1, 1, "approved", "ok")
	if lines, total := book.Tail(5); lines != nil || total != 0 {
		t.Fatalf("nil logbook should tail nothing")
	}
	if entries := book.Entries(5); len(entries) != 0 {
		t.Fatalf("nil logbook should have no entries")
	}
}
