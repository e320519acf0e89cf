package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Timestamp decodes the handful of date-time shapes the backend emits.
type Timestamp struct {
	time.Time
}

// NewTimestamp wraps t.
func NewTimestamp(t time.Time) *Timestamp {
	return &Timestamp{Time: t}
}

// MarshalJSON encodes the value as RFC 3339, or null when unset.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Time.Format(time.RFC3339))
}

// UnmarshalJSON tolerates zone-less timestamps and bare dates.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	parsed, err := parseTimeJSON(data)
	if err != nil {
		return err
	}
	t.Time = parsed
	return nil
}

// Date is a calendar date serialised as YYYY-MM-DD.
type Date struct {
	time.Time
}

// NewDate builds a Date at midnight UTC.
func NewDate(year int, month time.Month, day int) *Date {
	return &Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// MarshalJSON encodes the date portion only.
func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.Time.Format("2006-01-02"))
}

// UnmarshalJSON accepts dates with or without a time component.
func (d *Date) UnmarshalJSON(data []byte) error {
	parsed, err := parseTimeJSON(data)
	if err != nil {
		return err
	}
	d.Time = parsed
	return nil
}

// String renders the date or an empty string.
func (d *Date) String() string {
	if d == nil || d.IsZero() {
		return ""
	}
	return d.Time.Format("2006-01-02")
}

func parseTimeJSON(data []byte) (time.Time, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return time.Time{}, nil
	}
	var raw string
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return time.Time{}, fmt.Errorf("domain: decode time: %w", err)
	}
	return ParseTime(raw)
}

// ParseTime parses any of the supported backend layouts.
func ParseTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			return parsed, nil
		}
	}
	return time.Time{}, fmt.Errorf("domain: unrecognised time %q", raw)
}
