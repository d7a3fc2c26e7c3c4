// Package timeparse converts timestamps read from the store into time.Time.
//
// The store has emitted several serializations of the same instant over its
// history, so parsing walks a fixed list of layouts and the first match wins.
package timeparse

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrUnrecognizedTimestamp is matched by every *ParseError.
var ErrUnrecognizedTimestamp = errors.New("unrecognized timestamp")

// StoreLayout is the primary store format ("2025-03-31 06:20:09+00").
const StoreLayout = "2006-01-02 15:04:05Z07"

// tripFallbackLayout is used after truncating fractional seconds.
const tripFallbackLayout = "2006-01-02T15:04:05"

// layouts is the ordered attempt chain. Go accepts a fractional second after
// the seconds field even when the layout does not declare one.
var layouts = []string{
	// 1. space separated; Postgres prints half-hour zones as +05:30
	StoreLayout,
	"2006-01-02 15:04:05Z0700",
	"2006-01-02 15:04:05Z07:00",
	// 2. T separated
	"2006-01-02T15:04:05Z07",
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04:05Z07:00",
	// 3. full ISO-8601 with fractional seconds
	time.RFC3339Nano,
}

// ParseError reports a timestamp that matched none of the known layouts.
type ParseError struct {
	Raw string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("unrecognized timestamp %q", e.Raw)
}

// Is makes errors.Is(err, ErrUnrecognizedTimestamp) succeed.
func (e *ParseError) Is(target error) bool {
	return target == ErrUnrecognizedTimestamp
}

// Parse tries every known layout in order and returns the instant in UTC.
func Parse(raw string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, &ParseError{Raw: raw}
}

// ParseTrip is Parse plus the trip-only fallback: when the value carries a
// fractional-seconds marker it is cut at the first '.' and read as a UTC
// wall-clock time without offset.
func ParseTrip(raw string) (time.Time, error) {
	if t, err := Parse(raw); err == nil {
		return t, nil
	}

	s := strings.TrimSpace(raw)
	if i := strings.Index(s, "."); i >= 0 {
		if t, err := time.ParseInLocation(tripFallbackLayout, s[:i], time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, &ParseError{Raw: raw}
}

// ParseOptional parses raw when it is non-nil and non-empty.
func ParseOptional(raw *string, parse func(string) (time.Time, error)) (*time.Time, error) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil, nil
	}
	t, err := parse(*raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
