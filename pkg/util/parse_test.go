package util

import (
	"strconv"
	"testing"
	"time"
)

func TestParseTimeRFC3339(t *testing.T) {
	s := "2024-10-10T10:10:10Z"
	got, ok := ParseTime(s)
	if !ok {
		t.Fatalf("expected ok")
	}
	if got.UTC().Format(time.RFC3339) != s {
		t.Fatalf("unexpected time %v", got)
	}
}

func TestParseTimeUnix(t *testing.T) {
	ts := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC).Unix()
	got, ok := ParseTime(strconv.FormatInt(ts, 10))
	if !ok {
		t.Fatalf("expected ok")
	}
	if got.Unix() != ts {
		t.Fatalf("unexpected unix %v", got.Unix())
	}
}

func TestParseTimeMillisAndFraction(t *testing.T) {
	want := time.Date(2024, 10, 10, 10, 10, 10, 250e6, time.UTC)
	got, ok := ParseTime(strconv.FormatInt(want.UnixMilli(), 10))
	if !ok || !got.Equal(want) {
		t.Fatalf("millis: got %v ok=%v", got, ok)
	}
	got, ok = ParseTime("2024-10-10T10:10:10.25Z")
	if !ok || !got.Equal(want) {
		t.Fatalf("fraction: got %v ok=%v", got, ok)
	}
	for _, bad := range []string{"", "yesterday", "-5", "0"} {
		if _, ok := ParseTime(bad); ok {
			t.Fatalf("%q should not parse", bad)
		}
	}
}

func TestParseIntDefault(t *testing.T) {
	if got := ParseIntDefault("6380", 6379); got != 6380 {
		t.Fatalf("got %d", got)
	}
	if got := ParseIntDefault("x", 6379); got != 6379 {
		t.Fatalf("got %d", got)
	}
}

func TestBackoffWithJitterBounds(t *testing.T) {
	min, max := 100*time.Millisecond, time.Second
	for attempt := 1; attempt <= 8; attempt++ {
		got := BackoffWithJitter(min, max, attempt)
		if got <= 0 || got > max {
			t.Fatalf("attempt %d: backoff %v out of range", attempt, got)
		}
	}
	if got := BackoffWithJitter(min, max, 50); got > max {
		t.Fatalf("large attempt not capped: %v", got)
	}
}
