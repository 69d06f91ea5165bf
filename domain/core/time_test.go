package core

import (
	"testing"
	"time"
)

// TestTimestampZeroAndString tests IsZero and the RFC3339 rendering
func TestTimestampZeroAndString(t *testing.T) {
	var zero Timestamp
	if !zero.IsZero() {
		t.Error("unset timestamp should be zero")
	}

	ts := NewTimestamp(time.Date(2024, 3, 5, 14, 7, 9, 120000000, time.UTC))
	if ts.IsZero() {
		t.Error("set timestamp should not be zero")
	}
	if got, want := ts.String(), "2024-03-05T14:07:09.12Z"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
