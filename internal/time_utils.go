package internal

import (
	"fmt"
	"time"
)

const (
	// DisplayTimeFormat is the standard time format used across the application
	DisplayTimeFormat = "2006-01-02 15:04:05"
	// LogTimeFormat is the short time format used in debug logs
	LogTimeFormat = "15:04:05"
)

// FormatLocal formats the given time in the standard display format (local time)
func FormatLocal(t time.Time) string {
	return t.Local().Format(DisplayTimeFormat)
}

// FormatRemaining renders the time left until t as "2h5m left", or "Expired".
func FormatRemaining(t time.Time, now time.Time) string {
	if !t.After(now) {
		return "Expired"
	}
	diff := t.Sub(now)
	h := int(diff.Hours())
	m := int(diff.Minutes()) % 60
	if h == 0 {
		return fmt.Sprintf("%dm left", m)
	}
	return fmt.Sprintf("%dh%dm left", h, m)
}
