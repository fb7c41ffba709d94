package utils

import (
	"fmt"
	"time"
)

// FormatRounded renders d in its largest whole unit: "45s", "14m", "2h"
func FormatRounded(d time.Duration) string {
	if d < 0 {
		d = -d
	}
	seconds := int64(d / time.Second)
	if seconds < 60 {
		return fmt.Sprintf("%ds", seconds)
	}
	if seconds >= 3600 {
		return fmt.Sprintf("%dh", seconds/3600)
	}
	return fmt.Sprintf("%dm", seconds/60)
}

// FormatRemaining renders the time left until deadline, or "0s" once passed
func FormatRemaining(now, deadline time.Time) string {
	if !deadline.After(now) {
		return "0s"
	}
	left := deadline.Sub(now)
	if left < time.Minute {
		return FormatRounded(left)
	}
	return fmt.Sprintf("%dm%02ds", int64(left/time.Minute), int64(left%time.Minute/time.Second))
}
