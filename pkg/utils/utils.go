package utils

import (
	"fmt"
	"strings"
)

// FormatRoundedUnit renders seconds as a single rounded-down unit: 45s, 12m, 3h.
func FormatRoundedUnit(seconds int64) string {
	if seconds < 0 {
		seconds = -seconds
	}
	if seconds < 60 {
		return fmt.Sprintf("%ds", seconds)
	}
	if seconds > 3600 {
		return fmt.Sprintf("%dh", int64(seconds/3600))
	}
	return fmt.Sprintf("%dm", int64(seconds/60))
}

// FormatDuration renders seconds as "1 hour, 2 minutes, 3 seconds". The
// short form leaves out the hours when there are none.
func FormatDuration(seconds int64, short bool) string {
	if seconds < 0 {
		seconds = 0
	}
	hours := seconds / 3600
	minutes := (seconds / 60) % 60
	secs := seconds % 60

	segments := make([]string, 0, 3)
	if hours > 0 || !short {
		segments = append(segments, plural(hours, "hour"))
	}
	segments = append(segments, plural(minutes, "minute"), plural(secs, "second"))
	return strings.Join(segments, ", ")
}

func plural(n int64, unit string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
