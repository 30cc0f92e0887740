package utility

import (
	"fmt"
	"time"
)

// TimeAgo describes how long ago t happened, rounded to minutes
func TimeAgo(t time.Time) string {
	return timeAgo(t, time.Now())
}

func timeAgo(t, now time.Time) string {
	minutes := int(now.Sub(t).Round(time.Minute).Minutes())
	if minutes < 0 {
		minutes = -minutes
	}
	switch {
	case minutes == 0:
		return "just now"
	case minutes < 60:
		return plural(minutes, "minute")
	case minutes < 24*60:
		return plural(minutes/60, "hour")
	default:
		return plural(minutes/(24*60), "day")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s ago", unit)
	}
	return fmt.Sprintf("%d %ss ago", n, unit)
}
