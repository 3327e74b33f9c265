// Package format renders durations for reports and web views.
package format

import "fmt"

// Duration renders a millisecond duration at the natural scale: milliseconds
// below one second, seconds below one minute, minutes and seconds above.
func Duration(ms float64) string {
	switch {
	case ms < 1000:
		return fmt.Sprintf("%.2f ms", ms)
	case ms < 60000:
		return fmt.Sprintf("%.2f s", ms/1000)
	default:
		totalSeconds := ms / 1000
		minutes := int(totalSeconds) / 60
		seconds := totalSeconds - float64(minutes*60)
		return fmt.Sprintf("%dm %.2fs", minutes, seconds)
	}
}
