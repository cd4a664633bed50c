package ui

import (
	"fmt"
	"time"

	"github.com/StormyCloudInc/selector-vanitygen/internal/searchspec"
)

// FormatRate renders a hash rate such as "12.34M".
func FormatRate(n float64) string {
	if n >= 1_000_000_000 {
		return fmt.Sprintf("%.2fG", n/1_000_000_000)
	}
	if n >= 1_000_000 {
		return fmt.Sprintf("%.2fM", n/1_000_000)
	}
	if n >= 1_000 {
		return fmt.Sprintf("%.1fK", n/1_000)
	}
	return fmt.Sprintf("%.0f", n)
}

// FormatCount renders a large count such as "4.29B".
func FormatCount(n uint64) string {
	if n >= 1_000_000_000 {
		return fmt.Sprintf("%.2fB", float64(n)/1_000_000_000)
	}
	if n >= 1_000_000 {
		return fmt.Sprintf("%.2fM", float64(n)/1_000_000)
	}
	if n >= 1_000 {
		return fmt.Sprintf("%.1fK", float64(n)/1_000)
	}
	return fmt.Sprintf("%d", n)
}

func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return "< 1s"
	}
	d = d.Round(time.Second)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60

	if h > 24 {
		days := h / 24
		h = h % 24
		return fmt.Sprintf("%dd %dh %dm", days, h, m)
	}
	if h > 0 {
		return fmt.Sprintf("%dh %dm %ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm %ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}

// Estimate is the expected time to a first match at hashesPerSec.
func Estimate(hashesPerSec float64) string {
	if hashesPerSec <= 0 {
		return "unknown"
	}
	seconds := searchspec.EstimateAttempts() / hashesPerSec
	if seconds < 1 {
		return "< 1 second"
	}
	return "~" + FormatDuration(time.Duration(seconds*float64(time.Second)))
}
