package rollbackstrategy

import "time"

const (
	safeAgeThreshold    = 24 * time.Hour
	gradualSizeThreshold = 50
	immediateSizeCeiling = 5
)

// Recommend implements spec §4.5's recommendation table: small diffs stay
// Immediate, old rollback points prefer Safe, large diffs batch via
// Gradual, and anything else falls back to Immediate.
func Recommend(diffLen int, pointAge time.Duration) Strategy {
	switch {
	case diffLen <= immediateSizeCeiling:
		return Immediate{}
	case pointAge > safeAgeThreshold:
		return Safe{}
	case diffLen > gradualSizeThreshold:
		return NewGradual()
	default:
		return Immediate{}
	}
}
