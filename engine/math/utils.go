package math

import "golang.org/x/exp/constraints"

// Clamp returns the value `f` clamped to the range [low, high].
// It works for any numeric type (integers and floats).
func Clamp[T constraints.Ordered](f, low, high T) T {
	if f < low {
		return low
	}
	if f > high {
		return high
	}
	return f
}

// ScalePercent returns pct percent of v, never less than one. Swapchain
// relative attachments use it to derive their extent.
func ScalePercent[T constraints.Unsigned](v, pct T) T {
	scaled := uint64(v) * uint64(pct) / 100
	return T(max(scaled, 1))
}
