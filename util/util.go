// Package util contains misc internal utilities.
package util

import "time"

// Limiter is a closed interval used to bound commanded positions.
type Limiter struct {
	Min float64 `yaml:"Min"`
	Max float64 `yaml:"Max"`
}

// Contains reports whether v lies within the interval, endpoints included.
func (l Limiter) Contains(v float64) bool {
	return v >= l.Min && v <= l.Max
}

// Nearest returns the endpoint of the interval closest to v.  For a value
// inside the interval the result is unspecified between the two endpoints;
// callers only use it for out-of-range values when reporting the violated
// limit.
func (l Limiter) Nearest(v float64) float64 {
	if v < l.Min {
		return l.Min
	}
	return l.Max
}

// SecsToDuration converts a quantity of seconds, as found in config files,
// to a time.Duration.
func SecsToDuration(secs float64) time.Duration {
	return time.Duration(secs * float64(time.Second))
}
