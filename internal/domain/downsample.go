package domain

import "math"

// Downsample reduces a series to at most maxPoints observations spread evenly
// across it. Indices are round(i * (n-1)/(maxPoints-1)) with halves rounded up,
// so the first and last observations are always kept when maxPoints >= 2.
// A maxPoints of 1 keeps only the most recent observation; values below 1
// disable downsampling.
func Downsample(series Series, maxPoints int) Series {
	n := len(series)
	if maxPoints < 1 || n <= maxPoints {
		return series
	}
	if maxPoints == 1 {
		return Series{series[n-1]}
	}

	step := float64(n-1) / float64(maxPoints-1)
	out := make(Series, 0, maxPoints)
	last := -1
	for i := range maxPoints {
		idx := int(math.Floor(float64(i)*step + 0.5))
		if idx > n-1 {
			idx = n - 1
		}
		if idx <= last {
			continue
		}
		out = append(out, series[idx])
		last = idx
	}
	return out
}
