package features

import "math"

// RollingMean returns the trailing mean over window values. Positions
// without a full window, or whose window holds a NaN, are NaN.
func RollingMean(values []float64, window int) []float64 {
	out := nanSlice(len(values))
	if window <= 0 {
		return out
	}

	for i := window - 1; i < len(values); i++ {
		w := values[i-window+1 : i+1]
		if hasNaN(w) {
			continue
		}
		out[i] = mean(w)
	}
	return out
}

// RollingStd returns the trailing sample standard deviation (n-1 divisor)
// over window values, NaN where RollingMean would be NaN. A window of
// identical values yields exactly 0.
func RollingStd(values []float64, window int) []float64 {
	out := nanSlice(len(values))
	if window <= 1 {
		return out
	}

	for i := window - 1; i < len(values); i++ {
		w := values[i-window+1 : i+1]
		if hasNaN(w) {
			continue
		}
		if constant(w) {
			out[i] = 0
			continue
		}
		m := mean(w)
		var ss float64
		for _, v := range w {
			d := v - m
			ss += d * d
		}
		out[i] = math.Sqrt(ss / float64(window-1))
	}
	return out
}

// PctChange returns values[i]/values[i-1] - 1, NaN at position 0 and
// wherever the previous value is zero.
func PctChange(values []float64) []float64 {
	out := nanSlice(len(values))
	for i := 1; i < len(values); i++ {
		prev := values[i-1]
		if prev == 0 || math.IsNaN(prev) || math.IsNaN(values[i]) {
			continue
		}
		out[i] = values[i]/prev - 1
	}
	return out
}

// ZScore returns (values - RollingMean) / RollingStd, NaN where the
// rolling std is zero or undefined.
func ZScore(values []float64, window int) []float64 {
	means := RollingMean(values, window)
	stds := RollingStd(values, window)

	out := nanSlice(len(values))
	for i := range values {
		if math.IsNaN(stds[i]) || stds[i] == 0 {
			continue
		}
		out[i] = (values[i] - means[i]) / stds[i]
	}
	return out
}

func mean(w []float64) float64 {
	var sum float64
	for _, v := range w {
		sum += v
	}
	return sum / float64(len(w))
}

func constant(w []float64) bool {
	for _, v := range w[1:] {
		if v != w[0] {
			return false
		}
	}
	return true
}

func hasNaN(w []float64) bool {
	for _, v := range w {
		if math.IsNaN(v) {
			return true
		}
	}
	return false
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
