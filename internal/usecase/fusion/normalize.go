package fusion

import "math"

// Normalizer maps one backend's raw score batch onto [0,1]. Normalization is
// batch-relative: the same raw score can normalize differently across
// requests depending on what else the backend returned.
type Normalizer func(raw []float64) []float64

// MinMax scales linearly between the batch minimum and maximum. A zero-range
// batch (all scores equal, including a single candidate) normalizes to 1.0
// so a lone hit is not erased.
func MinMax(raw []float64) []float64 {
	if len(raw) == 0 {
		return nil
	}
	lo, hi := raw[0], raw[0]
	for _, s := range raw[1:] {
		if s < lo {
			lo = s
		}
		if s > hi {
			hi = s
		}
	}

	out := make([]float64, len(raw))
	if hi == lo {
		for i := range out {
			out[i] = 1.0
		}
		return out
	}
	for i, s := range raw {
		out[i] = (s - lo) / (hi - lo)
	}
	return out
}

// LogMax compresses unbounded positive scores (TF-IDF style) as
// log1p(s)/log1p(max). Heavy outliers stop dominating the batch while
// ordering is preserved.
func LogMax(raw []float64) []float64 {
	if len(raw) == 0 {
		return nil
	}
	hi := raw[0]
	for _, s := range raw[1:] {
		if s > hi {
			hi = s
		}
	}

	out := make([]float64, len(raw))
	if hi <= 0 {
		for i := range out {
			out[i] = 1.0
		}
		return out
	}
	denom := math.Log1p(hi)
	for i, s := range raw {
		if s <= 0 {
			continue
		}
		out[i] = math.Log1p(s) / denom
	}
	return out
}
