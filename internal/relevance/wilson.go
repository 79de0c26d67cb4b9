package relevance

import "math"

// wilsonZ is the z-score for a 95% confidence interval.
const wilsonZ = 1.96

// Wilson returns the Wilson score lower bound on the success proportion:
// a sample-size-aware confidence estimate that penalizes small samples, so
// 1/1 scores well below 95/100. With no observations it returns 0.5.
func Wilson(successes, total int) float64 {
	if total == 0 {
		return 0.5
	}
	n := float64(total)
	p := float64(successes) / n
	z := wilsonZ
	z2 := z * z

	denom := 1 + z2/n
	center := p + z2/(2*n)
	margin := z * math.Sqrt((p*(1-p)+z2/(4*n))/n)

	lower := (center - margin) / denom
	if lower < 0 {
		return 0
	}
	return lower
}
