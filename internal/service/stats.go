package service

import (
	"math"

	"lm-bench/internal/model"
)

type CoverageStats struct {
	N        int     `json:"n"`
	Solved   int     `json:"solved"`
	Coverage float64 `json:"coverage"`
	CI95Low  float64 `json:"ci95_low"`
	CI95High float64 `json:"ci95_high"`
}

// Comparison is a two-sided two-proportion z-test on the coverage of two
// algorithms.
type Comparison struct {
	A      string  `json:"a"`
	B      string  `json:"b"`
	Z      float64 `json:"z"`
	PValue float64 `json:"p_value"`
}

func calcCoverage(runs []model.Run) CoverageStats {
	cs := CoverageStats{N: len(runs)}
	for i := range runs {
		if runs[i].Solved() {
			cs.Solved++
		}
	}
	if cs.N > 0 {
		cs.Coverage = float64(cs.Solved) / float64(cs.N)
		cs.CI95Low, cs.CI95High = wilsonCI(cs.Solved, cs.N, 1.96)
	}
	return cs
}

// CompareCoverage tests every pair of algorithms in order.
func CompareCoverage(algorithms []string, stats map[string]CoverageStats) []Comparison {
	var out []Comparison
	for i := 0; i < len(algorithms); i++ {
		for j := i + 1; j < len(algorithms); j++ {
			a, b := stats[algorithms[i]], stats[algorithms[j]]
			p, z := twoPropZTest(a.Solved, a.N, b.Solved, b.N)
			out = append(out, Comparison{A: algorithms[i], B: algorithms[j], Z: z, PValue: p})
		}
	}
	return out
}

// Wilson score interval for proportion
func wilsonCI(k int, n int, z float64) (float64, float64) {
	if n == 0 {
		return 0, 0
	}
	p := float64(k) / float64(n)
	zz := z * z
	den := 1 + zz/float64(n)
	center := (p + zz/(2*float64(n))) / den
	half := (z / den) * math.Sqrt((p*(1-p)+zz/(4*float64(n)))/float64(n))
	low := math.Max(0, center-half)
	high := math.Min(1, center+half)
	return low, high
}

// two-proportion z-test (two-sided)
func twoPropZTest(x1, n1, x2, n2 int) (pValue float64, z float64) {
	if n1 == 0 || n2 == 0 {
		return 1, 0
	}
	p1 := float64(x1) / float64(n1)
	p2 := float64(x2) / float64(n2)
	p := float64(x1+x2) / float64(n1+n2)
	se := math.Sqrt(p * (1 - p) * (1/float64(n1) + 1/float64(n2)))
	if se == 0 {
		return 1, 0
	}
	z = (p2 - p1) / se
	pValue = 2 * (1 - normCDF(math.Abs(z)))
	return pValue, z
}

// standard normal CDF approximation via erf
func normCDF(x float64) float64 {
	return 0.5 * (1 + math.Erf(x/math.Sqrt2))
}
