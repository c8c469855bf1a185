package service

import (
	"sort"

	"lm-bench/internal/model"
	"lm-bench/internal/parser"
)

// DefaultTimeBounds are the time limits (seconds) of coverage curves.
var DefaultTimeBounds = []float64{1, 10, 60, 300, 1800}

// CoverageCurve holds the fraction of tasks solved within each time bound.
type CoverageCurve struct {
	Bounds   []float64 `json:"bounds"`
	Coverage []float64 `json:"coverage"`
}

// BuildCoverageCurve uses the planner's total time and falls back to the
// measured wall time for runs that did not report one.
func BuildCoverageCurve(runs []model.Run, bounds []float64) CoverageCurve {
	var times []float64
	for i := range runs {
		if !runs[i].Solved() {
			continue
		}
		times = append(times, solveTime(&runs[i]))
	}
	sort.Float64s(times)

	curve := CoverageCurve{Bounds: bounds, Coverage: make([]float64, len(bounds))}
	if len(runs) == 0 {
		return curve
	}
	for i, b := range bounds {
		solved := sort.Search(len(times), func(k int) bool { return times[k] > b })
		curve.Coverage[i] = float64(solved) / float64(len(runs))
	}
	return curve
}

func solveTime(run *model.Run) float64 {
	m, err := run.Metrics()
	if err == nil {
		if v, ok := m[parser.FieldTotalTime].(float64); ok {
			return v
		}
	}
	return run.WallTime
}
