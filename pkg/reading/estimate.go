package reading

import (
	"math"
	"math/rand"
)

// RandomSource returns a uniform draw on [0, 1).
type RandomSource func() float64

// Estimator produces simulated readings. The zero value draws from
// math/rand/v2.
type Estimator struct {
	Rand RandomSource
}

// Estimate validates the calibration text and samples a reading inside it.
func (e Estimator) Estimate(minText, maxText string) (Reading, error) {
	rng, err := ParseRange(minText, maxText)
	if err != nil {
		return 0, err
	}
	return e.EstimateRange(rng), nil
}

// EstimateRange samples a reading inside an already validated range.
func (e Estimator) EstimateRange(rng CalibrationRange) Reading {
	draw := e.Rand
	if draw == nil {
		draw = rand.Float64
	}
	return rng.Scale(draw())
}

// EstimateReading is Estimate with the default random source.
func EstimateReading(minText, maxText string) (Reading, error) {
	return Estimator{}.Estimate(minText, maxText)
}

// Round2 rounds v to two decimal places with halves away from zero, so 0.125
// becomes 0.13 and -0.125 becomes -0.13. The half is judged on the binary
// value of v*100, not on its decimal spelling. Values of 1e15 and above have
// no fractional digits left and are returned as is.
func Round2(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || math.Abs(v) >= 1e15 {
		return v
	}
	return math.Round(v*100) / 100
}
