package detection

import "math"

// Outcome classifies a scoring result.
type Outcome string

const (
	// OutcomeAnomaly means the score exceeded the threshold.
	OutcomeAnomaly Outcome = "anomaly"
	// OutcomeBelowThreshold means the window supported a score under the threshold.
	OutcomeBelowThreshold Outcome = "below_threshold"
	// OutcomeInsufficientData means the window is smaller than the minimum sample floor.
	OutcomeInsufficientData Outcome = "insufficient_data"
	// OutcomeZeroVariance means all window values are identical.
	OutcomeZeroVariance Outcome = "zero_variance"
)

// Verdict is the result of scoring one reading against its trailing window.
type Verdict struct {
	Outcome Outcome
	Score   float64
	Mean    float64
	StdDev  float64
}

// IsAnomaly reports whether the verdict flags the reading.
func (v Verdict) IsAnomaly() bool {
	return v.Outcome == OutcomeAnomaly
}

// Score evaluates value against the trailing window using a standardized
// deviation (z-score) test. The window carries the prior values only; value
// itself is never part of the baseline. Scoring never fails: sparse and
// constant windows yield no-verdict outcomes rather than errors.
func Score(value float64, window []float64, minSamples int, threshold float64) Verdict {
	if len(window) < minSamples {
		return Verdict{Outcome: OutcomeInsufficientData}
	}

	mean := meanOf(window)
	stdDev := populationStdDev(window, mean)

	// A standardized score is undefined for a flat window; any deviation
	// would be flagged, so do not raise.
	if stdDev == 0 {
		return Verdict{Outcome: OutcomeZeroVariance, Mean: mean}
	}

	score := math.Abs((value - mean) / stdDev)
	outcome := OutcomeBelowThreshold
	if score > threshold {
		outcome = OutcomeAnomaly
	}
	return Verdict{Outcome: outcome, Score: score, Mean: mean, StdDev: stdDev}
}

func meanOf(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func populationStdDev(values []float64, mean float64) float64 {
	var variance float64
	for _, v := range values {
		diff := v - mean
		variance += diff * diff
	}
	variance /= float64(len(values))
	return math.Sqrt(variance)
}
