// Package burn detects motor burns in a recorded thrust curve and summarizes
// them (peak thrust, burn time, total impulse).
package burn

import (
	"time"

	"github.com/itohio/thrust/pkg/chart"
)

// StandardGravity converts gram-force to newtons (per kilogram).
const StandardGravity = 9.80665

// Burn is one contiguous region of thrust above the threshold.
type Burn struct {
	StartIndex int     `json:"startIndex"`
	EndIndex   int     `json:"endIndex"`
	StartMs    float64 `json:"startMs"`
	EndMs      float64 `json:"endMs"`
	Peak       float64 `json:"peakGrams"`
	Impulse    float64 `json:"impulseNs"` // newton-seconds
}

// Duration returns the burn length.
func (b Burn) Duration() time.Duration {
	return time.Duration((b.EndMs - b.StartMs) * float64(time.Millisecond))
}

// Stats summarizes a run.
type Stats struct {
	Samples      int     `json:"samples"`
	Peak         float64 `json:"peakGrams"`
	PeakMs       float64 `json:"peakMs"`
	Average      float64 `json:"averageGrams"` // mean thrust while burning
	BurnTime     float64 `json:"burnTimeS"`
	TotalImpulse float64 `json:"totalImpulseNs"`
	Burns        []Burn  `json:"burns"`
}

// Detect finds burns: runs of points strictly above threshold that last at
// least minDuration. Shorter runs are dropped as noise.
func Detect(points []chart.Point, threshold float64, minDuration time.Duration) []Burn {
	burns := make([]Burn, 0)
	start := -1

	closeBurn := func(end int) {
		b := Burn{
			StartIndex: start,
			EndIndex:   end,
			StartMs:    points[start][0],
			EndMs:      points[end][0],
		}
		if b.Duration() < minDuration {
			return
		}
		for i := start; i <= end; i++ {
			if points[i][1] > b.Peak {
				b.Peak = points[i][1]
			}
		}
		b.Impulse = gramSeconds(points[start:end+1]) / 1000 * StandardGravity
		burns = append(burns, b)
	}

	for i, p := range points {
		burning := p[1] > threshold
		switch {
		case burning && start < 0:
			start = i
		case !burning && start >= 0:
			closeBurn(i - 1)
			start = -1
		}
	}
	if start >= 0 {
		closeBurn(len(points) - 1)
	}
	return burns
}

// Analyze detects burns and computes run totals.
func Analyze(points []chart.Point, threshold float64, minDuration time.Duration) Stats {
	st := Stats{
		Samples: len(points),
		Burns:   Detect(points, threshold, minDuration),
	}

	for _, p := range points {
		if p[1] > st.Peak {
			st.Peak = p[1]
			st.PeakMs = p[0]
		}
	}

	var gs float64
	for _, b := range st.Burns {
		st.BurnTime += b.Duration().Seconds()
		st.TotalImpulse += b.Impulse
		gs += gramSeconds(points[b.StartIndex : b.EndIndex+1])
	}
	if st.BurnTime > 0 {
		st.Average = gs / st.BurnTime
	}
	return st
}

// gramSeconds integrates thrust over time with the trapezoidal rule.
func gramSeconds(points []chart.Point) float64 {
	var sum float64
	for i := 1; i < len(points); i++ {
		dt := (points[i][0] - points[i-1][0]) / 1000
		sum += dt * (points[i][1] + points[i-1][1]) / 2
	}
	return sum
}
