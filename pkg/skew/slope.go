package skew

import (
	"image"
	"math"

	"gonum.org/v1/gonum/stat"
)

// Estimate is the dominant direction found in a spectrum.
type Estimate struct {
	// Slope of the dominant diagonal. NaN when it cannot be determined.
	Slope float64
	// Positive is set when the Q1/Q3 diagonal held more points than Q2/Q4.
	Positive bool
}

// SlopeOfBestFit returns the least-squares slope of the line through points.
// It is NaN for an empty set and for points that all share one x.
func SlopeOfBestFit(points []image.Point) float64 {
	if len(points) == 0 {
		return math.NaN()
	}
	xs := make([]float64, len(points))
	ys := make([]float64, len(points))
	for i, p := range points {
		xs[i], ys[i] = float64(p.X), float64(p.Y)
	}

	xMean, yMean := stat.Mean(xs, nil), stat.Mean(ys, nil)
	var num, den float64
	for i := range xs {
		dx := xs[i] - xMean
		num += dx * (ys[i] - yMean)
		den += dx * dx
	}
	if den == 0 {
		return math.NaN()
	}
	return num / den
}

// EstimateSkew picks the diagonal pair with the most points in its upper
// quadrant and averages the slopes of its two quadrants weighted by their
// sizes. Q1/Q3 wins only if Q1 is strictly larger than Q2.
func EstimateSkew(q Quadrants) Estimate {
	if len(q.Q1) > len(q.Q2) {
		return Estimate{Slope: weightedSlope(q.Q1, q.Q3), Positive: true}
	}
	return Estimate{Slope: weightedSlope(q.Q2, q.Q4), Positive: false}
}

func weightedSlope(a, b []image.Point) float64 {
	na, nb := float64(len(a)), float64(len(b))
	return (SlopeOfBestFit(a)*na + SlopeOfBestFit(b)*nb) / (na + nb)
}
