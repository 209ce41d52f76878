package cluster

import (
	"github.com/NimbleMarkets/ntcharts/sparkline"
)

// DefaultElbowK is used when the inertia curve never flattens.
const DefaultElbowK = 3

// Inertias fits k-means for k = 1..maxK and returns the inertia of each.
func Inertias(rows [][]float32, maxK int, seed uint64, maxIter int, tol float64) []float64 {
	maxK = min(maxK, len(rows))
	out := make([]float64, 0, maxK)
	for k := 1; k <= maxK; k++ {
		out = append(out, KMeans(rows, k, seed, maxIter, tol).Inertia)
	}
	return out
}

// ElbowK returns the smallest k >= 2 whose marginal inertia reduction
// (k to k+1) is smaller than the one before it (k-1 to k). sse[i] is the
// inertia for k = i+1. When no such point exists it returns
// DefaultElbowK, or rows if that is smaller. rows <= 0 means unknown.
func ElbowK(sse []float64, rows int) int {
	for i := 1; i < len(sse)-1; i++ {
		if sse[i]-sse[i+1] < sse[i-1]-sse[i] {
			return i + 1
		}
	}
	if rows > 0 {
		return min(DefaultElbowK, rows)
	}
	return DefaultElbowK
}

const (
	sparklineWidth  = 30
	sparklineHeight = 5
)

// ElbowSparkline renders the inertia curve. It returns "" when there is
// nothing to draw.
func ElbowSparkline(inertias []float64) string {
	if len(inertias) == 0 {
		return ""
	}
	spark := sparkline.New(max(sparklineWidth, len(inertias)), sparklineHeight)
	for _, v := range inertias {
		spark.Push(v)
	}
	spark.Draw()
	return spark.View()
}
