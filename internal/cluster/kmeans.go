package cluster

import (
	"math"
	"math/rand/v2"
)

// pcgStream is the fixed second half of the PCG state.
const pcgStream = 0x9e3779b97f4a7c15

// KMeansResult is one k-means fit.
type KMeansResult struct {
	Labels    []int
	Centroids [][]float64
	Inertia   float64
	Iter      int
}

// KMeans partitions rows into k clusters with Lloyd's algorithm seeded by
// k-means++. Identical inputs and seed give identical results.
func KMeans(rows [][]float32, k int, seed uint64, maxIter int, tol float64) KMeansResult {
	n := len(rows)
	if n == 0 || k <= 0 {
		return KMeansResult{}
	}
	k = min(k, n)
	if maxIter <= 0 {
		maxIter = 300
	}

	data := toFloat64(rows)
	rng := rand.New(rand.NewPCG(seed, pcgStream))
	centroids := seedPlusPlus(data, k, rng)
	threshold := tol * meanVariance(data)

	labels := make([]int, n)
	iter := 0
	for iter < maxIter {
		iter++
		assign(data, centroids, labels)
		next := recompute(data, labels, k)
		reseedEmpty(data, labels, next)
		shift := 0.0
		for c := range centroids {
			shift += sqDist(centroids[c], next[c])
		}
		centroids = next
		if shift <= threshold {
			break
		}
	}
	inertia := assign(data, centroids, labels)

	return KMeansResult{Labels: labels, Centroids: centroids, Inertia: inertia, Iter: iter}
}

func toFloat64(rows [][]float32) [][]float64 {
	out := make([][]float64, len(rows))
	for i, r := range rows {
		v := make([]float64, len(r))
		for j, x := range r {
			v[j] = float64(x)
		}
		out[i] = v
	}
	return out
}

// seedPlusPlus picks k initial centroids, each subsequent one with
// probability proportional to its squared distance from the nearest
// centroid chosen so far.
func seedPlusPlus(data [][]float64, k int, rng *rand.Rand) [][]float64 {
	n := len(data)
	centroids := make([][]float64, 0, k)
	centroids = append(centroids, clone(data[rng.IntN(n)]))

	dist := make([]float64, n)
	for i, p := range data {
		dist[i] = sqDist(p, centroids[0])
	}
	for len(centroids) < k {
		total := 0.0
		for _, d := range dist {
			total += d
		}
		idx := rng.IntN(n)
		if total > 0 {
			target := rng.Float64() * total
			for i, d := range dist {
				target -= d
				if target < 0 {
					idx = i
					break
				}
			}
		}
		c := clone(data[idx])
		centroids = append(centroids, c)
		for i, p := range data {
			dist[i] = min(dist[i], sqDist(p, c))
		}
	}
	return centroids
}

// assign labels each point with its nearest centroid, lowest index on
// ties, and returns the total squared distance.
func assign(data, centroids [][]float64, labels []int) float64 {
	inertia := 0.0
	for i, p := range data {
		best, bestDist := 0, math.Inf(1)
		for c, centroid := range centroids {
			if d := sqDist(p, centroid); d < bestDist {
				best, bestDist = c, d
			}
		}
		labels[i] = best
		inertia += bestDist
	}
	return inertia
}

// recompute returns the mean of each cluster. Empty clusters get a nil
// centroid.
func recompute(data [][]float64, labels []int, k int) [][]float64 {
	dim := len(data[0])
	sums := make([][]float64, k)
	counts := make([]int, k)
	for i, p := range data {
		c := labels[i]
		if sums[c] == nil {
			sums[c] = make([]float64, dim)
		}
		for j, x := range p {
			sums[c][j] += x
		}
		counts[c]++
	}
	for c := range sums {
		if counts[c] == 0 {
			continue
		}
		for j := range sums[c] {
			sums[c][j] /= float64(counts[c])
		}
	}
	return sums
}

// reseedEmpty moves each empty centroid onto the point farthest from its
// own centroid, and relabels that point.
func reseedEmpty(data [][]float64, labels []int, centroids [][]float64) {
	taken := make(map[int]bool)
	for c := range centroids {
		if centroids[c] != nil {
			continue
		}
		far, farDist := -1, -1.0
		for i, p := range data {
			if taken[i] || centroids[labels[i]] == nil {
				continue
			}
			if d := sqDist(p, centroids[labels[i]]); d > farDist {
				far, farDist = i, d
			}
		}
		if far < 0 {
			centroids[c] = make([]float64, len(data[0]))
			continue
		}
		taken[far] = true
		centroids[c] = clone(data[far])
		labels[far] = c
	}
}

// meanVariance is the mean per-dimension variance, used to scale the
// convergence tolerance.
func meanVariance(data [][]float64) float64 {
	n, dim := float64(len(data)), len(data[0])
	if dim == 0 {
		return 0
	}
	total := 0.0
	for j := 0; j < dim; j++ {
		mean := 0.0
		for _, p := range data {
			mean += p[j]
		}
		mean /= n
		for _, p := range data {
			d := p[j] - mean
			total += d * d
		}
	}
	return total / n / float64(dim)
}

func sqDist(a, b []float64) float64 {
	s := 0.0
	for i := range a {
		d := a[i] - b[i]
		s += d * d
	}
	return s
}

func clone(v []float64) []float64 {
	out := make([]float64, len(v))
	copy(out, v)
	return out
}
