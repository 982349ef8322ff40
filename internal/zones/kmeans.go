package zones

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

type partition struct {
	centers [][]float64
	labels  []int
	inertia float64
}

// kmeans runs opts.NInit seeded k-means++ restarts and keeps the partition
// with the lowest inertia. The same seed always yields the same partition.
func kmeans(points [][]float64, k int, opts Options) (partition, error) {
	if k <= 0 {
		return partition{}, fmt.Errorf("%w: number of zones must be positive, got %d", ErrClustering, k)
	}
	if len(points) < k {
		return partition{}, fmt.Errorf("%w: %d samples cannot form %d zones", ErrClustering, len(points), k)
	}

	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed))
	tol := opts.Tolerance * meanVariance(points)

	var best partition
	for run := range max(opts.NInit, 1) {
		centers := seedCenters(points, k, rng)
		p := lloyd(points, centers, opts.MaxIter, tol)
		if run == 0 || p.inertia < best.inertia {
			best = p
		}
	}
	return best, nil
}

// seedCenters picks k initial centers with k-means++ D² weighting.
func seedCenters(points [][]float64, k int, rng *rand.Rand) [][]float64 {
	centers := make([][]float64, 0, k)
	centers = append(centers, clone(points[rng.IntN(len(points))]))

	dist := make([]float64, len(points))
	for len(centers) < k {
		for i, p := range points {
			dist[i] = sqDist(p, nearestCenter(p, centers, nil))
		}
		total := floats.Sum(dist)

		idx := rng.IntN(len(points))
		if total > 0 {
			for i, d := range dist {
				if d > 0 {
					idx = i
				}
			}
			target := rng.Float64() * total
			var acc float64
			for i, d := range dist {
				acc += d
				if acc >= target && d > 0 {
					idx = i
					break
				}
			}
		}
		centers = append(centers, clone(points[idx]))
	}
	return centers
}

func lloyd(points [][]float64, centers [][]float64, maxIter int, tol float64) partition {
	dims := len(points[0])
	labels := make([]int, len(points))
	sums := make([][]float64, len(centers))
	for i := range sums {
		sums[i] = make([]float64, dims)
	}
	counts := make([]int, len(centers))

	for range max(maxIter, 1) {
		assign(points, centers, labels)

		for i := range sums {
			for d := range sums[i] {
				sums[i][d] = 0
			}
			counts[i] = 0
		}
		for i, p := range points {
			floats.Add(sums[labels[i]], p)
			counts[labels[i]]++
		}

		var shift float64
		for c := range centers {
			// An empty cluster keeps its previous center.
			if counts[c] == 0 {
				continue
			}
			floats.Scale(1/float64(counts[c]), sums[c])
			shift += sqDist(centers[c], sums[c])
			copy(centers[c], sums[c])
		}
		if shift <= tol {
			break
		}
	}

	inertia := assign(points, centers, labels)
	return partition{centers: centers, labels: labels, inertia: inertia}
}

// assign labels every point with its nearest center and returns the inertia.
func assign(points [][]float64, centers [][]float64, labels []int) float64 {
	var inertia float64
	for i, p := range points {
		var idx int
		c := nearestCenter(p, centers, &idx)
		labels[i] = idx
		inertia += sqDist(p, c)
	}
	return inertia
}

func nearestCenter(p []float64, centers [][]float64, idx *int) []float64 {
	best, bestDist := 0, math.Inf(1)
	for i, c := range centers {
		if d := floats.Distance(p, c, 2); d < bestDist {
			best, bestDist = i, d
		}
	}
	if idx != nil {
		*idx = best
	}
	return centers[best]
}

func sqDist(a, b []float64) float64 {
	d := floats.Distance(a, b, 2)
	return d * d
}

// meanVariance is the per-dimension population variance averaged over dimensions.
func meanVariance(points [][]float64) float64 {
	dims := len(points[0])
	col := make([]float64, len(points))
	var total float64
	for d := range dims {
		for i, p := range points {
			col[i] = p[d]
		}
		total += stat.PopVariance(col, nil)
	}
	return total / float64(dims)
}

func clone(p []float64) []float64 {
	out := make([]float64, len(p))
	copy(out, p)
	return out
}
