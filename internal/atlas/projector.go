// Package atlas computes the 3D projection and clustering of the paper
// corpus. All of it is deterministic for a fixed seed so recomputes over an
// unchanged corpus reproduce the same layout.
package atlas

import (
	"math"
	"math/rand"
	"sort"
)

const (
	defaultNeighbors  = 15
	defaultIterations = 300
)

// Projector maps high-dimensional paper centroids to 3D coordinates with a
// seeded neighborhood-preserving embedding: nearest neighbors in the original
// space attract, sampled non-neighbors repel.
type Projector struct {
	seed       int64
	iterations int
}

// NewProjector creates a projector. iterations <= 0 selects the default.
func NewProjector(seed int64, iterations int) *Projector {
	if iterations <= 0 {
		iterations = defaultIterations
	}

	return &Projector{seed: seed, iterations: iterations}
}

// Project returns one [x y z] coordinate per input vector, in input order.
// Output coordinates are centered and scaled to roughly the unit cube.
func (p *Projector) Project(vectors [][]float32) [][3]float64 {
	n := len(vectors)
	if n == 0 {
		return [][3]float64{}
	}

	rng := rand.New(rand.NewSource(p.seed))

	coords := make([][3]float64, n)
	for i := range coords {
		for d := 0; d < 3; d++ {
			coords[i][d] = rng.Float64()*2 - 1
		}
	}

	if n == 1 {
		return [][3]float64{{0, 0, 0}}
	}

	dist := pairwiseCosineDistances(vectors)

	k := defaultNeighbors
	if k > n-1 {
		k = n - 1
	}

	neighbors := nearestNeighbors(dist, k)

	p.optimize(rng, coords, dist, neighbors)
	normalize(coords)

	return coords
}

// optimize runs the attraction/repulsion loop with a decaying learning rate.
func (p *Projector) optimize(rng *rand.Rand, coords [][3]float64, dist [][]float64, neighbors [][]int) {
	n := len(coords)

	for iter := 0; iter < p.iterations; iter++ {
		alpha := 0.1 * (1 - float64(iter)/float64(p.iterations))

		for i := 0; i < n; i++ {
			for _, j := range neighbors[i] {
				target := dist[i][j]
				moveToward(&coords[i], coords[j], target, alpha)
			}

			// A few random repulsion samples keep non-neighbors apart.
			for s := 0; s < 3; s++ {
				j := rng.Intn(n)
				if j == i || isNeighbor(neighbors[i], j) {
					continue
				}

				pushAway(&coords[i], coords[j], alpha)
			}
		}
	}
}

// moveToward nudges a toward b so their 3D distance approaches target.
func moveToward(a *[3]float64, b [3]float64, target, alpha float64) {
	d := euclidean(*a, b)
	if d < 1e-9 {
		return
	}

	grad := alpha * (d - target) / d

	for dim := 0; dim < 3; dim++ {
		a[dim] += grad * (b[dim] - a[dim])
	}
}

// pushAway nudges a away from b with inverse-distance falloff.
func pushAway(a *[3]float64, b [3]float64, alpha float64) {
	d := euclidean(*a, b)
	if d < 1e-9 {
		a[0] += alpha * 0.01

		return
	}

	grad := alpha * 0.3 / (d*d + 0.1)

	for dim := 0; dim < 3; dim++ {
		a[dim] += grad * (a[dim] - b[dim]) / d
	}
}

func isNeighbor(neighbors []int, j int) bool {
	for _, nb := range neighbors {
		if nb == j {
			return true
		}
	}

	return false
}

// pairwiseCosineDistances returns the symmetric n x n cosine distance matrix.
func pairwiseCosineDistances(vectors [][]float32) [][]float64 {
	n := len(vectors)

	norms := make([]float64, n)
	for i, v := range vectors {
		var sum float64
		for _, x := range v {
			sum += float64(x) * float64(x)
		}

		norms[i] = math.Sqrt(sum)
	}

	dist := make([][]float64, n)
	for i := range dist {
		dist[i] = make([]float64, n)
	}

	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			var dot float64
			for d := range vectors[i] {
				dot += float64(vectors[i][d]) * float64(vectors[j][d])
			}

			var cos float64
			if norms[i] > 0 && norms[j] > 0 {
				cos = dot / (norms[i] * norms[j])
			}

			d := 1 - cos
			if d < 0 {
				d = 0
			}

			dist[i][j] = d
			dist[j][i] = d
		}
	}

	return dist
}

// nearestNeighbors returns each point's k nearest neighbor indices, ordered
// by distance then index so the result is stable.
func nearestNeighbors(dist [][]float64, k int) [][]int {
	n := len(dist)

	neighbors := make([][]int, n)

	for i := 0; i < n; i++ {
		idx := make([]int, 0, n-1)

		for j := 0; j < n; j++ {
			if j != i {
				idx = append(idx, j)
			}
		}

		sort.Slice(idx, func(a, b int) bool {
			if dist[i][idx[a]] != dist[i][idx[b]] {
				return dist[i][idx[a]] < dist[i][idx[b]]
			}

			return idx[a] < idx[b]
		})

		neighbors[i] = idx[:k]
	}

	return neighbors
}

// normalize centers the layout and scales the largest axis extent to 1.
func normalize(coords [][3]float64) {
	n := len(coords)
	if n == 0 {
		return
	}

	var center [3]float64

	for _, c := range coords {
		for d := 0; d < 3; d++ {
			center[d] += c[d]
		}
	}

	for d := 0; d < 3; d++ {
		center[d] /= float64(n)
	}

	var maxAbs float64

	for i := range coords {
		for d := 0; d < 3; d++ {
			coords[i][d] -= center[d]

			if abs := math.Abs(coords[i][d]); abs > maxAbs {
				maxAbs = abs
			}
		}
	}

	if maxAbs < 1e-9 {
		return
	}

	for i := range coords {
		for d := 0; d < 3; d++ {
			coords[i][d] /= maxAbs
		}
	}
}

func euclidean(a, b [3]float64) float64 {
	var sum float64

	for d := 0; d < 3; d++ {
		diff := a[d] - b[d]
		sum += diff * diff
	}

	return math.Sqrt(sum)
}
