package atlas

import (
	"sort"

	"github.com/explainrag/server/internal/models"
)

// Clusterer groups 3D points by density. Points in no dense region get
// models.NoiseClusterID. The scan order is fixed, so assignments are
// deterministic for identical input.
type Clusterer struct {
	eps       float64
	minPoints int
}

// NewClusterer creates a density clusterer. eps is the neighborhood radius in
// projected space, minPoints the density threshold (core point = at least
// minPoints neighbors including itself).
func NewClusterer(eps float64, minPoints int) *Clusterer {
	if eps <= 0 {
		eps = 0.35
	}

	if minPoints < 1 {
		minPoints = 2
	}

	return &Clusterer{eps: eps, minPoints: minPoints}
}

// Cluster assigns a cluster ID to each point. IDs are contiguous from 0 in
// order of cluster discovery; noise points get models.NoiseClusterID.
func (c *Clusterer) Cluster(points [][3]float64) []int {
	n := len(points)

	labels := make([]int, n)
	for i := range labels {
		labels[i] = models.NoiseClusterID
	}

	visited := make([]bool, n)
	nextCluster := 0

	for i := 0; i < n; i++ {
		if visited[i] {
			continue
		}

		visited[i] = true

		neighbors := c.regionQuery(points, i)
		if len(neighbors) < c.minPoints {
			continue
		}

		c.expandCluster(points, labels, visited, i, neighbors, nextCluster)
		nextCluster++
	}

	return labels
}

// expandCluster grows a cluster from a core point via a breadth-first sweep.
func (c *Clusterer) expandCluster(points [][3]float64, labels []int, visited []bool, seed int, neighbors []int, cluster int) {
	labels[seed] = cluster

	queue := append([]int(nil), neighbors...)

	for head := 0; head < len(queue); head++ {
		j := queue[head]

		if labels[j] == models.NoiseClusterID {
			labels[j] = cluster
		}

		if visited[j] {
			continue
		}

		visited[j] = true

		jNeighbors := c.regionQuery(points, j)
		if len(jNeighbors) >= c.minPoints {
			queue = append(queue, jNeighbors...)
		}
	}
}

// regionQuery returns the sorted indices within eps of point i, i included.
func (c *Clusterer) regionQuery(points [][3]float64, i int) []int {
	var out []int

	for j := range points {
		if euclidean(points[i], points[j]) <= c.eps {
			out = append(out, j)
		}
	}

	sort.Ints(out)

	return out
}
