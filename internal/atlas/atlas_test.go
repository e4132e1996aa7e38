package atlas

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/explainrag/server/internal/models"
)

func TestProjector_Project(t *testing.T) {
	vectors := [][]float32{
		{1, 0, 0, 0}, {0.9, 0.1, 0, 0}, {0.95, 0.05, 0, 0},
		{0, 0, 1, 0}, {0, 0, 0.9, 0.1}, {0, 0, 0.95, 0.05},
	}

	t.Run("same seed reproduces the layout", func(t *testing.T) {
		first := NewProjector(42, 100).Project(vectors)
		second := NewProjector(42, 100).Project(vectors)

		require.Len(t, second, len(first))

		for i := range first {
			assert.Equal(t, first[i], second[i])
		}
	})

	t.Run("different seeds produce different layouts", func(t *testing.T) {
		first := NewProjector(42, 100).Project(vectors)
		second := NewProjector(7, 100).Project(vectors)

		assert.NotEqual(t, first, second)
	})

	t.Run("similar vectors land closer than dissimilar ones", func(t *testing.T) {
		coords := NewProjector(42, 300).Project(vectors)

		within := euclidean(coords[0], coords[1])
		across := euclidean(coords[0], coords[3])

		assert.Less(t, within, across)
	})

	t.Run("single point maps to origin", func(t *testing.T) {
		coords := NewProjector(42, 100).Project([][]float32{{1, 2, 3}})

		require.Len(t, coords, 1)
		assert.Equal(t, [3]float64{0, 0, 0}, coords[0])
	})

	t.Run("empty input yields empty output", func(t *testing.T) {
		assert.Empty(t, NewProjector(42, 100).Project(nil))
	})

	t.Run("output stays within the unit cube", func(t *testing.T) {
		coords := NewProjector(42, 300).Project(vectors)

		for _, c := range coords {
			for d := 0; d < 3; d++ {
				assert.LessOrEqual(t, c[d], 1.0)
				assert.GreaterOrEqual(t, c[d], -1.0)
			}
		}
	})
}

func TestClusterer_Cluster(t *testing.T) {
	t.Run("two dense groups and one outlier", func(t *testing.T) {
		points := [][3]float64{
			{0, 0, 0}, {0.1, 0, 0}, {0, 0.1, 0},
			{5, 5, 5}, {5.1, 5, 5}, {5, 5.1, 5},
			{-9, 9, 0},
		}

		labels := NewClusterer(0.5, 2).Cluster(points)

		require.Len(t, labels, 7)
		assert.Equal(t, 0, labels[0])
		assert.Equal(t, labels[0], labels[1])
		assert.Equal(t, labels[0], labels[2])
		assert.Equal(t, 1, labels[3])
		assert.Equal(t, labels[3], labels[4])
		assert.Equal(t, labels[3], labels[5])
		assert.Equal(t, models.NoiseClusterID, labels[6])
	})

	t.Run("all sparse points are noise", func(t *testing.T) {
		points := [][3]float64{{0, 0, 0}, {10, 0, 0}, {0, 10, 0}}

		labels := NewClusterer(0.5, 2).Cluster(points)

		for _, l := range labels {
			assert.Equal(t, models.NoiseClusterID, l)
		}
	})

	t.Run("deterministic for identical input", func(t *testing.T) {
		points := [][3]float64{
			{0, 0, 0}, {0.1, 0, 0}, {0.2, 0, 0}, {3, 3, 3}, {3.1, 3, 3},
		}

		clusterer := NewClusterer(0.5, 2)

		assert.Equal(t, clusterer.Cluster(points), clusterer.Cluster(points))
	})

	t.Run("empty input yields empty labels", func(t *testing.T) {
		assert.Empty(t, NewClusterer(0.5, 2).Cluster(nil))
	})
}

func TestClusterLabel(t *testing.T) {
	t.Run("top keywords joined", func(t *testing.T) {
		label := ClusterLabel([]string{
			"Attention Mechanisms in Transformers",
			"Transformers for Language Modeling",
			"Scaling Transformers with Attention",
		})

		assert.Equal(t, "Transformers & Attention & Language", label)
	})

	t.Run("stop words excluded", func(t *testing.T) {
		label := ClusterLabel([]string{"A Novel Approach for the Study of Graphs"})

		assert.Equal(t, "Graphs", label)
	})

	t.Run("no usable words falls back", func(t *testing.T) {
		assert.Equal(t, "Miscellaneous", ClusterLabel([]string{"A of the"}))
		assert.Equal(t, "Miscellaneous", ClusterLabel(nil))
	})

	t.Run("word counted once per title", func(t *testing.T) {
		label := ClusterLabel([]string{
			"Graphs Graphs Graphs Graphs",
			"Neural Networks",
			"Neural Models for Graphs",
		})

		// graphs: 2 titles, neural: 2 titles, networks/models: 1 each.
		assert.Equal(t, "Graphs & Neural & Models", label)
	})
}
