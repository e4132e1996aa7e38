package models

import (
	"time"

	"github.com/google/uuid"
)

// NoiseClusterID marks points the density clustering declined to assign.
const NoiseClusterID = -1

// PaperPoint is one paper projected into the 3D atlas space.
// ClusterID is nil for noise points.
type PaperPoint struct {
	PaperID    uuid.UUID  `json:"paper_id"`
	Title      string     `json:"title"`
	Coords     [3]float64 `json:"coords"`
	ClusterID  *int       `json:"cluster_id"`
	ChunkCount int        `json:"chunk_count"`
}

// AtlasCluster is a labeled group of papers in the atlas.
type AtlasCluster struct {
	ID       int         `json:"id"`
	Label    string      `json:"label"`
	PaperIDs []uuid.UUID `json:"paper_ids"`
}

// AtlasSnapshot is the full atlas output, replaced wholesale on each
// recompute.
type AtlasSnapshot struct {
	Points     []PaperPoint   `json:"points"`
	Clusters   []AtlasCluster `json:"clusters"`
	ComputedAt time.Time      `json:"computed_at"`
}

// AtlasRecomputeStats summarizes one recompute run.
type AtlasRecomputeStats struct {
	PapersProcessed int     `json:"papers_processed"`
	ClustersFound   int     `json:"clusters_found"`
	TimeMs          float64 `json:"time_ms"`
}
