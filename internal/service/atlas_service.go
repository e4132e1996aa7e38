package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/explainrag/server/internal/atlas"
	"github.com/explainrag/server/internal/models"
	"github.com/explainrag/server/internal/ragerrors"
)

// PapersRepositoryForAtlas loads the per-paper centroid embeddings.
type PapersRepositoryForAtlas interface {
	PaperEmbeddings(ctx context.Context) ([]models.PaperEmbedding, error)
}

// AtlasRepositoryForAtlas persists atlas snapshots.
type AtlasRepositoryForAtlas interface {
	Replace(ctx context.Context, snapshot *models.AtlasSnapshot) error
	Get(ctx context.Context) (*models.AtlasSnapshot, error)
}

// AtlasService computes and serves the corpus atlas. Recompute is exclusive:
// a second recompute while one runs is rejected with a ConcurrencyError.
// Reads always see the last completed snapshot.
type AtlasService struct {
	papersRepo PapersRepositoryForAtlas
	atlasRepo  AtlasRepositoryForAtlas
	projector  *atlas.Projector
	clusterer  *atlas.Clusterer
	logger     *slog.Logger

	recomputeMu sync.Mutex
	current     atomic.Pointer[models.AtlasSnapshot]
}

// AtlasServiceParams configures AtlasService.
type AtlasServiceParams struct {
	PapersRepo PapersRepositoryForAtlas
	AtlasRepo  AtlasRepositoryForAtlas
	Projector  *atlas.Projector
	Clusterer  *atlas.Clusterer
	Logger     *slog.Logger
}

// NewAtlasService creates an AtlasService.
func NewAtlasService(p AtlasServiceParams) *AtlasService {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &AtlasService{
		papersRepo: p.PapersRepo,
		atlasRepo:  p.AtlasRepo,
		projector:  p.Projector,
		clusterer:  p.Clusterer,
		logger:     logger,
	}
}

// Recompute rebuilds the atlas from the current corpus and replaces the
// stored snapshot. An empty corpus yields an empty snapshot, not an error.
func (s *AtlasService) Recompute(ctx context.Context) (*models.AtlasRecomputeStats, error) {
	if !s.recomputeMu.TryLock() {
		return nil, ragerrors.NewConcurrencyError("atlas recompute already in progress")
	}
	defer s.recomputeMu.Unlock()

	start := time.Now()

	embeddings, err := s.papersRepo.PaperEmbeddings(ctx)
	if err != nil {
		return nil, fmt.Errorf("load paper embeddings: %w", err)
	}

	snapshot := s.build(embeddings)

	if err := s.atlasRepo.Replace(ctx, snapshot); err != nil {
		return nil, fmt.Errorf("store atlas snapshot: %w", err)
	}

	s.current.Store(snapshot)

	stats := &models.AtlasRecomputeStats{
		PapersProcessed: len(snapshot.Points),
		ClustersFound:   len(snapshot.Clusters),
		TimeMs:          msSince(start),
	}

	s.logger.Info("atlas recomputed",
		"papers", stats.PapersProcessed,
		"clusters", stats.ClustersFound,
		"time_ms", stats.TimeMs,
	)

	return stats, nil
}

// build projects the centroids, clusters the layout, and labels the clusters.
func (s *AtlasService) build(embeddings []models.PaperEmbedding) *models.AtlasSnapshot {
	vectors := make([][]float32, len(embeddings))
	for i, pe := range embeddings {
		vectors[i] = pe.Embedding
	}

	coords := s.projector.Project(vectors)
	labels := s.clusterer.Cluster(coords)

	points := make([]models.PaperPoint, len(embeddings))
	byCluster := make(map[int][]int)

	for i, pe := range embeddings {
		point := models.PaperPoint{
			PaperID:    pe.PaperID,
			Title:      pe.Title,
			Coords:     coords[i],
			ChunkCount: pe.ChunkCount,
		}

		if labels[i] != models.NoiseClusterID {
			id := labels[i]
			point.ClusterID = &id
			byCluster[id] = append(byCluster[id], i)
		}

		points[i] = point
	}

	clusters := make([]models.AtlasCluster, 0, len(byCluster))

	for id := 0; ; id++ {
		members, ok := byCluster[id]
		if !ok {
			break
		}

		titles := make([]string, len(members))
		paperIDs := make([]uuid.UUID, len(members))

		for j, idx := range members {
			titles[j] = embeddings[idx].Title
			paperIDs[j] = embeddings[idx].PaperID
		}

		clusters = append(clusters, models.AtlasCluster{
			ID:       id,
			Label:    atlas.ClusterLabel(titles),
			PaperIDs: paperIDs,
		})
	}

	return &models.AtlasSnapshot{
		Points:     points,
		Clusters:   clusters,
		ComputedAt: time.Now().UTC(),
	}
}

// Get returns the current snapshot, preferring the in-memory copy and
// falling back to storage after a restart.
func (s *AtlasService) Get(ctx context.Context) (*models.AtlasSnapshot, error) {
	if snapshot := s.current.Load(); snapshot != nil {
		return snapshot, nil
	}

	snapshot, err := s.atlasRepo.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("get atlas: %w", err)
	}

	s.current.Store(snapshot)

	return snapshot, nil
}
