// Package repository provides data access for papers, chunks, queries, and
// atlas snapshots.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/explainrag/server/internal/models"
	"github.com/explainrag/server/internal/ragerrors"
)

// PapersRepository handles data access for papers and their chunks.
type PapersRepository struct {
	db *pgxpool.Pool
}

// NewPapersRepository creates a new papers repository.
func NewPapersRepository(db *pgxpool.Pool) *PapersRepository {
	return &PapersRepository{db: db}
}

// CreateWithChunks inserts a paper and all of its chunks in one transaction.
// Either everything lands or nothing does.
func (r *PapersRepository) CreateWithChunks(ctx context.Context, paper *models.Paper, chunks []models.Chunk) (*models.Paper, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin ingest transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	var created models.Paper

	err = tx.QueryRow(ctx, `
		INSERT INTO papers (id, arxiv_id, title, authors, abstract)
		VALUES ($1, NULLIF($2, ''), $3, $4, $5)
		RETURNING id, COALESCE(arxiv_id, ''), title, authors, abstract, ingested_at`,
		paper.ID, paper.ArxivID, paper.Title, paper.Authors, paper.Abstract,
	).Scan(&created.ID, &created.ArxivID, &created.Title, &created.Authors, &created.Abstract, &created.IngestedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create paper: %w", err)
	}

	for _, chunk := range chunks {
		_, err = tx.Exec(ctx, `
			INSERT INTO chunks (id, paper_id, content, chunk_index, section, embedding)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			chunk.ID, created.ID, chunk.Content, chunk.ChunkIndex, chunk.Section,
			pgvector.NewVector(chunk.Embedding),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create chunk %d: %w", chunk.ChunkIndex, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit ingest transaction: %w", err)
	}

	created.ChunkCount = len(chunks)

	return &created, nil
}

// GetByID retrieves a single paper with its chunk count.
func (r *PapersRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Paper, error) {
	query := `
		SELECT p.id, COALESCE(p.arxiv_id, ''), p.title, p.authors, p.abstract, p.ingested_at,
		       COUNT(c.id)
		FROM papers p
		LEFT JOIN chunks c ON c.paper_id = p.id
		WHERE p.id = $1
		GROUP BY p.id`

	var paper models.Paper

	err := r.db.QueryRow(ctx, query, id).Scan(
		&paper.ID, &paper.ArxivID, &paper.Title, &paper.Authors, &paper.Abstract,
		&paper.IngestedAt, &paper.ChunkCount,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ragerrors.NewNotFoundError("paper", "paper not found")
		}

		return nil, fmt.Errorf("failed to get paper: %w", err)
	}

	return &paper, nil
}

// List retrieves all papers ordered by ingestion time, newest first.
func (r *PapersRepository) List(ctx context.Context) ([]models.Paper, error) {
	query := `
		SELECT p.id, COALESCE(p.arxiv_id, ''), p.title, p.authors, p.abstract, p.ingested_at,
		       COUNT(c.id)
		FROM papers p
		LEFT JOIN chunks c ON c.paper_id = p.id
		GROUP BY p.id
		ORDER BY p.ingested_at DESC, p.id`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list papers: %w", err)
	}
	defer rows.Close()

	papers := []models.Paper{}

	for rows.Next() {
		var paper models.Paper

		err := rows.Scan(
			&paper.ID, &paper.ArxivID, &paper.Title, &paper.Authors, &paper.Abstract,
			&paper.IngestedAt, &paper.ChunkCount,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan paper: %w", err)
		}

		papers = append(papers, paper)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating papers: %w", err)
	}

	return papers, nil
}

// Delete removes a paper; its chunks cascade.
func (r *PapersRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.Exec(ctx, `DELETE FROM papers WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete paper: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ragerrors.NewNotFoundError("paper", "paper not found")
	}

	return nil
}

// Exists reports whether every given paper ID is present. Duplicate IDs in
// the input count once.
func (r *PapersRepository) Exists(ctx context.Context, ids []uuid.UUID) (bool, error) {
	if len(ids) == 0 {
		return true, nil
	}

	seen := make(map[uuid.UUID]struct{}, len(ids))
	unique := make([]uuid.UUID, 0, len(ids))

	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}

		seen[id] = struct{}{}
		unique = append(unique, id)
	}

	var count int

	err := r.db.QueryRow(ctx,
		`SELECT COUNT(DISTINCT id) FROM papers WHERE id = ANY($1)`, unique,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check papers existence: %w", err)
	}

	return count == len(unique), nil
}

// Stats returns corpus-wide counts.
func (r *PapersRepository) Stats(ctx context.Context) (paperCount, chunkCount int64, err error) {
	err = r.db.QueryRow(ctx,
		`SELECT (SELECT COUNT(*) FROM papers), (SELECT COUNT(*) FROM chunks)`,
	).Scan(&paperCount, &chunkCount)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to get corpus stats: %w", err)
	}

	return paperCount, chunkCount, nil
}

// PaperEmbeddings returns the centroid of each paper's chunk embeddings.
// Papers without chunks are skipped.
func (r *PapersRepository) PaperEmbeddings(ctx context.Context) ([]models.PaperEmbedding, error) {
	query := `
		SELECT p.id, p.title, COUNT(c.id), AVG(c.embedding)::vector
		FROM papers p
		JOIN chunks c ON c.paper_id = p.id
		GROUP BY p.id
		ORDER BY p.id`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to load paper embeddings: %w", err)
	}
	defer rows.Close()

	embeddings := []models.PaperEmbedding{}

	for rows.Next() {
		var (
			pe  models.PaperEmbedding
			vec pgvector.Vector
		)

		if err := rows.Scan(&pe.PaperID, &pe.Title, &pe.ChunkCount, &vec); err != nil {
			return nil, fmt.Errorf("failed to scan paper embedding: %w", err)
		}

		pe.Embedding = vec.Slice()
		embeddings = append(embeddings, pe)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating paper embeddings: %w", err)
	}

	return embeddings, nil
}
