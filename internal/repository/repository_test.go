package repository

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/explainrag/server/pkg/database"
)

// Integration tests run against a real Postgres with the pgvector extension.
// They skip when DATABASE_URL is unset.

var schemaStatements = []string{
	`CREATE EXTENSION IF NOT EXISTS vector`,
	`CREATE TABLE IF NOT EXISTS papers (
		id          UUID PRIMARY KEY,
		arxiv_id    TEXT,
		title       TEXT NOT NULL,
		authors     TEXT[] NOT NULL DEFAULT '{}',
		abstract    TEXT NOT NULL DEFAULT '',
		ingested_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS chunks (
		id          UUID PRIMARY KEY,
		paper_id    UUID NOT NULL REFERENCES papers(id) ON DELETE CASCADE,
		content     TEXT NOT NULL,
		chunk_index INTEGER NOT NULL,
		section     TEXT,
		embedding   vector(384) NOT NULL,
		UNIQUE (paper_id, chunk_index)
	)`,
	`CREATE INDEX IF NOT EXISTS chunks_embedding_idx ON chunks
		USING hnsw (embedding vector_cosine_ops)`,
	`CREATE TABLE IF NOT EXISTS queries (
		id               UUID PRIMARY KEY,
		question         TEXT NOT NULL,
		answer           TEXT NOT NULL,
		citations        JSONB NOT NULL DEFAULT '[]',
		retrieved_chunks JSONB NOT NULL DEFAULT '[]',
		faithfulness     JSONB NOT NULL DEFAULT '{}',
		trace            JSONB NOT NULL DEFAULT '{}',
		created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS queries_created_at_idx ON queries (created_at DESC, id)`,
	`CREATE TABLE IF NOT EXISTS query_evaluations (
		query_id           UUID PRIMARY KEY REFERENCES queries(id) ON DELETE CASCADE,
		faithfulness       DOUBLE PRECISION NOT NULL,
		answer_relevancy   DOUBLE PRECISION NOT NULL,
		context_precision  DOUBLE PRECISION NOT NULL,
		context_recall     DOUBLE PRECISION NOT NULL,
		has_ground_truth   BOOLEAN NOT NULL,
		evaluation_time_ms DOUBLE PRECISION NOT NULL,
		created_at         TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS atlas_snapshots (
		points      JSONB NOT NULL,
		clusters    JSONB NOT NULL,
		computed_at TIMESTAMPTZ NOT NULL
	)`,
}

func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set, skipping database integration tests")
	}

	pool, err := database.NewPostgresPool(context.Background(), url, database.WithVectorTypes())
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	for _, stmt := range schemaStatements {
		_, err := pool.Exec(context.Background(), stmt)
		require.NoError(t, err)
	}

	return pool
}

// testEmbedding pads the leading values out to the 384 dimensions the schema
// requires.
func testEmbedding(lead ...float32) []float32 {
	vec := make([]float32, 384)
	copy(vec, lead)

	return vec
}
