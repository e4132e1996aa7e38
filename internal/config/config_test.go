package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("missing API_KEY fails", func(t *testing.T) {
		t.Setenv("API_KEY", "")

		_, err := Load()
		require.Error(t, err)
	})

	t.Run("defaults applied", func(t *testing.T) {
		t.Setenv("API_KEY", "secret")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "8080", cfg.Port)
		assert.Equal(t, "secret", cfg.APIKey)
		assert.Equal(t, "text-embedding-3-small", cfg.EmbeddingModel)
		assert.Equal(t, "gpt-4o", cfg.GenerationModel)
		assert.Equal(t, 384, cfg.EmbeddingDimensions)
		assert.Empty(t, cfg.RerankerURL)
		assert.Equal(t, 2, cfg.LLMMaxRetries)
		assert.Equal(t, 10, cfg.DefaultTopK)
		assert.Equal(t, 24000, cfg.ContextCharBudget)
		assert.Equal(t, int64(42), cfg.AtlasSeed)
		assert.InDelta(t, 0.35, cfg.AtlasEps, 1e-9)
		assert.Equal(t, 2, cfg.AtlasMinPoints)
		assert.Equal(t, 300, cfg.AtlasIterations)
	})

	t.Run("environment overrides defaults", func(t *testing.T) {
		t.Setenv("API_KEY", "secret")
		t.Setenv("PORT", "9090")
		t.Setenv("DEFAULT_TOP_K", "25")
		t.Setenv("RERANKER_URL", "http://localhost:8001")
		t.Setenv("ATLAS_SEED", "7")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "9090", cfg.Port)
		assert.Equal(t, 25, cfg.DefaultTopK)
		assert.Equal(t, "http://localhost:8001", cfg.RerankerURL)
		assert.Equal(t, int64(7), cfg.AtlasSeed)
	})

	t.Run("out of range DEFAULT_TOP_K fails", func(t *testing.T) {
		t.Setenv("API_KEY", "secret")
		t.Setenv("DEFAULT_TOP_K", "51")

		_, err := Load()
		require.Error(t, err)
	})

	t.Run("invalid numeric falls back to default", func(t *testing.T) {
		t.Setenv("API_KEY", "secret")
		t.Setenv("CONTEXT_CHAR_BUDGET", "not-a-number")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, 24000, cfg.ContextCharBudget)
	})
}
