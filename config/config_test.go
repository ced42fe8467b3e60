package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/poiesic/ragflow/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{EnvOpenAIAPIKey, EnvQdrantURL, EnvQdrantAPIKey, EnvInngestAPIBase, EnvInngestEventURL, EnvInngestEventKey} {
		t.Setenv(key, "")
	}
	// Keep a stray .env in the package directory from leaking in.
	t.Chdir(t.TempDir())
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "docs", cfg.Collection.Name)
	assert.Equal(t, 3072, cfg.Collection.Dimension)
	assert.Equal(t, "cosine", cfg.Collection.Metric)
	assert.Equal(t, VectorStoreBadger, cfg.VectorStore.Type)
	assert.Equal(t, "text-embedding-3-large", cfg.AI.EmbeddingModel)
	assert.Equal(t, "gpt-4o-mini", cfg.AI.GenerationModel)
	assert.Equal(t, 5, cfg.Query.TopK)
	assert.Equal(t, 120*time.Second, cfg.Poller.Timeout)
	assert.Equal(t, 500*time.Millisecond, cfg.Poller.Interval)
	assert.Equal(t, "http://127.0.0.1:8288/v1", cfg.Remote.APIBase)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_File(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "ragflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
collection:
  name: papers
  dimension: 768
vector_store:
  type: qdrant
  qdrant:
    url: http://qdrant.internal:6333
ai:
  embedding_host: http://localhost:11434
  embedding_model: nomic-embed-text
chunking:
  size: 500
  overlap: 50
poller:
  timeout: 30s
  interval: 250ms
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "papers", cfg.Collection.Name)
	assert.Equal(t, 768, cfg.Collection.Dimension)
	assert.Equal(t, "cosine", cfg.Collection.Metric)
	assert.Equal(t, VectorStoreQdrant, cfg.VectorStore.Type)
	assert.Equal(t, 500, cfg.Chunking.Size)
	assert.Equal(t, 30*time.Second, cfg.Poller.Timeout)
	assert.Equal(t, 250*time.Millisecond, cfg.Poller.Interval)
	// Unset keys keep their defaults.
	assert.Equal(t, "gpt-4o-mini", cfg.AI.GenerationModel)
	assert.Equal(t, 3, cfg.Workflow.MaxAttempts)

	aiCfg := cfg.AIConfig()
	assert.Equal(t, "http://localhost:11434/v1", aiCfg.EmbeddingHost)
	assert.Equal(t, 768, aiCfg.Dimension)

	qc, err := cfg.QdrantConfig()
	require.NoError(t, err)
	assert.Equal(t, "qdrant.internal", qc.Host)
	assert.Equal(t, 6334, qc.Port)

	assert.Equal(t, core.CollectionConfig{Name: "papers", Dimension: 768, Metric: core.MetricCosine}, cfg.CollectionSpec())
}

func TestLoad_InvalidYAML(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("collection: [unterminated"), 0o644))
	_, err := Load(path)
	assert.ErrorContains(t, err, "parsing")
}

func TestLoad_DotEnv(t *testing.T) {
	clearEnv(t)
	require.NoError(t, os.Unsetenv(EnvOpenAIAPIKey))
	require.NoError(t, os.WriteFile(".env", []byte("OPENAI_API_KEY=sk-from-dotenv\n"), 0o600))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "sk-from-dotenv", cfg.AI.APIKey)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		EnvOpenAIAPIKey:    "sk-test",
		EnvQdrantURL:       "https://cloud.qdrant.io:6333",
		EnvQdrantAPIKey:    "qk",
		EnvInngestAPIBase:  "http://inngest:8288/v1",
		EnvInngestEventURL: "http://inngest:8288",
		EnvInngestEventKey: "prod-key",
	}
	cfg := Default()
	cfg.ApplyEnv(func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	})

	assert.Equal(t, "sk-test", cfg.AI.APIKey)
	assert.Equal(t, VectorStoreQdrant, cfg.VectorStore.Type)
	assert.Equal(t, "https://cloud.qdrant.io:6333", cfg.VectorStore.Qdrant.URL)
	assert.Equal(t, "qk", cfg.VectorStore.Qdrant.APIKey)
	assert.Equal(t, "prod-key", cfg.RemoteConfig().EventKey)
	assert.Equal(t, "http://inngest:8288/v1", cfg.RemoteConfig().APIBase)

	qc, err := cfg.QdrantConfig()
	require.NoError(t, err)
	assert.True(t, qc.UseTLS)
}

func TestApplyEnv_BlankValuesIgnored(t *testing.T) {
	cfg := Default()
	cfg.ApplyEnv(func(string) (string, bool) { return "  ", true })
	assert.Equal(t, Default(), cfg)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"empty collection", func(c *Config) { c.Collection.Name = " " }, "collection.name"},
		{"zero dimension", func(c *Config) { c.Collection.Dimension = 0 }, "collection.dimension"},
		{"bad metric", func(c *Config) { c.Collection.Metric = "manhattan" }, "collection.metric"},
		{"unknown store", func(c *Config) { c.VectorStore.Type = "pinecone" }, "vector_store.type"},
		{"badger without dir", func(c *Config) { c.DataDir = "" }, "data_dir"},
		{"qdrant bad url", func(c *Config) {
			c.VectorStore.Type = VectorStoreQdrant
			c.VectorStore.Qdrant.URL = "not a url"
		}, "vector_store.qdrant.url"},
		{"overlap too large", func(c *Config) { c.Chunking.Overlap = c.Chunking.Size }, "chunking"},
		{"no attempts", func(c *Config) { c.Workflow.MaxAttempts = 0 }, "max_attempts"},
		{"zero interval", func(c *Config) { c.Poller.Interval = 0 }, "poller"},
		{"negative top_k", func(c *Config) { c.Query.TopK = -1 }, "top_k"},
		{"bad temperature", func(c *Config) { c.AI.Temperature = 3 }, "Temperature"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "nested", "ragflow.yaml")
	cfg := Default()
	cfg.Collection.Name = "saved"
	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}
