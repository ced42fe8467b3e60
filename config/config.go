package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/poiesic/ragflow/ai"
	"github.com/poiesic/ragflow/core"
	"github.com/poiesic/ragflow/ingestion"
	"github.com/poiesic/ragflow/poller"
	"github.com/poiesic/ragflow/remote"
	"github.com/poiesic/ragflow/storage/qdrant"
	"github.com/poiesic/ragflow/workflow"
	"gopkg.in/yaml.v3"
)

// Vector store backends.
const (
	VectorStoreBadger = "badger"
	VectorStoreQdrant = "qdrant"
)

// Environment variables that override file settings.
const (
	EnvOpenAIAPIKey    = "OPENAI_API_KEY"
	EnvQdrantURL       = "QDRANT_URL"
	EnvQdrantAPIKey    = "QDRANT_API_KEY"
	EnvInngestAPIBase  = "INNGEST_API_BASE"
	EnvInngestEventURL = "INNGEST_EVENT_URL"
	EnvInngestEventKey = "INNGEST_EVENT_KEY"
)

const (
	DefaultCollection = "docs"
	DefaultQdrantURL  = "http://localhost:6333"
	DefaultDataDir    = "ragflow-data"
)

// CollectionConfig names the vector collection and its shape.
type CollectionConfig struct {
	Name      string `yaml:"name"`
	Dimension int    `yaml:"dimension"`
	Metric    string `yaml:"metric"`
}

// QdrantConfig contains connection details for a Qdrant server.
type QdrantConfig struct {
	URL    string `yaml:"url"`
	APIKey string `yaml:"api_key"`
}

// VectorStoreConfig selects the vector store implementation.
type VectorStoreConfig struct {
	Type   string       `yaml:"type"`
	Qdrant QdrantConfig `yaml:"qdrant"`
}

// AIConfig configures the OpenAI-compatible embedding and chat services.
type AIConfig struct {
	EmbeddingHost   string  `yaml:"embedding_host"`
	GenerationHost  string  `yaml:"generation_host"`
	EmbeddingModel  string  `yaml:"embedding_model"`
	GenerationModel string  `yaml:"generation_model"`
	APIKey          string  `yaml:"api_key"`
	MaxTokens       int     `yaml:"max_tokens"`
	Temperature     float64 `yaml:"temperature"`
}

type ChunkingConfig struct {
	Size    int `yaml:"size"`
	Overlap int `yaml:"overlap"`
}

type WorkflowConfig struct {
	PoolSize    int           `yaml:"pool_size"`
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
}

type PollerConfig struct {
	Timeout  time.Duration `yaml:"timeout"`
	Interval time.Duration `yaml:"interval"`
}

type RemoteConfig struct {
	APIBase  string `yaml:"api_base"`
	EventURL string `yaml:"event_url"`
	EventKey string `yaml:"event_key"`
}

type QueryConfig struct {
	TopK int `yaml:"top_k"`
}

// Config is the root application configuration.
type Config struct {
	DataDir     string            `yaml:"data_dir"`
	Collection  CollectionConfig  `yaml:"collection"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	AI          AIConfig          `yaml:"ai"`
	Chunking    ChunkingConfig    `yaml:"chunking"`
	Workflow    WorkflowConfig    `yaml:"workflow"`
	Poller      PollerConfig      `yaml:"poller"`
	Remote      RemoteConfig      `yaml:"remote"`
	Query       QueryConfig       `yaml:"query"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	aiDefaults := ai.DefaultConfig()
	retry := workflow.DefaultRetryPolicy()
	rc := remote.DefaultConfig()
	return &Config{
		DataDir: DefaultDataDir,
		Collection: CollectionConfig{
			Name:      DefaultCollection,
			Dimension: aiDefaults.Dimension,
			Metric:    core.MetricCosine.String(),
		},
		VectorStore: VectorStoreConfig{
			Type:   VectorStoreBadger,
			Qdrant: QdrantConfig{URL: DefaultQdrantURL},
		},
		AI: AIConfig{
			EmbeddingHost:   aiDefaults.EmbeddingHost,
			GenerationHost:  aiDefaults.GenerationHost,
			EmbeddingModel:  aiDefaults.EmbeddingModel,
			GenerationModel: aiDefaults.GenerationModel,
			MaxTokens:       aiDefaults.MaxTokens,
			Temperature:     aiDefaults.Temperature,
		},
		Chunking: ChunkingConfig{
			Size:    ingestion.DefaultChunkSize,
			Overlap: ingestion.DefaultChunkOverlap,
		},
		Workflow: WorkflowConfig{
			MaxAttempts: retry.MaxAttempts,
			BaseDelay:   retry.BaseDelay,
		},
		Poller: PollerConfig{
			Timeout:  poller.DefaultTimeout,
			Interval: poller.DefaultPollInterval,
		},
		Remote: RemoteConfig{
			APIBase:  rc.APIBase,
			EventURL: rc.EventURL,
			EventKey: rc.EventKey,
		},
		Query: QueryConfig{TopK: core.DefaultTopK},
	}
}

// Load reads configuration from path. Variables from a .env file next to
// the working directory are loaded first, without replacing variables that
// are already set. A missing config file yields the defaults; environment
// overrides are applied in both cases.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, err
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing %s: %w", path, err)
			}
		}
	}

	cfg.ApplyEnv(os.LookupEnv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg to path, creating directories as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// ApplyEnv overrides settings with non-empty environment variables.
// Setting QDRANT_URL also selects the qdrant vector store.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}

	if v, ok := get(EnvOpenAIAPIKey); ok {
		c.AI.APIKey = v
	}
	if v, ok := get(EnvQdrantURL); ok {
		c.VectorStore.Type = VectorStoreQdrant
		c.VectorStore.Qdrant.URL = v
	}
	if v, ok := get(EnvQdrantAPIKey); ok {
		c.VectorStore.Qdrant.APIKey = v
	}
	if v, ok := get(EnvInngestAPIBase); ok {
		c.Remote.APIBase = v
	}
	if v, ok := get(EnvInngestEventURL); ok {
		c.Remote.EventURL = v
	}
	if v, ok := get(EnvInngestEventKey); ok {
		c.Remote.EventKey = v
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Collection.Name) == "" {
		return errors.New("config: collection.name is required")
	}
	if c.Collection.Dimension < 1 {
		return fmt.Errorf("config: collection.dimension must be >= 1, got %d", c.Collection.Dimension)
	}
	if _, err := core.ParseMetric(c.Collection.Metric); err != nil {
		return fmt.Errorf("config: collection.metric: %w", err)
	}
	switch c.VectorStore.Type {
	case VectorStoreBadger:
		if strings.TrimSpace(c.DataDir) == "" {
			return errors.New("config: data_dir is required for the badger vector store")
		}
	case VectorStoreQdrant:
		if _, err := qdrant.ConfigFromURL(c.VectorStore.Qdrant.URL, c.VectorStore.Qdrant.APIKey); err != nil {
			return fmt.Errorf("config: vector_store.qdrant.url: %w", err)
		}
	default:
		return fmt.Errorf("config: unknown vector_store.type %q", c.VectorStore.Type)
	}
	if c.Chunking.Size < 1 || c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.Size {
		return fmt.Errorf("config: chunking needs size >= 1 and 0 <= overlap < size, got %d/%d", c.Chunking.Size, c.Chunking.Overlap)
	}
	if c.Workflow.MaxAttempts < 1 {
		return fmt.Errorf("config: workflow.max_attempts must be >= 1, got %d", c.Workflow.MaxAttempts)
	}
	if c.Poller.Timeout <= 0 || c.Poller.Interval <= 0 {
		return errors.New("config: poller timeout and interval must be positive")
	}
	if c.Query.TopK < 0 {
		return fmt.Errorf("config: query.top_k must be >= 0, got %d", c.Query.TopK)
	}
	return c.AIConfig().Validate()
}

// AIConfig converts the AI section into a normalized ai.Config. The
// embedding dimension follows the collection dimension.
func (c *Config) AIConfig() *ai.Config {
	cfg := ai.NewConfig(
		ai.WithEmbeddingHost(c.AI.EmbeddingHost),
		ai.WithGenerationHost(c.AI.GenerationHost),
		ai.WithEmbeddingModel(c.AI.EmbeddingModel),
		ai.WithGenerationModel(c.AI.GenerationModel),
		ai.WithAPIKey(c.AI.APIKey),
		ai.WithDimension(c.Collection.Dimension),
		ai.WithMaxTokens(c.AI.MaxTokens),
		ai.WithTemperature(c.AI.Temperature),
	)
	cfg.Normalize()
	return cfg
}

// CollectionSpec returns the collection the engine ensures at startup.
func (c *Config) CollectionSpec() core.CollectionConfig {
	metric, err := core.ParseMetric(c.Collection.Metric)
	if err != nil {
		metric = core.MetricCosine
	}
	return core.CollectionConfig{
		Name:      c.Collection.Name,
		Dimension: c.Collection.Dimension,
		Metric:    metric,
	}
}

// QdrantConfig returns connection settings for the qdrant vector store.
func (c *Config) QdrantConfig() (qdrant.Config, error) {
	return qdrant.ConfigFromURL(c.VectorStore.Qdrant.URL, c.VectorStore.Qdrant.APIKey)
}

// RemoteConfig returns the settings of the remote workflow engine.
func (c *Config) RemoteConfig() remote.Config {
	return remote.Config{
		APIBase:  c.Remote.APIBase,
		EventURL: c.Remote.EventURL,
		EventKey: c.Remote.EventKey,
	}
}

// RetryPolicy returns the per-step retry policy.
func (c *Config) RetryPolicy() workflow.RetryPolicy {
	return workflow.RetryPolicy{
		MaxAttempts: c.Workflow.MaxAttempts,
		BaseDelay:   c.Workflow.BaseDelay,
	}
}

// PollerOptions returns options for poller.NewPoller.
func (c *Config) PollerOptions() []poller.Option {
	return []poller.Option{
		poller.WithTimeout(c.Poller.Timeout),
		poller.WithPollInterval(c.Poller.Interval),
	}
}
