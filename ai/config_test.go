package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.NotNil(t, cfg)
	assert.Equal(t, DefaultHost, cfg.EmbeddingHost)
	assert.Equal(t, DefaultHost, cfg.GenerationHost)
	assert.Equal(t, "text-embedding-3-large", cfg.EmbeddingModel)
	assert.Equal(t, "gpt-4o-mini", cfg.GenerationModel)
	assert.Equal(t, 3072, cfg.Dimension)
	assert.Equal(t, 1024, cfg.MaxTokens)
	assert.InDelta(t, 0.2, cfg.Temperature, 1e-9)
	require.NoError(t, cfg.Validate())
}

func TestNewConfig(t *testing.T) {
	t.Run("with no options", func(t *testing.T) {
		cfg := NewConfig()
		assert.Equal(t, DefaultConfig(), cfg)
	})

	t.Run("with custom host", func(t *testing.T) {
		cfg := NewConfig(WithHost("http://custom:8080/v1"))

		assert.Equal(t, "http://custom:8080/v1", cfg.EmbeddingHost)
		assert.Equal(t, "http://custom:8080/v1", cfg.GenerationHost)
	})

	t.Run("with separate hosts", func(t *testing.T) {
		cfg := NewConfig(
			WithEmbeddingHost("http://embed:8080/v1"),
			WithGenerationHost("http://chat:9090/v1"),
		)

		assert.Equal(t, "http://embed:8080/v1", cfg.EmbeddingHost)
		assert.Equal(t, "http://chat:9090/v1", cfg.GenerationHost)
	})

	t.Run("with multiple options", func(t *testing.T) {
		cfg := NewConfig(
			WithEmbeddingModel("nomic-embed-text"),
			WithGenerationModel("qwen2.5:3b"),
			WithAPIKey("sk-test"),
			WithDimension(768),
			WithMaxTokens(256),
			WithTemperature(0),
		)

		assert.Equal(t, "nomic-embed-text", cfg.EmbeddingModel)
		assert.Equal(t, "qwen2.5:3b", cfg.GenerationModel)
		assert.Equal(t, "sk-test", cfg.APIKey)
		assert.Equal(t, 768, cfg.Dimension)
		assert.Equal(t, GenerateOptions{MaxTokens: 256, Temperature: 0}, cfg.GenerateOptions())
	})
}

func TestConfigNormalize(t *testing.T) {
	tests := []struct {
		name     string
		host     string
		expected string
	}{
		{name: "already has /v1", host: "http://localhost:11434/v1", expected: "http://localhost:11434/v1"},
		{name: "missing /v1", host: "http://localhost:11434", expected: "http://localhost:11434/v1"},
		{name: "has trailing slash", host: "http://localhost:11434/", expected: "http://localhost:11434/v1"},
		{name: "empty host", host: "", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{EmbeddingHost: tt.host, GenerationHost: tt.host}
			cfg.Normalize()
			assert.Equal(t, tt.expected, cfg.EmbeddingHost)
			assert.Equal(t, tt.expected, cfg.GenerationHost)
		})
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{name: "valid", modify: func(c *Config) {}},
		{name: "missing embedding host", modify: func(c *Config) { c.EmbeddingHost = "" }, wantErr: "EmbeddingHost"},
		{name: "missing generation host", modify: func(c *Config) { c.GenerationHost = "" }, wantErr: "GenerationHost"},
		{name: "missing embedding model", modify: func(c *Config) { c.EmbeddingModel = "" }, wantErr: "EmbeddingModel"},
		{name: "missing generation model", modify: func(c *Config) { c.GenerationModel = "" }, wantErr: "GenerationModel"},
		{name: "zero dimension", modify: func(c *Config) { c.Dimension = 0 }, wantErr: "Dimension"},
		{name: "zero max tokens", modify: func(c *Config) { c.MaxTokens = 0 }, wantErr: "MaxTokens"},
		{name: "negative temperature", modify: func(c *Config) { c.Temperature = -0.1 }, wantErr: "Temperature"},
		{name: "temperature too high", modify: func(c *Config) { c.Temperature = 2.5 }, wantErr: "Temperature"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateNormalizesHosts(t *testing.T) {
	cfg := NewConfig(WithHost("http://localhost:11434/"))
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "http://localhost:11434/v1", cfg.EmbeddingHost)
	assert.Equal(t, "http://localhost:11434/v1", cfg.GenerationHost)
}

func TestGenerateOptionsWithDefaults(t *testing.T) {
	assert.Equal(t, DefaultGenerateOptions(), GenerateOptions{Temperature: 0.2}.WithDefaults())
	assert.Equal(t, 12, GenerateOptions{MaxTokens: 12}.WithDefaults().MaxTokens)
}
