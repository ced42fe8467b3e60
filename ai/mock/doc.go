// Package mock provides test double implementations of AI service interfaces.
//
// This package contains mock implementations of ai.Embedder, ai.Generator,
// and ai.AIProvider for use in unit tests. The mocks allow tests to run without
// external AI service dependencies and enable controlled, deterministic behavior.
//
// # Usage in Tests
//
//	embedder := mock.NewMockEmbedderWithDimension(4)
//	generator := mock.NewMockGenerator("Paris")
//	provider := mock.NewMockProviderWithServices(embedder, generator)
//
//	// Inspect what the generator was asked
//	prompt := generator.LastPrompt()
//
// # Default Behavior
//
//   - MockEmbedder: Returns deterministic unit vectors based on text hash
//   - MockGenerator: Returns a fixed answer and records every call
//   - MockProvider: Aggregates mock embedder and generator
package mock
