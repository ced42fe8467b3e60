package ai

const (
	// DefaultMaxTokens bounds the length of generated answers.
	DefaultMaxTokens = 1024
	// DefaultTemperature keeps answers close to the retrieved context.
	DefaultTemperature = 0.2
)

// GenerateOptions tunes a single Generate call.
// Zero values fall back to DefaultMaxTokens; a zero Temperature is passed through.
type GenerateOptions struct {
	MaxTokens   int
	Temperature float64
}

// DefaultGenerateOptions returns the options used for answer generation.
func DefaultGenerateOptions() GenerateOptions {
	return GenerateOptions{
		MaxTokens:   DefaultMaxTokens,
		Temperature: DefaultTemperature,
	}
}

// WithDefaults fills unset fields.
func (o GenerateOptions) WithDefaults() GenerateOptions {
	if o.MaxTokens <= 0 {
		o.MaxTokens = DefaultMaxTokens
	}
	return o
}
