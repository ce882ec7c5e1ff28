package types

// TokenizerType selects how the engine interprets the tokenizer file.
type TokenizerType string

const (
	TokenizerHuggingFace   TokenizerType = "huggingface"
	TokenizerSentencePiece TokenizerType = "sentencepiece"
)

// Default generation parameters applied to omitted GenerationOptions fields.
const (
	DefaultMaxNewTokens = 100
	DefaultTemperature  = 0.8
)

// Model represents a packaged model discovered on disk.
type Model struct {
	// Stable identifier for the model (the weights file name).
	// example: smollm2-135m-xnnpack.pte
	ID string `json:"id" example:"smollm2-135m-xnnpack.pte"`
	// Absolute path to the weights file.
	// example: /home/user/models/smollm2-135m-xnnpack.pte
	Path string `json:"path" example:"/home/user/models/smollm2-135m-xnnpack.pte"`
	// Absolute path to the tokenizer paired with the weights, if one was found.
	// example: /home/user/models/smollm2-135m-xnnpack/tokenizer.json
	TokenizerPath string `json:"tokenizer_path,omitempty" example:"/home/user/models/smollm2-135m-xnnpack/tokenizer.json"`
	// Tokenizer kind inferred from the tokenizer file name.
	// example: huggingface
	TokenizerType TokenizerType `json:"tokenizer_type,omitempty" example:"huggingface"`
	// Weights format inferred from the extension (pte, gguf).
	// example: pte
	Format string `json:"format" example:"pte"`
}

// ModelConfig identifies the weights and tokenizer to load. Paths are opaque
// to the runner; existence is checked by the engine.
type ModelConfig struct {
	ModelPath     string        `json:"model_path" yaml:"model_path" toml:"model_path" validate:"required"`
	TokenizerPath string        `json:"tokenizer_path" yaml:"tokenizer_path" toml:"tokenizer_path" validate:"required"`
	TokenizerType TokenizerType `json:"tokenizer_type,omitempty" yaml:"tokenizer_type" toml:"tokenizer_type" validate:"omitempty,oneof=huggingface sentencepiece"`
}

// WithDefaults returns a copy with an empty TokenizerType set to huggingface.
func (c ModelConfig) WithDefaults() ModelConfig {
	if c.TokenizerType == "" {
		c.TokenizerType = TokenizerHuggingFace
	}
	return c
}

// GenerationOptions holds caller-supplied generation parameters. Nil fields
// are omitted and receive defaults; values are never range checked.
type GenerationOptions struct {
	MaxNewTokens *int     `json:"max_new_tokens,omitempty"`
	Temperature  *float64 `json:"temperature,omitempty"`
	Echo         *bool    `json:"echo,omitempty"`
}

// Int returns a pointer to v.
func Int(v int) *int { return &v }

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }

// Bool returns a pointer to v.
func Bool(v bool) *bool { return &v }
