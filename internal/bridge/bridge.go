// Package bridge defines the boundary to an opaque inference engine and
// provides concrete engines: an in-process llama.cpp model (build tag
// `llama`) and a remote OpenAI-compatible server.
//
// A Bridge exposes three asynchronous operations and one outbound event
// channel. Generation output is pushed through the channel as events.Token
// payloads (string fragments), terminated by events.Complete (Stats) or
// events.Error (ErrorPayload). A bridge emits events only for the generation
// it is currently running.
package bridge

import (
	"context"
	"fmt"

	"runnerd/internal/events"
	"runnerd/pkg/types"
)

// Bridge is the engine capability surface consumed by the runner.
type Bridge interface {
	// LoadModel loads weights and tokenizer. Path validation happens here,
	// not in callers.
	LoadModel(ctx context.Context, cfg types.ModelConfig) error
	// IsLoaded reports whether the engine currently holds a loaded model.
	IsLoaded(ctx context.Context) (bool, error)
	// Generate runs one generation. It may return the full text, or an empty
	// string when streaming through Events is the primary delivery path.
	Generate(ctx context.Context, prompt string, cfg GenerationConfig) (string, error)
	// Events returns the channel the bridge emits generation events on.
	Events() *events.Emitter
}

// Closer is implemented by bridges that hold releasable engine resources.
type Closer interface {
	Close() error
}

// GenerationConfig is the effective configuration handed to the engine.
type GenerationConfig struct {
	MaxNewTokens int     `json:"max_new_tokens"`
	Temperature  float64 `json:"temperature"`
	Echo         bool    `json:"echo"`
}

// ResolveGenerationConfig fills omitted options with the defaults
// (100 tokens, temperature 0.8, no echo). Values are passed through verbatim.
func ResolveGenerationConfig(opts types.GenerationOptions) GenerationConfig {
	cfg := GenerationConfig{
		MaxNewTokens: types.DefaultMaxNewTokens,
		Temperature:  types.DefaultTemperature,
	}
	if opts.MaxNewTokens != nil {
		cfg.MaxNewTokens = *opts.MaxNewTokens
	}
	if opts.Temperature != nil {
		cfg.Temperature = *opts.Temperature
	}
	if opts.Echo != nil {
		cfg.Echo = *opts.Echo
	}
	return cfg
}

// Stats is the engine-reported summary carried by events.Complete. Keys are
// engine specific.
type Stats map[string]any

// StatsFrom converts an events.Complete payload into Stats.
func StatsFrom(payload any) Stats {
	switch v := payload.(type) {
	case nil:
		return nil
	case Stats:
		return v
	case map[string]any:
		return Stats(v)
	default:
		return Stats{"value": v}
	}
}

// ErrorPayload is the events.Error payload. Only Message is guaranteed.
type ErrorPayload struct {
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

const defaultErrorMessage = "generation error"

// ErrorMessage extracts the human-readable message from an events.Error
// payload, falling back to a generic message.
func ErrorMessage(payload any) string {
	var msg string
	switch v := payload.(type) {
	case ErrorPayload:
		msg = v.Message
	case *ErrorPayload:
		if v != nil {
			msg = v.Message
		}
	case map[string]any:
		if m, ok := v["message"]; ok && m != nil {
			msg = fmt.Sprint(m)
		}
	case error:
		msg = v.Error()
	case string:
		msg = v
	}
	if msg == "" {
		return defaultErrorMessage
	}
	return msg
}

// LlamaAvailable reports whether this binary was built with in-process
// llama.cpp support.
func LlamaAvailable() bool { return llamaBuilt }
