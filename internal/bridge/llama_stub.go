//go:build !llama

package bridge

// This file provides a no-CGO stub for the llama bridge. It is compiled when
// the 'llama' build tag is NOT set, keeping default builds and CI CGO-free.

import (
	"context"

	"github.com/rs/zerolog"

	"runnerd/internal/events"
	"runnerd/pkg/types"
)

const llamaBuilt = false

// LlamaConfig holds engine-wide settings for the in-process model.
type LlamaConfig struct {
	ContextSize int
	Threads     int
	Logger      zerolog.Logger
}

// Llama refuses to load models without the 'llama' build tag.
type Llama struct {
	cfg     LlamaConfig
	emitter *events.Emitter
}

func NewLlama(cfg LlamaConfig) *Llama {
	return &Llama{cfg: cfg, emitter: events.NewEmitter()}
}

func (b *Llama) Events() *events.Emitter { return b.emitter }

func (b *Llama) LoadModel(ctx context.Context, cfg types.ModelConfig) error {
	return ErrDependencyUnavailable("llama support not built (missing 'llama' build tag)")
}

func (b *Llama) IsLoaded(ctx context.Context) (bool, error) { return false, nil }

func (b *Llama) Generate(ctx context.Context, prompt string, cfg GenerationConfig) (string, error) {
	return "", ErrDependencyUnavailable("llama support not built (missing 'llama' build tag)")
}

func (b *Llama) Close() error { return nil }
