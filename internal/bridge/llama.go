//go:build llama

package bridge

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	llama "github.com/go-skynet/go-llama.cpp"
	"github.com/rs/zerolog"

	"runnerd/internal/events"
	"runnerd/pkg/types"
)

// llamaBuilt indicates this binary was compiled with real llama support.
const llamaBuilt = true

// LlamaConfig holds engine-wide settings for the in-process model.
type LlamaConfig struct {
	ContextSize int
	Threads     int
	Logger      zerolog.Logger
}

// Llama runs a GGUF model in-process through go-llama.cpp. The tokenizer is
// embedded in the weights, so the tokenizer path is only logged.
type Llama struct {
	cfg     LlamaConfig
	emitter *events.Emitter

	mu    sync.Mutex
	model *llama.LLama
}

// NewLlama constructs an unloaded in-process bridge.
func NewLlama(cfg LlamaConfig) *Llama {
	return &Llama{cfg: cfg, emitter: events.NewEmitter()}
}

func (b *Llama) Events() *events.Emitter { return b.emitter }

func (b *Llama) LoadModel(ctx context.Context, cfg types.ModelConfig) error {
	if strings.TrimSpace(cfg.ModelPath) == "" {
		return errors.New("model path is empty")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	b.cfg.Logger.Debug().Str("tokenizer", cfg.TokenizerPath).Str("tokenizer_type", string(cfg.TokenizerType)).
		Msg("llama uses the tokenizer embedded in the weights")
	m, err := llama.New(cfg.ModelPath, llama.SetContext(zn(b.cfg.ContextSize, 2048)))
	if err != nil {
		return err
	}
	b.mu.Lock()
	prev := b.model
	b.model = m
	b.mu.Unlock()
	if prev != nil {
		prev.Free()
	}
	return nil
}

func (b *Llama) IsLoaded(ctx context.Context) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.model != nil, nil
}

// Generate predicts on the calling goroutine; tokens are emitted from the
// llama token callback as they are sampled.
func (b *Llama) Generate(ctx context.Context, prompt string, cfg GenerationConfig) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.model == nil {
		return "", errNotLoaded
	}
	start := time.Now()
	if cfg.Echo {
		b.emitter.Emit(events.Token, prompt)
	}
	generated := 0
	b.model.SetTokenCallback(func(tok string) bool {
		select {
		case <-ctx.Done():
			return false
		default:
		}
		generated++
		b.emitter.Emit(events.Token, tok)
		return true
	})
	text, err := b.model.Predict(prompt, predictOptions(cfg, b.cfg.Threads)...)
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	if err != nil {
		b.emitter.Emit(events.Error, ErrorPayload{Message: err.Error()})
		return "", err
	}
	elapsed := time.Since(start)
	stats := Stats{
		"generated_tokens": generated,
		"duration_ms":      elapsed.Milliseconds(),
		"finish_reason":    "stop",
	}
	if s := elapsed.Seconds(); s > 0 {
		stats["tokens_per_second"] = float64(generated) / s
	}
	b.emitter.Emit(events.Complete, stats)
	if cfg.Echo {
		text = prompt + text
	}
	return text, nil
}

func (b *Llama) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.model != nil {
		b.model.Free()
		b.model = nil
	}
	return nil
}

func zn(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

// predictOptions converts the generation config into go-llama.cpp options.
func predictOptions(cfg GenerationConfig, threads int) []llama.PredictOption {
	return []llama.PredictOption{
		llama.SetTokens(max(1, cfg.MaxNewTokens)),
		llama.SetThreads(max(1, threads)),
		llama.SetTemperature(float32(cfg.Temperature)),
		llama.SetTopP(llama.DefaultOptions.TopP),
		llama.SetTopK(llama.DefaultOptions.TopK),
	}
}
