package bridge

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
	"github.com/rs/zerolog"

	"runnerd/internal/events"
	"runnerd/pkg/types"
)

// RemoteConfig configures a bridge to an OpenAI-compatible inference server
// (llama.cpp server, ExecuTorch serving, vLLM, ...).
type RemoteConfig struct {
	// BaseURL of the API root, e.g. http://127.0.0.1:8081/v1.
	BaseURL string
	APIKey  string
	// Model id to select. If empty, the weights file name is matched against
	// the served models, falling back to the first served model.
	Model string
	// RequestTimeout bounds a single Generate call (0 = no extra bound).
	RequestTimeout time.Duration
	HTTPClient     *http.Client
	Logger         zerolog.Logger
}

// Remote streams generations from a server over chat completions and
// re-emits the stream as engine events. Generate returns an empty string:
// the event channel is the primary delivery path.
type Remote struct {
	cfg     RemoteConfig
	client  openai.Client
	emitter *events.Emitter

	mu    sync.RWMutex
	model string
}

// NewRemote constructs an unloaded remote bridge.
func NewRemote(cfg RemoteConfig) *Remote {
	base := strings.TrimRight(cfg.BaseURL, "/") + "/"
	opts := []option.RequestOption{
		option.WithBaseURL(base),
		// Retry policy belongs to callers.
		option.WithMaxRetries(0),
	}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}
	return &Remote{
		cfg:     cfg,
		client:  openai.NewClient(opts...),
		emitter: events.NewEmitter(),
	}
}

func (b *Remote) Events() *events.Emitter { return b.emitter }

// LoadModel selects a served model. The server owns the weights; the
// tokenizer settings are informational.
func (b *Remote) LoadModel(ctx context.Context, cfg types.ModelConfig) error {
	ids, err := b.servedModels(ctx)
	if err != nil {
		return err
	}
	want := b.cfg.Model
	if want == "" {
		if base := filepath.Base(cfg.ModelPath); contains(ids, base) {
			want = base
		} else if len(ids) > 0 {
			want = ids[0]
		}
	}
	if want == "" {
		return errors.New("remote engine serves no models")
	}
	if !contains(ids, want) {
		return fmt.Errorf("model %q not served by %s", want, b.cfg.BaseURL)
	}
	b.mu.Lock()
	b.model = want
	b.mu.Unlock()
	b.cfg.Logger.Debug().Str("model", want).Str("tokenizer_type", string(cfg.TokenizerType)).Msg("remote model selected")
	return nil
}

// IsLoaded re-queries the server; a model that disappeared reports false.
func (b *Remote) IsLoaded(ctx context.Context) (bool, error) {
	model := b.selected()
	if model == "" {
		return false, nil
	}
	ids, err := b.servedModels(ctx)
	if err != nil {
		return false, err
	}
	return contains(ids, model), nil
}

func (b *Remote) Generate(ctx context.Context, prompt string, cfg GenerationConfig) (string, error) {
	model := b.selected()
	if model == "" {
		return "", errNotLoaded
	}
	if b.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.cfg.RequestTimeout)
		defer cancel()
	}
	params := openai.ChatCompletionNewParams{
		Model:       shared.ChatModel(model),
		Messages:    []openai.ChatCompletionMessageParamUnion{openai.UserMessage(prompt)},
		MaxTokens:   openai.Int(int64(cfg.MaxNewTokens)),
		Temperature: openai.Float(cfg.Temperature),
	}
	start := time.Now()
	if cfg.Echo {
		b.emitter.Emit(events.Token, prompt)
	}
	stream := b.client.Chat.Completions.NewStreaming(ctx, params)
	defer stream.Close()

	generated := 0
	stats := Stats{"model": model}
	for stream.Next() {
		chunk := stream.Current()
		for _, ch := range chunk.Choices {
			if ch.Delta.Content != "" {
				generated++
				b.emitter.Emit(events.Token, ch.Delta.Content)
			}
			if ch.FinishReason != "" {
				stats["finish_reason"] = ch.FinishReason
			}
		}
		if chunk.Usage.TotalTokens > 0 {
			stats["prompt_tokens"] = chunk.Usage.PromptTokens
			stats["completion_tokens"] = chunk.Usage.CompletionTokens
			stats["total_tokens"] = chunk.Usage.TotalTokens
		}
	}
	if err := stream.Err(); err != nil {
		err = fmt.Errorf("remote stream: %w", err)
		b.emitter.Emit(events.Error, ErrorPayload{Message: err.Error()})
		return "", err
	}
	stats["generated_tokens"] = generated
	stats["duration_ms"] = time.Since(start).Milliseconds()
	b.emitter.Emit(events.Complete, stats)
	return "", nil
}

func (b *Remote) selected() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.model
}

func (b *Remote) servedModels(ctx context.Context) ([]string, error) {
	page, err := b.client.Models.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	ids := make([]string, 0, len(page.Data))
	for _, m := range page.Data {
		ids = append(ids, m.ID)
	}
	return ids, nil
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
