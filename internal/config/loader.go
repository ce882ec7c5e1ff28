package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	json "github.com/goccy/go-json"
	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"runnerd/pkg/types"
)

// Bridge kinds.
const (
	BridgeLlama  = "llama"
	BridgeRemote = "remote"
)

// Defaults applied by ApplyDefaults.
const (
	DefaultAddr         = ":8080"
	DefaultModelsDir    = "~/models"
	DefaultBridge       = BridgeRemote
	DefaultRemoteURL    = "http://127.0.0.1:8081/v1"
	DefaultLlamaCtx     = 2048
	DefaultLogLevel     = "info"
	DefaultMaxBodyBytes = 1 << 20
)

// Config holds runtime parameters for the daemon.
// Zero values mean "unspecified" and are replaced by ApplyDefaults.
type Config struct {
	Addr      string `json:"addr" yaml:"addr" toml:"addr"`
	ModelsDir string `json:"models_dir" yaml:"models_dir" toml:"models_dir"`

	// Optional model to preload on serve.
	ModelPath     string `json:"model_path" yaml:"model_path" toml:"model_path" validate:"required_with=TokenizerPath"`
	TokenizerPath string `json:"tokenizer_path" yaml:"tokenizer_path" toml:"tokenizer_path" validate:"required_with=ModelPath"`
	TokenizerType string `json:"tokenizer_type" yaml:"tokenizer_type" toml:"tokenizer_type" validate:"omitempty,oneof=huggingface sentencepiece"`

	Bridge       string `json:"bridge" yaml:"bridge" toml:"bridge" validate:"oneof=llama remote"`
	RemoteURL    string `json:"remote_url" yaml:"remote_url" toml:"remote_url" validate:"omitempty,url"`
	RemoteAPIKey string `json:"remote_api_key" yaml:"remote_api_key" toml:"remote_api_key"`
	RemoteModel  string `json:"remote_model" yaml:"remote_model" toml:"remote_model"`
	LlamaCtx     int    `json:"llama_ctx" yaml:"llama_ctx" toml:"llama_ctx" validate:"gte=0"`
	LlamaThreads int    `json:"llama_threads" yaml:"llama_threads" toml:"llama_threads" validate:"gte=0"`

	// Server-side generation defaults; nil keeps the runner defaults.
	MaxNewTokens *int     `json:"max_new_tokens" yaml:"max_new_tokens" toml:"max_new_tokens" validate:"omitempty,gt=0"`
	Temperature  *float64 `json:"temperature" yaml:"temperature" toml:"temperature" validate:"omitempty,gte=0"`
	Echo         *bool    `json:"echo" yaml:"echo" toml:"echo"`

	LogLevel     string   `json:"log_level" yaml:"log_level" toml:"log_level" validate:"oneof=trace debug info warn error off"`
	LogFile      string   `json:"log_file" yaml:"log_file" toml:"log_file"`
	CORSOrigins  []string `json:"cors_origins" yaml:"cors_origins" toml:"cors_origins"`
	MaxBodyBytes int64    `json:"max_body_bytes" yaml:"max_body_bytes" toml:"max_body_bytes" validate:"gt=0"`
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, &cfg)
	case ".json":
		err = json.Unmarshal(b, &cfg)
	case ".toml":
		err = toml.Unmarshal(b, &cfg)
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	if err != nil {
		return cfg, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return cfg, nil
}

// ApplyDefaults fills unspecified fields.
func (c *Config) ApplyDefaults() {
	if c.Addr == "" {
		c.Addr = DefaultAddr
	}
	if c.ModelsDir == "" {
		c.ModelsDir = DefaultModelsDir
	}
	if c.Bridge == "" {
		c.Bridge = DefaultBridge
	}
	if c.Bridge == BridgeRemote && c.RemoteURL == "" {
		c.RemoteURL = DefaultRemoteURL
	}
	if c.LlamaCtx == 0 {
		c.LlamaCtx = DefaultLlamaCtx
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.MaxBodyBytes == 0 {
		c.MaxBodyBytes = DefaultMaxBodyBytes
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints. It reports every violation at once.
func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s: failed %q", fe.Field(), fe.Tag()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

// PreloadModel returns the model to load at startup, if one is configured.
func (c Config) PreloadModel() (types.ModelConfig, bool) {
	if c.ModelPath == "" {
		return types.ModelConfig{}, false
	}
	return types.ModelConfig{
		ModelPath:     c.ModelPath,
		TokenizerPath: c.TokenizerPath,
		TokenizerType: types.TokenizerType(c.TokenizerType),
	}.WithDefaults(), true
}

// GenerationDefaults returns the configured server-side generation options.
func (c Config) GenerationDefaults() types.GenerationOptions {
	return types.GenerationOptions{MaxNewTokens: c.MaxNewTokens, Temperature: c.Temperature, Echo: c.Echo}
}
