package main

import (
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"runnerd/internal/bridge"
	"runnerd/internal/config"
	"runnerd/internal/logging"
	"runnerd/internal/runner"
)

// options carries the persistent flags shared by every subcommand.
type options struct {
	configPath string
	cfg        config.Config
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "runnerd",
		Short:         "Drive an inference engine: load a model and stream generations",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.resolve(cmd)
		},
	}

	f := root.PersistentFlags()
	f.StringVarP(&opts.configPath, "config", "c", "", "Config file (.yaml, .json or .toml)")
	f.String("models-dir", config.DefaultModelsDir, "Directory scanned for *.pte / *.gguf models")
	f.String("bridge", config.DefaultBridge, "Engine bridge: remote|llama")
	f.String("remote-url", config.DefaultRemoteURL, "Base URL of the OpenAI-compatible engine server")
	f.String("remote-model", "", "Model id to select on the engine server")
	f.String("remote-api-key", "", "API key for the engine server")
	f.Int("llama-ctx", config.DefaultLlamaCtx, "Context size for the in-process engine")
	f.Int("llama-threads", 0, "Threads for the in-process engine (0 = engine default)")
	f.String("model-path", "", "Weights file to load")
	f.String("tokenizer-path", "", "Tokenizer file to load")
	f.String("tokenizer-type", "", "Tokenizer type: huggingface|sentencepiece")
	f.String("log-level", config.DefaultLogLevel, "Log level: trace|debug|info|warn|error|off")
	f.String("log-file", "", "Also write JSON logs to this file, rotated by size")

	root.AddCommand(newServeCmd(opts), newGenerateCmd(opts), newModelsCmd(opts))
	return root
}

// resolve loads the config file, applies changed flags on top, fills
// defaults and validates.
func (o *options) resolve(cmd *cobra.Command) error {
	var cfg config.Config
	if o.configPath != "" {
		c, err := config.Load(o.configPath)
		if err != nil {
			return err
		}
		cfg = c
	}
	flags := cmd.Flags()
	str := func(name string, dst *string) {
		if flags.Changed(name) {
			*dst, _ = flags.GetString(name)
		}
	}
	num := func(name string, dst *int) {
		if flags.Changed(name) {
			*dst, _ = flags.GetInt(name)
		}
	}
	str("addr", &cfg.Addr)
	str("models-dir", &cfg.ModelsDir)
	str("bridge", &cfg.Bridge)
	str("remote-url", &cfg.RemoteURL)
	str("remote-model", &cfg.RemoteModel)
	str("remote-api-key", &cfg.RemoteAPIKey)
	num("llama-ctx", &cfg.LlamaCtx)
	num("llama-threads", &cfg.LlamaThreads)
	str("model-path", &cfg.ModelPath)
	str("tokenizer-path", &cfg.TokenizerPath)
	str("tokenizer-type", &cfg.TokenizerType)
	str("log-level", &cfg.LogLevel)
	str("log-file", &cfg.LogFile)

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return err
	}
	o.cfg = cfg
	return nil
}

// newLogger builds the process logger; callers close the returned closer.
func (o *options) newLogger(out io.Writer) (zerolog.Logger, io.Closer) {
	return logging.New(logging.Options{Level: o.cfg.LogLevel, File: o.cfg.LogFile, Out: out})
}

// newBridge builds the configured engine bridge.
func (o *options) newBridge(log zerolog.Logger) bridge.Bridge {
	if o.cfg.Bridge == config.BridgeLlama {
		return bridge.NewLlama(bridge.LlamaConfig{
			ContextSize: o.cfg.LlamaCtx,
			Threads:     o.cfg.LlamaThreads,
			Logger:      log,
		})
	}
	return bridge.NewRemote(bridge.RemoteConfig{
		BaseURL: o.cfg.RemoteURL,
		APIKey:  o.cfg.RemoteAPIKey,
		Model:   o.cfg.RemoteModel,
		Logger:  log,
	})
}

// newRunner wires a runner over b. reg may be nil.
func newRunner(b bridge.Bridge, log *zerolog.Logger, reg prometheus.Registerer) *runner.Runner {
	return runner.NewWithConfig(runner.Config{Bridge: b, Logger: log, Registerer: reg})
}
