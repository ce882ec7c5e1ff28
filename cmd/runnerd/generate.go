package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"runnerd/internal/bridge"
	"runnerd/internal/registry"
	"runnerd/internal/runner"
	"runnerd/pkg/types"
)

type generateFlags struct {
	prompt  string
	model   string
	timeout time.Duration
}

func newGenerateCmd(opts *options) *cobra.Command {
	gf := &generateFlags{}
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Load a model, stream one generation to stdout and print stats",
		Args:  cobra.NoArgs,
		Example: `  runnerd generate --model-path smollm2.pte --tokenizer-path tokenizer.json --prompt "Hey everyone,"
  runnerd generate --model smollm2.pte --prompt "Once upon a time" --max-new-tokens 64`,
		RunE: func(cmd *cobra.Command, args []string) error {
			genOpts, err := generationFlags(cmd, opts)
			if err != nil {
				return err
			}
			mc, err := gf.modelConfig(opts)
			if err != nil {
				return err
			}
			log, closer := opts.newLogger(cmd.ErrOrStderr())
			defer closer.Close()
			r := newRunner(opts.newBridge(log), &log, nil)

			ctx := cmd.Context()
			if gf.timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, gf.timeout)
				defer cancel()
			}
			return runGenerate(ctx, r, mc, gf.prompt, genOpts, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	f := cmd.Flags()
	f.StringVarP(&gf.prompt, "prompt", "p", "", "Prompt text")
	f.StringVarP(&gf.model, "model", "m", "", "Registry id of a model in the models directory")
	f.DurationVar(&gf.timeout, "timeout", 0, "Give up waiting after this long (0 = no limit)")
	f.Int("max-new-tokens", types.DefaultMaxNewTokens, "Maximum number of tokens to generate")
	f.Float64("temperature", types.DefaultTemperature, "Sampling temperature")
	f.Bool("echo", false, "Echo the prompt before the generated text")
	return cmd
}

// generationFlags returns the options the user set explicitly, falling back
// to the config file's generation defaults.
func generationFlags(cmd *cobra.Command, opts *options) (types.GenerationOptions, error) {
	g := opts.cfg.GenerationDefaults()
	f := cmd.Flags()
	if f.Changed("max-new-tokens") {
		n, err := f.GetInt("max-new-tokens")
		if err != nil {
			return g, err
		}
		g.MaxNewTokens = &n
	}
	if f.Changed("temperature") {
		t, err := f.GetFloat64("temperature")
		if err != nil {
			return g, err
		}
		g.Temperature = &t
	}
	if f.Changed("echo") {
		e, err := f.GetBool("echo")
		if err != nil {
			return g, err
		}
		g.Echo = &e
	}
	return g, nil
}

func (gf *generateFlags) modelConfig(opts *options) (types.ModelConfig, error) {
	if gf.model != "" {
		models, err := registry.LoadDir(opts.cfg.ModelsDir)
		if err != nil {
			return types.ModelConfig{}, err
		}
		m, ok := registry.Find(models, gf.model)
		if !ok {
			return types.ModelConfig{}, fmt.Errorf("model %q not found in %s", gf.model, opts.cfg.ModelsDir)
		}
		return registry.ModelConfig(m)
	}
	mc, ok := opts.cfg.PreloadModel()
	if !ok {
		return types.ModelConfig{}, errors.New("no model: pass --model or --model-path and --tokenizer-path")
	}
	return mc, nil
}

// runGenerate loads mc, streams one generation of prompt to out and prints
// the engine stats to errOut.
func runGenerate(ctx context.Context, r *runner.Runner, mc types.ModelConfig, prompt string, opts types.GenerationOptions, out, errOut io.Writer) error {
	h, err := r.LoadModel(ctx, mc)
	if err != nil {
		return err
	}
	loaded, err := r.IsLoaded(ctx, h)
	if err != nil {
		return err
	}
	if !loaded {
		return fmt.Errorf("engine reports %s not loaded", mc.ModelPath)
	}

	var (
		stats    bridge.Stats
		streamed int
	)
	start := time.Now()
	cb := runner.Callbacks{
		OnToken: func(tok string) {
			streamed++
			fmt.Fprint(out, tok)
		},
		OnComplete: func(s bridge.Stats) { stats = s },
	}
	direct, err := r.Generate(ctx, h, prompt, opts, cb)
	if err != nil {
		return err
	}
	if err := r.Wait(ctx, h); err != nil {
		return err
	}
	if direct != "" && streamed == 0 {
		fmt.Fprint(out, direct)
	}
	fmt.Fprintln(out)
	printStats(errOut, stats, time.Since(start))
	return nil
}

func printStats(w io.Writer, stats bridge.Stats, elapsed time.Duration) {
	keys := make([]string, 0, len(stats))
	for k := range stats {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "%s: %v\n", k, stats[k])
	}
	fmt.Fprintf(w, "elapsed: %s\n", elapsed.Round(time.Millisecond))
}
