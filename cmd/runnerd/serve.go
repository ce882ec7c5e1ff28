package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"runnerd/internal/bridge"
	"runnerd/internal/httpapi"
)

const shutdownTimeout = 5 * time.Second

func newServeCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
	cmd.Flags().String("addr", ":8080", "HTTP listen address")
	return cmd
}

func runServe(ctx context.Context, opts *options) error {
	cfg := opts.cfg
	log, closer := opts.newLogger(os.Stderr)
	defer closer.Close()

	httpapi.SetLogger(log)
	httpapi.SetDefaultLogLevel(cfg.LogLevel)
	httpapi.SetMaxBodyBytes(cfg.MaxBodyBytes)
	if len(cfg.CORSOrigins) > 0 {
		httpapi.SetCORSOptions(true, cfg.CORSOrigins, nil, nil)
	}

	b := opts.newBridge(log)
	r := newRunner(b, &log, prometheus.DefaultRegisterer)
	svc := httpapi.NewRunnerService(r, httpapi.ServiceConfig{
		ModelsDir: cfg.ModelsDir,
		Defaults:  cfg.GenerationDefaults(),
		Logger:    &log,
	})

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	httpapi.SetBaseContext(ctx)

	if mc, ok := cfg.PreloadModel(); ok {
		h, err := r.LoadModel(ctx, mc)
		if err != nil {
			// Keep serving: /load can retry and /readyz reports not ready.
			log.Error().Err(err).Str("model", mc.ModelPath).Msg("preload failed")
		} else {
			svc.SetCurrent(h)
		}
	}

	srv := &http.Server{Addr: cfg.Addr, Handler: httpapi.NewMux(svc), ReadHeaderTimeout: 10 * time.Second}
	errc := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Addr).Str("bridge", cfg.Bridge).Str("models_dir", cfg.ModelsDir).Msg("runnerd listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err, ok := <-errc:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Warn().Err(err).Msg("graceful shutdown error")
	}
	if c, ok := b.(bridge.Closer); ok {
		_ = c.Close()
	}
	return nil
}
