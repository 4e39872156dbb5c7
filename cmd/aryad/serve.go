package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nadzzz/aryad/internal/config"
	"github.com/nadzzz/aryad/internal/health"
	"github.com/nadzzz/aryad/internal/langid"
	"github.com/nadzzz/aryad/internal/observe"
)

func newServeCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the daemon with every enabled transport",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	slog.Info("aryad starting", "version", version)

	if cfg.Metrics.Enabled {
		shutdown, perr := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "aryad", ServiceVersion: version})
		if perr != nil {
			return fmt.Errorf("metrics: %w", perr)
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			if serr := shutdown(sctx); serr != nil {
				slog.Warn("metrics shutdown failed", "error", serr)
			}
		}()
	}
	metrics := observe.Default()

	transports := newTransports(cfg.Transports)
	if len(transports) == 0 {
		return errors.New("no transports enabled, enable at least one in config")
	}

	p, err := newPipeline(ctx, cfg, transports, metrics)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := p.Close(); cerr != nil {
			slog.Error("closing pipeline", "error", cerr)
		}
	}()

	healthServer := health.New(cfg.Server.HealthPort, nil)
	if p.detector != nil {
		store := p.detector.Store()
		healthServer.AddCheck("langid", func(context.Context) error {
			if store.Len() == 0 {
				return langid.ErrNoModels
			}
			return nil
		})
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return healthServer.ListenAndServe(gctx) })
	for _, t := range transports {
		g.Go(func() error {
			slog.Info("starting transport", "name", t.Name())
			if err := t.Listen(gctx, p); err != nil {
				return fmt.Errorf("%s transport: %w", t.Name(), err)
			}
			return nil
		})
	}

	healthServer.SetReady(true)
	slog.Info("aryad ready", "transports", len(transports), "health_port", cfg.Server.HealthPort)

	<-gctx.Done()
	healthServer.SetReady(false)
	slog.Info("shutdown signal received, draining...")

	var result *multierror.Error
	for _, t := range transports {
		if err := t.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("closing %s transport: %w", t.Name(), err))
		}
	}
	if err := g.Wait(); err != nil {
		result = multierror.Append(result, err)
	}
	slog.Info("aryad stopped")
	return result.ErrorOrNil()
}
