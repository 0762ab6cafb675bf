// Command flagctl is a thin driver around the evaluation core: it loads a
// compiled flag artifact, evaluates a single flag against a JSON context,
// or runs a long-lived process that polls for emergency overrides and
// exposes Prometheus metrics. Framing only; all evaluation semantics live
// in the library packages under internal/.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ctrlpath/evalcore/internal/flagconfig"
	"github.com/ctrlpath/evalcore/internal/logging"
	"github.com/ctrlpath/evalcore/internal/metrics"
	"github.com/ctrlpath/evalcore/internal/resolver"
	"github.com/ctrlpath/evalcore/internal/resultcache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "flagctl",
		Usage: "load and evaluate compiled feature-flag artifacts",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "path to a flagctl configuration file"},
			&cli.StringFlag{Name: "env-prefix", Value: "FLAGCTL", Usage: "environment variable prefix"},
		},
		Commands: []*cli.Command{
			resolveCommand(),
			serveCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCodeFor(err))
	}
}

// exitCodeFor maps a top-level failure to the 0/1/2 exit convention:
// 0 success, 1 transport failure, 2 validation failure. Errors that
// don't carry a *cli.ExitCoder fall back to 1.
func exitCodeFor(err error) int {
	if coder, ok := err.(cli.ExitCoder); ok {
		return coder.ExitCode()
	}
	return 1
}

func loadConfig(c *cli.Context) (flagconfig.Config, *slog.Logger, error) {
	loader := flagconfig.NewLoader(c.String("env-prefix"), configFiles(c)...)
	cfg, err := loader.Load(c.Context)
	if err != nil {
		return flagconfig.Config{}, nil, fmt.Errorf("flagctl: load configuration: %w", err)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return flagconfig.Config{}, nil, fmt.Errorf("flagctl: configure logger: %w", err)
	}

	return cfg, logger, nil
}

func configFiles(c *cli.Context) []string {
	if path := c.String("config"); path != "" {
		return []string{path}
	}
	return nil
}

func buildResolver(cfg flagconfig.Config, logger *slog.Logger, rec *metrics.Recorder) *resolver.Resolver {
	return resolver.New(resolver.Options{
		Cache:   resultcache.NewMemory(cfg.Cache.CacheTTL()),
		Metrics: rec,
		Logger:  logging.Sub(logger, "resolver"),
		Override: resolver.OverrideOptions{
			Source:           cfg.Override.Source,
			AllowedDirectory: cfg.Override.AllowedDirectory,
			PollInterval:     cfg.Override.PollInterval(),
			WatchFile:        cfg.Override.WatchFile,
		},
	})
}

// artifactPublicKey returns cfg's configured key as an any for
// resolver.LoadOptions, or nil when unset so an empty string never reaches
// key normalization as if it were real key material.
func artifactPublicKey(cfg flagconfig.ArtifactConfig) any {
	if cfg.PublicKey == "" {
		return nil
	}
	return cfg.PublicKey
}

func resolveCommand() *cli.Command {
	return &cli.Command{
		Name:      "resolve",
		Usage:     "evaluate one flag against a JSON evaluation context and print its ResolutionDetails",
		ArgsUsage: "FLAG_NAME",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "type", Value: "boolean", Usage: "boolean|string|number|object"},
			&cli.StringFlag{Name: "default", Value: "false", Usage: "default value, interpreted per --type"},
			&cli.StringFlag{Name: "context", Value: "{}", Usage: "JSON evaluation context"},
		},
		Action: resolveAction,
	}
}

func resolveAction(c *cli.Context) error {
	flagName := c.Args().First()
	if flagName == "" {
		return cli.Exit("flagctl resolve: missing FLAG_NAME argument", 2)
	}

	var evalCtx map[string]any
	if err := json.Unmarshal([]byte(c.String("context")), &evalCtx); err != nil {
		return cli.Exit(fmt.Sprintf("flagctl resolve: invalid --context JSON: %v", err), 2)
	}

	cfg, logger, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}

	registry := prometheus.NewRegistry()
	rec := metrics.NewRecorder(registry)
	res := buildResolver(cfg, logger, rec)
	defer res.Close()

	loadCtx, cancel := context.WithTimeout(c.Context, cfg.Artifact.ArtifactTimeout())
	defer cancel()
	if err := res.LoadArtifact(loadCtx, cfg.Artifact.Source, resolver.LoadOptions{
		PublicKey:        artifactPublicKey(cfg.Artifact),
		RequireSignature: cfg.Artifact.RequireSignature,
		AllowedDirectory: cfg.Artifact.AllowedDirectory,
		Timeout:          cfg.Artifact.ArtifactTimeout(),
	}); err != nil {
		return cli.Exit(fmt.Sprintf("flagctl resolve: load artifact: %v", err), 1)
	}

	details, err := evaluate(c, res, flagName, evalCtx)
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}

	encoded, err := json.Marshal(details)
	if err != nil {
		return cli.Exit(fmt.Sprintf("flagctl resolve: encode result: %v", err), 1)
	}
	fmt.Fprintln(c.App.Writer, string(encoded))
	return nil
}

func evaluate(c *cli.Context, res *resolver.Resolver, flagName string, evalCtx map[string]any) (any, error) {
	switch c.String("type") {
	case "boolean":
		def := c.String("default") == "true"
		details := res.ResolveBoolean(c.Context, flagName, def, evalCtx)
		return details, nil
	case "string":
		details := res.ResolveString(c.Context, flagName, c.String("default"), evalCtx)
		return details, nil
	case "number":
		var def float64
		if err := json.Unmarshal([]byte(c.String("default")), &def); err != nil {
			return nil, fmt.Errorf("flagctl resolve: --default is not a number: %w", err)
		}
		details := res.ResolveNumber(c.Context, flagName, def, evalCtx)
		return details, nil
	case "object":
		var def map[string]any
		if err := json.Unmarshal([]byte(c.String("default")), &def); err != nil {
			return nil, fmt.Errorf("flagctl resolve: --default is not a JSON object: %w", err)
		}
		details := res.ResolveObject(c.Context, flagName, def, evalCtx)
		return details, nil
	default:
		return nil, fmt.Errorf("flagctl resolve: unsupported --type %q", c.String("type"))
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "load an artifact, poll for overrides, and serve /metrics until terminated",
		Action: func(c *cli.Context) error {
			cfg, logger, err := loadConfig(c)
			if err != nil {
				return cli.Exit(err.Error(), 2)
			}

			ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			registry := prometheus.NewRegistry()
			rec := metrics.NewRecorder(registry)
			res := buildResolver(cfg, logger, rec)
			defer res.Close()

			loadCtx, cancel := context.WithTimeout(ctx, cfg.Artifact.ArtifactTimeout())
			if err := res.LoadArtifact(loadCtx, cfg.Artifact.Source, resolver.LoadOptions{
				PublicKey:        artifactPublicKey(cfg.Artifact),
				RequireSignature: cfg.Artifact.RequireSignature,
				AllowedDirectory: cfg.Artifact.AllowedDirectory,
				Timeout:          cfg.Artifact.ArtifactTimeout(),
			}); err != nil {
				cancel()
				return cli.Exit(fmt.Sprintf("flagctl serve: load artifact: %v", err), 1)
			}
			cancel()

			res.StartPolling(ctx)

			mux := http.NewServeMux()
			mux.Handle("/metrics", rec.Handler())
			srv := &http.Server{Addr: cfg.Metrics.Address, Handler: mux}

			errCh := make(chan error, 1)
			go func() {
				logger.Info("flagctl serving metrics", slog.String("address", cfg.Metrics.Address))
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					errCh <- err
				}
			}()

			select {
			case <-ctx.Done():
			case err := <-errCh:
				return cli.Exit(fmt.Sprintf("flagctl serve: metrics server failed: %v", err), 1)
			}

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer shutdownCancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error("metrics server shutdown failed", slog.Any("error", err))
			}
			logger.Info("flagctl shutdown complete")
			return nil
		},
	}
}
