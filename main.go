package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"civic-watch/pkg/config"
	"civic-watch/pkg/normalize"
	"civic-watch/pkg/runner"
	"civic-watch/pkg/scrape"
	"civic-watch/pkg/sources/egle"
	"civic-watch/pkg/sources/legistar"
	"civic-watch/pkg/sources/mpsc"
	"civic-watch/pkg/store"
)

func main() {
	var (
		source     = flag.String("source", "", "Run only the named source (mpsc, glwa, detroit, egle); empty runs all")
		configPath = flag.String("config", "", "Optional sources.yaml overriding the built-in source registry")
		timeout    = flag.Duration("timeout", 0, "Per-adapter timeout; overrides the configured adapter_timeout")
		dryRun     = flag.Bool("dry-run", false, "Fetch, parse, and normalize without writing to the store")
	)
	flag.Parse()

	// .env is optional; in production the scheduler injects the environment.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.Fatalf("load config: %v", err)
	}

	ctx := context.Background()

	var gateway store.Gateway
	if !*dryRun {
		pg, err := store.OpenSupabase(ctx, cfg.Store)
		if err != nil {
			logrus.Fatalf("connect to store: %v", err)
		}
		defer pg.Close()

		if err := pg.EnsureSchema(ctx); err != nil {
			logrus.Fatalf("ensure schema: %v", err)
		}
		gateway = pg
	}

	adapters, err := buildAdapters(cfg)
	if err != nil {
		logrus.Fatalf("configure sources: %v", err)
	}

	normalizer, err := normalize.New(cfg.Sources)
	if err != nil {
		logrus.Fatalf("configure normalizer: %v", err)
	}

	run := runner.New(adapters, normalizer, gateway, adapterTimeout(*timeout, cfg))
	summary, err := run.Run(ctx, *source)
	if err != nil {
		logrus.Fatalf("run: %v", err)
	}

	// Hard transport failures fail the job so the scheduler alerts;
	// zero-result warnings are soft and already logged.
	if summary.Failed() {
		os.Exit(1)
	}
}

// adapterTimeout applies the -timeout flag over the configured value.
func adapterTimeout(flagValue time.Duration, cfg *config.Config) time.Duration {
	if flagValue > 0 {
		return flagValue
	}
	return cfg.AdapterTimeout
}

// buildAdapters wires one adapter per enabled source.
func buildAdapters(cfg *config.Config) ([]scrape.Adapter, error) {
	var adapters []scrape.Adapter

	for _, key := range []string{"mpsc", "glwa", "detroit", "egle"} {
		sc, err := cfg.Source(key)
		if err != nil {
			return nil, err
		}
		if !sc.Enabled {
			continue
		}

		switch key {
		case "mpsc":
			adapters = append(adapters, mpsc.New(key, sc, nil))
		case "glwa":
			adapters = append(adapters, legistar.New(key, sc, nil))
		case "detroit":
			adapters = append(adapters, legistar.New(key, sc, legistar.DetroitTitleTags))
		case "egle":
			adapters = append(adapters, egle.New(key, sc))
		}
	}

	return adapters, nil
}
