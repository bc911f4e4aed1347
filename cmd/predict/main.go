package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"AgriCast/internal/di"
	"AgriCast/internal/domain/models"
	"AgriCast/internal/services/model"
	"AgriCast/pkg/config"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	days := flag.Int("days", 0, "forecast horizon in days (default from config)")
	export := flag.Bool("export", false, "write model artifacts to the export dir")
	concurrency := flag.Int("concurrency", 4, "targets trained in parallel")
	flag.Parse()

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	if len(cfg.Targets) == 0 {
		log.Fatalf("no targets configured in %s", *configPath)
	}
	if *days <= 0 {
		*days = cfg.Forecast.DefaultHorizon
	}

	fc, cleanup, err := di.InitializeForecaster(cfg)
	if err != nil {
		log.Fatalf("forecaster initialization failed: %v", err)
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	targets := make([]models.SeriesKey, 0, len(cfg.Targets))
	for _, t := range cfg.Targets {
		targets = append(targets, models.SeriesKey{Product: t.Product, City: t.City})
	}

	results := fc.BatchForecast(ctx, targets, *days, *concurrency, *export)

	failed := 0
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PRODUCT\tCITY\tDATE\tPRICE\tARTIFACT")
	for _, r := range results {
		if r.Err != nil {
			failed++
			fmt.Fprintf(w, "%s\t%s\t-\t-\terror: %v\n", r.Key.Product, r.Key.City, r.Err)
			continue
		}
		if r.ArtifactPath != "" {
			if err := checkArtifact(r.ArtifactPath); err != nil {
				failed++
				fmt.Fprintf(w, "%s\t%s\t-\t-\tbad artifact %s: %v\n", r.Key.Product, r.Key.City, r.ArtifactPath, err)
				continue
			}
		}
		for _, p := range r.Forecast.Points {
			fmt.Fprintf(w, "%s\t%s\t%s\t%.2f\t%s\n", r.Key.Product, r.Key.City, p.Date.Format(models.DateLayout), p.Price, r.ArtifactPath)
		}
	}
	_ = w.Flush()

	if failed > 0 {
		log.Printf("%d of %d targets failed", failed, len(results))
		cleanup()
		os.Exit(1)
	}
}

// checkArtifact reloads a written artifact so a file that cannot be served is reported now.
func checkArtifact(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var a model.Artifact
	if err := json.Unmarshal(b, &a); err != nil {
		return err
	}
	m, err := model.FromArtifact(a)
	if err != nil {
		return err
	}
	if m.NumTrees() == 0 {
		return fmt.Errorf("no trees")
	}
	return nil
}
