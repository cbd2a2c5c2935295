package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/aluiziolira/go-scrape-catalog/config"
	"github.com/aluiziolira/go-scrape-catalog/models"
	"github.com/aluiziolira/go-scrape-catalog/pipeline"
	"github.com/aluiziolira/go-scrape-catalog/scraper"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg := config.DefaultConfig()
	if err := config.LoadEnv(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "invalid environment: %v\n", err)
		os.Exit(1)
	}

	flag.StringVar(&cfg.BaseURL, "base-url", cfg.BaseURL, "Catalog URL to crawl")
	flag.IntVar(&cfg.Concurrency, "concurrency", cfg.Concurrency, "Maximum simultaneous page requests")
	flag.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "Per-request timeout")
	flag.IntVar(&cfg.MaxPages, "pages", cfg.MaxPages, "Maximum catalog pages to crawl (0 = all)")
	flag.IntVar(&cfg.ExtractWorkers, "workers", cfg.ExtractWorkers, "Number of extraction workers")
	flag.StringVar(&cfg.OutputDir, "output", cfg.OutputDir, "Output folder for the JSON result")
	flag.StringVar(&cfg.UserAgent, "user-agent", cfg.UserAgent, "User-Agent header sent with every request")
	flag.BoolVar(&cfg.RespectRobotsTxt, "respect-robots", cfg.RespectRobotsTxt, "Respect robots.txt directives")
	flag.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "Prometheus metrics listen address (e.g. :9090)")
	flag.BoolVar(&cfg.Verbose, "v", cfg.Verbose, "Enable verbose logging")
	flag.Parse()

	logger, level := newLogger(cfg.Verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	if err := run(cfg); err != nil {
		slog.Error("scrape failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	start := time.Now()
	s, err := scraper.NewScraper(cfg)
	if err != nil {
		return fmt.Errorf("initialising scraper: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			slog.Info("shutdown signal received, aborting crawl")
		case <-done:
		}
	}()

	if cfg.MetricsAddr != "" {
		metricsServer := &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: promhttp.HandlerFor(s.Metrics.Registry, promhttp.HandlerOpts{}),
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		slog.Info("metrics server enabled", slog.String("addr", cfg.MetricsAddr))
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				slog.Error("metrics server shutdown failed", slog.Any("error", err))
			}
		}()
	}

	slog.Info("starting scrape",
		slog.String("base_url", cfg.BaseURL),
		slog.Int("concurrency", cfg.Concurrency),
		slog.Duration("timeout", cfg.Timeout),
	)

	result, err := s.Run(ctx)
	if err != nil {
		return err
	}

	writer := pipeline.NewJSONWriter(cfg.OutputDir)
	path, err := writer.Save(result.Products)
	if err != nil {
		return fmt.Errorf("save products: %w", err)
	}
	if err := writer.Validate(path); err != nil {
		return fmt.Errorf("output validation: %w", err)
	}

	fmt.Print(formatSummary(result, path, time.Since(start)))
	return nil
}

// formatSummary renders the end-of-run report. elapsed covers the whole run,
// saving included.
func formatSummary(result *models.CrawlResult, outputPath string, elapsed time.Duration) string {
	separator := "--------------------------------------------------"
	var b strings.Builder
	b.WriteString("\n" + separator + "\n")
	b.WriteString("Scrape complete\n")
	fmt.Fprintf(&b, "  Pages:         %d\n", result.PageCount)
	fmt.Fprintf(&b, "  Products:      %d\n", len(result.Products))
	fmt.Fprintf(&b, "  Requests:      %d\n", result.RequestCount)
	if len(result.Anomalies) > 0 {
		kinds := make([]string, 0, len(result.Anomalies))
		for kind := range result.Anomalies {
			kinds = append(kinds, kind)
		}
		sort.Strings(kinds)
		b.WriteString("  Anomalies:\n")
		for _, kind := range kinds {
			fmt.Fprintf(&b, "    %-22s %d\n", kind, result.Anomalies[kind])
		}
	}
	fmt.Fprintf(&b, "  Saved to:      %s\n", outputPath)
	fmt.Fprintf(&b, "  Total time:    %.2fs\n", elapsed.Seconds())
	b.WriteString(separator + "\n")
	return b.String()
}

func newLogger(verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stdout) {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
