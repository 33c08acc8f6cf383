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
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jorgecela/ironman-races-analysis/browser"
	"github.com/jorgecela/ironman-races-analysis/catalog"
	"github.com/jorgecela/ironman-races-analysis/config"
	"github.com/jorgecela/ironman-races-analysis/models"
	"github.com/jorgecela/ironman-races-analysis/pipeline"
	"github.com/jorgecela/ironman-races-analysis/scraper"
)

func main() {
	defaultCfg := config.DefaultConfig()

	catalogDefault := defaultCfg.CatalogPath
	if value, ok := config.EnvString("SCRAPER_CATALOG"); ok {
		catalogDefault = value
	}
	outputDefault := defaultCfg.OutputDir
	if value, ok := config.EnvString("SCRAPER_OUTPUT_DIR"); ok {
		outputDefault = value
	}
	metricsDefault := defaultCfg.MetricsAddr
	if value, ok := config.EnvString("SCRAPER_METRICS_ADDR"); ok {
		metricsDefault = value
	}
	retriesDefault := defaultCfg.MaxRetries
	if value, ok, err := config.EnvInt("SCRAPER_MAX_RETRIES"); err != nil {
		fmt.Fprintf(os.Stderr, "invalid SCRAPER_MAX_RETRIES: %v\n", err)
		os.Exit(1)
	} else if ok {
		retriesDefault = value
	}
	headlessDefault := defaultCfg.Headless
	if value, ok, err := config.EnvBool("SCRAPER_HEADLESS"); err != nil {
		fmt.Fprintf(os.Stderr, "invalid SCRAPER_HEADLESS: %v\n", err)
		os.Exit(1)
	} else if ok {
		headlessDefault = value
	}

	catalogPath := flag.String("catalog", catalogDefault, "Race catalog CSV (file path or http(s) URL)")
	outputDir := flag.String("output-dir", outputDefault, "Directory for per-race artifacts")
	outputFormat := flag.String("format", defaultCfg.OutputFormat, "Output format: csv, json, or dual")
	maxRetries := flag.Int("max-retries", retriesDefault, "Retry budget per remote interaction")
	retryDelay := flag.Float64("retry-delay", defaultCfg.RetryDelay.Seconds(), "Delay between interaction attempts (seconds)")
	shortTimeout := flag.Float64("short-timeout", defaultCfg.ShortTimeout.Seconds(), "Timeout for clickability and single-element waits (seconds)")
	longTimeout := flag.Float64("long-timeout", defaultCfg.LongTimeout.Seconds(), "Timeout for full-table reloads (seconds)")
	pageSizeMode := flag.String("page-size", defaultCfg.PageSizeMode, "Rows-per-page mode: default or maximum")
	pagination := flag.Bool("pagination", defaultCfg.PaginationEnabled, "Walk all result pages (false: first page per date only)")
	recycleMode := flag.String("recycle", defaultCfg.RecycleMode, "Session recycle granularity: perDate, perRace, or never")
	headless := flag.Bool("headless", headlessDefault, "Run the browser headless")
	metricsAddr := flag.String("metrics-addr", metricsDefault, "Prometheus metrics listen address (e.g. :9090)")
	verbose := flag.Bool("v", false, "Enable verbose logging")

	flag.Parse()

	logger, level := newLogger(*verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	cfg := defaultCfg
	cfg.CatalogPath = *catalogPath
	cfg.OutputDir = *outputDir
	cfg.OutputFormat = *outputFormat
	cfg.MaxRetries = *maxRetries
	cfg.RetryDelay = time.Duration(*retryDelay * float64(time.Second))
	cfg.ShortTimeout = time.Duration(*shortTimeout * float64(time.Second))
	cfg.LongTimeout = time.Duration(*longTimeout * float64(time.Second))
	cfg.PageSizeMode = *pageSizeMode
	cfg.PaginationEnabled = *pagination
	cfg.RecycleMode = *recycleMode
	cfg.Headless = *headless
	cfg.MetricsAddr = *metricsAddr
	cfg.Verbose = *verbose

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received, stopping at the next race boundary")
	}()

	races, err := catalog.Load(ctx, cfg.CatalogPath, nil)
	if err != nil {
		slog.Error("loading race catalog", slog.Any("error", err))
		os.Exit(1)
	}
	slog.Info("race catalog loaded",
		slog.String("catalog", cfg.CatalogPath),
		slog.Int("races", len(races)),
	)

	factory, err := browser.NewPlaywrightFactory(cfg)
	if err != nil {
		slog.Error("initialising browser automation", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := factory.Close(); err != nil {
			slog.Error("stopping browser automation", slog.Any("error", err))
		}
	}()

	sink := pipeline.NewFileSink(cfg.OutputDir, cfg.OutputFormat)
	driver := scraper.NewDriver(cfg, factory, sink)

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		metricsServer = &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: promhttp.HandlerFor(driver.Metrics.Registry, promhttp.HandlerOpts{}),
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		slog.Info("metrics server enabled", slog.String("addr", cfg.MetricsAddr))
	}

	startTime := time.Now()
	summary, err := driver.Run(ctx, races)
	if err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("extraction run failed", slog.Any("error", err))
	}

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown failed", slog.Any("error", err))
		}
		cancel()
	}

	printSummary(summary, time.Since(startTime), cfg.OutputDir)
}

func printSummary(summary *models.RunSummary, duration time.Duration, outputDir string) {
	separator := "--------------------------------------------------"
	fmt.Println("\n" + separator)
	fmt.Println("Extraction complete")
	fmt.Printf("  Races:         %d\n", len(summary.Reports))
	fmt.Printf("  Records:       %d\n", summary.Records())
	fmt.Printf("  Duration:      %v\n", duration)
	fmt.Printf("  Output dir:    %s\n", outputDir)

	failed := summary.Failed()
	fmt.Printf("  Races flagged: %d\n", len(failed))
	for _, report := range summary.Reports {
		if !report.Aborted && len(report.Failures) == 0 {
			continue
		}
		status := "ok"
		if report.Aborted {
			status = "aborted"
		}
		fmt.Printf("    %-40s %-8s %s\n", report.RaceName, status, failureList(report.Failures))
	}
	fmt.Println(separator)
}

func failureList(failures map[string]int) string {
	classes := make([]string, 0, len(failures))
	for class := range failures {
		classes = append(classes, class)
	}
	sort.Strings(classes)

	out := ""
	for i, class := range classes {
		if i > 0 {
			out += " "
		}
		out += fmt.Sprintf("%s=%d", class, failures[class])
	}
	return out
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
