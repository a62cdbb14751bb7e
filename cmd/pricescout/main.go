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
	"strings"
	"syscall"
	"time"

	"github.com/aluiziolira/go-price-scout/aggregator"
	"github.com/aluiziolira/go-price-scout/ai"
	"github.com/aluiziolira/go-price-scout/api"
	"github.com/aluiziolira/go-price-scout/config"
	"github.com/aluiziolira/go-price-scout/metrics"
	"github.com/aluiziolira/go-price-scout/models"
	"github.com/aluiziolira/go-price-scout/pipeline"
	"github.com/aluiziolira/go-price-scout/ratelimit"
	"github.com/aluiziolira/go-price-scout/scraper"
	"github.com/aluiziolira/go-price-scout/serp"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	os.Exit(run())
}

func run() int {
	envErr := godotenv.Load()

	cfg := config.DefaultConfig()
	if err := applyEnv(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "invalid environment: %v\n", err)
		return 1
	}

	query := flag.String("q", "", "Product to search for (one-shot mode)")
	country := flag.String("country", "US", "Two-letter country code")
	maxResults := flag.Int("max", aggregator.DefaultResults, "Maximum number of results")
	mode := flag.String("mode", "", "Search mode override: search_engine or direct")
	minPrice := flag.Float64("min-price", -1, "Lower price bound (negative disables)")
	maxPrice := flag.Float64("max-price", -1, "Upper price bound (negative disables)")
	serve := flag.Bool("serve", false, "Run the HTTP API instead of a single search")

	flag.StringVar(&cfg.ListenAddr, "addr", cfg.ListenAddr, "HTTP API listen address")
	flag.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "Prometheus metrics listen address (e.g. :9090)")
	flag.StringVar(&cfg.SitesFile, "sites", cfg.SitesFile, "Site registry YAML (embedded registry when empty)")
	flag.StringVar(&cfg.OutputFile, "output", cfg.OutputFile, "Output file path (empty disables)")
	flag.StringVar(&cfg.OutputFormat, "format", cfg.OutputFormat, "Output format: csv, json, or dual")
	flag.StringVar(&cfg.BrowserBin, "browser", cfg.BrowserBin, "Chromium binary for rendered sites")
	flag.IntVar(&cfg.Parallelism, "parallel", cfg.Parallelism, "Number of concurrent HTTP requests")
	flag.IntVar(&cfg.APIRateLimit, "rate-limit", cfg.APIRateLimit, "Searches per client per hour (0 disables)")
	flag.BoolVar(&cfg.SearchEngineMode, "search-engine", cfg.SearchEngineMode, "Query the search engine before individual sites")
	flag.BoolVar(&cfg.Verbose, "v", cfg.Verbose, "Enable verbose logging")
	flag.Parse()

	cfg.OutputFormat = strings.ToLower(cfg.OutputFormat)

	logger, level := newLogger(cfg.Verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())
	if envErr != nil {
		slog.Debug("no .env file loaded", slog.Any("error", envErr))
	}

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		return 1
	}
	if !*serve && strings.TrimSpace(*query) == "" {
		fmt.Fprintln(os.Stderr, "either -q <product> or -serve is required")
		flag.Usage()
		return 2
	}

	registry, err := config.LoadRegistry(cfg.SitesFile)
	if err != nil {
		slog.Error("loading site registry", slog.Any("error", err))
		return 1
	}

	m := metrics.New()
	governor := ratelimit.NewGovernor(
		ratelimit.WithObserver(m),
		ratelimit.WithDefaultInterval(cfg.DefaultRateInterval),
	)

	fetcher, err := scraper.NewHTTPFetcher(cfg, m)
	if err != nil {
		slog.Error("initialising fetcher", slog.Any("error", err))
		return 1
	}
	renderer := scraper.NewBrowserRenderer(cfg.BrowserBin, cfg.UserAgent, cfg.Timeout, m)
	defer func() {
		if err := renderer.Close(); err != nil {
			slog.Warn("closing browser", slog.Any("error", err))
		}
	}()

	deps := aggregator.Deps{
		Sites:    scraper.NewSiteExtractor(fetcher, renderer, governor, m),
		Engine:   serp.New(fetcher.WithHeaders(serp.Headers), governor, cfg.SearchEngineURL, cfg.SearchEngineRate, m),
		Governor: governor,
		Metrics:  m,
	}
	if cfg.LLMAPIKey != "" {
		completer := ai.NewOpenAICompleter(cfg.LLMAPIKey, cfg.LLMBaseURL, cfg.LLMModel, &http.Client{Timeout: cfg.LLMTimeout})
		deps.Capability = ai.NewClient(completer, cfg.LLMTimeout)
	} else {
		slog.Warn("no LLM API key configured, ranking falls back to price order")
	}

	var (
		writer pipeline.OutputWriter
		sink   *pipeline.Sink
	)
	if cfg.OutputFile != "" {
		writer, err = createWriter(cfg.OutputFormat, cfg.OutputFile)
		if err != nil {
			slog.Error("creating writer", slog.Any("error", err))
			return 1
		}
		sink = pipeline.NewSink(writer, 0)
		sink.Start(2)
		deps.Recorder = sink
	}

	svc := aggregator.NewService(cfg, registry, deps)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metricsServer := startMetricsServer(cfg.MetricsAddr, m)

	exitCode := 0
	if *serve {
		if err := runServer(ctx, cfg, svc, m); err != nil {
			slog.Error("api server failed", slog.Any("error", err))
			exitCode = 1
		}
	} else {
		req := models.SearchRequest{
			ProductName: *query,
			Country:     *country,
			MaxResults:  *maxResults,
			Mode:        *mode,
			PriceRange:  priceRange(*minPrice, *maxPrice),
		}
		start := time.Now()
		result, err := svc.Search(ctx, req)
		if err != nil {
			slog.Error("search failed", slog.Any("error", err))
			exitCode = 1
		} else {
			printSummary(result, time.Since(start), cfg.OutputFile)
		}
	}

	if sink != nil {
		if err := sink.Close(); err != nil {
			slog.Error("sink shutdown failed", slog.Any("error", err))
			exitCode = 1
		}
		if err := writer.Close(); err != nil {
			slog.Error("close writer", slog.Any("error", err))
			exitCode = 1
		} else if err := writer.Validate(); err != nil {
			slog.Error("output validation failed", slog.Any("error", err))
			exitCode = 1
		}
		stats := sink.Stats()
		slog.Info("results recorded", slog.Int64("written", stats.Written), slog.Any("rejected", stats.Rejected))
	}

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown failed", slog.Any("error", err))
		}
		cancel()
	}

	return exitCode
}

// applyEnv overlays PRICESCOUT_* variables (and the conventional LLM key
// names) onto cfg.
func applyEnv(cfg *config.Config) error {
	strs := map[string]*string{
		"PRICESCOUT_USER_AGENT":   &cfg.UserAgent,
		"PRICESCOUT_BROWSER_BIN":  &cfg.BrowserBin,
		"PRICESCOUT_ENGINE_URL":   &cfg.SearchEngineURL,
		"PRICESCOUT_LLM_BASE_URL": &cfg.LLMBaseURL,
		"PRICESCOUT_LLM_MODEL":    &cfg.LLMModel,
		"PRICESCOUT_SITES_FILE":   &cfg.SitesFile,
		"PRICESCOUT_ADDR":         &cfg.ListenAddr,
		"PRICESCOUT_METRICS_ADDR": &cfg.MetricsAddr,
		"PRICESCOUT_OUTPUT":       &cfg.OutputFile,
		"PRICESCOUT_FORMAT":       &cfg.OutputFormat,
	}
	for key, dst := range strs {
		if value, ok := config.EnvString(key); ok {
			*dst = value
		}
	}
	for _, key := range []string{"GEMINI_API_KEY", "OPENAI_API_KEY", "PRICESCOUT_LLM_API_KEY"} {
		if value, ok := config.EnvString(key); ok {
			cfg.LLMAPIKey = value
		}
	}

	ints := map[string]*int{
		"PRICESCOUT_PARALLEL":          &cfg.Parallelism,
		"PRICESCOUT_MAX_REDIRECTS":     &cfg.MaxRedirects,
		"PRICESCOUT_LOW_RESULTS":       &cfg.LowResultThreshold,
		"PRICESCOUT_BATCH_CONCURRENCY": &cfg.BatchConcurrency,
		"PRICESCOUT_CACHE_SIZE":        &cfg.CacheSize,
		"PRICESCOUT_RATE_LIMIT":        &cfg.APIRateLimit,
	}
	for key, dst := range ints {
		value, ok, err := config.EnvInt(key)
		if err != nil {
			return err
		}
		if ok {
			*dst = value
		}
	}

	durations := map[string]*time.Duration{
		"PRICESCOUT_TIMEOUT":       &cfg.Timeout,
		"PRICESCOUT_RATE_INTERVAL": &cfg.DefaultRateInterval,
		"PRICESCOUT_ENGINE_RATE":   &cfg.SearchEngineRate,
		"PRICESCOUT_BATCH_PAUSE":   &cfg.BatchPause,
		"PRICESCOUT_LLM_TIMEOUT":   &cfg.LLMTimeout,
		"PRICESCOUT_CACHE_TTL":     &cfg.CacheTTL,
	}
	for key, dst := range durations {
		value, ok, err := config.EnvDuration(key)
		if err != nil {
			return err
		}
		if ok {
			*dst = value
		}
	}

	bools := map[string]*bool{
		"PRICESCOUT_SEARCH_ENGINE": &cfg.SearchEngineMode,
		"PRICESCOUT_VERBOSE":       &cfg.Verbose,
	}
	for key, dst := range bools {
		value, ok, err := config.EnvBool(key)
		if err != nil {
			return err
		}
		if ok {
			*dst = value
		}
	}
	return nil
}

func priceRange(lo, hi float64) *models.PriceRange {
	var r models.PriceRange
	if lo >= 0 {
		r.Min = &lo
	}
	if hi >= 0 {
		r.Max = &hi
	}
	if r.Min == nil && r.Max == nil {
		return nil
	}
	return &r
}

func runServer(ctx context.Context, cfg *config.Config, svc *aggregator.Service, m *metrics.Metrics) error {
	var origins []string
	if value, ok := config.EnvString("ALLOWED_ORIGINS"); ok {
		origins = strings.Split(value, ",")
	}
	handler := api.NewServer(svc, api.Options{
		RateLimit:      cfg.APIRateLimit,
		AllowedOrigins: origins,
		Metrics:        m,
	}).Handler()

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	slog.Info("api server listening", slog.String("addr", cfg.ListenAddr))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining in-flight requests")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func startMetricsServer(addr string, m *metrics.Metrics) *http.Server {
	if addr == "" {
		return nil
	}
	srv := &http.Server{
		Addr:    addr,
		Handler: promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}),
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", slog.Any("error", err))
		}
	}()
	slog.Info("metrics server enabled", slog.String("addr", addr))
	return srv
}

func createWriter(format, filename string) (pipeline.OutputWriter, error) {
	switch format {
	case "json":
		return pipeline.NewJSONWriter(filename)
	case "csv":
		return pipeline.NewCSVWriter(filename)
	case "dual":
		jsonFilename := strings.TrimSuffix(filename, ".csv") + ".json"
		return pipeline.NewDualWriter(filename, jsonFilename)
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

func printSummary(result *models.AggregationResult, duration time.Duration, outputFile string) {
	separator := "--------------------------------------------------"
	fmt.Println("\n" + separator)
	fmt.Printf("Results for %q in %s\n", result.Query, result.Country)

	for i, p := range result.Products {
		fmt.Printf("  %2d. %-50.50s %12s  %s\n", i+1, p.Name, p.Price, p.Source)
	}
	fmt.Println()
	fmt.Printf("  Total results: %d\n", result.Total)
	fmt.Printf("  Mode:          %s\n", result.Mode)
	fmt.Printf("  Sources:       %s\n", strings.Join(result.Sources, ", "))
	if result.Confidence != nil {
		fmt.Printf("  Confidence:    %d%%\n", *result.Confidence)
	}
	if ins := result.Insights; ins != nil {
		fmt.Printf("  Price range:   %.2f - %.2f (avg %.2f)\n", ins.PriceRange.Min, ins.PriceRange.Max, ins.AveragePrice)
		for _, r := range ins.Recommendations {
			fmt.Printf("  Tip:           %s\n", r)
		}
		for _, w := range ins.Warnings {
			fmt.Printf("  Warning:       %s\n", w)
		}
	}
	if len(result.Degraded) > 0 {
		fmt.Printf("  Degraded:      %s\n", strings.Join(result.Degraded, ", "))
	}
	if len(result.Errors) > 0 {
		fmt.Printf("  Source errors: %d\n", len(result.Errors))
		for _, e := range result.Errors {
			fmt.Printf("    - %s\n", e)
		}
	}
	fmt.Printf("  Duration:      %v\n", duration)
	if outputFile != "" {
		fmt.Printf("  Output file:   %s\n", outputFile)
	}
	fmt.Println(separator)
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
	if isTerminal(os.Stderr) {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
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
