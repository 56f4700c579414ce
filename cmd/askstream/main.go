// askstream answers natural language questions over schema.org document
// collections, streaming ranked results as they qualify.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	_ "github.com/askstream/askstream/builtin"
	"github.com/askstream/askstream/internal/config"
	"github.com/askstream/askstream/internal/conversation"
	"github.com/askstream/askstream/internal/handler"
	"github.com/askstream/askstream/internal/ingest"
	"github.com/askstream/askstream/internal/mcp"
	"github.com/askstream/askstream/internal/postprocess"
	"github.com/askstream/askstream/internal/ranking"
	"github.com/askstream/askstream/internal/server"
	"github.com/askstream/askstream/pkg/plugin/host"
	"github.com/askstream/askstream/pkg/provider"
	"github.com/askstream/askstream/pkg/types"
)

var (
	version   = "0.1.0"
	logLevel  string
	logFormat string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "askstream",
	Short: "Streaming search over schema.org document collections",
	Long: `askstream ranks documents against natural language questions using
LLM relevance scoring and streams high-confidence results before the
full candidate set has been scored.

It supports:
- Multiple scoring and embedding providers (Ollama, OpenAI)
- External scoring providers via plugins
- SQLite-backed vector retrieval
- HTTP (SSE, WebSocket) and MCP serving`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("askstream %s\n", version)
		fmt.Printf("Go version: %s\n", runtime.Version())
		fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the query server",
	Long:  `Start the HTTP server (SSE and WebSocket streaming), or an MCP server on stdio with --mcp.`,
	Run: func(cmd *cobra.Command, args []string) {
		useMCP, _ := cmd.Flags().GetBool("mcp")
		runServe(useMCP)
	},
}

var askCmd = &cobra.Command{
	Use:   "ask <query>",
	Short: "Ask a question against the local corpus",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		site, _ := cmd.Flags().GetString("site")
		limit, _ := cmd.Flags().GetInt("limit")
		minScore, _ := cmd.Flags().GetInt("min-score")
		jsonOutput, _ := cmd.Flags().GetBool("json")

		runAsk(args[0], site, limit, minScore, jsonOutput)
	},
}

var ingestCmd = &cobra.Command{
	Use:   "ingest <path>",
	Short: "Ingest JSONL documents into the corpus",
	Long: `Ingest schema.org JSONL files into the document store. The path may be a
single file or a directory of .jsonl files; each file becomes one site
unless --site overrides it.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		site, _ := cmd.Flags().GetString("site")
		watch, _ := cmd.Flags().GetBool("watch")
		debounce, _ := cmd.Flags().GetInt("debounce")

		runIngest(args[0], site, watch, debounce)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show corpus status",
	Run: func(cmd *cobra.Command, args []string) {
		verbose, _ := cmd.Flags().GetBool("verbose")
		runStatus(verbose)
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create default configuration",
	Run: func(cmd *cobra.Command, args []string) {
		runConfigInit()
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration",
	Run: func(cmd *cobra.Command, args []string) {
		runConfigValidate()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format (text, json)")

	serveCmd.Flags().Bool("mcp", false, "serve MCP over stdio instead of HTTP")

	askCmd.Flags().StringP("site", "s", "", "restrict to a single site")
	askCmd.Flags().IntP("limit", "l", 0, "maximum results")
	askCmd.Flags().Int("min-score", 0, "minimum relevance score (0-100)")
	askCmd.Flags().Bool("json", false, "print raw stream frames as JSON lines")

	ingestCmd.Flags().StringP("site", "s", "", "site name (default: derived from file name)")
	ingestCmd.Flags().Bool("watch", false, "keep watching the directory and re-ingest on change")
	ingestCmd.Flags().Int("debounce", 500, "watch debounce time in milliseconds")

	statusCmd.Flags().BoolP("verbose", "v", false, "show detailed statistics")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configValidateCmd)

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(configCmd)
}

func setupLogging() {
	cfgLevel, cfgFormat := "info", "text"
	if cwd, err := os.Getwd(); err == nil {
		if cfg, _, err := config.Load(cwd); err == nil {
			cfgLevel = cfg.Logging.Level
			cfgFormat = cfg.Logging.Format
		}
	}
	if logLevel == "" {
		logLevel = cfgLevel
	}
	if logFormat == "" {
		logFormat = cfgFormat
	}

	var level slog.Level
	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var h slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	if logFormat == "json" {
		h = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		h = slog.NewTextHandler(os.Stderr, opts)
	}

	slog.SetDefault(slog.New(h))
}

// pipeline holds every component the commands share.
type pipeline struct {
	cfg           *config.Config
	cache         *provider.ClientCache
	plugins       *host.Manager
	retriever     provider.Retriever
	conversations conversation.Storage
	handler       *handler.Handler
	metrics       *prometheus.Registry
}

// buildPipeline loads the config and assembles providers, ranker and handler.
func buildPipeline(cwd string) (*pipeline, error) {
	cfg, warnings, err := config.Load(cwd)
	if err != nil {
		return nil, err
	}
	for _, w := range warnings {
		slog.Warn(w)
	}
	if errs := config.Validate(cfg); len(errs) > 0 {
		return nil, fmt.Errorf("invalid config: %v", errs[0])
	}

	plugins := host.NewManager()
	for _, pc := range cfg.Plugins.Scoring {
		lp, err := plugins.LoadScoring(pc.Name, pc.Path)
		if err != nil {
			plugins.UnloadAll()
			return nil, fmt.Errorf("load plugin %s: %w", pc.Name, err)
		}
		scoring := lp.Scoring
		provider.RegisterScoring(pc.Name, func(provider.ScoringConfig) (provider.ScoringProvider, error) {
			return host.NewScoringAdapter(scoring), nil
		})
		slog.Info("loaded scoring plugin", "name", pc.Name, "path", pc.Path)
	}

	cache := provider.NewClientCache(provider.DefaultRegistry)

	scorer, err := cache.Scoring(cfg.ScoringProviderConfig())
	if err != nil {
		plugins.UnloadAll()
		return nil, fmt.Errorf("create scoring provider: %w", err)
	}
	embedder, err := cache.Embedding(cfg.EmbeddingProviderConfig())
	if err != nil {
		plugins.UnloadAll()
		return nil, fmt.Errorf("create embedding provider: %w", err)
	}
	retriever, err := provider.DefaultRegistry.CreateRetrieval(cfg.Retrieval.Provider, cfg.RetrievalProviderConfig(), embedder)
	if err != nil {
		cache.Close()
		plugins.UnloadAll()
		return nil, fmt.Errorf("open document store: %w", err)
	}

	var conversations conversation.Storage
	if cfg.Conversation.Enabled {
		conversations, err = conversation.OpenSQLite(cfg.Conversation.Path)
		if err != nil {
			slog.Warn("conversation storage unavailable", "error", err)
		}
	}

	var registry *prometheus.Registry
	var rankMetrics *ranking.Metrics
	if cfg.Server.Metrics {
		registry = prometheus.NewRegistry()
		rankMetrics = ranking.NewMetrics()
		if err := rankMetrics.Register(registry); err != nil {
			slog.Warn("metrics registration failed", "error", err)
		}
	}

	ranker := ranking.New(ranking.Config{
		Scorer:  scorer,
		Timeout: cfg.Ranking.Timeout,
		Strict:  cfg.Ranking.Strict,
		Metrics: rankMetrics,
	})
	post := postprocess.New(postprocess.Config{
		Scorer:    scorer,
		Summarize: cfg.PostProcess.Summarize,
		MapView:   cfg.PostProcess.MapView,
		Timeout:   cfg.PostProcess.Timeout,
	})
	h := handler.New(handler.Config{
		Scorer:         scorer,
		Retriever:      retriever,
		Conversations:  conversations,
		Ranker:         ranker,
		PostProcessor:  post,
		RetrievalLimit: cfg.Retrieval.Limit,
		MinScore:       cfg.Ranking.MinScore,
		MaxResults:     cfg.Ranking.MaxResults,
		EarlyThreshold: cfg.Ranking.EarlyThreshold,
	})

	return &pipeline{
		cfg:           cfg,
		cache:         cache,
		plugins:       plugins,
		retriever:     retriever,
		conversations: conversations,
		handler:       h,
		metrics:       registry,
	}, nil
}

// Close releases everything the pipeline holds, in dependency order.
func (p *pipeline) Close() {
	if err := p.retriever.Close(); err != nil {
		slog.Warn("failed to close document store", "error", err)
	}
	if p.conversations != nil {
		if err := p.conversations.Close(); err != nil {
			slog.Warn("failed to close conversation storage", "error", err)
		}
	}
	if err := p.cache.Close(); err != nil {
		slog.Warn("failed to close providers", "error", err)
	}
	p.plugins.UnloadAll()
}

func runServe(useMCP bool) {
	cwd, _ := os.Getwd()

	p, err := buildPipeline(cwd)
	if err != nil {
		slog.Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer p.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if useMCP {
		slog.Info("MCP server running on stdio (press Ctrl+C to stop)")
		srv, err := mcp.New(mcp.Config{
			Handler:   p.handler,
			Retriever: p.retriever,
		})
		if err != nil {
			slog.Error("failed to create MCP server", "error", err)
			os.Exit(1)
		}
		if err := srv.ServeStdio(); err != nil && ctx.Err() == nil {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
		return
	}

	srv := server.New(server.Config{
		Addr:      p.cfg.Server.Addr,
		Handler:   p.handler,
		Retriever: p.retriever,
		Registry:  p.metrics,
		Timeout:   p.cfg.Server.Timeout,
	})
	if err := srv.Start(ctx); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("shutdown complete")
}

// askSink prints stream frames as they arrive, so early sends are visible
// before slower candidates finish scoring.
type askSink struct {
	mu      sync.Mutex
	json    bool
	results int
}

func (s *askSink) Send(ctx context.Context, msg *types.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.json {
		data, err := json.Marshal(msg)
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	switch msg.Kind {
	case types.MessageResult:
		s.results++
		if m, ok := msg.Content.(*orderedmap.OrderedMap[string, any]); ok {
			name, _ := m.Get("name")
			url, _ := m.Get("url")
			fmt.Printf("%d. %v\n   %v\n", s.results, name, url)
			if desc, ok := m.Get("description"); ok && desc != "" {
				fmt.Printf("   %v\n", desc)
			}
		}
	case types.MessageSummary:
		if m, ok := msg.Content.(map[string]any); ok {
			fmt.Printf("\nSummary: %v\n", m["text"])
		}
	case types.MessageLocationMap:
		// Locations repeat the result addresses; skip in terminal output.
	case types.MessageIntermediate:
		if m, ok := msg.Content.(map[string]any); ok {
			fmt.Printf("%v\n", m["text"])
		}
	}
	return nil
}

func runAsk(query, site string, limit, minScore int, jsonOutput bool) {
	cwd, _ := os.Getwd()

	p, err := buildPipeline(cwd)
	if err != nil {
		slog.Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer p.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	sink := &askSink{json: jsonOutput}
	req, err := p.handler.Handle(ctx, &handler.AskRequest{
		Query:      query,
		Site:       site,
		MaxResults: limit,
		MinScore:   minScore,
	}, sink)
	if err != nil {
		slog.Error("ask failed", "error", err)
		os.Exit(1)
	}

	if !jsonOutput {
		fmt.Printf("\n%d results in %.1fs\n", len(req.Final()), time.Since(start).Seconds())
	}
}

func runIngest(path, site string, watch bool, debounceMs int) {
	cwd, _ := os.Getwd()

	p, err := buildPipeline(cwd)
	if err != nil {
		slog.Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer p.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	embedder, err := p.cache.Embedding(p.cfg.EmbeddingProviderConfig())
	if err != nil {
		slog.Error("failed to create embedding provider", "error", err)
		os.Exit(1)
	}

	ingestor := ingest.New(embedder, p.retriever)
	ingestor.OnProgress(func(prog ingest.Progress) {
		slog.Info("ingested", "file", filepath.Base(prog.File), "documents", prog.Processed, "skipped", prog.Skipped)
	})

	info, err := os.Stat(path)
	if err != nil {
		slog.Error("cannot read path", "path", path, "error", err)
		os.Exit(1)
	}

	start := time.Now()
	var count int
	if info.IsDir() {
		count, err = ingestor.IngestDir(ctx, path)
	} else {
		if site == "" {
			site = ingest.SiteFromPath(path)
		}
		count, err = ingestor.IngestFile(ctx, path, site)
	}
	if err != nil {
		slog.Error("ingest failed", "error", err)
		os.Exit(1)
	}
	fmt.Printf("Ingested %d documents in %.1fs\n", count, time.Since(start).Seconds())

	if !watch {
		return
	}
	if !info.IsDir() {
		slog.Error("--watch requires a directory")
		os.Exit(1)
	}

	watcher, err := ingest.NewWatcher(ingest.WatcherConfig{
		Ingestor:     ingestor,
		CorpusDir:    path,
		DebounceTime: time.Duration(debounceMs) * time.Millisecond,
	})
	if err != nil {
		slog.Error("failed to create watcher", "error", err)
		os.Exit(1)
	}

	slog.Info("watching for corpus changes (press Ctrl+C to stop)", "dir", path)
	if err := watcher.Watch(ctx); err != nil && ctx.Err() == nil {
		slog.Error("watch failed", "error", err)
		os.Exit(1)
	}
}

func runStatus(verbose bool) {
	cwd, _ := os.Getwd()

	p, err := buildPipeline(cwd)
	if err != nil {
		slog.Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer p.Close()

	ctx := context.Background()
	stats, err := p.retriever.Stats(ctx)
	if err != nil {
		slog.Error("failed to get stats", "error", err)
		os.Exit(1)
	}

	fmt.Printf("Store:     %s\n", p.retriever.Name())
	fmt.Printf("Documents: %d\n", stats.Documents)
	fmt.Printf("Sites:     %d\n", len(stats.Sites))
	fmt.Printf("Size:      %s\n", formatBytes(stats.SizeBytes))

	if verbose {
		fmt.Printf("\nScoring:   %s (%s / %s)\n", p.cfg.Scoring.Provider, p.cfg.Scoring.LowModel, p.cfg.Scoring.HighModel)
		fmt.Printf("Embedding: %s (%s)\n", p.cfg.Embedding.Provider, p.cfg.Embedding.Model)
		for _, s := range stats.Sites {
			fmt.Printf("  site: %s\n", s)
		}
		if loaded := p.plugins.ListLoaded(); len(loaded) > 0 {
			fmt.Printf("Plugins:   %v\n", loaded)
		}
	}
}

func runConfigInit() {
	cwd, _ := os.Getwd()
	cfg := config.DefaultConfig()

	if err := config.Save(cwd, cfg); err != nil {
		slog.Error("failed to save config", "error", err)
		os.Exit(1)
	}

	fmt.Printf("Created config at %s\n", config.ConfigPath(cwd))
}

func runConfigValidate() {
	cwd, _ := os.Getwd()

	cfg, warnings, err := config.Load(cwd)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	for _, w := range warnings {
		fmt.Printf("Warning: %s\n", w)
	}

	if errs := config.Validate(cfg); len(errs) > 0 {
		for _, e := range errs {
			fmt.Printf("Error: %v\n", e)
		}
		os.Exit(1)
	}

	fmt.Println("Configuration is valid")
	fmt.Printf("  scoring:   %s (%s / %s)\n", cfg.Scoring.Provider, cfg.Scoring.LowModel, cfg.Scoring.HighModel)
	fmt.Printf("  embedding: %s (%s)\n", cfg.Embedding.Provider, cfg.Embedding.Model)
	fmt.Printf("  retrieval: %s (%s)\n", cfg.Retrieval.Provider, cfg.Retrieval.Path)
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}
