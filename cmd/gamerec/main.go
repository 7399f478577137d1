package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/TobiSchelling/gamerec/internal/config"
	"github.com/TobiSchelling/gamerec/internal/database"
	"github.com/TobiSchelling/gamerec/internal/embed"
	"github.com/TobiSchelling/gamerec/internal/ledger"
	"github.com/TobiSchelling/gamerec/internal/logging"
	"github.com/TobiSchelling/gamerec/internal/pipeline"
	"github.com/TobiSchelling/gamerec/internal/prepare"
	"github.com/TobiSchelling/gamerec/internal/recommend"
	"github.com/TobiSchelling/gamerec/internal/retry"
	"github.com/TobiSchelling/gamerec/internal/server"
	"github.com/TobiSchelling/gamerec/internal/steam"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "gamerec",
	Short:   "Content-based Steam game recommendations",
	Long:    "gamerec scrapes the Steam catalog, embeds game descriptions and recommends games similar to a free-text description.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			return nil
		}

		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		level := cfg.Logging.Level
		if verbose {
			level = "debug"
		}
		logging.Init(logging.Config{Level: level, Format: cfg.Logging.Format})
		if path == "" {
			logging.Debug().Msg("no config file found, using built-in defaults")
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(prepareCmd)
	rootCmd.AddCommand(recommendCmd)
	rootCmd.AddCommand(serveCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("gamerec", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/gamerec/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Edit it to tune fetch pacing, the embedding model and the data directory.")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show store, ledger and prepared-file status",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := database.Open(cfg.DBPath())
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := db.GetStats()
		if err != nil {
			return fmt.Errorf("getting stats: %w", err)
		}
		processed, err := ledger.Load(cfg.LedgerPath())
		if err != nil {
			return err
		}

		fmt.Printf("Data directory: %s\n\n", cfg.GetDataDir())
		fmt.Println("Store:")
		fmt.Printf("  Games: %d\n", stats.Games)
		fmt.Printf("  Reviews: %d (for %d games)\n", stats.Reviews, stats.ReviewedGames)
		fmt.Printf("  Ledgered ids: %d\n", len(processed))
		if gap := len(processed) - stats.Games; gap > 0 {
			fmt.Printf("  Ledgered but not stored: up to %d\n", gap)
		}

		fmt.Println("\nPrepared files:")
		for _, p := range []string{cfg.FilteredGamesPath(), cfg.FeaturesPath(), cfg.ReducedPath(), cfg.PCAMeanPath(), cfg.PCAComponentsPath()} {
			state := "missing"
			if info, err := os.Stat(p); err == nil {
				state = info.ModTime().Format("2006-01-02 15:04")
			}
			fmt.Printf("  %-28s %s\n", filepath.Base(p), state)
		}

		fmt.Println("\nEnvironment:")
		keyState := "not set (unused)"
		if cfg.SteamAPIKey() != "" {
			keyState = "set (unused)"
		}
		fmt.Printf("  %s: %s\n", cfg.Steam.APIKeyEnv, keyState)
		return nil
	},
}

var (
	fetchMetricsAddr string
	fetchWorkers     int
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Scrape the Steam catalog into the store (resumable)",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if fetchMetricsAddr != "" {
			go serveMetrics(fetchMetricsAddr)
		}

		processed, err := ledger.Open(cfg.LedgerPath())
		if err != nil {
			return err
		}
		defer processed.Close()

		pcfg := pipelineConfig(cfg)
		if fetchWorkers > 0 {
			pcfg.Workers = fetchWorkers
		}

		p := pipeline.New(pcfg, newSteamClient(cfg), database.FileStore{Path: cfg.DBPath()}, processed)
		var bar *progressbar.ProgressBar
		p.OnProgress = func(done, total int) {
			if bar == nil {
				bar = progressbar.NewOptions(total,
					progressbar.OptionSetDescription("fetching"),
					progressbar.OptionSetWriter(os.Stderr),
					progressbar.OptionShowCount(),
					progressbar.OptionSetPredictTime(true),
					progressbar.OptionThrottle(500*time.Millisecond),
				)
			}
			_ = bar.Set(done)
		}

		res, err := p.Run(ctx)
		if bar != nil {
			_ = bar.Finish()
			fmt.Fprintln(os.Stderr)
		}
		if res != nil {
			fmt.Printf("Run %s: %d listed, %d skipped, %d stored, %d without details, %d failed\n",
				res.RunID, res.Listed, res.Skipped, res.Stored, res.NoResult, res.Failed)
			fmt.Printf("Reviews: %d, batches saved: %d, batches dropped: %d\n", res.Reviews, res.Batches, res.BatchErrors)
		}
		if errors.Is(err, context.Canceled) {
			fmt.Println("Interrupted; rerun to resume.")
			return nil
		}
		return err
	},
}

var prepareCmd = &cobra.Command{
	Use:   "prepare",
	Short: "Filter, embed and reduce the stored catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		db, err := database.Open(cfg.DBPath())
		if err != nil {
			return err
		}
		defer db.Close()

		embedder := newEmbedder(cfg)
		if !embedder.IsAvailable(ctx) {
			logging.Warn().Str("url", cfg.Embedding.OllamaURL).Str("model", cfg.Embedding.Model).
				Msg("embedding model not reachable, embedding will likely fail")
		}

		res, err := prepare.Run(ctx, db, embedder, prepare.Config{
			ExcludePatterns: cfg.Prepare.ExcludePatterns,
			Components:      cfg.Prepare.Components,
			EmbedBatchSize:  cfg.Embedding.BatchSize,
		}, prepare.Paths{
			FilteredGames: cfg.FilteredGamesPath(),
			Features:      cfg.FeaturesPath(),
			Reduced:       cfg.ReducedPath(),
			PCAMean:       cfg.PCAMeanPath(),
			PCAComponents: cfg.PCAComponentsPath(),
		})
		if err != nil {
			return err
		}

		fmt.Printf("Kept %d of %d games (%d of %d reviews)\n", res.Kept, res.Games, res.KeptReviews, res.Reviews)
		fmt.Printf("Features: %d dims reduced to %d components\n", res.Dims, res.Components)
		return nil
	},
}

var recommendTopK int

var recommendCmd = &cobra.Command{
	Use:   "recommend <description>",
	Short: "Print games matching a free-text description",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rec, err := loadRecommender(cfg)
		if err != nil {
			return err
		}

		k := cfg.Recommend.TopK
		if recommendTopK > 0 {
			k = recommendTopK
		}
		recs, err := rec.Recommend(cmd.Context(), strings.Join(args, " "), k)
		if errors.Is(err, recommend.ErrEmptyQuery) {
			fmt.Println("Please enter a description of the game you are looking for.")
			return nil
		}
		if err != nil {
			return err
		}
		if len(recs) == 0 {
			fmt.Println("No games found.")
			return nil
		}
		fmt.Print(recommend.RenderMarkdown(recs))
		return nil
	},
}

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the recommendation web UI",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		rec, err := loadRecommender(cfg)
		if err != nil {
			return err
		}
		logging.Info().Int("games", rec.Len()).Msg("loaded prepared catalog")

		db, err := database.Open(cfg.DBPath())
		if err != nil {
			return err
		}
		defer db.Close()

		srv, err := server.New(rec, server.Options{
			TopK: cfg.Recommend.TopK,
			DB:   db,
			News: newSteamClient(cfg),
		})
		if err != nil {
			return err
		}

		port := cfg.Server.Port
		if servePort != 0 {
			port = servePort
		}
		return server.Serve(ctx, srv, port)
	},
}

func init() {
	fetchCmd.Flags().StringVar(&fetchMetricsAddr, "metrics-addr", "", "Expose Prometheus metrics on this address while fetching (e.g. 127.0.0.1:9100)")
	fetchCmd.Flags().IntVar(&fetchWorkers, "workers", 0, "Override the number of concurrent fetch workers")
	recommendCmd.Flags().IntVarP(&recommendTopK, "top", "k", 0, "Number of recommendations (default from config)")
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to listen on (default from config)")
}

func pipelineConfig(c *config.Config) pipeline.Config {
	return pipeline.Config{
		Workers:       c.Fetch.Workers,
		BatchSize:     c.Fetch.BatchSize,
		RateLimit:     c.Fetch.RateLimit,
		PaceJitterMin: c.Fetch.JitterMin,
		PaceJitterMax: c.Fetch.JitterMax,
		ReviewCount:   c.Steam.ReviewCount,
	}
}

func newSteamClient(c *config.Config) *steam.Client {
	return steam.NewClient(steam.Options{
		AppListURL: c.Steam.AppListURL,
		DetailsURL: c.Steam.DetailsURL,
		ReviewsURL: c.Steam.ReviewsURL,
		NewsURL:    c.Steam.NewsURL,
		APIKey:     c.SteamAPIKey(),
		Policy: retry.Policy{
			MaxAttempts:    c.Fetch.MaxRetries,
			BaseDelay:      c.Fetch.BaseDelay,
			ThrottleFactor: c.Fetch.RateLimitFactor,
			JitterMin:      c.Fetch.JitterMin,
			JitterMax:      c.Fetch.JitterMax,
		},
	})
}

func newEmbedder(c *config.Config) *embed.OllamaEmbedder {
	return embed.NewOllamaEmbedder(c.Embedding.Model, c.Embedding.OllamaURL)
}

func loadRecommender(c *config.Config) (*recommend.Recommender, error) {
	rec, err := recommend.Load(recommend.Paths{
		FilteredGames: c.FilteredGamesPath(),
		Reduced:       c.ReducedPath(),
		PCAMean:       c.PCAMeanPath(),
		PCAComponents: c.PCAComponentsPath(),
	}, newEmbedder(c))
	if err != nil {
		return nil, fmt.Errorf("loading prepared data (run 'gamerec prepare' first): %w", err)
	}
	return rec, nil
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	logging.Info().Str("addr", addr).Msg("serving fetch metrics")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logging.Error().Err(err).Msg("metrics server stopped")
	}
}
