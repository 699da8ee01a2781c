// codectx builds a searchable context index over a source tree.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	_ "github.com/spetr/codectx/builtin"
	"github.com/spetr/codectx/internal/config"
	"github.com/spetr/codectx/internal/session"
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
	Use:   "codectx",
	Short: "Codebase context index for semantic search and impact analysis",
	Long: `codectx indexes a source tree into a local context store, keeping
per-file embeddings for similarity search alongside a relational index
of variable references (declarations, imports, exports, usages).

Search results pair the most similar files with their reference maps,
so a query answers both "which files are relevant" and "what would a
change here touch".`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("codectx %s\n", version)
		fmt.Printf("Go version: %s\n", runtime.Version())
		fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	},
}

var indexCmd = &cobra.Command{
	Use:   "index [path]",
	Short: "Index a source tree",
	Long:  `Index a source tree for search. If no path is provided, indexes the current directory.`,
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		path := "."
		if len(args) > 0 {
			path = args[0]
		}
		runIndex(path)
	},
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search the indexed source tree",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		query := args[0]
		limit, _ := cmd.Flags().GetInt("limit")
		showRefs, _ := cmd.Flags().GetBool("refs")
		runSearch(query, limit, showRefs)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show index status",
	Run: func(cmd *cobra.Command, args []string) {
		runStatus()
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch [path]",
	Short: "Watch for file changes and re-index automatically",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		path := "."
		if len(args) > 0 {
			path = args[0]
		}
		runWatch(path)
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
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text, json)")

	searchCmd.Flags().IntP("limit", "l", 0, "maximum results (default from config)")
	searchCmd.Flags().Bool("refs", false, "show variable references for each result")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configValidateCmd)

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(configCmd)
}

func setupLogging() {
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

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	if logFormat == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	slog.SetDefault(slog.New(handler))
}

// openSession loads configuration for dir and opens a session over it.
func openSession(dir string) *session.Session {
	absPath, err := filepath.Abs(dir)
	if err != nil {
		slog.Error("failed to resolve path", "error", err)
		os.Exit(1)
	}

	cfg, warnings, err := config.Load(absPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	for _, w := range warnings {
		slog.Warn(w)
	}

	s, err := session.Open(session.Options{
		ProjectDir: absPath,
		Config:     cfg,
	})
	if err != nil {
		slog.Error("failed to open session", "error", err)
		os.Exit(1)
	}
	return s
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		slog.Info("received interrupt signal, stopping...", "signal", sig)
		cancel()
	}()

	return ctx, func() {
		signal.Stop(sigChan)
		cancel()
	}
}

func runIndex(path string) {
	s := openSession(path)
	defer s.Close()

	ctx, cancel := signalContext()
	defer cancel()

	report, err := s.IndexTree(ctx, "")
	if err != nil {
		if ctx.Err() != nil {
			slog.Info("indexing stopped by user")
			fmt.Println("\nIndexing interrupted. Progress saved - run again to resume.")
			return
		}
		slog.Error("indexing failed", "error", err)
		os.Exit(1)
	}

	fmt.Println("Indexing complete!")
	fmt.Printf("Processed: %d, Skipped: %d, Failed: %d (%s)\n",
		report.Processed, report.Skipped, report.Failed,
		report.Duration.Round(time.Millisecond))

	if report.Failed > 0 {
		fmt.Println("\nFailed files:")
		for _, fe := range report.Errors {
			fmt.Printf("  %s: %v\n", fe.Path, fe.Err)
		}
	}
}

func runSearch(query string, limit int, showRefs bool) {
	cwd, _ := os.Getwd()

	s := openSession(cwd)
	defer s.Close()

	ctx := context.Background()
	results, err := s.Search(ctx, query, limit)
	if err != nil {
		slog.Error("search failed", "error", err)
		os.Exit(1)
	}

	if len(results) == 0 {
		fmt.Println("No results found")
		return
	}

	for i, r := range results {
		fmt.Printf("\n=== Result %d (score: %.3f) ===\n", i+1, r.Score)
		fmt.Printf("File: %s\n", r.Path)

		if showRefs && len(r.References) > 0 {
			names := make([]string, 0, len(r.References))
			for name := range r.References {
				names = append(names, name)
			}
			sort.Strings(names)

			fmt.Println("References:")
			for _, name := range names {
				occurrences := r.References[name]
				for _, occ := range occurrences {
					if occ.Source != "" {
						fmt.Printf("  %s (%s from %s) line %d\n", name, occ.Type, occ.Source, occ.Line)
					} else {
						fmt.Printf("  %s (%s) line %d\n", name, occ.Type, occ.Line)
					}
				}
			}
		}
	}
}

func runStatus() {
	cwd, _ := os.Getwd()

	if _, err := os.Stat(config.IndexDBPath(cwd)); os.IsNotExist(err) {
		fmt.Println("No index found. Run 'codectx index' to create one.")
		return
	}

	s := openSession(cwd)
	defer s.Close()

	stats, err := s.Stats(context.Background())
	if err != nil {
		slog.Error("failed to get stats", "error", err)
		os.Exit(1)
	}

	fmt.Println("=== Index Status ===")
	fmt.Printf("Indexed files: %d\n", stats.TotalDocuments)
	fmt.Printf("References:    %d\n", stats.TotalReferences)
	fmt.Printf("Dimensions:    %d\n", stats.Dimensions)
	fmt.Printf("Database size: %s\n", formatBytes(stats.DBSizeBytes))
	if !stats.LastUpdated.IsZero() {
		fmt.Printf("Last indexed:  %s\n", stats.LastUpdated.Format("2006-01-02 15:04:05"))
	}

	cfg := s.Config()
	fmt.Println("\n=== Configuration ===")
	fmt.Printf("Embedding: %s/%s\n", cfg.Embedding.Provider, cfg.Embedding.Model)
	fmt.Printf("Store:     %s\n", cfg.Store.Provider)
}

func runWatch(path string) {
	s := openSession(path)
	defer s.Close()

	ctx, cancel := signalContext()
	defer cancel()

	if err := s.Watch(ctx); err != nil && ctx.Err() == nil {
		slog.Error("watch failed", "error", err)
		os.Exit(1)
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
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGT"[exp])
}
