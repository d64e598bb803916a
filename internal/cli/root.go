package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/spf13/cobra"

	"trawl"
	"trawl/internal/config"
	"trawl/internal/report"
)

var (
	configPath      string
	timeoutFlag     time.Duration
	concurrencyFlag int
	jsonLines       bool
	outPath         string
	skipStatusCheck bool
	verbose         bool
)

var rootCmd = &cobra.Command{
	Use:   "trawl [url...]",
	Short: "Fetch batches of URLs concurrently and report each outcome",
	Long: `Trawl fetches every URL in a batch concurrently and prints one line per
target: the decoded payload size on success, the error description on
failure. A failing target never aborts its siblings; the batch always
runs to completion.

Targets come from the command line, or from the config file when no
URLs are given. Flags override config file values.

Examples:
  trawl https://www.example.com/ https://www.example.org/
  trawl --concurrency 2 --timeout 10s https://www.example.com/
  trawl --json --out report.json`,
	Args:          cobra.ArbitraryArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runRoot,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default is $HOME/.trawl/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging on stderr")

	rootCmd.Flags().DurationVar(&timeoutFlag, "timeout", trawl.DefaultTimeout, "per-target timeout")
	rootCmd.Flags().IntVarP(&concurrencyFlag, "concurrency", "n", trawl.DefaultMaxConcurrency, "maximum targets in flight at once (0 = unlimited)")
	rootCmd.Flags().BoolVar(&jsonLines, "json", false, "print one JSON object per outcome instead of text lines")
	rootCmd.Flags().StringVar(&outPath, "out", "", "write a full JSON batch report to this file")
	rootCmd.Flags().BoolVar(&skipStatusCheck, "insecure-skip-status", false, "treat any HTTP status as success")
}

// Execute runs the root command and returns its error; exit codes are the
// caller's business. SIGINT and SIGTERM cancel the batch context, so an
// interrupted run still reports an outcome for every remaining target.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return rootCmd.ExecuteContext(ctx)
}

func runRoot(cmd *cobra.Command, args []string) error {
	logger := newLogger()

	cfg, err := loadRunConfig(logger)
	if err != nil {
		return err
	}

	targets := args
	if len(targets) == 0 {
		targets = cfg.Targets
	}

	timeout := time.Duration(cfg.Timeout)
	if cmd.Flags().Changed("timeout") {
		timeout = timeoutFlag
	}
	if timeout <= 0 {
		return fmt.Errorf("timeout must be greater than 0")
	}

	concurrency := trawl.DefaultMaxConcurrency
	if cfg.Concurrency != nil {
		concurrency = *cfg.Concurrency
	}
	if cmd.Flags().Changed("concurrency") {
		concurrency = concurrencyFlag
	}
	if concurrency < 0 {
		return fmt.Errorf("concurrency must be greater or equal to 0")
	}

	options := []trawl.Option{
		trawl.WithTimeout(timeout),
		trawl.WithMaxConcurrency(concurrency),
		trawl.WithLogger(logger),
	}
	if cfg.UserAgent != "" {
		options = append(options, trawl.WithUserAgent(cfg.UserAgent))
	}
	if cfg.MaxBodyBytes > 0 {
		options = append(options, trawl.WithMaxBodyBytes(cfg.MaxBodyBytes))
	}
	if cfg.SkipStatusCheck || skipStatusCheck {
		options = append(options, trawl.WithoutStatusCheck())
	}

	fetcher := trawl.New(options...)
	reporters := report.NewGroup(cmd.OutOrStdout(), jsonLines, outPath)

	batchID := ulid.Make().String()
	reporters.HandleBatchStart(report.BatchStartInfo{BatchID: batchID, Targets: targets})

	started := time.Now()
	results := make([]report.TargetResult, 0, len(targets))
	var succeeded, failed int

	for outcome := range fetcher.Fetch(cmd.Context(), targets) {
		reporters.HandleOutcome(outcome)
		results = append(results, report.NewTargetResult(outcome))
		if outcome.Failed() {
			failed++
		} else {
			succeeded++
		}
	}

	reporters.HandleBatchResult(report.BatchReport{
		BatchID:   batchID,
		Started:   started.UTC(),
		Duration:  time.Since(started),
		Targets:   len(targets),
		Succeeded: succeeded,
		Failed:    failed,
		Results:   results,
	})

	// Failed targets already surfaced as outcome lines; only a reporting
	// failure makes the command itself fail.
	return reporters.Flush()
}

// loadRunConfig loads the config file named by --config, falling back to the
// default path. A missing file at the default path is not an error: the
// built-in defaults apply.
func loadRunConfig(logger *slog.Logger) (*config.Config, error) {
	path := configPath
	if path == "" {
		path = config.GetDefaultConfigPath()
		if _, err := os.Stat(path); os.IsNotExist(err) {
			logger.Debug("No config file found, using built-in defaults", "path", path)
			return config.GetDefaultConfig(), nil
		}
	}

	return config.LoadConfig(path)
}

func newLogger() *slog.Logger {
	var logLevel slog.Level
	switch os.Getenv("LOG_LEVEL") {
	case "DEBUG":
		logLevel = slog.LevelDebug
	case "INFO":
		logLevel = slog.LevelInfo
	case "WARNING":
		logLevel = slog.LevelWarn
	case "ERROR":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelError
	}
	if verbose {
		logLevel = slog.LevelDebug
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
}
