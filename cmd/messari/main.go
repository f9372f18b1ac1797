// Messari price history and metrics CLI
// This application fetches daily price histories and current metric snapshots
// for a list of crypto assets from the Messari data API and prints them as two
// tables: prices by date and metrics by name.
//
// Usage:
//
//	messari --assets BTC ETH --start 2021-01-01 --end 2021-02-01
//	messari -a btc,eth,yfi -f --format csv
//
// For detailed help, use: messari --help
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/johnayoung/go-messari-collector/internal/collector"
	"github.com/johnayoung/go-messari-collector/internal/config"
	apperrors "github.com/johnayoung/go-messari-collector/internal/errors"
	"github.com/johnayoung/go-messari-collector/internal/logger"
	"github.com/johnayoung/go-messari-collector/internal/messari"
	"github.com/johnayoung/go-messari-collector/internal/models"
	"github.com/johnayoung/go-messari-collector/internal/output"
)

// CLI version information
const (
	Version = "1.0.0"
	AppName = "messari"
)

// Exit codes following standard conventions
const (
	ExitSuccess     = 0
	ExitUsageError  = 1
	ExitConfigError = 2
	ExitRequestErr  = 3
	ExitDataError   = 4
	ExitInterrupt   = 130
)

// RunFlags represents the command line flags
type RunFlags struct {
	Assets     []string
	Start      string
	End        string
	Flatten    bool
	Format     string
	ConfigPath string
	Check      bool
	Help       bool
	Version    bool
}

// main is the entry point for the CLI application
func main() {
	// Setup signal handling for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	cancel()
	os.Exit(code)
}

// run executes one invocation and returns the process exit code
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	flags, err := parseRunFlags(args)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n\n", err)
		printUsage(stderr)
		return ExitUsageError
	}

	if flags.Help {
		printUsage(stdout)
		return ExitSuccess
	}
	if flags.Version {
		fmt.Fprintf(stdout, "%s version %s\n", AppName, Version)
		return ExitSuccess
	}

	var req collector.Request
	if !flags.Check {
		if req, err = buildRequest(flags); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return ExitUsageError
		}
	}

	// Load configuration
	bootstrap := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	cfg, err := config.NewConfigManager(flags.ConfigPath, bootstrap).LoadConfig(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "Error: failed to load configuration: %v\n", err)
		return ExitConfigError
	}
	if flags.Format != "" {
		cfg.Output.Format = flags.Format
	}
	format, err := output.ParseFormat(cfg.Output.Format)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return ExitUsageError
	}

	// Setup logging
	lm, err := setupLogging(cfg.Logging, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "Error: failed to setup logging: %v\n", err)
		return ExitConfigError
	}
	defer lm.Close()
	log := lm.GetLogger()

	ctx = logger.WithTraceID(ctx, logger.NewTraceID())
	log.Debug("configuration loaded", "config", cfg.String())

	client := messari.NewClient(messari.ConfigFromAPI(cfg.API, log))
	if flags.Check {
		if err := client.HealthCheck(ctx); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return exitCodeFor(ctx, err)
		}
		fmt.Fprintf(stdout, "%s is reachable\n", cfg.API.BaseURL)
		return ExitSuccess
	}

	result, err := collector.New(client, log).Run(ctx, req)
	if err != nil {
		code := exitCodeFor(ctx, err)
		logger.FromContext(ctx, log).Error("collection failed", "error", err, "exit_code", code)
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return code
	}

	w := output.NewWriter(stdout, format, cfg.Output.Precision)
	if err := w.WritePriceHistory(result.PriceHistory); err != nil {
		fmt.Fprintf(stderr, "Error: failed to write price history: %v\n", err)
		return ExitDataError
	}
	if err := w.WriteMetrics(result.Metrics); err != nil {
		fmt.Fprintf(stderr, "Error: failed to write metrics: %v\n", err)
		return ExitDataError
	}

	return ExitSuccess
}

// buildRequest validates the parsed flags into a collector request
func buildRequest(flags *RunFlags) (collector.Request, error) {
	if len(flags.Assets) == 0 {
		return collector.Request{}, apperrors.NewArgumentError("assets", "--assets is required")
	}

	assets, err := models.ParseAssetSymbols(flags.Assets)
	if err != nil {
		return collector.Request{}, err
	}

	dates, err := models.ParseDateRange(flags.Start, flags.End)
	if err != nil {
		return collector.Request{}, err
	}

	return collector.Request{
		Assets:  assets,
		Range:   dates,
		Flatten: flags.Flatten,
	}, nil
}

// setupLogging builds the logger manager, routing stderr output to the given writer
func setupLogging(cfg config.LoggingConfig, stderr io.Writer) (*logger.LoggerManager, error) {
	if cfg.Output == "stderr" || cfg.Output == "" {
		return logger.NewLoggerManagerWithWriter(cfg, stderr), nil
	}
	return logger.NewLoggerManager(cfg)
}

// exitCodeFor maps a run failure to its exit code
func exitCodeFor(ctx context.Context, err error) int {
	if errors.Is(err, context.Canceled) || ctx.Err() != nil {
		return ExitInterrupt
	}

	switch apperrors.GetErrorType(err) {
	case apperrors.ErrorTypeArgument:
		return ExitUsageError
	case apperrors.ErrorTypeConfiguration:
		return ExitConfigError
	case apperrors.ErrorTypeRequest:
		return ExitRequestErr
	default:
		return ExitDataError
	}
}

// Flag parsing functions

// parseRunFlags parses command line arguments. --assets takes one or more
// values, ending at the next flag.
func parseRunFlags(args []string) (*RunFlags, error) {
	flags := &RunFlags{}

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--assets", "-a":
			j := i + 1
			for j < len(args) && !isFlag(args[j]) {
				flags.Assets = append(flags.Assets, args[j])
				j++
			}
			if j == i+1 {
				return nil, fmt.Errorf("--assets requires at least one value")
			}
			i = j - 1
		case "--start", "-s":
			if i+1 >= len(args) {
				return nil, fmt.Errorf("--start requires a value")
			}
			flags.Start = args[i+1]
			i++
		case "--end", "-e":
			if i+1 >= len(args) {
				return nil, fmt.Errorf("--end requires a value")
			}
			flags.End = args[i+1]
			i++
		case "--flatten_results", "--flatten", "-f":
			flags.Flatten = true
		case "--format", "-o":
			if i+1 >= len(args) {
				return nil, fmt.Errorf("--format requires a value")
			}
			flags.Format = args[i+1]
			i++
		case "--config", "-c":
			if i+1 >= len(args) {
				return nil, fmt.Errorf("--config requires a value")
			}
			flags.ConfigPath = args[i+1]
			i++
		case "--check":
			flags.Check = true
		case "--help", "-h":
			flags.Help = true
		case "--version", "-v":
			flags.Version = true
		default:
			return nil, fmt.Errorf("unknown flag: %s", args[i])
		}
	}

	return flags, nil
}

func isFlag(arg string) bool {
	return strings.HasPrefix(arg, "-") && len(arg) > 1
}

// printUsage displays the main usage information
func printUsage(w io.Writer) {
	fmt.Fprintf(w, `%s - Messari price history and metrics CLI v%s

USAGE:
    %s --assets SYMBOL [SYMBOL...] [options]

OPTIONS:
    --assets, -a           One or more asset symbols or slugs (required, comma lists allowed)
    --start, -s            Start date YYYY-MM-DD (default: API default)
    --end, -e              End date YYYY-MM-DD (default: API default)
    --flatten_results, -f  Print metrics with a positional index instead of metric names
    --format, -o           Output format: table, csv, json (default: table)
    --config, -c           Configuration file (.json, .yaml or .yml)
    --check                Verify the API is reachable and exit
    --help, -h             Show help information
    --version, -v          Show version information

EXAMPLES:
    # Daily closes for January 2021 plus current metrics
    %s --assets BTC ETH --start 2021-01-01 --end 2021-02-01

    # CSV export with a flat metrics table
    %s -a btc,eth,yfi -f --format csv

CONFIGURATION:
    Configuration can be provided via:
    - Config file: --config path (JSON or YAML)
    - .env file in the working directory
    - Environment variables: MESSARI_* (e.g., MESSARI_API_KEY, MESSARI_BASE_URL)

EXIT CODES:
    0 success, 1 invalid arguments, 2 configuration error,
    3 request error, 4 parse error, 130 interrupted
`, AppName, Version, AppName, AppName, AppName)
}
