package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/andresmejia3/framecheck/internal/config"
	"github.com/andresmejia3/framecheck/internal/logger"
	"github.com/andresmejia3/framecheck/internal/store"
	"github.com/andresmejia3/framecheck/internal/utils"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Options holds shared configuration for the inspect and batch commands
type Options struct {
	InputPath         string
	InputName         string
	InputDir          string
	OutputPath        string
	Technician        string
	Serial            string
	Contract          string
	FrameCount        int
	MaxWidth          int
	Format            string
	Quality           int
	Strategy          string
	NumEngines        int
	NoVideo           bool
	SkipDurationCheck bool
}

var (
	// DB is the database connection shared by subcommands. Nil when no database is configured.
	DB *store.Store
	// Cfg holds environment defaults loaded before every command
	Cfg *config.Config
	// Log is the structured logger for pipeline internals
	Log = zap.NewNop()

	dbURL     string
	logLevel  string
	logFormat string

	// closers release what PersistentPreRunE opened. shutdown runs them whether or not the command failed.
	closers []func()
)

// errNoDatabase is returned by commands that need a database when none is configured.
var errNoDatabase = errors.New("no database configured (use --db or POSTGRES_HOST)")

// cmdError pairs a failure with the headline shown in the error box.
type cmdError struct {
	context string
	err     error
}

func (e *cmdError) Error() string {
	if e.err == nil {
		return e.context
	}
	return e.context + ": " + e.err.Error()
}

func (e *cmdError) Unwrap() error { return e.err }

// fail wraps err for the error box. err may be nil when the headline says it all.
func fail(context string, err error) error {
	return &cmdError{context: context, err: err}
}

// describe splits a command error into the box headline and its details.
func describe(err error) (string, error) {
	var ce *cmdError
	if errors.As(err, &ce) {
		return ce.context, ce.err
	}
	return "Command failed", err
}

// Version is the application version.
const Version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:     "framecheck",
	Short:   "Equipment inspection video frame sampler",
	Version: Version, // This enables the --version flag
	// Errors are rendered by Execute as the error box
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Flags parsed fine; failures from here on are not usage mistakes
		cmd.SilenceUsage = true

		var err error
		Cfg, err = config.Load()
		if err != nil {
			return fail("Invalid configuration", err)
		}

		level := Cfg.LogLevel
		if cmd.Flags().Changed("log-level") {
			level = logLevel
		}
		format := Cfg.LogFormat
		if cmd.Flags().Changed("log-format") {
			format = logFormat
		}
		Log, err = logger.New(level, format)
		if err != nil {
			return fail("Invalid logging options", err)
		}

		// If no flag was provided, try to build the connection string from the environment
		if dbURL == "" {
			dbURL = Cfg.DatabaseURLOrDefault()
		}
		if dbURL == "" {
			Log.Debug("running without database")
			return nil
		}

		// Use the command's context (which will be cancellable) for the connection
		DB, err = store.New(cmd.Context(), dbURL)
		if err != nil {
			return fail("Failed to connect to database", err)
		}
		closers = append(closers, DB.Close)
		return nil
	},
}

func Execute() {
	// Create a context that listens for Ctrl+C (SIGINT) or Kill (SIGTERM)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	// This tells Cobra not to print the version in the help text, which is cleaner.
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	err := run(ctx, os.Args[1:])
	stop()
	if err != nil {
		utils.Die(describe(err))
	}
}

// run executes the command line and always releases the database pool and flushes the logger.
func run(ctx context.Context, args []string) error {
	rootCmd.SetArgs(args)
	defer shutdown()
	return rootCmd.ExecuteContext(ctx)
}

func shutdown() {
	for i := len(closers) - 1; i >= 0; i-- {
		closers[i]()
	}
	closers = nil
	DB = nil
	_ = Log.Sync()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbURL, "db", "", "PostgreSQL connection string (default: built from POSTGRES_* variables; none disables caching)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "console", "Log format (console, json)")
}
