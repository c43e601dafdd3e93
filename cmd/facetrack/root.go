package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dudu/facetrack/internal/config"
	"github.com/dudu/facetrack/internal/engine"
	"github.com/dudu/facetrack/internal/facestore"
	"github.com/dudu/facetrack/internal/inference"
	"github.com/dudu/facetrack/internal/tracker"
)

// Version is the application version.
const Version = "0.1.0"

var (
	logFormat string
	logLevel  string
	finder    string
	coreML    bool

	// logger and env are set up before any subcommand runs
	logger *slog.Logger
	env    *config.Env
)

var rootCmd = &cobra.Command{
	Use:     "facetrack",
	Short:   "Real-time face landmark tracking",
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logger = config.NewLogger(os.Stderr, logFormat, logLevel)
		slog.SetDefault(logger)

		var err error
		env, err = config.LoadEnv()
		if err != nil {
			return err
		}
		if finder == "" {
			finder = env.Finder
		}
		return nil
	},
}

// Execute runs the root command with a context cancelled on SIGINT/SIGTERM.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log format: text or json")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&finder, "finder", "", "Face finder: scrfd or pigo (default $FACETRACK_FINDER)")
	rootCmd.PersistentFlags().BoolVar(&coreML, "coreml", false, "Request the CoreML execution provider")
}

// engineConfig builds the engine configuration from the environment and flags.
func engineConfig() (engine.Config, error) {
	f, err := engine.ParseFinder(finder)
	if err != nil {
		return engine.Config{}, err
	}

	cfg := engine.DefaultConfig()
	cfg.Finder = f
	cfg.DetectorModel = env.DetectorModel
	cfg.LandmarkModel = env.LandmarkModel
	cfg.PigoCascade = env.PigoCascade
	cfg.CoreML = coreML
	cfg.Logger = logger
	return cfg, nil
}

// newTracker loads ONNX Runtime and builds a tracker over store. The returned
// cleanup shuts the runtime down.
func newTracker(store *config.Store, opts ...tracker.Option) (*tracker.Tracker, func(), error) {
	cfg, err := engineConfig()
	if err != nil {
		return nil, nil, err
	}
	if err := inference.Initialize(env.ORTLibrary); err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		if err := inference.Shutdown(); err != nil {
			logger.Warn("failed to shut down ONNX Runtime", "error", err)
		}
	}

	opts = append([]tracker.Option{
		tracker.WithLogger(logger),
		tracker.WithStore(facestore.New(env.MaxFaces)),
		tracker.WithQueueSize(env.QueueSize),
	}, opts...)
	return tracker.New(store, engine.Factory(cfg), opts...), cleanup, nil
}

func logStats(t *tracker.Tracker) {
	stats := t.Stats()
	logger.Info("tracking finished",
		"frames", stats.Frames,
		"faces", stats.Faces,
		"failures", stats.Failures,
		"rejected", stats.Rejected,
		"dropped", stats.Dropped,
		"last_total", stats.Last.Total,
	)
}
