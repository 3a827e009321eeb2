package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kartoza/home-energy-assistant/internal/api"
	"github.com/kartoza/home-energy-assistant/internal/app"
	"github.com/kartoza/home-energy-assistant/internal/applog"
	"github.com/kartoza/home-energy-assistant/internal/chat"
	"github.com/kartoza/home-energy-assistant/internal/config"
	"github.com/kartoza/home-energy-assistant/internal/prompt"
	"github.com/kartoza/home-energy-assistant/internal/server"
)

var version = "dev"

var (
	cfgFile  string
	port     int
	dataPath string
	debug    bool
)

var rootCmd = &cobra.Command{
	Use:           "energy-assistant",
	Short:         "Household energy Q&A service",
	Long:          `Answers questions about household energy use from a historical dataset, an optional bill image and an LLM.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		return run(cfg)
	},
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	f.IntVar(&port, "port", 0, "HTTP server port (overrides config)")
	f.StringVar(&dataPath, "data", "", "dataset path, CSV or SQLite (overrides config)")
	f.BoolVar(&debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Warning: could not read .env: %v\n", err)
	}
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// loadConfig reads the config file and environment, then applies flags
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}

	f := cmd.Flags()
	if f.Changed("port") {
		cfg.Server.Port = port
	}
	if f.Changed("data") {
		cfg.Data.Path = dataPath
	}
	if f.Changed("debug") {
		cfg.Debug = debug
	}
	cfg.Version = version
	return cfg, cfg.Validate()
}

func run(cfg *config.Config) error {
	logger, err := applog.New(cfg.Debug)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	logger.Info("Home energy assistant starting",
		zap.String("version", version),
		zap.Int("port", cfg.Server.Port),
		zap.String("data", cfg.Data.Path))

	// Startup state is built before the listener opens
	state, err := app.Build(cfg, afero.NewOsFs(), logger)
	if err != nil {
		logger.Fatal("Failed to load dataset", zap.Error(err))
	}

	extractor, err := app.NewExtractor(cfg.OCR)
	if err != nil {
		logger.Fatal("Failed to initialise OCR", zap.Error(err))
	}
	if t, ok := extractor.(interface{ Available() bool }); ok && !t.Available() {
		logger.Warn("OCR binary not found, image uploads will fail", zap.String("binary", cfg.OCR.Binary))
	}
	logger.Info("OCR engine ready", zap.String("engine", extractor.Name()), zap.Int("cache_size", cfg.OCR.CacheSize))

	invoker, err := app.NewInvoker(cfg.LLM, logger)
	if err != nil {
		logger.Fatal("Failed to initialise LLM provider", zap.Error(err))
	}
	logger.Info("LLM provider ready",
		zap.String("provider", invoker.Name()),
		zap.String("model", cfg.LLM.Model))

	svc := chat.NewService(state.Summary, extractor, invoker,
		prompt.Composer{MaxContextChars: cfg.Prompt.MaxContextChars}, logger)
	svc.MaxPixels = cfg.OCR.MaxPixels
	handler := api.NewHandler(svc, state,
		api.Backends{OCR: extractor.Name(), LLM: invoker.Name()}, *cfg, logger)

	srv := server.New(*cfg, handler, logger)

	// Graceful shutdown on SIGINT/SIGTERM
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case sig := <-stop:
		logger.Info("Shutting down", zap.String("signal", sig.String()))
		if err := srv.Stop(); err != nil {
			logger.Error("Error during shutdown", zap.Error(err))
		}
	}
	return nil
}
