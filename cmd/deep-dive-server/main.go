// Command deep-dive-server exposes the Deep Dive pipeline and follow-up chat over HTTP.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/theimaginaryfoundation/deep-dive/analysis"
	"github.com/theimaginaryfoundation/deep-dive/analysis/ocr"
	"github.com/theimaginaryfoundation/deep-dive/analysis/provider"
	"github.com/theimaginaryfoundation/deep-dive/analysis/safety"
	"github.com/theimaginaryfoundation/deep-dive/analysis/sqlitestore"
)

func main() {
	fs := flag.NewFlagSet("deep-dive-server", flag.ExitOnError)
	configPath := fs.String("config", "deep-dive.yaml", "Path to the YAML config file (missing file means defaults)")
	verbose := fs.Bool("verbose", false, "Debug logging")
	_ = fs.Parse(os.Args[1:])

	cfg, err := Load(*configPath, os.Getenv)
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}

	logger, err := newLogger(*verbose)
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited", zap.Error(err))
		os.Exit(1)
	}
}

func newLogger(verbose bool) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	if verbose {
		config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	logger, err := config.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}

func run(cfg *Config, logger *zap.Logger) error {
	store, closeStore, err := openSpeakerStore(cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	normalizer := analysis.Normalizer{Logger: logger, MaxParallel: cfg.OCR.MaxParallel}
	if cfg.OCR.Endpoint != "" {
		normalizer.OCR = ocr.New(cfg.OCR.Endpoint, cfg.OCR.APIKey)
	}

	analyzer := &analysis.Fallback{
		Base: analysis.Pipeline{
			Guardrails:  cfg.Guardrails,
			Classifier:  safety.Classifier{HistoryTurns: cfg.LLM.HistoryTurns},
			Logger:      logger,
			Temperature: cfg.LLM.Temperature,
			MaxTokens:   cfg.LLM.MaxTokens,
		},
		Options:     provider.Options{Models: cfg.LLM.Models, BaseURLs: cfg.LLM.BaseURLs},
		Credentials: cfg.Credentials,
		Timeout:     cfg.Timeout(),
	}

	srv := NewServer(ServerConfig{
		Addr:         cfg.Addr,
		MaxBodyBytes: cfg.MaxBodyBytes,
		Analyzer:     analyzer,
		Normalizer:   normalizer,
		Speakers:     store,
		Logger:       logger,
		StartTime:    time.Now(),
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func openSpeakerStore(cfg *Config, logger *zap.Logger) (analysis.SpeakerStore, func(), error) {
	switch {
	case cfg.SpeakersDB != "":
		s, err := sqlitestore.Open(cfg.SpeakersDB, logger)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	case cfg.SpeakersDir != "":
		return &analysis.FileStore{Dir: cfg.SpeakersDir}, func() {}, nil
	}
	logger.Warn("no speaker cache configured; speaker corrections will not persist")
	return nil, func() {}, nil
}
