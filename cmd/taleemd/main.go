// Taleemd serves offline curriculum retrieval and RAG queries over HTTP.
//
// Configuration comes from an optional YAML file plus TALEEMD_-prefixed
// environment variables. See internal/config for the full key list.
//
// Usage:
//
//	# Start with defaults
//	taleemd serve
//
//	# Start with a config file
//	taleemd serve --config /etc/taleemd/config.yaml
//
//	# Configure via environment
//	TALEEMD_SERVER_ADDR=:9090 taleemd serve
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/taleemlabs/taleemd/internal/config"
	"github.com/taleemlabs/taleemd/internal/curriculum"
	"github.com/taleemlabs/taleemd/internal/embeddings"
	"github.com/taleemlabs/taleemd/internal/logging"
	"github.com/taleemlabs/taleemd/internal/rag"
	"github.com/taleemlabs/taleemd/internal/retriever"
	"github.com/taleemlabs/taleemd/internal/server"
	"github.com/taleemlabs/taleemd/internal/vectordb"
)

// Version information (set via ldflags during build)
var version = "dev"

var configPath string

var rootCmd = &cobra.Command{
	Use:     "taleemd",
	Short:   "Offline curriculum retrieval and RAG daemon",
	Version: version,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&configPath, "config", "", "path to YAML config file")
	rootCmd.AddCommand(serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer logger.Sync()

	store, err := retriever.NewStore(cfg.Retriever, nil, logger)
	if err != nil {
		return fmt.Errorf("initializing retriever: %w", err)
	}

	if cfg.Curriculum.Path != "" {
		cur, err := curriculum.Load(cfg.Curriculum.Path)
		if err != nil {
			return fmt.Errorf("loading curriculum: %w", err)
		}
		count := cur.Seed(store, logger)
		logger.Info("curriculum seeded",
			zap.String("path", cfg.Curriculum.Path),
			zap.Int("documents", count),
		)
	}

	db, err := vectordb.NewService(cfg.VectorDB, logger)
	if err != nil {
		return fmt.Errorf("initializing vector database: %w", err)
	}

	embedder, err := embeddings.NewService(cfg.Embeddings)
	if err != nil {
		return fmt.Errorf("initializing embeddings: %w", err)
	}

	var generator rag.Generator = rag.DisabledGenerator{}
	if cfg.Generation.WorkerPath != "" {
		generator, err = rag.NewWorkerGenerator(cfg.Generation, logger)
		if err != nil {
			return fmt.Errorf("initializing generator: %w", err)
		}
	} else {
		logger.Warn("no generation worker configured, answers will be extractive")
	}

	engine, err := rag.NewEngine(embedder, db, generator, logger)
	if err != nil {
		return fmt.Errorf("initializing rag engine: %w", err)
	}

	srv := server.New(store, engine, db, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(cfg.Server.Addr)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	logger.Info("shutdown complete")
	return nil
}
