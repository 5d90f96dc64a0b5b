// Command server is the single entry point wiring configuration, logging,
// the schema registry (C1), the graph store adapter (C2), the extractor
// (C3), the ingestion engine (C4), and the tool dispatcher (C5) into one
// running process, on whichever transport the configuration selects.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"go.uber.org/zap"

	"kgraph/internal/config"
	"kgraph/internal/extractor"
	"kgraph/internal/graphstore"
	"kgraph/internal/guard"
	"kgraph/internal/ingestion"
	"kgraph/internal/logging"
	"kgraph/internal/mcpserver"
	"kgraph/internal/schema"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (optional; env vars and defaults still apply)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Logging.Level, string(cfg.Environment))
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server exited with error", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sources := make([]schema.Source, 0, len(cfg.Schema.Sources))
	for _, s := range cfg.Schema.Sources {
		sources = append(sources, schema.Source{Dir: s.Dir, Selector: s.Selector})
	}
	registry, err := schema.Load(logger, sources, cfg.Schema.IncludeRoot, cfg.Schema.RootDir)
	if err != nil {
		return fmt.Errorf("load schema registry: %w", err)
	}
	logger.Info("schema registry loaded", zap.Strings("schemas", registry.Names()))

	extr, err := buildExtractor(cfg, logger)
	if err != nil {
		return fmt.Errorf("build extractor: %w", err)
	}

	store, err := buildStore(ctx, cfg, extr, logger)
	if err != nil {
		return fmt.Errorf("build graph store: %w", err)
	}
	if err := store.BuildIndicesAndConstraints(ctx); err != nil {
		return fmt.Errorf("build graph store indices: %w", err)
	}

	engine := ingestion.New(store, logger)
	defer engine.Shutdown()

	srv := &mcpserver.Server{
		Registry: registry,
		Store:    store,
		Engine:   engine,
		Guard:    guard.NewToken(),
		Config:   cfg,
		Logger:   logger,
	}

	switch cfg.Transport {
	case "stdio":
		return mcpserver.ServeStdio(ctx, srv, os.Stdin, os.Stdout, logger)
	case "sse":
		return serveSSE(ctx, cfg, srv, logger)
	default:
		return fmt.Errorf("unknown transport %q", cfg.Transport)
	}
}

func buildExtractor(cfg *config.Config, logger *zap.Logger) (*extractor.Extractor, error) {
	var provider extractor.Provider
	if cfg.LLM.APIKey != "" {
		provider = extractor.NewAnthropicProvider(cfg.LLM.APIKey, cfg.LLM.BaseURL, cfg.LLM.Model)
	} else {
		logger.Warn("no LLM API key configured; using the fake extraction provider")
		provider = extractor.NewFakeProvider()
	}
	return extractor.New(provider, logger), nil
}

func buildStore(ctx context.Context, cfg *config.Config, extr *extractor.Extractor, logger *zap.Logger) (graphstore.Store, error) {
	switch cfg.GraphStore.Backend {
	case "dynamo":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.GraphStore.Region))
		if err != nil {
			return nil, fmt.Errorf("load AWS config: %w", err)
		}
		client := dynamodb.NewFromConfig(awsCfg)
		return graphstore.NewDynamoStore(client, cfg.GraphStore.Table, extr, logger), nil
	case "memory":
		return graphstore.NewMemoryStore(extr, logger), nil
	default:
		return nil, fmt.Errorf("unknown graph_store.backend %q", cfg.GraphStore.Backend)
	}
}

func serveSSE(ctx context.Context, cfg *config.Config, srv *mcpserver.Server, logger *zap.Logger) error {
	handler := mcpserver.NewSSERouter(srv, logger)
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	httpServer := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("sse transport listening", zap.String("addr", addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	shutdownTimeout, err := time.ParseDuration(cfg.Server.ShutdownTimeout)
	if err != nil {
		shutdownTimeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	logger.Info("shutting down sse transport")
	return httpServer.Shutdown(shutdownCtx)
}
