// Package main provides the entry point for the GraphMind MCP server.
//
// This server is designed to be spawned as a child process by an MCP client
// and communicates via stdio using the Model Context Protocol. Its
// research-query tool drives the eight-stage graph-of-thoughts reasoning
// pipeline to completion and returns a synthesized answer; analyze-subgraph
// exposes the auxiliary direct-query analytics path over a seeded subgraph.
//
// Environment variables:
//   - GRAPHMIND_CONFIG: path to a YAML configuration file (optional)
//   - GRAPHMIND_STORE_BACKEND, GRAPHMIND_STORE_*: override store settings
//   - GRAPHMIND_APP_*: override app settings
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"graphmind/internal/config"
	"graphmind/internal/graphstore"
	"graphmind/internal/orchestrator"
	"graphmind/internal/retrieval"
	"graphmind/internal/server"
	"graphmind/internal/stage"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	cfg, err := loadConfig()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger.Info("loaded configuration", "backend", cfg.Store.Backend, "environment", cfg.App.Environment)

	ctx := context.Background()

	repo, err := graphstore.NewRepositoryFromConfig(ctx, cfg.Store)
	if err != nil {
		logger.Error("failed to initialize graph repository", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := repo.Close(ctx); err != nil {
			logger.Warn("failed to close graph repository", "error", err)
		}
	}()
	logger.Info("initialized graph repository", "backend", cfg.Store.Backend)

	adapters, err := retrieval.NewAdapterSet(retrieval.AdapterConfig{
		BiomedicalBaseURL: os.Getenv("GRAPHMIND_BIOMEDICAL_BASE_URL"),
		BiomedicalAPIKey:  os.Getenv("GRAPHMIND_BIOMEDICAL_API_KEY"),
		ScholarlyBaseURL:  os.Getenv("GRAPHMIND_SCHOLARLY_BASE_URL"),
		ScholarlyAPIKey:   os.Getenv("GRAPHMIND_SCHOLARLY_API_KEY"),
		WebSearchBaseURL:  os.Getenv("GRAPHMIND_WEBSEARCH_BASE_URL"),
		WebSearchAPIKey:   os.Getenv("GRAPHMIND_WEBSEARCH_API_KEY"),
		VoyageAPIKey:      os.Getenv("GRAPHMIND_VOYAGE_API_KEY"),
		VoyageModel:       os.Getenv("GRAPHMIND_VOYAGE_MODEL"),
		MaxConcurrency:    cfg.Defaults.EvidenceAdapterConcurrency,
	})
	if err != nil {
		logger.Error("failed to initialize evidence retrieval adapters", "error", err)
		os.Exit(1)
	}
	logger.Info("initialized evidence retrieval adapters", "count", len(adapters.Adapters))

	stages := []stage.Stage{
		stage.NewInitializationStage(repo, cfg),
		stage.NewDecompositionStage(repo, cfg),
		stage.NewHypothesisStage(repo, cfg),
		stage.NewEvidenceStage(repo, cfg, adapters),
		stage.NewPruningMergingStage(repo, cfg),
		stage.NewSubgraphExtractionStage(repo, cfg),
		stage.NewCompositionStage(repo, cfg),
		stage.NewReflectionStage(repo, cfg),
	}
	logger.Info("initialized reasoning stages", "count", len(stages))

	orch := orchestrator.New(stages, orchestrator.AlwaysAvailable{})
	defer orch.Shutdown()

	srv := server.NewGraphMindServer(cfg, repo, orch)

	mcpServer := mcp.NewServer(&mcp.Implementation{
		Name:    "graphmind-server",
		Version: "0.1.0",
	}, nil)
	logger.Info("created MCP server")

	srv.RegisterTools(mcpServer)
	logger.Info("registered tools: research-query, get-session-trace, analyze-subgraph")

	transport := &mcp.StdioTransport{}
	logger.Info("starting MCP server over stdio")
	if err := mcpServer.Run(ctx, transport); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	if path := os.Getenv("GRAPHMIND_CONFIG"); path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}
