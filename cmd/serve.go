package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/SuyodhanJ6/bedrockNoobPOC/internal/api"
	"github.com/SuyodhanJ6/bedrockNoobPOC/internal/config"
	"github.com/SuyodhanJ6/bedrockNoobPOC/internal/dispatch"
	"github.com/SuyodhanJ6/bedrockNoobPOC/internal/llm"
	"github.com/SuyodhanJ6/bedrockNoobPOC/internal/log"
	"github.com/SuyodhanJ6/bedrockNoobPOC/internal/pipeline"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the agent API server",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runServe()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// runServe starts the agent: it connects to both tool servers, builds the
// turn pipeline, and serves the HTTP API until interrupted.
func runServe() error {
	cfg, err := config.LoadAgent()
	if err != nil {
		return err
	}

	logger := log.New(log.Config{
		Level: log.ParseLevel(cfg.LogLevel),
		JSON:  cfg.LogJSON,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("starting agent",
		"version", AppVersion,
		"model", cfg.ModelID,
		"retrieval_url", cfg.RetrievalURL,
		"history_url", cfg.HistoryURL)

	// An unreachable tool server fails startup: the agent never runs
	// half-wired.
	dispatcher, err := dispatch.Connect(ctx, []dispatch.Endpoint{
		{Name: "retrieval", URL: cfg.RetrievalURL},
		{Name: "history", URL: cfg.HistoryURL},
	}, dispatch.Options{
		Implementation: &mcp.Implementation{Name: "bedrock-rag-agent", Version: AppVersion},
		CallTimeout:    cfg.ToolTimeout,
		Logger:         logger,
	})
	if err != nil {
		return fmt.Errorf("connecting tool servers: %w", err)
	}
	defer func() { _ = dispatcher.Close() }()

	generator, err := llm.NewBedrock(ctx, llm.Config{
		Region:      cfg.AWSRegion,
		ModelID:     cfg.ModelID,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
		TopP:        cfg.TopP,
		Timeout:     cfg.GenerateTimeout,
	}, logger)
	if err != nil {
		return fmt.Errorf("creating generator: %w", err)
	}

	p := pipeline.New(dispatcher, generator, pipeline.Config{
		MaxHistoryLength: cfg.MaxHistoryLength,
	}, logger)

	server := api.NewServer(p, dispatcher, dispatcher.Ping, logger)
	return server.Run(ctx, cfg.ListenAddr())
}
