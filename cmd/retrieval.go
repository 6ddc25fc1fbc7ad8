package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/SuyodhanJ6/bedrockNoobPOC/internal/config"
	"github.com/SuyodhanJ6/bedrockNoobPOC/internal/log"
	"github.com/SuyodhanJ6/bedrockNoobPOC/internal/retrieval"
	"github.com/SuyodhanJ6/bedrockNoobPOC/internal/toolserver"
)

var retrievalCmd = &cobra.Command{
	Use:   "retrieval",
	Short: "Run the document retrieval tool server",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runRetrieval()
	},
}

func init() {
	rootCmd.AddCommand(retrievalCmd)
}

// runRetrieval starts the retrieval tool server against the configured
// Bedrock knowledge base.
func runRetrieval() error {
	cfg, err := config.LoadRetrieval()
	if err != nil {
		return err
	}

	logger := log.New(log.Config{
		Level: log.ParseLevel(cfg.LogLevel),
		JSON:  cfg.LogJSON,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	retriever, err := retrieval.New(ctx, retrieval.Config{
		Region:          cfg.AWSRegion,
		KnowledgeBaseID: cfg.KnowledgeBaseID,
		UseReranking:    cfg.UseReranking,
		RerankModelID:   cfg.RerankModelID,
		InitialResults:  cfg.InitialResults,
		TopNResults:     cfg.TopNResults,
	}, logger)
	if err != nil {
		return fmt.Errorf("creating retriever: %w", err)
	}

	srv, err := toolserver.New(toolserver.Config{
		Name:    "bedrock-rag-mcp",
		Version: AppVersion,
		Addr:    cfg.ListenAddr(),
		Logger:  logger,
	})
	if err != nil {
		return fmt.Errorf("creating tool server: %w", err)
	}
	if err := toolserver.RegisterRetrievalTools(srv.MCP(), retriever, logger); err != nil {
		return fmt.Errorf("registering tools: %w", err)
	}

	logger.Info("retrieval tool server configured",
		"knowledge_base", cfg.KnowledgeBaseID,
		"reranking", cfg.UseReranking)
	return srv.Run(ctx)
}
