package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/SuyodhanJ6/bedrockNoobPOC/internal/config"
	"github.com/SuyodhanJ6/bedrockNoobPOC/internal/conversation"
	"github.com/SuyodhanJ6/bedrockNoobPOC/internal/history"
	"github.com/SuyodhanJ6/bedrockNoobPOC/internal/log"
	"github.com/SuyodhanJ6/bedrockNoobPOC/internal/toolserver"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Run the conversation history tool server",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runHistory()
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)
}

// runHistory starts the history tool server. Without a MongoDB URI it falls
// back to an in-memory store, which loses conversations on restart.
func runHistory() error {
	cfg, err := config.LoadHistory()
	if err != nil {
		return err
	}

	logger := log.New(log.Config{
		Level: log.ParseLevel(cfg.LogLevel),
		JSON:  cfg.LogJSON,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var store conversation.Store
	var readyCheck func(ctx context.Context) error
	if cfg.MongoURI == "" {
		logger.Warn("MONGODB_URI not set, using in-memory store; conversations are lost on restart")
		store = history.NewMemoryStore(cfg.MaxHistoryLength)
	} else {
		mongoStore, err := history.ConnectMongo(ctx, history.MongoConfig{
			URI:              cfg.MongoURI,
			Database:         cfg.Database,
			Collection:       cfg.Collection,
			ConnectTimeout:   cfg.ConnectTimeout,
			MaxHistoryLength: cfg.MaxHistoryLength,
		}, logger)
		if err != nil {
			return fmt.Errorf("connecting to MongoDB: %w", err)
		}
		defer func() { _ = mongoStore.Close(context.Background()) }()
		store = mongoStore
		readyCheck = mongoStore.Ping
	}

	srv, err := toolserver.New(toolserver.Config{
		Name:       "mongodb-mcp",
		Version:    AppVersion,
		Addr:       cfg.ListenAddr(),
		ReadyCheck: readyCheck,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("creating tool server: %w", err)
	}
	if err := toolserver.RegisterHistoryTools(srv.MCP(), store, logger); err != nil {
		return fmt.Errorf("registering tools: %w", err)
	}

	logger.Info("history tool server configured",
		"database", cfg.Database,
		"collection", cfg.Collection,
		"max_history_length", cfg.MaxHistoryLength)
	return srv.Run(ctx)
}
