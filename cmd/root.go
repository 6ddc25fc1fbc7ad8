// Package cmd wires the three services into one binary: the agent API
// (serve), the document retrieval tool server (retrieval), and the
// conversation history tool server (history).
package cmd

import (
	"github.com/spf13/cobra"
)

// Version information (injected at build time via ldflags).
var (
	AppVersion = "development"
	GitCommit  = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "bedrock-rag",
	Short: "RAG agent over AWS Bedrock with MCP tool servers",
	Long: `bedrock-rag answers questions against a Bedrock knowledge base.

The system runs as three processes:

  serve      the agent API (POST /v1/query)
  retrieval  the document retrieval MCP tool server
  history    the conversation history MCP tool server

The agent connects to both tool servers over SSE at startup and fails fast
when either is unreachable.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
