// Package config provides configuration for the three service binaries with
// multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override, the deployment surface)
//  2. Config file (./config.yaml)
//  3. Default values
//
// Each binary has its own struct (Agent, Retrieval, History) with a Load
// function that reads, unmarshals, and validates it. Validation is fail-fast:
// a missing required value stops startup with a sentinel error that callers
// can check with errors.Is().
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

var (
	// ErrMissingKnowledgeBaseID indicates KNOWLEDGE_BASE_ID is not set.
	ErrMissingKnowledgeBaseID = errors.New("missing knowledge base id")

	// ErrMissingModelID indicates the generation model id is not set.
	ErrMissingModelID = errors.New("missing model id")

	// ErrMissingRerankModelID indicates reranking is enabled without a model id.
	ErrMissingRerankModelID = errors.New("missing rerank model id")

	// ErrInvalidResultCount indicates a retrieval result count is out of range.
	ErrInvalidResultCount = errors.New("invalid result count")

	// ErrInvalidHistoryLength indicates the history cap is out of range.
	ErrInvalidHistoryLength = errors.New("invalid max history length")

	// ErrInvalidAddr indicates a listen address or endpoint URL is invalid.
	ErrInvalidAddr = errors.New("invalid address")

	// ErrInvalidTimeout indicates a timeout value is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout")

	// ErrInvalidTemperature indicates the temperature is out of [0, 1].
	ErrInvalidTemperature = errors.New("invalid temperature")

	// ErrInvalidMaxTokens indicates the max token budget is out of range.
	ErrInvalidMaxTokens = errors.New("invalid max tokens")
)

// Hard bounds shared by validation. The history cap upper bound prevents a
// misconfigured deployment from loading unbounded conversations into prompts.
const (
	MaxAllowedHistoryLength = 1000
	MaxAllowedResults       = 100
)

// newViper builds a viper instance with the common file/env wiring. Each Load
// function gets a fresh instance so the binaries never see each other's keys.
func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// readIn reads the optional config file. A missing file is fine; the env and
// defaults carry the configuration in containerized deployments.
func readIn(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("reading config file: %w", err)
		}
	}
	return nil
}

// bindEnv binds each key to its canonical environment variable, matching the
// variable names the deployment layer already uses.
func bindEnv(v *viper.Viper, pairs map[string]string) {
	for key, env := range pairs {
		// BindEnv only errors on empty input, which the map literal precludes.
		_ = v.BindEnv(key, env)
	}
}
