package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/SuyodhanJ6/bedrockNoobPOC/internal/dispatch"
	"github.com/SuyodhanJ6/bedrockNoobPOC/internal/llm"
	"github.com/SuyodhanJ6/bedrockNoobPOC/internal/log"
	"github.com/SuyodhanJ6/bedrockNoobPOC/internal/pipeline"
)

// maxQueryBodyBytes bounds the request body size.
const maxQueryBodyBytes = 1 << 20 // 1 MiB

// QueryRunner is the slice of the turn pipeline the handler depends on.
type QueryRunner interface {
	Query(ctx context.Context, req pipeline.Request) (*pipeline.Response, error)
}

// queryRequest is the body of POST /v1/query.
type queryRequest struct {
	Query          string           `json:"query"`
	ConversationID string           `json:"conversation_id,omitempty"`
	Filter         *pipeline.Filter `json:"filter,omitempty"`
}

// QueryHandler handles the query endpoint.
type QueryHandler struct {
	runner QueryRunner
	logger log.Logger
}

// NewQueryHandler creates a query handler.
func NewQueryHandler(runner QueryRunner, logger log.Logger) *QueryHandler {
	return &QueryHandler{runner: runner, logger: logger}
}

// RegisterRoutes registers the query route on the given mux.
func (h *QueryHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/query", h.handleQuery)
}

// handleQuery runs one turn. Client-caused failures map to 4xx, dependency
// and generation failures to 5xx; a failed generation is never a 2xx.
func (h *QueryHandler) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	body := http.MaxBytesReader(w, r.Body, maxQueryBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Query == "" {
		writeError(w, h.logger, http.StatusBadRequest, "query is required")
		return
	}
	if req.Filter != nil && req.Filter.Field == "" {
		writeError(w, h.logger, http.StatusBadRequest, "filter.field is required when a filter is given")
		return
	}

	resp, err := h.runner.Query(r.Context(), pipeline.Request{
		ConversationID: req.ConversationID,
		Query:          req.Query,
		Filter:         req.Filter,
	})
	if err != nil {
		h.writeQueryError(w, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, resp)
}

// writeQueryError maps pipeline errors onto HTTP statuses.
func (h *QueryHandler) writeQueryError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, pipeline.ErrEmptyQuery):
		writeError(w, h.logger, http.StatusBadRequest, err.Error())
	case errors.Is(err, llm.ErrGeneration):
		h.logger.Error("generation failed", "error", err)
		writeError(w, h.logger, http.StatusBadGateway, "answer generation failed")
	case errors.Is(err, dispatch.ErrToolUnavailable), errors.Is(err, dispatch.ErrToolFailed):
		h.logger.Error("tool dependency failed", "error", err)
		writeError(w, h.logger, http.StatusBadGateway, "a backing tool failed")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		h.logger.Warn("turn abandoned", "error", err)
		writeError(w, h.logger, http.StatusServiceUnavailable, "request canceled")
	default:
		h.logger.Error("query failed", "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "internal server error")
	}
}
