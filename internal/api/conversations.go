package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/SuyodhanJ6/bedrockNoobPOC/internal/dispatch"
	"github.com/SuyodhanJ6/bedrockNoobPOC/internal/log"
)

// ToolInvoker is the slice of the dispatcher the conversation endpoints use.
// The agent holds no database connection of its own; stored conversations are
// read and cleared through the history tool server.
type ToolInvoker interface {
	Invoke(ctx context.Context, name string, args map[string]any) (*dispatch.Result, error)
}

// turnView is the JSON shape of one stored turn.
type turnView struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp,omitempty"`
}

// conversationView is the JSON shape of GET /v1/conversations/{id}.
type conversationView struct {
	ConversationID string     `json:"conversation_id"`
	Turns          []turnView `json:"turns"`
}

// summaryView is one entry of the recent-conversations listing.
type summaryView struct {
	ConversationID string   `json:"conversation_id"`
	LatestTurn     turnView `json:"latest_turn"`
	TurnCount      int64    `json:"turn_count"`
}

// listView is the JSON shape of GET /v1/conversations.
type listView struct {
	Conversations []summaryView `json:"conversations"`
}

// clearedView is the JSON shape of DELETE /v1/conversations/{id}.
type clearedView struct {
	ConversationID string `json:"conversation_id"`
	Cleared        bool   `json:"cleared"`
}

// ConversationsHandler handles the conversation endpoints.
type ConversationsHandler struct {
	tools  ToolInvoker
	logger log.Logger
}

// NewConversationsHandler creates a conversations handler.
func NewConversationsHandler(tools ToolInvoker, logger log.Logger) *ConversationsHandler {
	return &ConversationsHandler{tools: tools, logger: logger}
}

// RegisterRoutes registers conversation routes on the given mux.
func (h *ConversationsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/conversations", h.list)
	mux.HandleFunc("GET /v1/conversations/{id}", h.get)
	mux.HandleFunc("DELETE /v1/conversations/{id}", h.clear)
}

// get returns the stored turns of one conversation. An id the store has never
// seen yields an empty turn list, mirroring the history tool's contract.
func (h *ConversationsHandler) get(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	res, err := h.tools.Invoke(r.Context(), "get_conversation_history", map[string]any{
		"conversation_id": id,
	})
	if err != nil {
		h.writeToolError(w, "reading conversation", err)
		return
	}

	view := conversationView{ConversationID: id, Turns: []turnView{}}
	if err := res.Decode(&view); err != nil {
		h.logger.Error("decoding conversation failed", "conversation_id", id, "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "internal server error")
		return
	}
	if view.Turns == nil {
		view.Turns = []turnView{}
	}
	writeJSON(w, h.logger, http.StatusOK, view)
}

// clear removes all turns of one conversation.
func (h *ConversationsHandler) clear(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	_, err := h.tools.Invoke(r.Context(), "clear_conversation", map[string]any{
		"conversation_id": id,
	})
	if err != nil {
		h.writeToolError(w, "clearing conversation", err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, clearedView{ConversationID: id, Cleared: true})
}

// list returns the most recently active conversations, newest first. The
// limit query parameter bounds the listing; it defaults server-side.
func (h *ConversationsHandler) list(w http.ResponseWriter, r *http.Request) {
	args := map[string]any{}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			writeError(w, h.logger, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		args["limit"] = limit
	}

	res, err := h.tools.Invoke(r.Context(), "list_recent_conversations", args)
	if err != nil {
		h.writeToolError(w, "listing conversations", err)
		return
	}

	view := listView{Conversations: []summaryView{}}
	if err := res.Decode(&view); err != nil {
		h.logger.Error("decoding conversation listing failed", "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "internal server error")
		return
	}
	if view.Conversations == nil {
		view.Conversations = []summaryView{}
	}
	writeJSON(w, h.logger, http.StatusOK, view)
}

// writeToolError maps dispatcher errors onto HTTP statuses.
func (h *ConversationsHandler) writeToolError(w http.ResponseWriter, action string, err error) {
	h.logger.Error(action+" failed", "error", err)
	if errors.Is(err, dispatch.ErrToolUnavailable) || errors.Is(err, dispatch.ErrToolFailed) {
		writeError(w, h.logger, http.StatusBadGateway, "history store unavailable")
		return
	}
	writeError(w, h.logger, http.StatusInternalServerError, "internal server error")
}
