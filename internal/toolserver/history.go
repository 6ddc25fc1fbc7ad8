package toolserver

import (
	"context"
	"fmt"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/SuyodhanJ6/bedrockNoobPOC/internal/conversation"
	"github.com/SuyodhanJ6/bedrockNoobPOC/internal/log"
)

// TurnRecord is the wire form of a conversation turn. Timestamps travel as
// RFC 3339 strings; an absent timestamp means "now" on append.
type TurnRecord struct {
	Role      string `json:"role" jsonschema:"The author of the turn, user or assistant"`
	Content   string `json:"content" jsonschema:"The turn text"`
	Timestamp string `json:"timestamp,omitempty" jsonschema:"RFC 3339 timestamp of the turn"`
}

// SummaryRecord is the wire form of a conversation summary.
type SummaryRecord struct {
	ConversationID string     `json:"conversation_id"`
	LatestTurn     TurnRecord `json:"latest_turn"`
	TurnCount      int64      `json:"turn_count"`
}

// HistoryInput identifies one conversation.
type HistoryInput struct {
	ConversationID string `json:"conversation_id" jsonschema:"The conversation identifier"`
}

// HistoryOutput carries a conversation's stored turns in chronological order.
type HistoryOutput struct {
	ConversationID string       `json:"conversation_id"`
	Turns          []TurnRecord `json:"turns"`
}

// AppendInput carries turns to append to a conversation.
type AppendInput struct {
	ConversationID string       `json:"conversation_id" jsonschema:"The conversation identifier"`
	Turns          []TurnRecord `json:"turns" jsonschema:"The turns to append, in order"`
}

// AppendOutput reports how many turns were appended.
type AppendOutput struct {
	ConversationID string `json:"conversation_id"`
	Appended       int    `json:"appended"`
}

// ClearOutput confirms a conversation was cleared.
type ClearOutput struct {
	ConversationID string `json:"conversation_id"`
	Cleared        bool   `json:"cleared"`
}

// RecentInput bounds a recent-conversations listing.
type RecentInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"Maximum number of conversations to return"`
}

// RecentOutput lists the most recently active conversations, newest first.
type RecentOutput struct {
	Conversations []SummaryRecord `json:"conversations"`
}

func toTurnRecord(t conversation.Turn) TurnRecord {
	rec := TurnRecord{Role: string(t.Role), Content: t.Content}
	if !t.Timestamp.IsZero() {
		rec.Timestamp = t.Timestamp.UTC().Format(time.RFC3339Nano)
	}
	return rec
}

func toTurnRecords(turns []conversation.Turn) []TurnRecord {
	out := make([]TurnRecord, len(turns))
	for i, t := range turns {
		out[i] = toTurnRecord(t)
	}
	return out
}

// fromTurnRecord converts a wire turn, defaulting an absent timestamp to now.
func fromTurnRecord(rec TurnRecord, now time.Time) (conversation.Turn, error) {
	role := conversation.Role(rec.Role)
	if !role.Valid() {
		return conversation.Turn{}, fmt.Errorf("unknown role %q", rec.Role)
	}
	ts := now
	if rec.Timestamp != "" {
		parsed, err := time.Parse(time.RFC3339Nano, rec.Timestamp)
		if err != nil {
			return conversation.Turn{}, fmt.Errorf("invalid timestamp %q: %v", rec.Timestamp, err)
		}
		ts = parsed
	}
	return conversation.Turn{Role: role, Content: rec.Content, Timestamp: ts}, nil
}

// RegisterHistoryTools registers the conversation-history tools over the
// given store.
func RegisterHistoryTools(srv *mcp.Server, store conversation.Store, logger log.Logger) error {
	if logger == nil {
		logger = log.NewNop()
	}

	historySchema, err := jsonschema.For[HistoryInput](nil)
	if err != nil {
		return fmt.Errorf("history input schema: %w", err)
	}
	appendSchema, err := jsonschema.For[AppendInput](nil)
	if err != nil {
		return fmt.Errorf("append input schema: %w", err)
	}
	recentSchema, err := jsonschema.For[RecentInput](nil)
	if err != nil {
		return fmt.Errorf("recent input schema: %w", err)
	}

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "get_conversation_history",
		Description: "Get the stored turns of a conversation in chronological order. Unknown conversations yield an empty list.",
		InputSchema: historySchema,
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in HistoryInput) (*mcp.CallToolResult, HistoryOutput, error) {
		if in.ConversationID == "" {
			return errorResult("conversation_id is required"), HistoryOutput{}, nil
		}
		turns, err := store.History(ctx, in.ConversationID)
		if err != nil {
			logger.Error("history read failed", "conversation_id", in.ConversationID, "error", err)
			return errorResult("reading history: %v", err), HistoryOutput{}, nil
		}
		return nil, HistoryOutput{
			ConversationID: in.ConversationID,
			Turns:          toTurnRecords(turns),
		}, nil
	})

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "append_conversation_turns",
		Description: "Append turns to a conversation, creating it if needed. The oldest turns are evicted once the history cap is exceeded.",
		InputSchema: appendSchema,
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in AppendInput) (*mcp.CallToolResult, AppendOutput, error) {
		if in.ConversationID == "" {
			return errorResult("conversation_id is required"), AppendOutput{}, nil
		}
		if len(in.Turns) == 0 {
			return errorResult("turns must not be empty"), AppendOutput{}, nil
		}
		now := time.Now().UTC()
		turns := make([]conversation.Turn, len(in.Turns))
		for i, rec := range in.Turns {
			turn, err := fromTurnRecord(rec, now)
			if err != nil {
				return errorResult("turn %d: %v", i, err), AppendOutput{}, nil
			}
			turns[i] = turn
		}
		if err := store.Append(ctx, in.ConversationID, turns...); err != nil {
			logger.Error("append failed", "conversation_id", in.ConversationID, "error", err)
			return errorResult("appending turns: %v", err), AppendOutput{}, nil
		}
		logger.Debug("turns appended",
			"conversation_id", in.ConversationID,
			"count", len(turns))
		return nil, AppendOutput{ConversationID: in.ConversationID, Appended: len(turns)}, nil
	})

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "clear_conversation",
		Description: "Remove all stored turns of a conversation.",
		InputSchema: historySchema,
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in HistoryInput) (*mcp.CallToolResult, ClearOutput, error) {
		if in.ConversationID == "" {
			return errorResult("conversation_id is required"), ClearOutput{}, nil
		}
		if err := store.Clear(ctx, in.ConversationID); err != nil {
			logger.Error("clear failed", "conversation_id", in.ConversationID, "error", err)
			return errorResult("clearing conversation: %v", err), ClearOutput{}, nil
		}
		return nil, ClearOutput{ConversationID: in.ConversationID, Cleared: true}, nil
	})

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "list_recent_conversations",
		Description: "List the most recently active conversations, newest first.",
		InputSchema: recentSchema,
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in RecentInput) (*mcp.CallToolResult, RecentOutput, error) {
		limit := in.Limit
		if limit <= 0 {
			limit = 10
		}
		summaries, err := store.Recent(ctx, limit)
		if err != nil {
			logger.Error("recent listing failed", "error", err)
			return errorResult("listing conversations: %v", err), RecentOutput{}, nil
		}
		records := make([]SummaryRecord, len(summaries))
		for i, s := range summaries {
			records[i] = SummaryRecord{
				ConversationID: s.ConversationID,
				LatestTurn:     toTurnRecord(s.LatestTurn),
				TurnCount:      s.TurnCount,
			}
		}
		return nil, RecentOutput{Conversations: records}, nil
	})

	return nil
}

// errorResult builds a tool-level error result: the tool ran and is reporting
// a failure, as opposed to a transport or protocol error.
func errorResult(format string, args ...any) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf(format, args...)}},
		IsError: true,
	}
}
