package mcp

import (
	"context"
	"encoding/json"
	"time"

	"github.com/resumeassist/usagegate/pkg/models"
)

type userArgs struct {
	UserID string `json:"user_id"`
}

type historyArgs struct {
	UserID string `json:"user_id"`
	Days   int    `json:"days"`
}

type auditSearchArgs struct {
	UserID  string `json:"user_id"`
	Outcome string `json:"outcome"`
	Since   string `json:"since"`
	Limit   int    `json:"limit"`
}

type toolHandler func(ctx context.Context, s *Server, args json.RawMessage) ToolCallResult

var toolHandlers = map[string]toolHandler{
	"usage_today":   handleUsageToday,
	"usage_history": handleUsageHistory,
	"daily_limit":   handleDailyLimit,
	"audit_search":  handleAuditSearch,
	"audit_stats":   handleAuditStats,
}

func stringProp(desc string) map[string]any {
	return map[string]any{"type": "string", "description": desc}
}

var usageTools = []ToolDefinition{
	{
		Name:        "usage_today",
		Description: "Show how many units a user has consumed today and how many remain.",
		InputSchema: map[string]any{
			"type":       "object",
			"required":   []string{"user_id"},
			"properties": map[string]any{"user_id": stringProp("The user id")},
		},
	},
	{
		Name:        "usage_history",
		Description: "Show a user's daily usage for recent days, newest first.",
		InputSchema: map[string]any{
			"type":     "object",
			"required": []string{"user_id"},
			"properties": map[string]any{
				"user_id": stringProp("The user id"),
				"days": map[string]any{
					"type":        "integer",
					"description": "Number of days to include (default 7)",
				},
			},
		},
	},
	{
		Name:        "daily_limit",
		Description: "Show the per-user daily unit limit.",
		InputSchema: map[string]any{"type": "object", "properties": map[string]any{}},
	},
}

var auditTools = []ToolDefinition{
	{
		Name:        "audit_search",
		Description: "Search recorded check-and-consume decisions.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"user_id": stringProp("Filter by user id (optional)"),
				"outcome": stringProp("allowed, quota_exceeded, invalid_request or store_unavailable (optional)"),
				"since":   stringProp("Start date in YYYY-MM-DD format (optional)"),
				"limit":   map[string]any{"type": "integer", "description": "Maximum rows (default 50)"},
			},
		},
	},
	{
		Name:        "audit_stats",
		Description: "Show decision counts and consumed units per outcome and day.",
		InputSchema: map[string]any{"type": "object", "properties": map[string]any{}},
	},
}

func (s *Server) tools() []ToolDefinition {
	tools := append([]ToolDefinition(nil), usageTools...)
	if s.auditor != nil {
		tools = append(tools, auditTools...)
	}
	return tools
}

func (s *Server) callTool(ctx context.Context, params ToolCallParams) ToolCallResult {
	handler, ok := toolHandlers[params.Name]
	if !ok {
		return errorResult("unknown tool: " + params.Name)
	}
	return handler(ctx, s, params.Arguments)
}

func textResult(text string) ToolCallResult {
	return ToolCallResult{Content: []ContentBlock{{Type: "text", Text: text}}}
}

func errorResult(text string) ToolCallResult {
	return ToolCallResult{Content: []ContentBlock{{Type: "text", Text: text}}, IsError: true}
}

func decodeArgs(raw json.RawMessage, v any) bool {
	if len(raw) == 0 {
		return true
	}
	return json.Unmarshal(raw, v) == nil
}

func handleUsageToday(ctx context.Context, s *Server, raw json.RawMessage) ToolCallResult {
	var args userArgs
	if !decodeArgs(raw, &args) {
		return errorResult("invalid arguments")
	}
	if args.UserID == "" {
		return errorResult("user_id is required")
	}
	st, err := s.usage.Status(ctx, args.UserID)
	if err != nil {
		return errorResult("Error fetching usage: " + err.Error())
	}
	return textResult(formatStatus(st))
}

func handleUsageHistory(ctx context.Context, s *Server, raw json.RawMessage) ToolCallResult {
	var args historyArgs
	if !decodeArgs(raw, &args) {
		return errorResult("invalid arguments")
	}
	if args.UserID == "" {
		return errorResult("user_id is required")
	}
	if args.Days == 0 {
		args.Days = 7
	}
	recs, err := s.usage.History(ctx, args.UserID, args.Days)
	if err != nil {
		return errorResult("Error fetching history: " + err.Error())
	}
	return textResult(formatHistory(recs, s.limit))
}

func handleDailyLimit(_ context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	return textResult(formatLimit(s.limit))
}

func handleAuditSearch(ctx context.Context, s *Server, raw json.RawMessage) ToolCallResult {
	if s.auditor == nil {
		return textResult("Audit logging is not configured.")
	}
	var args auditSearchArgs
	if !decodeArgs(raw, &args) {
		return errorResult("invalid arguments")
	}
	opts := models.AuditQueryOpts{
		UserID:  args.UserID,
		Outcome: models.Outcome(args.Outcome),
		Limit:   args.Limit,
	}
	if opts.Limit <= 0 {
		opts.Limit = 50
	}
	if args.Since != "" {
		t, err := time.Parse("2006-01-02", args.Since)
		if err != nil {
			return errorResult("Invalid since date (use YYYY-MM-DD): " + err.Error())
		}
		opts.Since = t
	}
	decisions, err := s.auditor.Query(ctx, opts)
	if err != nil {
		return errorResult("Error searching audit log: " + err.Error())
	}
	return textResult(formatDecisions(decisions))
}

func handleAuditStats(ctx context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	if s.auditor == nil {
		return textResult("Audit logging is not configured.")
	}
	stats, err := s.auditor.Stats(ctx)
	if err != nil {
		return errorResult("Error fetching audit stats: " + err.Error())
	}
	return textResult(formatAuditStats(stats))
}
