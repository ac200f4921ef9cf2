// Package mcp exposes read-only usage queries as MCP tools over stdio.
package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/resumeassist/usagegate/pkg/models"
)

// UsageReader is the read side of the usage ledger.
type UsageReader interface {
	Status(ctx context.Context, userID string) (models.UsageStatus, error)
	History(ctx context.Context, userID string, days int) ([]models.UsageRecord, error)
}

// DecisionSearcher reads the decision audit log.
type DecisionSearcher interface {
	Query(ctx context.Context, opts models.AuditQueryOpts) ([]models.Decision, error)
	Stats(ctx context.Context) ([]models.AuditStat, error)
}

// Server is a minimal MCP server speaking line-delimited JSON-RPC 2.0.
type Server struct {
	usage   UsageReader
	auditor DecisionSearcher
	limit   int64
	version string
	logger  *zap.Logger
}

// New creates a Server. auditor may be nil when audit logging is off.
func New(usage UsageReader, auditor DecisionSearcher, limit int64, version string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		usage:   usage,
		auditor: auditor,
		limit:   limit,
		version: version,
		logger:  logger,
	}
}

// Run serves requests read line by line from r until r is exhausted or ctx
// is cancelled.
func (s *Server) Run(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			s.write(w, rpcError(nil, CodeParseError, "parse error"))
			continue
		}
		if resp := s.dispatch(ctx, &req); resp != nil {
			s.write(w, resp)
		}
	}
	return scanner.Err()
}

func (s *Server) dispatch(ctx context.Context, req *Request) *Response {
	switch req.Method {
	case "initialize":
		return result(req.ID, InitializeResult{
			ProtocolVersion: protocolVersion,
			ServerInfo:      ServerInfo{Name: "usagegate", Version: s.version},
			Capabilities:    map[string]any{"tools": map[string]any{}},
		})
	case "notifications/initialized":
		return nil
	case "ping":
		return result(req.ID, map[string]any{})
	case "tools/list":
		return result(req.ID, ToolsListResult{Tools: s.tools()})
	case "tools/call":
		var params ToolCallParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return rpcError(req.ID, CodeInvalidParams, "invalid params")
		}
		return result(req.ID, s.callTool(ctx, params))
	default:
		if len(req.ID) == 0 {
			return nil
		}
		return rpcError(req.ID, CodeMethodNotFound, fmt.Sprintf("unknown method: %s", req.Method))
	}
}

func (s *Server) write(w io.Writer, resp *Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		s.logger.Error("mcp marshal failed", zap.Error(err))
		return
	}
	data = append(data, '\n')
	if _, err := w.Write(data); err != nil {
		s.logger.Error("mcp write failed", zap.Error(err))
	}
}
