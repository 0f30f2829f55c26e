package host

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ormasoftchile/wfstudio/pkg/mcpconfig"
	"github.com/ormasoftchile/wfstudio/pkg/mcptools"
	"github.com/ormasoftchile/wfstudio/pkg/protocol"
	"github.com/ormasoftchile/wfstudio/pkg/workflow"
)

func failure(code, format string, args ...interface{}) *protocol.ErrorInfo {
	return &protocol.ErrorInfo{Code: code, Message: fmt.Sprintf(format, args...)}
}

func (s *Server) workspaceOr(ws string) string {
	if ws != "" {
		return ws
	}
	return s.workspace
}

func (s *Server) listServers(_ context.Context, msg protocol.Message) (interface{}, *protocol.ErrorInfo) {
	var req protocol.ListServersRequest
	if info := decode(msg, &req); info != nil {
		return nil, info
	}

	resolved := s.resolver.ListServers(s.workspaceOr(req.Workspace))
	servers := make([]protocol.ServerInfo, 0, len(resolved))
	for _, rs := range resolved {
		servers = append(servers, ServerInfo(rs))
	}
	return protocol.ServersResult{Result: protocol.Success(), Servers: servers}, nil
}

// ServerInfo converts a resolved server to its wire form with secrets masked.
func ServerInfo(rs mcpconfig.ResolvedServer) protocol.ServerInfo {
	cfg := mcpconfig.Redact(rs.Config)
	return protocol.ServerInfo{
		ID:      rs.ID,
		Name:    rs.ID,
		Scope:   string(rs.Scope),
		Type:    string(cfg.Type),
		Command: cfg.Command,
		Args:    cfg.Args,
		Env:     cfg.Env,
		URL:     cfg.URL,
		Source:  rs.Source,
	}
}

func (s *Server) resolve(serverID, workspace string) (*mcpconfig.ResolvedServer, *protocol.ErrorInfo) {
	if strings.TrimSpace(serverID) == "" {
		return nil, failure(protocol.CodeInvalidPayload, "serverId is required")
	}
	rs, ok := s.resolver.Resolve(serverID, s.workspaceOr(workspace))
	if !ok {
		return nil, failure(protocol.CodeServerNotFound, "MCP server %q is not configured", serverID)
	}
	return rs, nil
}

func (s *Server) getTools(ctx context.Context, msg protocol.Message) (interface{}, *protocol.ErrorInfo) {
	var req protocol.ToolsRequest
	if info := decode(msg, &req); info != nil {
		return nil, info
	}
	rs, info := s.resolve(req.ServerID, req.Workspace)
	if info != nil {
		return nil, info
	}

	tools, err := s.tools.Tools(ctx, *rs)
	if err != nil {
		return nil, failure(protocol.CodeDiscoveryFailed, "list tools of %s: %v", rs.ID, err)
	}
	if tools == nil {
		tools = []workflow.Tool{}
	}
	return protocol.ToolsResult{Result: protocol.Success(), ServerID: rs.ID, Tools: tools}, nil
}

func (s *Server) getToolSchema(ctx context.Context, msg protocol.Message) (interface{}, *protocol.ErrorInfo) {
	var req protocol.ToolSchemaRequest
	if info := decode(msg, &req); info != nil {
		return nil, info
	}
	if strings.TrimSpace(req.ToolName) == "" {
		return nil, failure(protocol.CodeInvalidPayload, "toolName is required")
	}
	rs, info := s.resolve(req.ServerID, req.Workspace)
	if info != nil {
		return nil, info
	}

	tool, err := s.tools.Tool(ctx, *rs, req.ToolName)
	switch {
	case errors.Is(err, mcptools.ErrToolNotFound):
		return nil, failure(protocol.CodeToolNotFound, "server %s has no tool %q", rs.ID, req.ToolName)
	case err != nil:
		return nil, failure(protocol.CodeDiscoveryFailed, "get tool %s of %s: %v", req.ToolName, rs.ID, err)
	}
	return protocol.ToolSchemaResult{Result: protocol.Success(), Tool: &tool}, nil
}

func (s *Server) refreshCache(_ context.Context, msg protocol.Message) (interface{}, *protocol.ErrorInfo) {
	var req protocol.RefreshCacheRequest
	if info := decode(msg, &req); info != nil {
		return nil, info
	}
	var cleared int
	if req.ServerID == "" {
		cleared = s.tools.RefreshAll()
	} else {
		cleared = s.tools.Refresh(req.ServerID)
	}
	s.log.Debug().Str("server", req.ServerID).Int("cleared", cleared).Msg("tool cache refreshed")
	return protocol.CacheRefreshed{Result: protocol.Success(), Cleared: cleared}, nil
}

// validated runs full validation and splits blocking errors from warnings.
func validated(w *workflow.Workflow) ([]*workflow.ValidationError, *protocol.ErrorInfo) {
	if w == nil {
		return nil, failure(protocol.CodeInvalidPayload, "workflow is required")
	}
	problems := workflow.Validate(w)
	if workflow.HasErrors(problems) {
		info := failure(protocol.CodeWorkflowInvalid, "workflow %q has %d problem(s)", w.Name, len(problems))
		info.Details = problems
		return problems, info
	}
	return problems, nil
}

func (s *Server) saveWorkflow(_ context.Context, msg protocol.Message) (interface{}, *protocol.ErrorInfo) {
	var req protocol.SaveRequest
	if info := decode(msg, &req); info != nil {
		return nil, info
	}
	if s.store == nil {
		return nil, failure(protocol.CodeIOError, "no workflow store configured")
	}
	problems, info := validated(req.Workflow)
	if info != nil {
		return nil, info
	}

	req.Workflow.UpdatedAt = s.now().UTC()
	path, err := s.store.Save(req.Workflow, req.Overwrite)
	if err != nil {
		return nil, failure(protocol.CodeIOError, "%v", err)
	}
	s.log.Info().Str("path", path).Str("workflow", req.Workflow.Name).Msg("workflow saved")
	return protocol.SaveResult{Result: protocol.Success(), Path: path, Problems: problems}, nil
}

func (s *Server) loadWorkflow(_ context.Context, msg protocol.Message) (interface{}, *protocol.ErrorInfo) {
	var req protocol.LoadRequest
	if info := decode(msg, &req); info != nil {
		return nil, info
	}
	if strings.TrimSpace(req.Name) == "" {
		return nil, failure(protocol.CodeInvalidPayload, "name is required")
	}
	if s.store == nil {
		return nil, failure(protocol.CodeIOError, "no workflow store configured")
	}

	w, err := s.store.Load(req.Name)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return nil, failure(protocol.CodeIOError, "workflow %q not found", req.Name)
	case err != nil:
		return nil, failure(protocol.CodeIOError, "%v", err)
	}
	return protocol.LoadResult{Result: protocol.Success(), Workflow: w}, nil
}

func (s *Server) exportWorkflow(_ context.Context, msg protocol.Message) (interface{}, *protocol.ErrorInfo) {
	var req protocol.ExportRequest
	if info := decode(msg, &req); info != nil {
		return nil, info
	}
	problems, info := validated(req.Workflow)
	if info != nil {
		return nil, info
	}

	content, err := workflow.RenderSlashCommand(req.Workflow)
	if err != nil {
		return nil, failure(protocol.CodeWorkflowInvalid, "%v", err)
	}
	res := protocol.ExportResult{Result: protocol.Success(), Content: string(content), Problems: problems}
	if req.Preview {
		return res, nil
	}

	if s.commandsDir == "" {
		return nil, failure(protocol.CodeIOError, "no commands directory configured")
	}
	path, err := workflow.Export(req.Workflow, s.commandsDir, req.Overwrite)
	if err != nil {
		return nil, failure(protocol.CodeIOError, "%v", err)
	}
	res.Path = path
	s.log.Info().Str("path", path).Str("workflow", req.Workflow.Name).Msg("slash command exported")
	return res, nil
}
