package protocol

import "github.com/ormasoftchile/wfstudio/pkg/workflow"

// ListServersRequest is the LIST_MCP_SERVERS payload.
type ListServersRequest struct {
	Workspace string `json:"workspace,omitempty"`
}

// ServerInfo describes one configured MCP server. Secrets are redacted.
type ServerInfo struct {
	ID      string            `json:"id"`
	Name    string            `json:"name"`
	Scope   string            `json:"scope"`
	Type    string            `json:"type"`
	Command string            `json:"command,omitempty"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
	URL     string            `json:"url,omitempty"`
	Source  string            `json:"source,omitempty"`
}

// ServersResult is the MCP_SERVERS_RESULT payload.
type ServersResult struct {
	Result
	Servers []ServerInfo `json:"servers"`
}

// ToolsRequest is the GET_MCP_TOOLS payload.
type ToolsRequest struct {
	ServerID  string `json:"serverId"`
	Workspace string `json:"workspace,omitempty"`
}

// ToolsResult is the MCP_TOOLS_RESULT payload.
type ToolsResult struct {
	Result
	ServerID string          `json:"serverId"`
	Tools    []workflow.Tool `json:"tools"`
}

// ToolSchemaRequest is the GET_MCP_TOOL_SCHEMA payload.
type ToolSchemaRequest struct {
	ServerID  string `json:"serverId"`
	ToolName  string `json:"toolName"`
	Workspace string `json:"workspace,omitempty"`
}

// ToolSchemaResult is the MCP_TOOL_SCHEMA_RESULT payload.
type ToolSchemaResult struct {
	Result
	Tool *workflow.Tool `json:"tool,omitempty"`
}

// RefreshCacheRequest is the REFRESH_MCP_CACHE payload. An empty ServerID
// clears every cached server.
type RefreshCacheRequest struct {
	ServerID string `json:"serverId,omitempty"`
}

// CacheRefreshed is the MCP_CACHE_REFRESHED payload.
type CacheRefreshed struct {
	Result
	Cleared int `json:"cleared"`
}

// SaveRequest is the SAVE_WORKFLOW payload.
type SaveRequest struct {
	Workflow  *workflow.Workflow `json:"workflow"`
	Overwrite bool               `json:"overwrite,omitempty"`
}

// SaveResult is the SAVE_SUCCESS payload.
type SaveResult struct {
	Result
	Path     string                      `json:"path,omitempty"`
	Problems []*workflow.ValidationError `json:"problems,omitempty"`
}

// LoadRequest is the LOAD_WORKFLOW payload.
type LoadRequest struct {
	Name string `json:"name"`
}

// LoadResult is the WORKFLOW_LOADED payload.
type LoadResult struct {
	Result
	Workflow *workflow.Workflow `json:"workflow,omitempty"`
}

// ExportRequest is the EXPORT_WORKFLOW payload. Preview renders the command
// without writing it.
type ExportRequest struct {
	Workflow  *workflow.Workflow `json:"workflow"`
	Overwrite bool               `json:"overwrite,omitempty"`
	Preview   bool               `json:"preview,omitempty"`
}

// ExportResult is the EXPORT_SUCCESS payload.
type ExportResult struct {
	Result
	Path     string                      `json:"path,omitempty"`
	Content  string                      `json:"content,omitempty"`
	Problems []*workflow.ValidationError `json:"problems,omitempty"`
}

// CancelPayload is the CANCEL_REQUEST payload.
type CancelPayload struct {
	TargetRequestID string `json:"targetRequestId"`
}

// CancelledPayload is the CANCELLED payload, sent on the cancelled request id.
type CancelledPayload struct {
	Reason string `json:"reason,omitempty"`
}

// Success is a Result with Success set.
func Success() Result { return Result{Success: true} }

// Failure is a Result carrying an error.
func Failure(code, message string, details interface{}) Result {
	return Result{Error: &ErrorInfo{Code: code, Message: message, Details: details}}
}
