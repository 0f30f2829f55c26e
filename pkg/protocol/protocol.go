// Package protocol defines the messages exchanged between a studio UI surface
// and the privileged host. Every message is a {type, requestId, payload}
// envelope; requests and their responses share the same requestId.
package protocol

import (
	"encoding/json"
	"fmt"
)

// MessageType names a request or response kind.
type MessageType string

// Requests sent by the UI.
const (
	ListMCPServers   MessageType = "LIST_MCP_SERVERS"
	GetMCPTools      MessageType = "GET_MCP_TOOLS"
	GetMCPToolSchema MessageType = "GET_MCP_TOOL_SCHEMA"
	RefreshMCPCache  MessageType = "REFRESH_MCP_CACHE"
	SaveWorkflow     MessageType = "SAVE_WORKFLOW"
	LoadWorkflow     MessageType = "LOAD_WORKFLOW"
	ExportWorkflow   MessageType = "EXPORT_WORKFLOW"
	CancelRequest    MessageType = "CANCEL_REQUEST"
)

// Responses sent by the host.
const (
	MCPServersResult    MessageType = "MCP_SERVERS_RESULT"
	MCPToolsResult      MessageType = "MCP_TOOLS_RESULT"
	MCPToolSchemaResult MessageType = "MCP_TOOL_SCHEMA_RESULT"
	MCPCacheRefreshed   MessageType = "MCP_CACHE_REFRESHED"
	SaveSuccess         MessageType = "SAVE_SUCCESS"
	WorkflowLoaded      MessageType = "WORKFLOW_LOADED"
	ExportSuccess       MessageType = "EXPORT_SUCCESS"
	Cancelled           MessageType = "CANCELLED"

	// Error is the catch-all failure signal.
	Error MessageType = "ERROR"
)

// Error codes carried in ErrorInfo.Code.
const (
	CodeInvalidPayload  = "INVALID_PAYLOAD"
	CodeServerNotFound  = "SERVER_NOT_FOUND"
	CodeToolNotFound    = "TOOL_NOT_FOUND"
	CodeDiscoveryFailed = "DISCOVERY_FAILED"
	CodeWorkflowInvalid = "WORKFLOW_INVALID"
	CodeIOError         = "IO_ERROR"
	CodeUnknownRequest  = "UNKNOWN_REQUEST"
	CodeInternal        = "INTERNAL"
)

// Message is the envelope for every message on the bus.
type Message struct {
	Type      MessageType     `json:"type"`
	RequestID string          `json:"requestId,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// NewMessage marshals payload into a message. A nil payload yields an empty one.
func NewMessage(t MessageType, requestID string, payload interface{}) (Message, error) {
	msg := Message{Type: t, RequestID: requestID}
	if payload == nil {
		return msg, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("marshal %s payload: %w", t, err)
	}
	msg.Payload = data
	return msg, nil
}

// Decode unmarshals the payload into v.
func (m Message) Decode(v interface{}) error {
	if len(m.Payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(m.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", m.Type, err)
	}
	return nil
}

// ErrorInfo is the {code, message, details?} error object.
type ErrorInfo struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func (e *ErrorInfo) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Result is embedded in every typed response payload.
type Result struct {
	Success bool       `json:"success"`
	Error   *ErrorInfo `json:"error,omitempty"`
}

// Failed returns the embedded error when Success is false.
func (r Result) Failed() *ErrorInfo {
	if r.Success {
		return nil
	}
	if r.Error == nil {
		return &ErrorInfo{Code: CodeInternal, Message: "request failed"}
	}
	return r.Error
}

// Routes maps each request type to the typed response that answers it.
// ERROR and CANCELLED may answer any request.
var Routes = map[MessageType]MessageType{
	ListMCPServers:   MCPServersResult,
	GetMCPTools:      MCPToolsResult,
	GetMCPToolSchema: MCPToolSchemaResult,
	RefreshMCPCache:  MCPCacheRefreshed,
	SaveWorkflow:     SaveSuccess,
	LoadWorkflow:     WorkflowLoaded,
	ExportWorkflow:   ExportSuccess,
}

// IsRequest reports whether t is a request type the host handles.
func IsRequest(t MessageType) bool {
	if t == CancelRequest {
		return true
	}
	_, ok := Routes[t]
	return ok
}

// ResponseFor returns the typed response for a request.
func ResponseFor(t MessageType) (MessageType, bool) {
	r, ok := Routes[t]
	return r, ok
}
