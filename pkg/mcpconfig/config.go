// Package mcpconfig resolves MCP server configuration from the three scopes
// Claude Code reads: the project's .mcp.json, the workspace entry of the
// legacy ~/.claude.json, and that file's top-level user entries.
package mcpconfig

import (
	"errors"
	"fmt"
)

// TransportType is how the studio talks to a server.
type TransportType string

const (
	TransportStdio TransportType = "stdio"
	TransportHTTP  TransportType = "http"
	TransportSSE   TransportType = "sse"
)

// Scope names where a server definition came from, highest precedence first.
type Scope string

const (
	ScopeProject Scope = "project"
	ScopeLocal   Scope = "local"
	ScopeUser    Scope = "user"
)

// Normalization failures. Each makes the entry unresolvable.
var (
	ErrURLWithoutType = errors.New("url without explicit type is ambiguous")
	ErrNoTransport    = errors.New("neither command nor url is set")
	ErrUnknownType    = errors.New("unknown transport type")
	ErrMissingCommand = errors.New("stdio server has no command")
	ErrMissingURL     = errors.New("remote server has no url")
)

// ServerConfig is one mcpServers entry.
type ServerConfig struct {
	Type    TransportType     `json:"type,omitempty"`
	Command string            `json:"command,omitempty"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
	URL     string            `json:"url,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}

// ResolvedServer is a normalized server with its provenance.
type ResolvedServer struct {
	ID     string       `json:"id"`
	Scope  Scope        `json:"scope"`
	Config ServerConfig `json:"config"`
	Source string       `json:"source"`
}

// Normalize infers a missing type and checks that the transport field for
// the type is present. An entry with a url but no type and no command is
// rejected rather than guessed as http or sse.
func Normalize(cfg ServerConfig) (ServerConfig, error) {
	if cfg.Type == "" {
		switch {
		case cfg.Command != "":
			cfg.Type = TransportStdio
			return cfg, nil
		case cfg.URL != "":
			return ServerConfig{}, ErrURLWithoutType
		default:
			return ServerConfig{}, ErrNoTransport
		}
	}

	switch cfg.Type {
	case TransportStdio:
		if cfg.Command == "" {
			return ServerConfig{}, ErrMissingCommand
		}
	case TransportHTTP, TransportSSE:
		if cfg.URL == "" {
			return ServerConfig{}, ErrMissingURL
		}
	default:
		return ServerConfig{}, fmt.Errorf("%w %q", ErrUnknownType, cfg.Type)
	}
	return cfg, nil
}
