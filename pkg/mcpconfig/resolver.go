package mcpconfig

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/rs/zerolog"
)

// ProjectFileName is the project-scope config file inside a workspace.
const ProjectFileName = ".mcp.json"

type projectFile struct {
	MCPServers map[string]json.RawMessage `json:"mcpServers"`
}

type legacyFile struct {
	MCPServers map[string]json.RawMessage `json:"mcpServers"`
	Projects   map[string]struct {
		MCPServers map[string]json.RawMessage `json:"mcpServers"`
	} `json:"projects"`
}

// scopeEntries is the raw server map read from one scope.
type scopeEntries struct {
	scope   Scope
	source  string
	servers map[string]json.RawMessage
}

// Resolver looks up servers across scopes. It never writes configuration and
// never fails: unreadable files are logged and treated as empty.
type Resolver struct {
	legacyPath string
	log        zerolog.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLegacyPath overrides the location of the legacy ~/.claude.json.
func WithLegacyPath(path string) Option {
	return func(r *Resolver) { r.legacyPath = path }
}

// WithLogger attaches a logger.
func WithLogger(l zerolog.Logger) Option {
	return func(r *Resolver) { r.log = l }
}

// NewResolver returns a resolver reading ~/.claude.json unless overridden.
func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{log: zerolog.Nop()}
	if home, err := os.UserHomeDir(); err == nil {
		r.legacyPath = filepath.Join(home, ".claude.json")
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// LegacyPath returns the legacy config file the resolver reads.
func (r *Resolver) LegacyPath() string {
	return r.legacyPath
}

// Resolve returns the first valid definition of serverID in precedence
// order project, local, user. An invalid definition in a higher scope does
// not hide a valid one in a lower scope.
func (r *Resolver) Resolve(serverID, workspace string) (*ResolvedServer, bool) {
	for _, s := range r.scopes(workspace) {
		raw, ok := s.servers[serverID]
		if !ok {
			continue
		}
		cfg, ok := r.normalizeEntry(s, serverID, raw)
		if !ok {
			continue
		}
		return &ResolvedServer{ID: serverID, Scope: s.scope, Config: cfg, Source: s.source}, true
	}
	r.log.Debug().Str("server", serverID).Str("workspace", workspace).Msg("server not found in any scope")
	return nil, false
}

// ListServerIDs returns every server id defined in any scope, deduplicated
// and sorted. Entries are not normalized.
func (r *Resolver) ListServerIDs(workspace string) []string {
	set := make(map[string]struct{})
	for _, s := range r.scopes(workspace) {
		for id := range s.servers {
			set[id] = struct{}{}
		}
	}
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ListServers resolves every listed id and returns those that resolve,
// sorted by id.
func (r *Resolver) ListServers(workspace string) []ResolvedServer {
	scopes := r.scopes(workspace)
	seen := make(map[string]bool)
	var out []ResolvedServer
	for _, s := range scopes {
		for id, raw := range s.servers {
			if seen[id] {
				continue
			}
			cfg, ok := r.normalizeEntry(s, id, raw)
			if !ok {
				continue
			}
			seen[id] = true
			out = append(out, ResolvedServer{ID: id, Scope: s.scope, Config: cfg, Source: s.source})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *Resolver) normalizeEntry(s scopeEntries, id string, raw json.RawMessage) (ServerConfig, bool) {
	log := r.log.With().Str("server", id).Str("scope", string(s.scope)).Str("path", s.source).Logger()

	var cfg ServerConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		log.Warn().Err(err).Msg("malformed server entry, ignoring")
		return ServerConfig{}, false
	}
	norm, err := Normalize(cfg)
	if err != nil {
		log.Warn().Err(err).Msg("unresolvable server entry, ignoring")
		return ServerConfig{}, false
	}
	return norm, true
}

// scopes reads the three scopes in precedence order. Missing scopes are
// returned empty.
func (r *Resolver) scopes(workspace string) []scopeEntries {
	var out []scopeEntries

	if workspace != "" {
		path := filepath.Join(workspace, ProjectFileName)
		var pf projectFile
		if r.readJSON(path, string(ScopeProject), &pf) {
			out = append(out, scopeEntries{scope: ScopeProject, source: path, servers: pf.MCPServers})
		}
	}

	if r.legacyPath == "" {
		return out
	}
	var lf legacyFile
	if !r.readJSON(r.legacyPath, "legacy", &lf) {
		return out
	}
	if workspace != "" {
		if p, ok := lookupProject(lf, workspace); ok {
			out = append(out, scopeEntries{scope: ScopeLocal, source: r.legacyPath, servers: p})
		}
	}
	out = append(out, scopeEntries{scope: ScopeUser, source: r.legacyPath, servers: lf.MCPServers})
	return out
}

// lookupProject finds the workspace entry, tolerating trailing separators
// and relative spellings.
func lookupProject(lf legacyFile, workspace string) (map[string]json.RawMessage, bool) {
	if p, ok := lf.Projects[workspace]; ok {
		return p.MCPServers, true
	}
	clean := filepath.Clean(workspace)
	if abs, err := filepath.Abs(clean); err == nil {
		clean = abs
	}
	for key, p := range lf.Projects {
		if filepath.Clean(key) == clean {
			return p.MCPServers, true
		}
	}
	return nil, false
}

func (r *Resolver) readJSON(path, label string, v interface{}) bool {
	log := r.log.With().Str("scope", label).Str("path", path).Logger()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			log.Debug().Msg("config file not present")
		} else {
			log.Warn().Err(err).Msg("cannot read config file")
		}
		return false
	}
	if err := json.Unmarshal(data, v); err != nil {
		log.Warn().Err(err).Msg("malformed config file, ignoring")
		return false
	}
	return true
}
