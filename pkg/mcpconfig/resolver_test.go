package mcpconfig

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	workspace string
	legacy    string
	logs      *bytes.Buffer
	resolver  *Resolver
}

func newFixture(t *testing.T, project, legacy string) *fixture {
	t.Helper()
	root := t.TempDir()
	ws := filepath.Join(root, "workspace")
	require.NoError(t, os.MkdirAll(ws, 0o755))
	legacyPath := filepath.Join(root, ".claude.json")

	if project != "" {
		require.NoError(t, os.WriteFile(filepath.Join(ws, ProjectFileName), []byte(project), 0o644))
	}
	if legacy != "" {
		legacy = expandWorkspace(legacy, ws)
		require.NoError(t, os.WriteFile(legacyPath, []byte(legacy), 0o644))
	}

	logs := &bytes.Buffer{}
	log := zerolog.New(logs).Level(zerolog.DebugLevel)
	return &fixture{
		workspace: ws,
		legacy:    legacyPath,
		logs:      logs,
		resolver:  NewResolver(WithLegacyPath(legacyPath), WithLogger(log)),
	}
}

// expandWorkspace substitutes the workspace path for the WS placeholder.
func expandWorkspace(s, ws string) string {
	return string(bytes.ReplaceAll([]byte(s), []byte("WS"), []byte(ws)))
}

const legacyFixture = `{
  "mcpServers": {
    "aws-knowledge-mcp": {"command": "uvx", "args": ["awslabs.aws-knowledge-mcp"]},
    "user-only": {"type": "http", "url": "https://mcp.example.com"}
  },
  "projects": {
    "WS": {
      "mcpServers": {
        "aws-knowledge-mcp": {"command": "local-aws"},
        "local-only": {"type": "sse", "url": "https://sse.example.com/events"}
      }
    },
    "/some/other/project": {
      "mcpServers": {"elsewhere": {"command": "x"}}
    }
  }
}`

func TestResolve_Precedence(t *testing.T) {
	project := `{"mcpServers": {"aws-knowledge-mcp": {"command": "project-aws"}, "project-only": {"command": "p"}}}`
	f := newFixture(t, project, legacyFixture)

	tests := []struct {
		id        string
		wantScope Scope
		wantType  TransportType
		wantCmd   string
		wantURL   string
	}{
		{id: "aws-knowledge-mcp", wantScope: ScopeProject, wantType: TransportStdio, wantCmd: "project-aws"},
		{id: "project-only", wantScope: ScopeProject, wantType: TransportStdio, wantCmd: "p"},
		{id: "local-only", wantScope: ScopeLocal, wantType: TransportSSE, wantURL: "https://sse.example.com/events"},
		{id: "user-only", wantScope: ScopeUser, wantType: TransportHTTP, wantURL: "https://mcp.example.com"},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			got, ok := f.resolver.Resolve(tt.id, f.workspace)
			require.True(t, ok)
			assert.Equal(t, tt.id, got.ID)
			assert.Equal(t, tt.wantScope, got.Scope)
			assert.Equal(t, tt.wantType, got.Config.Type)
			assert.Equal(t, tt.wantCmd, got.Config.Command)
			assert.Equal(t, tt.wantURL, got.Config.URL)
		})
	}
}

func TestResolve_LocalBeatsUser(t *testing.T) {
	f := newFixture(t, "", legacyFixture)

	got, ok := f.resolver.Resolve("aws-knowledge-mcp", f.workspace)
	require.True(t, ok)
	assert.Equal(t, ScopeLocal, got.Scope)
	assert.Equal(t, "local-aws", got.Config.Command)
	assert.Equal(t, f.legacy, got.Source)
}

func TestResolve_WithoutWorkspaceUsesUserScope(t *testing.T) {
	f := newFixture(t, "", legacyFixture)

	got, ok := f.resolver.Resolve("aws-knowledge-mcp", "")
	require.True(t, ok)
	assert.Equal(t, ScopeUser, got.Scope)
	assert.Equal(t, []string{"awslabs.aws-knowledge-mcp"}, got.Config.Args)

	_, ok = f.resolver.Resolve("local-only", "")
	assert.False(t, ok)
}

func TestResolve_NotFound(t *testing.T) {
	tests := []struct {
		name    string
		project string
		legacy  string
	}{
		{name: "no files at all"},
		{name: "absent everywhere", project: `{"mcpServers": {}}`, legacy: legacyFixture},
		{name: "malformed project file", project: `{not json`, legacy: `{"mcpServers": {}}`},
		{name: "malformed legacy file", legacy: `[1, 2`},
		{name: "legacy without mcpServers", legacy: `{"projects": {}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.project, tt.legacy)
			got, ok := f.resolver.Resolve("ghost", f.workspace)
			assert.False(t, ok)
			assert.Nil(t, got)
		})
	}
}

func TestResolve_MalformedProjectFallsThrough(t *testing.T) {
	f := newFixture(t, `{"mcpServers": `, legacyFixture)

	got, ok := f.resolver.Resolve("aws-knowledge-mcp", f.workspace)
	require.True(t, ok)
	assert.Equal(t, ScopeLocal, got.Scope)
	assert.Contains(t, f.logs.String(), `"level":"warn"`)
	assert.Contains(t, f.logs.String(), "malformed config file")
}

func TestResolve_MissingFileLogsAtDebug(t *testing.T) {
	f := newFixture(t, "", "")

	_, ok := f.resolver.Resolve("x", f.workspace)
	assert.False(t, ok)
	assert.Contains(t, f.logs.String(), "config file not present")
	assert.NotContains(t, f.logs.String(), `"level":"warn"`)
}

func TestResolve_InvalidEntryFallsThroughToLowerScope(t *testing.T) {
	project := `{"mcpServers": {"aws-knowledge-mcp": {"url": "https://ambiguous.example.com"}}}`
	f := newFixture(t, project, legacyFixture)

	got, ok := f.resolver.Resolve("aws-knowledge-mcp", f.workspace)
	require.True(t, ok)
	assert.Equal(t, ScopeLocal, got.Scope)
	assert.Contains(t, f.logs.String(), "unresolvable server entry")
}

func TestResolve_URLWithoutTypeIsUnresolvable(t *testing.T) {
	f := newFixture(t, `{"mcpServers": {"remote": {"url": "https://mcp.example.com"}}}`, "")

	got, ok := f.resolver.Resolve("remote", f.workspace)
	assert.False(t, ok, "must not guess http or sse")
	assert.Nil(t, got)
}

func TestListServerIDs(t *testing.T) {
	project := `{"mcpServers": {"aws-knowledge-mcp": {"command": "p"}, "project-only": {"url": "https://x"}}}`
	f := newFixture(t, project, legacyFixture)

	ids := f.resolver.ListServerIDs(f.workspace)
	assert.Equal(t, []string{"aws-knowledge-mcp", "local-only", "project-only", "user-only"}, ids)

	assert.Equal(t, []string{"aws-knowledge-mcp", "user-only"}, f.resolver.ListServerIDs(""))
}

func TestListServerIDs_NoFiles(t *testing.T) {
	f := newFixture(t, "", "")
	assert.Empty(t, f.resolver.ListServerIDs(f.workspace))
}

func TestListServers(t *testing.T) {
	project := `{"mcpServers": {"aws-knowledge-mcp": {"command": "p"}, "broken": {"type": "carrier-pigeon"}}}`
	f := newFixture(t, project, legacyFixture)

	servers := f.resolver.ListServers(f.workspace)
	require.Len(t, servers, 3)

	got := map[string]Scope{}
	for _, s := range servers {
		got[s.ID] = s.Scope
	}
	assert.Equal(t, map[string]Scope{
		"aws-knowledge-mcp": ScopeProject,
		"local-only":        ScopeLocal,
		"user-only":         ScopeUser,
	}, got)
	assert.Equal(t, "aws-knowledge-mcp", servers[0].ID)
}

func TestLookupProject_TrailingSeparator(t *testing.T) {
	f := newFixture(t, "", legacyFixture)

	got, ok := f.resolver.Resolve("local-only", f.workspace+string(filepath.Separator))
	require.True(t, ok)
	assert.Equal(t, ScopeLocal, got.Scope)
}
