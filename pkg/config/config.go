// Package config loads wfstudio settings: a .wfstudio.yaml manifest
// discovered upward from the working directory, overridden by WFSTUDIO_*
// environment variables.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// FileName is the settings manifest looked up from the working directory upward.
const FileName = ".wfstudio.yaml"

// Settings is the full studio configuration.
type Settings struct {
	// LegacyConfigPath is the combined Claude config file (user + local scopes).
	// Default: ~/.claude.json
	LegacyConfigPath string `yaml:"legacy_config,omitempty"`

	// Workspace is the project root used for project and local scope lookups.
	// Default: the directory holding the manifest, or the working directory.
	Workspace string `yaml:"workspace,omitempty"`

	// WorkflowDir is where workflow JSON files are saved, relative to Workspace.
	WorkflowDir string `yaml:"workflow_dir,omitempty"`

	// CommandsDir is where slash commands are exported, relative to Workspace.
	CommandsDir string `yaml:"commands_dir,omitempty"`

	RequestTimeout   Duration `yaml:"request_timeout,omitempty"`
	SchemaTimeout    Duration `yaml:"schema_timeout,omitempty"`
	DiscoveryTimeout Duration `yaml:"discovery_timeout,omitempty"`
	ToolCacheTTL     Duration `yaml:"tool_cache_ttl,omitempty"`
	ToolCacheSize    int      `yaml:"tool_cache_size,omitempty"`

	LogLevel  string `yaml:"log_level,omitempty"`
	LogPretty bool   `yaml:"log_pretty,omitempty"`

	// Root is the directory containing the manifest. Empty when none was found.
	Root string `yaml:"-"`
}

// Duration is a time.Duration written as a Go duration string ("30s").
type Duration time.Duration

// UnmarshalYAML parses "30s"-style strings.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: invalid duration %q: %w", node.Line, s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML writes the duration as a string.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Defaults returns the built-in settings.
func Defaults() *Settings {
	s := &Settings{
		WorkflowDir:      filepath.Join(".vscode", "workflows"),
		CommandsDir:      filepath.Join(".claude", "commands"),
		RequestTimeout:   Duration(30 * time.Second),
		SchemaTimeout:    Duration(60 * time.Second),
		DiscoveryTimeout: Duration(20 * time.Second),
		ToolCacheTTL:     Duration(10 * time.Minute),
		ToolCacheSize:    64,
		LogLevel:         "info",
	}
	if home, err := os.UserHomeDir(); err == nil {
		s.LegacyConfigPath = filepath.Join(home, ".claude.json")
	}
	return s
}

// LoadFile reads a manifest on top of the defaults. Unknown keys are errors.
func LoadFile(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	s := Defaults()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(s); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse settings %s: %w", path, err)
	}
	s.Root = filepath.Dir(path)
	if s.Workspace == "" {
		s.Workspace = s.Root
	} else if !filepath.IsAbs(s.Workspace) {
		s.Workspace = filepath.Join(s.Root, s.Workspace)
	}
	return s, nil
}

// Discover walks up from startPath looking for a manifest. When none is found
// the defaults are returned with Workspace set to startPath.
func Discover(startPath string) (*Settings, error) {
	abs, err := filepath.Abs(startPath)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}
	dir := abs
	if !info.IsDir() {
		dir = filepath.Dir(abs)
	}

	for {
		candidate := filepath.Join(dir, FileName)
		if _, err := os.Stat(candidate); err == nil {
			return LoadFile(candidate)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	s := Defaults()
	if info.IsDir() {
		s.Workspace = abs
	} else {
		s.Workspace = filepath.Dir(abs)
	}
	return s, nil
}

// ApplyEnv overrides settings from WFSTUDIO_* variables using lookup
// (normally os.LookupEnv).
func (s *Settings) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	dur := func(key string, dst *Duration) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = Duration(d)
		return nil
	}

	str("WFSTUDIO_CLAUDE_CONFIG", &s.LegacyConfigPath)
	str("WFSTUDIO_WORKSPACE", &s.Workspace)
	str("WFSTUDIO_WORKFLOW_DIR", &s.WorkflowDir)
	str("WFSTUDIO_COMMANDS_DIR", &s.CommandsDir)
	str("WFSTUDIO_LOG_LEVEL", &s.LogLevel)

	for key, dst := range map[string]*Duration{
		"WFSTUDIO_REQUEST_TIMEOUT":   &s.RequestTimeout,
		"WFSTUDIO_SCHEMA_TIMEOUT":    &s.SchemaTimeout,
		"WFSTUDIO_DISCOVERY_TIMEOUT": &s.DiscoveryTimeout,
		"WFSTUDIO_TOOL_CACHE_TTL":    &s.ToolCacheTTL,
	} {
		if err := dur(key, dst); err != nil {
			return err
		}
	}

	if v, ok := lookup("WFSTUDIO_TOOL_CACHE_SIZE"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return fmt.Errorf("WFSTUDIO_TOOL_CACHE_SIZE: invalid size %q", v)
		}
		s.ToolCacheSize = n
	}
	if v, ok := lookup("WFSTUDIO_LOG_PRETTY"); ok && v != "" {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("WFSTUDIO_LOG_PRETTY: %w", err)
		}
		s.LogPretty = b
	}
	return nil
}

// WorkflowPath returns the absolute workflow directory.
func (s *Settings) WorkflowPath() string {
	return s.resolve(s.WorkflowDir)
}

// CommandsPath returns the absolute slash command directory.
func (s *Settings) CommandsPath() string {
	return s.resolve(s.CommandsDir)
}

func (s *Settings) resolve(p string) string {
	if filepath.IsAbs(p) || s.Workspace == "" {
		return p
	}
	return filepath.Join(s.Workspace, p)
}
