package workflow

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrExists is returned when saving over an existing file without overwrite.
var ErrExists = errors.New("workflow already exists")

// Store persists workflows as indented JSON files in one directory.
type Store struct {
	Dir string
}

// NewStore returns a store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{Dir: dir}
}

// Path returns the file that holds the named workflow.
func (s *Store) Path(name string) string {
	return filepath.Join(s.Dir, name+".json")
}

// Save writes the workflow. The name must be a valid slug.
func (s *Store) Save(w *Workflow, overwrite bool) (string, error) {
	if !namePattern.MatchString(w.Name) {
		return "", fmt.Errorf("invalid workflow name %q", w.Name)
	}
	path := s.Path(w.Name)
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return "", fmt.Errorf("%w: %s", ErrExists, path)
		}
	}
	if w.Version == "" {
		w.Version = SchemaVersion
	}

	data, err := json.MarshalIndent(w, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal workflow: %w", err)
	}
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create workflow dir: %w", err)
	}

	// atomic replace
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0o644); err != nil {
		return "", fmt.Errorf("write workflow: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("replace workflow: %w", err)
	}
	return path, nil
}

// Load reads the named workflow.
func (s *Store) Load(name string) (*Workflow, error) {
	return LoadFile(s.Path(name))
}

// LoadFile reads a workflow from an arbitrary path.
func LoadFile(path string) (*Workflow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read workflow: %w", err)
	}
	var w Workflow
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("parse workflow %s: %w", path, err)
	}
	return &w, nil
}

// List returns the names of saved workflows, sorted.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list workflows: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), ".json"))
	}
	sort.Strings(names)
	return names, nil
}

// Delete removes the named workflow.
func (s *Store) Delete(name string) error {
	if err := os.Remove(s.Path(name)); err != nil {
		return fmt.Errorf("delete workflow: %w", err)
	}
	return nil
}
