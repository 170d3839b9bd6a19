// ABOUTME: Run is the persistent record of one operation execution.
// ABOUTME: Owns the run directory skeleton and the per-key YAML attribute store.
package run

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

const (
	guildDir = ".guild"
	attrsDir = "attrs"
)

// Run is one tracked execution instance: a unique id and the directory it
// exclusively owns for its lifetime.
type Run struct {
	ID   string
	Path string
}

// New returns a Run handle for the given id and directory. It does not touch
// the filesystem; call InitSkel before writing attributes.
func New(id, path string) *Run {
	return &Run{ID: id, Path: path}
}

// NewID generates a fresh run id: a time-based UUID rendered as 32 hex
// characters. Falls back to a random UUID if the node interface is
// unavailable.
func NewID() string {
	id, err := uuid.NewUUID()
	if err != nil {
		id = uuid.New()
	}
	return strings.ReplaceAll(id.String(), "-", "")
}

// InitSkel creates the run's on-disk scaffold. After it returns, attribute
// writes are valid. It is an error to call it on an already-initialized run
// directory.
func (r *Run) InitSkel() error {
	attrs := filepath.Join(r.Path, guildDir, attrsDir)
	if _, err := os.Stat(attrs); err == nil {
		return fmt.Errorf("run %s: skeleton already initialized", r.ID)
	}
	if err := os.MkdirAll(attrs, 0755); err != nil {
		return fmt.Errorf("init run skeleton: %w", err)
	}
	return nil
}

// GuildPath resolves a path inside the run's control directory (e.g. the
// LOCK marker).
func (r *Run) GuildPath(rel string) string {
	return filepath.Join(r.Path, guildDir, rel)
}

// WriteAttr persists a single named value into the run's attribute store,
// overwriting any previous value.
func (r *Run) WriteAttr(name string, val any) error {
	data, err := yaml.Marshal(val)
	if err != nil {
		return fmt.Errorf("encode attr %s: %w", name, err)
	}
	path := r.GuildPath(filepath.Join(attrsDir, name))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write attr %s: %w", name, err)
	}
	return nil
}

// ReadAttr decodes the named attribute into out. Returns an error wrapping
// fs.ErrNotExist if the attribute was never written.
func (r *Run) ReadAttr(name string, out any) error {
	path := r.GuildPath(filepath.Join(attrsDir, name))
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read attr %s: %w", name, err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode attr %s: %w", name, err)
	}
	return nil
}

// HasAttr reports whether the named attribute has been written.
func (r *Run) HasAttr(name string) bool {
	_, err := os.Stat(r.GuildPath(filepath.Join(attrsDir, name)))
	return err == nil
}

// Completed reports whether the run finished under supervision. A run
// missing exit_status or stopped was interrupted or is still in flight.
func (r *Run) Completed() bool {
	return r.HasAttr("exit_status") && r.HasAttr("stopped")
}

// Attrs reads every attribute in the store, decoded to plain values, keyed
// by attribute name in sorted order of the underlying files.
func (r *Run) Attrs() (map[string]any, error) {
	dir := r.GuildPath(attrsDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("run %s has no attribute store: %w", r.ID, err)
		}
		return nil, fmt.Errorf("list attrs: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	attrs := make(map[string]any, len(names))
	for _, name := range names {
		var val any
		if err := r.ReadAttr(name, &val); err != nil {
			return nil, err
		}
		attrs[name] = val
	}
	return attrs, nil
}
