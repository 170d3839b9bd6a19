// ABOUTME: Model and operation definitions loaded from guild.yml project files.
// ABOUTME: Defines the string-or-list command variant, flag values, and runtime spec.
package guildfile

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// ModelRef identifies the package/model a definition came from. Empty fields
// mean the component is unknown (e.g. a script model has no package version).
type ModelRef struct {
	PkgType    string
	PkgName    string
	PkgVersion string
	ModelName  string
}

// Guildfile is a parsed guild.yml file: a list of model definitions.
type Guildfile struct {
	Src    string // absolute path of the source file
	Models []*ModelDef
}

// ModelDef describes one model and its operations.
type ModelDef struct {
	Name            string            `yaml:"model"`
	Description     string            `yaml:"description,omitempty"`
	Operations      map[string]*OpDef `yaml:"operations"`
	DisabledPlugins []string          `yaml:"disabled-plugins,omitempty"`

	// Reference and Src are derived at load time, not read from YAML.
	Reference ModelRef `yaml:"-"`
	Src       string   `yaml:"-"`
}

// OpDef describes one operation: its command template, flag values,
// dependency declarations, and runtime.
type OpDef struct {
	Name            string         `yaml:"-"`
	Cmd             CmdSpec        `yaml:"cmd"`
	Flags           map[string]any `yaml:"flags,omitempty"`
	Dependencies    []Dependency   `yaml:"requires,omitempty"`
	DisabledPlugins []string       `yaml:"disabled-plugins,omitempty"`
	Runtime         RuntimeSpec    `yaml:"runtime,omitempty"`

	ModelDef *ModelDef `yaml:"-"`
}

// RuntimeSpec identifies the interpreter used to launch the operation and the
// entry-point module that speaks the run protocol. Zero fields fall back to
// the Python defaults the tool ships with.
type RuntimeSpec struct {
	Interpreter string `yaml:"interpreter,omitempty"`
	ModuleFlag  string `yaml:"module-flag,omitempty"`
	EntryModule string `yaml:"entry-module,omitempty"`
}

// WithDefaults fills unset runtime fields with the stock Python entry point.
func (r RuntimeSpec) WithDefaults() RuntimeSpec {
	if r.Interpreter == "" {
		r.Interpreter = "python"
	}
	if r.ModuleFlag == "" {
		r.ModuleFlag = "-um"
	}
	if r.EntryModule == "" {
		r.EntryModule = "guild.op_main"
	}
	return r
}

// Dependency is one dependency declaration. In YAML it is either a bare
// source string or a mapping with source and link keys.
type Dependency struct {
	Source string `yaml:"source"`
	Link   bool   `yaml:"link,omitempty"`
}

// UnmarshalYAML accepts either a scalar source string or a full mapping.
func (d *Dependency) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		var s string
		if err := node.Decode(&s); err != nil {
			return err
		}
		d.Source = s
		return nil
	}
	type rawDep Dependency
	var raw rawDep
	if err := node.Decode(&raw); err != nil {
		return err
	}
	*d = Dependency(raw)
	return nil
}

// Load parses a guild.yml file and wires up back-references. Duplicate
// mapping keys (including duplicate flag names) are rejected by the YAML
// decoder.
func Load(path string) (*Guildfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read guildfile: %w", err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve guildfile path: %w", err)
	}
	var models []*ModelDef
	if err := yaml.Unmarshal(data, &models); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	gf := &Guildfile{Src: abs, Models: models}
	for i, m := range models {
		if m.Name == "" {
			return nil, fmt.Errorf("parse %s: model %d has no name", path, i)
		}
		m.Src = abs
		m.Reference = ModelRef{
			PkgType:   "guildfile",
			PkgName:   filepath.Dir(abs),
			ModelName: m.Name,
		}
		for name, op := range m.Operations {
			op.Name = name
			op.ModelDef = m
		}
	}
	return gf, nil
}

// ModelNamed returns the model with the given name, or nil.
func (gf *Guildfile) ModelNamed(name string) *ModelDef {
	for _, m := range gf.Models {
		if m.Name == name {
			return m
		}
	}
	return nil
}

// DefaultModel returns the sole model in the file, or nil if the file
// defines zero or more than one model.
func (gf *Guildfile) DefaultModel() *ModelDef {
	if len(gf.Models) == 1 {
		return gf.Models[0]
	}
	return nil
}

// OpNamed returns the named operation, or nil.
func (m *ModelDef) OpNamed(name string) *OpDef {
	return m.Operations[name]
}

// SrcDir returns the directory containing the definition's guildfile.
func (op *OpDef) SrcDir() string {
	if op.ModelDef == nil {
		return ""
	}
	return filepath.Dir(op.ModelDef.Src)
}

// FlagVals returns a copy of the operation's flag mapping.
func (op *OpDef) FlagVals() map[string]any {
	vals := make(map[string]any, len(op.Flags))
	for name, val := range op.Flags {
		vals[name] = val
	}
	return vals
}

// FlagNames returns the operation's flag names in lexicographic order.
func (op *OpDef) FlagNames() []string {
	names := make([]string, 0, len(op.Flags))
	for name := range op.Flags {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
