// ABOUTME: OpRef identifies the package/model/operation provenance of a run.
// ABOUTME: Implements both the canonical attribute grammar and the loose CLI grammar.
package opref

import (
	"fmt"
	"regexp"

	"github.com/cjbayron/guildai/guildfile"
	"github.com/cjbayron/guildai/run"
)

// Field is one component of an OpRef. Unknown fields stay distinguishable
// from empty strings: only String() collapses them to the "?" placeholder.
type Field struct {
	Value string
	Known bool
}

// Known wraps a value as a known field.
func Known(v string) Field { return Field{Value: v, Known: true} }

// Unknown is the absent field.
func Unknown() Field { return Field{} }

func (f Field) String() string {
	if !f.Known {
		return "?"
	}
	return f.Value
}

func fieldOf(v string) Field {
	if v == "" {
		return Unknown()
	}
	return Known(v)
}

// OpRef is the 5-tuple linking a run back to its originating operation.
// Immutable once constructed.
type OpRef struct {
	PkgType    Field
	PkgName    Field
	PkgVersion Field
	ModelName  Field
	OpName     Field
}

// RefError reports a malformed or missing operation reference.
type RefError struct {
	msg string
}

func (e *RefError) Error() string { return e.msg }

func refErrorf(format string, args ...any) *RefError {
	return &RefError{msg: fmt.Sprintf(format, args...)}
}

// FromOp builds an OpRef from an operation name and its model's reference.
// Empty reference components become unknown fields.
func FromOp(opName string, ref guildfile.ModelRef) OpRef {
	return OpRef{
		PkgType:    fieldOf(ref.PkgType),
		PkgName:    fieldOf(ref.PkgName),
		PkgVersion: fieldOf(ref.PkgVersion),
		ModelName:  fieldOf(ref.ModelName),
		OpName:     fieldOf(opName),
	}
}

// String renders the canonical persisted form:
//
//	{pkgType}:{pkgName} {pkgVersion} {modelName} {opName}
//
// with "?" substituted for unknown fields. This rendering is lossy for
// unknown fields; FromRun parses the placeholder back as a literal value.
func (r OpRef) String() string {
	return fmt.Sprintf("%s:%s %s %s %s",
		r.PkgType, r.PkgName, r.PkgVersion, r.ModelName, r.OpName)
}

// runAttrPattern is the strict grammar for the persisted opref attribute:
// pkgType excludes ':' and spaces, every other field is a maximal run of
// non-space characters.
var runAttrPattern = regexp.MustCompile(`^([^ :]+):([^ ]+) ([^ ]+) ([^ ]+) ([^ ]+)\s*$`)

// FromRun reads a run's opref attribute and parses it with the strict
// grammar. Fails with a *RefError when the attribute is missing or does not
// match.
func FromRun(r *run.Run) (OpRef, error) {
	var attr string
	if err := r.ReadAttr("opref", &attr); err != nil {
		return OpRef{}, refErrorf("run %s does not have attr 'opref'", r.ID)
	}
	m := runAttrPattern.FindStringSubmatch(attr)
	if m == nil {
		return OpRef{}, refErrorf("bad opref attr for run %s: %s", r.ID, attr)
	}
	return OpRef{
		PkgType:    Known(m[1]),
		PkgName:    Known(m[2]),
		PkgVersion: Known(m[3]),
		ModelName:  Known(m[4]),
		OpName:     Known(m[5]),
	}, nil
}

// freeformPattern is the loose human-typed grammar:
//
//	[[pkgName/]modelName:]opName[extra]
//
// with opName restricted to [A-Za-z0-9_.-]+ and trailing text captured
// separately.
var freeformPattern = regexp.MustCompile(`^(?:(?:([^/]+)/)?([^:]+):)?([a-zA-Z0-9\-_.]+)(.*)$`)

// FromString parses a human-entered reference, returning the parsed OpRef
// and any trailing text. pkgType and pkgVersion are always unknown in this
// form.
func FromString(s string) (OpRef, string, error) {
	m := freeformPattern.FindStringSubmatch(s)
	if m == nil {
		return OpRef{}, "", refErrorf("invalid reference: %q", s)
	}
	return OpRef{
		PkgName:   fieldOf(m[1]),
		ModelName: fieldOf(m[2]),
		OpName:    Known(m[3]),
	}, m[4], nil
}
