// ABOUTME: Tests for OpRef construction, canonical rendering, and both parse grammars.
// ABOUTME: Covers placeholder rendering, the String/FromRun round trip, and CLI parsing.
package opref

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/cjbayron/guildai/guildfile"
	"github.com/cjbayron/guildai/run"
)

func TestFromOpString(t *testing.T) {
	ref := FromOp("train", guildfile.ModelRef{
		PkgType:    "guildfile",
		PkgName:    "/proj",
		PkgVersion: "1.0",
		ModelName:  "mnist",
	})
	if got := ref.String(); got != "guildfile:/proj 1.0 mnist train" {
		t.Errorf("expected 'guildfile:/proj 1.0 mnist train', got %q", got)
	}
}

func TestStringPlaceholders(t *testing.T) {
	ref := FromOp("train", guildfile.ModelRef{ModelName: "mnist"})
	if got := ref.String(); got != "?:? ? mnist train" {
		t.Errorf("expected '?:? ? mnist train', got %q", got)
	}
	if ref.PkgType.Known {
		t.Error("expected pkg type unknown")
	}
	if !ref.ModelName.Known || ref.ModelName.Value != "mnist" {
		t.Errorf("expected known model 'mnist', got %+v", ref.ModelName)
	}
}

func newTestRun(t *testing.T) *run.Run {
	t.Helper()
	r := run.New("abc123", filepath.Join(t.TempDir(), "abc123"))
	if err := r.InitSkel(); err != nil {
		t.Fatalf("InitSkel: %v", err)
	}
	return r
}

func TestFromRunRoundTrip(t *testing.T) {
	want := FromOp("train", guildfile.ModelRef{
		PkgType:    "guildfile",
		PkgName:    "/proj",
		PkgVersion: "0.3",
		ModelName:  "mnist",
	})
	r := newTestRun(t)
	if err := r.WriteAttr("opref", want.String()); err != nil {
		t.Fatalf("WriteAttr: %v", err)
	}
	got, err := FromRun(r)
	if err != nil {
		t.Fatalf("FromRun: %v", err)
	}
	if got != want {
		t.Errorf("expected %+v, got %+v", want, got)
	}
}

func TestFromRunMissingAttr(t *testing.T) {
	r := newTestRun(t)
	_, err := FromRun(r)
	if err == nil {
		t.Fatal("expected error for missing opref attr")
	}
	var refErr *RefError
	if !errors.As(err, &refErr) {
		t.Errorf("expected *RefError, got %T", err)
	}
}

func TestFromRunMalformedAttr(t *testing.T) {
	r := newTestRun(t)
	if err := r.WriteAttr("opref", "not an opref"); err != nil {
		t.Fatalf("WriteAttr: %v", err)
	}
	_, err := FromRun(r)
	var refErr *RefError
	if !errors.As(err, &refErr) {
		t.Errorf("expected *RefError, got %v", err)
	}
}

func TestFromString(t *testing.T) {
	tests := []struct {
		in        string
		pkgName   Field
		modelName Field
		opName    string
		extra     string
	}{
		{"pkg/model:op", Known("pkg"), Known("model"), "op", ""},
		{"model:op", Unknown(), Known("model"), "op", ""},
		{"op", Unknown(), Unknown(), "op", ""},
		{"op --extra", Unknown(), Unknown(), "op", " --extra"},
		{"pkg/model:op=1", Known("pkg"), Known("model"), "op", "=1"},
	}
	for _, tt := range tests {
		ref, extra, err := FromString(tt.in)
		if err != nil {
			t.Errorf("FromString(%q): %v", tt.in, err)
			continue
		}
		if ref.PkgName != tt.pkgName {
			t.Errorf("FromString(%q): expected pkg %+v, got %+v", tt.in, tt.pkgName, ref.PkgName)
		}
		if ref.ModelName != tt.modelName {
			t.Errorf("FromString(%q): expected model %+v, got %+v", tt.in, tt.modelName, ref.ModelName)
		}
		if !ref.OpName.Known || ref.OpName.Value != tt.opName {
			t.Errorf("FromString(%q): expected op %q, got %+v", tt.in, tt.opName, ref.OpName)
		}
		if ref.PkgType.Known || ref.PkgVersion.Known {
			t.Errorf("FromString(%q): pkg type/version should be unknown", tt.in)
		}
		if extra != tt.extra {
			t.Errorf("FromString(%q): expected extra %q, got %q", tt.in, tt.extra, extra)
		}
	}
}

func TestFromStringInvalid(t *testing.T) {
	for _, in := range []string{"", ":op", "!op"} {
		_, _, err := FromString(in)
		if err == nil {
			t.Errorf("FromString(%q): expected error", in)
			continue
		}
		var refErr *RefError
		if !errors.As(err, &refErr) {
			t.Errorf("FromString(%q): expected *RefError, got %T", in, err)
		}
	}
}
