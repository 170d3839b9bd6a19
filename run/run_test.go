// ABOUTME: Tests for run id generation and the on-disk attribute store.
// ABOUTME: Covers skeleton init, attr round trips, overwrite, and completion state.
package run

import (
	"path/filepath"
	"reflect"
	"testing"
)

func TestNewID(t *testing.T) {
	a := NewID()
	b := NewID()
	if a == b {
		t.Errorf("expected distinct ids, got %q twice", a)
	}
	if len(a) != 32 {
		t.Errorf("expected 32 hex chars, got %d (%q)", len(a), a)
	}
	for _, c := range a {
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f') {
			t.Errorf("expected lowercase hex id, got %q", a)
			break
		}
	}
}

func newTestRun(t *testing.T) *Run {
	t.Helper()
	id := NewID()
	r := New(id, filepath.Join(t.TempDir(), id))
	if err := r.InitSkel(); err != nil {
		t.Fatalf("InitSkel: %v", err)
	}
	return r
}

func TestInitSkelTwice(t *testing.T) {
	r := newTestRun(t)
	if err := r.InitSkel(); err == nil {
		t.Error("expected error initializing skeleton twice")
	}
}

func TestWriteReadAttr(t *testing.T) {
	r := newTestRun(t)

	if err := r.WriteAttr("opref", "?:? ? mnist train"); err != nil {
		t.Fatalf("WriteAttr: %v", err)
	}
	var s string
	if err := r.ReadAttr("opref", &s); err != nil {
		t.Fatalf("ReadAttr: %v", err)
	}
	if s != "?:? ? mnist train" {
		t.Errorf("expected opref round trip, got %q", s)
	}

	if err := r.WriteAttr("started", int64(1700000000)); err != nil {
		t.Fatalf("WriteAttr: %v", err)
	}
	var started int64
	if err := r.ReadAttr("started", &started); err != nil {
		t.Fatalf("ReadAttr: %v", err)
	}
	if started != 1700000000 {
		t.Errorf("expected started 1700000000, got %d", started)
	}

	flags := map[string]any{"lr": 0.1, "epochs": 10}
	if err := r.WriteAttr("flags", flags); err != nil {
		t.Fatalf("WriteAttr: %v", err)
	}
	got := map[string]any{}
	if err := r.ReadAttr("flags", &got); err != nil {
		t.Fatalf("ReadAttr: %v", err)
	}
	if got["epochs"] != 10 {
		t.Errorf("expected epochs 10, got %v", got["epochs"])
	}
}

func TestWriteAttrOverwrites(t *testing.T) {
	r := newTestRun(t)
	if err := r.WriteAttr("exit_status", 1); err != nil {
		t.Fatalf("WriteAttr: %v", err)
	}
	if err := r.WriteAttr("exit_status", 0); err != nil {
		t.Fatalf("WriteAttr: %v", err)
	}
	var status int
	if err := r.ReadAttr("exit_status", &status); err != nil {
		t.Fatalf("ReadAttr: %v", err)
	}
	if status != 0 {
		t.Errorf("expected overwritten exit_status 0, got %d", status)
	}
}

func TestReadAttrMissing(t *testing.T) {
	r := newTestRun(t)
	var s string
	if err := r.ReadAttr("nope", &s); err == nil {
		t.Error("expected error for missing attr")
	}
	if r.HasAttr("nope") {
		t.Error("expected HasAttr false for missing attr")
	}
}

func TestCompleted(t *testing.T) {
	r := newTestRun(t)
	if r.Completed() {
		t.Error("fresh run should not be completed")
	}
	if err := r.WriteAttr("exit_status", 0); err != nil {
		t.Fatalf("WriteAttr: %v", err)
	}
	if r.Completed() {
		t.Error("run without stopped should not be completed")
	}
	if err := r.WriteAttr("stopped", int64(1700000001)); err != nil {
		t.Fatalf("WriteAttr: %v", err)
	}
	if !r.Completed() {
		t.Error("run with exit_status and stopped should be completed")
	}
}

func TestGuildPath(t *testing.T) {
	r := New("x", "/runs/x")
	if got := r.GuildPath("LOCK"); got != filepath.Join("/runs/x", ".guild", "LOCK") {
		t.Errorf("unexpected guild path %q", got)
	}
}

func TestAttrs(t *testing.T) {
	r := newTestRun(t)
	if err := r.WriteAttr("opref", "a:b c d e"); err != nil {
		t.Fatalf("WriteAttr: %v", err)
	}
	if err := r.WriteAttr("exit_status", 0); err != nil {
		t.Fatalf("WriteAttr: %v", err)
	}
	attrs, err := r.Attrs()
	if err != nil {
		t.Fatalf("Attrs: %v", err)
	}
	want := map[string]any{"opref": "a:b c d e", "exit_status": 0}
	if !reflect.DeepEqual(attrs, want) {
		t.Errorf("expected attrs %v, got %v", want, attrs)
	}
}
