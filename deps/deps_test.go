// ABOUTME: Tests for file dependency materialization into a run directory.
// ABOUTME: Covers copy and link modes, relative resolution, and failure reporting.
package deps

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cjbayron/guildai/guildfile"
)

// testOpDef returns an opdef whose guildfile lives in srcDir.
func testOpDef(srcDir string) *guildfile.OpDef {
	model := &guildfile.ModelDef{Name: "m", Src: filepath.Join(srcDir, "guild.yml")}
	return &guildfile.OpDef{Name: "train", ModelDef: model}
}

func TestResolveCopiesFile(t *testing.T) {
	srcDir := t.TempDir()
	target := t.TempDir()
	if err := os.WriteFile(filepath.Join(srcDir, "data.csv"), []byte("a,b\n"), 0644); err != nil {
		t.Fatalf("write source: %v", err)
	}

	ctx := ResolutionContext{TargetDir: target, OpDef: testOpDef(srcDir)}
	deps := []guildfile.Dependency{{Source: "file:data.csv"}}
	if err := (FileResolver{}).Resolve(deps, ctx); err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(target, "data.csv"))
	if err != nil {
		t.Fatalf("read resolved file: %v", err)
	}
	if string(data) != "a,b\n" {
		t.Errorf("expected copied content, got %q", data)
	}
}

func TestResolveLinksDirectory(t *testing.T) {
	srcDir := t.TempDir()
	target := t.TempDir()
	if err := os.MkdirAll(filepath.Join(srcDir, "data"), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	ctx := ResolutionContext{TargetDir: target, OpDef: testOpDef(srcDir)}
	deps := []guildfile.Dependency{{Source: "file:data", Link: true}}
	if err := (FileResolver{}).Resolve(deps, ctx); err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	link := filepath.Join(target, "data")
	info, err := os.Lstat(link)
	if err != nil {
		t.Fatalf("lstat link: %v", err)
	}
	if info.Mode()&os.ModeSymlink == 0 {
		t.Error("expected a symlink")
	}
}

func TestResolveDirectoryWithoutLink(t *testing.T) {
	srcDir := t.TempDir()
	target := t.TempDir()
	if err := os.MkdirAll(filepath.Join(srcDir, "data"), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	ctx := ResolutionContext{TargetDir: target, OpDef: testOpDef(srcDir)}
	deps := []guildfile.Dependency{{Source: "file:data"}}
	if err := (FileResolver{}).Resolve(deps, ctx); err == nil {
		t.Error("expected error copying a directory dependency")
	}
}

func TestResolveMissingSource(t *testing.T) {
	ctx := ResolutionContext{TargetDir: t.TempDir(), OpDef: testOpDef(t.TempDir())}
	deps := []guildfile.Dependency{{Source: "file:nope.csv"}}
	err := (FileResolver{}).Resolve(deps, ctx)
	if err == nil {
		t.Fatal("expected error for missing source")
	}
	if want := `resolve dependency "file:nope.csv"`; !strings.Contains(err.Error(), want) {
		t.Errorf("expected error naming the dependency, got %q", err)
	}
}

func TestResolveUnsupportedSource(t *testing.T) {
	ctx := ResolutionContext{TargetDir: t.TempDir(), OpDef: testOpDef(t.TempDir())}
	deps := []guildfile.Dependency{{Source: "http://example.com/data"}}
	if err := (FileResolver{}).Resolve(deps, ctx); err == nil {
		t.Error("expected error for unsupported source scheme")
	}
}
