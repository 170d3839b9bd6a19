// ABOUTME: Dependency materialization: populates a run directory with declared inputs.
// ABOUTME: The orchestrator consumes only the Resolver interface; FileResolver is the stock impl.
package deps

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/cjbayron/guildai/guildfile"
)

// ResolutionContext binds a resolution pass to the run directory being
// populated and the operation that declared the dependencies.
type ResolutionContext struct {
	TargetDir string
	OpDef     *guildfile.OpDef
}

// Resolver materializes declared dependencies into the target directory or
// fails. A failure is fatal to the run: the orchestrator aborts before any
// process is spawned.
type Resolver interface {
	Resolve(dependencies []guildfile.Dependency, ctx ResolutionContext) error
}

// FileResolver resolves "file:<path>" dependency sources relative to the
// operation's guildfile directory, copying each file into the target
// directory (or symlinking it when the declaration asks for a link).
type FileResolver struct{}

// Resolve materializes every declared dependency, stopping at the first
// failure.
func (FileResolver) Resolve(dependencies []guildfile.Dependency, ctx ResolutionContext) error {
	for _, dep := range dependencies {
		if err := resolveOne(dep, ctx); err != nil {
			return fmt.Errorf("resolve dependency %q: %w", dep.Source, err)
		}
		slog.Debug("resolved dependency", "source", dep.Source, "target", ctx.TargetDir)
	}
	return nil
}

func resolveOne(dep guildfile.Dependency, ctx ResolutionContext) error {
	rel, ok := strings.CutPrefix(dep.Source, "file:")
	if !ok {
		return fmt.Errorf("unsupported dependency source")
	}
	src := rel
	if !filepath.IsAbs(src) && ctx.OpDef != nil {
		src = filepath.Join(ctx.OpDef.SrcDir(), rel)
	}
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	target := filepath.Join(ctx.TargetDir, filepath.Base(src))
	if dep.Link {
		abs, err := filepath.Abs(src)
		if err != nil {
			return err
		}
		return os.Symlink(abs, target)
	}
	if info.IsDir() {
		return fmt.Errorf("directory dependencies must declare link: true")
	}
	return copyFile(src, target, info.Mode())
}

func copyFile(src, dst string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode.Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
