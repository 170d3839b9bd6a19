// ABOUTME: Command builder: derives the process argument vector and environment
// ABOUTME: from an operation definition, before any run identity exists.
package op

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/google/shlex"

	"github.com/cjbayron/guildai/guildfile"
	"github.com/cjbayron/guildai/home"
	"github.com/cjbayron/guildai/plugin"
)

// opRunfiles are bundled runtime-support package directory names looked up
// on the ambient interpreter search path.
var opRunfiles = []string{
	"org_psutil",
}

// InvalidCmdError reports an empty or malformed operation command template.
type InvalidCmdError struct {
	Reason string
}

func (e *InvalidCmdError) Error() string {
	return fmt.Sprintf("invalid operation cmd: %s", e.Reason)
}

// initCmdArgs computes the full argument vector for the operation process:
// interpreter prefix, operation command tokens, then flag tokens in
// lexicographic flag-name order. The --rundir pair is appended later at
// spawn time, once a run exists.
func initCmdArgs(opdef *guildfile.OpDef) ([]string, error) {
	rt := opdef.Runtime.WithDefaults()
	cmdTokens, err := splitCmd(opdef.Cmd)
	if err != nil {
		return nil, err
	}
	if len(cmdTokens) == 0 {
		return nil, &InvalidCmdError{Reason: "empty command"}
	}
	args := []string{rt.Interpreter, rt.ModuleFlag, rt.EntryModule}
	args = append(args, cmdTokens...)
	args = append(args, flagArgs(opdef.FlagVals(), cmdTokens)...)
	return args, nil
}

func splitCmd(cmd guildfile.CmdSpec) ([]string, error) {
	switch cmd.Kind() {
	case guildfile.CmdShell:
		tokens, err := shlex.Split(cmd.Shell())
		if err != nil {
			return nil, &InvalidCmdError{Reason: err.Error()}
		}
		return tokens, nil
	case guildfile.CmdTokens:
		return cmd.Tokens(), nil
	default:
		return nil, &InvalidCmdError{Reason: "no command given"}
	}
}

// flagArgs emits --name value pairs for each flag, sorted by name. Flags
// whose names already appear as --name options in the command tokens are
// dropped with a warning: explicit command tokens always win.
func flagArgs(flags map[string]any, cmdTokens []string) []string {
	names := make([]string, 0, len(flags))
	for name := range flags {
		names = append(names, name)
	}
	sort.Strings(names)
	cmdOptions := cmdOptionNames(cmdTokens)
	var args []string
	for _, name := range names {
		val := flags[name]
		if cmdOptions[name] {
			slog.Warn("ignoring flag because it's shadowed in the operation cmd",
				"flag", name, "value", val)
			continue
		}
		args = append(args, "--"+name)
		if val != nil {
			args = append(args, formatFlagVal(val))
		}
	}
	return args
}

var cmdOptionPattern = regexp.MustCompile(`^--([^=]+)`)

func cmdOptionNames(tokens []string) map[string]bool {
	options := make(map[string]bool)
	for _, tok := range tokens {
		if m := cmdOptionPattern.FindStringSubmatch(tok); m != nil {
			options[m[1]] = true
		}
	}
	return options
}

func formatFlagVal(val any) string {
	return fmt.Sprintf("%v", val)
}

// initCmdEnv computes the operation process environment: the sanitized
// ambient base plus GUILD_PLUGINS, LOG_LEVEL, and PYTHONPATH. RUNDIR is
// added later at spawn time.
func initCmdEnv(opdef *guildfile.OpDef, plugins *plugin.Set) map[string]string {
	env := home.SafeEnv()
	env["GUILD_PLUGINS"] = opPlugins(opdef, plugins)
	env["LOG_LEVEL"] = activeLogLevel()
	env["PYTHONPATH"] = pythonPath(opdef)
	return env
}

// opPlugins decides enablement for every provider and returns the sorted,
// comma-joined names of the enabled ones.
func opPlugins(opdef *guildfile.OpDef, plugins *plugin.Set) string {
	var enabled []string
	for _, p := range plugins.Plugins() {
		var ok bool
		var reason string
		if pluginDisabledInProject(p.Name(), opdef) {
			ok, reason = false, "explicitly disabled by model or user config"
		} else {
			ok, reason = p.EnabledForOp(opdef)
		}
		slog.Debug("plugin decision", "plugin", p.Name(), "enabled", ok, "reason", reason)
		if ok {
			enabled = append(enabled, p.Name())
		}
	}
	sort.Strings(enabled)
	return strings.Join(enabled, ",")
}

// pluginDisabledInProject reports whether the plugin name (or the "all"
// wildcard) appears in the union of the operation's and its model's
// disabled-plugin lists.
func pluginDisabledInProject(name string, opdef *guildfile.OpDef) bool {
	disabled := append([]string{}, opdef.DisabledPlugins...)
	if opdef.ModelDef != nil {
		disabled = append(disabled, opdef.ModelDef.DisabledPlugins...)
	}
	for _, d := range disabled {
		if d == name || d == "all" {
			return true
		}
	}
	return false
}

// activeLogLevel renders the current logging verbosity as text.
func activeLogLevel() string {
	ctx := context.Background()
	for _, level := range []slog.Level{slog.LevelDebug, slog.LevelInfo, slog.LevelWarn} {
		if slog.Default().Enabled(ctx, level) {
			return level.String()
		}
	}
	return slog.LevelError.String()
}

// pythonPath joins the operation's source directory, the tool's support
// root, and any bundled runfile dirs discoverable on the ambient
// interpreter search path.
func pythonPath(opdef *guildfile.OpDef) string {
	var paths []string
	if src := opdef.SrcDir(); src != "" {
		if abs, err := filepath.Abs(src); err == nil {
			paths = append(paths, abs)
		}
	}
	if root := home.SupportRoot(); root != "" {
		paths = append(paths, root)
	}
	paths = append(paths, runfilePaths()...)
	return strings.Join(paths, string(os.PathListSeparator))
}

func runfilePaths() []string {
	var paths []string
	for _, entry := range filepath.SplitList(os.Getenv("PYTHONPATH")) {
		if entry == "" || !isRunfilePkg(entry) {
			continue
		}
		if abs, err := filepath.Abs(entry); err == nil {
			paths = append(paths, abs)
		}
	}
	return paths
}

func isRunfilePkg(path string) bool {
	base := filepath.Base(path)
	for _, name := range opRunfiles {
		if base == name {
			return true
		}
	}
	return false
}
