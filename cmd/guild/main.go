// ABOUTME: CLI entrypoint for the guild run executor with run, runs, and view modes.
// ABOUTME: Wires together the guildfile loader, orchestrator, run index, and HTTP server.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/cjbayron/guildai/guildfile"
	"github.com/cjbayron/guildai/home"
	"github.com/cjbayron/guildai/index"
	"github.com/cjbayron/guildai/op"
	"github.com/cjbayron/guildai/opref"
	"github.com/cjbayron/guildai/plugin"
	"github.com/cjbayron/guildai/web"
)

var version = "dev"

// config holds all CLI configuration parsed from flags and positional
// arguments.
type config struct {
	mode        string
	opSpec      string
	flagArgs    []string
	guildfile   string
	runsDir     string
	indexPath   string
	port        int
	verbose     bool
	showVersion bool
}

func main() {
	cfg := parseFlags()

	if cfg.showVersion {
		fmt.Printf("guild %s\n", version)
		os.Exit(0)
	}

	setupLogging(cfg.verbose)
	os.Exit(run(cfg))
}

// parseFlags parses command-line flags and returns a populated config. The
// first positional argument selects the mode.
func parseFlags() config {
	var cfg config

	fs := flag.NewFlagSet("guild", flag.ContinueOnError)
	fs.StringVar(&cfg.guildfile, "guildfile", "guild.yml", "Path to the project guildfile")
	fs.StringVar(&cfg.runsDir, "runs-dir", "", "Root directory for run directories (default: $GUILD_HOME/runs)")
	fs.StringVar(&cfg.indexPath, "index", "", "Path to the run index database (default: $GUILD_HOME/index.db)")
	fs.IntVar(&cfg.port, "port", 6333, "HTTP port for view mode")
	fs.BoolVar(&cfg.verbose, "verbose", false, "Verbose output")
	fs.BoolVar(&cfg.showVersion, "version", false, "Print version and exit")

	fs.Usage = func() {
		printHelp(os.Stderr)
	}

	if err := fs.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		os.Exit(2)
	}

	args := fs.Args()
	if len(args) > 0 {
		cfg.mode = args[0]
	}
	if len(args) > 1 {
		cfg.opSpec = args[1]
	}
	if len(args) > 2 {
		cfg.flagArgs = args[2:]
	}

	if cfg.runsDir == "" {
		cfg.runsDir = home.RunsDir()
	}
	if cfg.indexPath == "" {
		cfg.indexPath = home.IndexPath()
	}
	return cfg
}

func setupLogging(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}

func printHelp(w *os.File) {
	fmt.Fprintf(w, `guild %s - tracked operation runner

Usage:
  guild [options] run <operation> [flag=value...]
  guild [options] runs
  guild [options] view

Operation references take the form [[package/]model:]operation.

Options:
  -guildfile path   Project guildfile (default guild.yml)
  -runs-dir path    Root for run directories
  -index path       Run index database
  -port n           HTTP port for view mode (default 6333)
  -verbose          Verbose output
  -version          Print version and exit
`, version)
}

// run dispatches to the appropriate mode. Returns the process exit code;
// in run mode a completed operation's exit status is passed through.
func run(cfg config) int {
	switch cfg.mode {
	case "run":
		return cmdRun(cfg)
	case "runs":
		return cmdRuns(cfg)
	case "view":
		return cmdView(cfg)
	case "":
		printHelp(os.Stderr)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "error: unknown command %q\n", cfg.mode)
		return 2
	}
}

// cmdRun executes one operation and records it in the run index.
func cmdRun(cfg config) int {
	if cfg.opSpec == "" {
		fmt.Fprintln(os.Stderr, "error: run requires an operation reference")
		return 2
	}
	ref, extra, err := opref.FromString(cfg.opSpec)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 2
	}
	if strings.TrimSpace(extra) != "" {
		fmt.Fprintf(os.Stderr, "error: unexpected text after operation reference: %q\n", extra)
		return 2
	}

	opdef, code := selectOp(cfg, ref)
	if opdef == nil {
		return code
	}
	if err := applyFlagOverrides(opdef, cfg.flagArgs); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 2
	}

	operation, err := op.New(opdef, plugin.Default(), op.WithRunsDir(cfg.runsDir))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}

	ix, err := index.Open(cfg.indexPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: run index unavailable: %v\n", err)
		ix = nil
	} else {
		defer ix.Close()
	}

	status, runErr := operation.Run()
	recordRun(ix, opdef, operation, runErr == nil)

	if runErr != nil {
		fmt.Fprintf(os.Stderr, "error: run did not complete: %v\n", runErr)
		return 1
	}
	return status
}

// recordRun mirrors the run into the index. A run that failed before
// finalizing is recorded as started only, matching its on-disk incomplete
// state.
func recordRun(ix *index.Index, opdef *guildfile.OpDef, operation *op.Operation, completed bool) {
	rec := operation.RunRecord()
	if ix == nil || rec == nil {
		return
	}
	ref := opref.FromOp(opdef.Name, opdef.ModelDef.Reference)
	if err := ix.RecordStarted(rec.ID, ref.String(), operation.Started()); err != nil {
		slog.Warn("index run start failed", "run", rec.ID, "error", err)
		return
	}
	if !completed {
		return
	}
	var status int
	if err := rec.ReadAttr("exit_status", &status); err != nil {
		slog.Warn("read exit_status failed", "run", rec.ID, "error", err)
		return
	}
	if err := ix.RecordStopped(rec.ID, operation.Stopped(), status); err != nil {
		slog.Warn("index run stop failed", "run", rec.ID, "error", err)
	}
}

// selectOp loads the guildfile and picks the model and operation named by
// the parsed reference. Returns a nil opdef and an exit code on failure.
func selectOp(cfg config, ref opref.OpRef) (*guildfile.OpDef, int) {
	gf, err := guildfile.Load(cfg.guildfile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return nil, 1
	}
	var model *guildfile.ModelDef
	if ref.ModelName.Known {
		model = gf.ModelNamed(ref.ModelName.Value)
		if model == nil {
			fmt.Fprintf(os.Stderr, "error: no model %q in %s\n", ref.ModelName.Value, cfg.guildfile)
			return nil, 1
		}
	} else {
		model = gf.DefaultModel()
		if model == nil {
			fmt.Fprintf(os.Stderr, "error: %s defines multiple models; qualify the operation as model:op\n", cfg.guildfile)
			return nil, 1
		}
	}
	opdef := model.OpNamed(ref.OpName.Value)
	if opdef == nil {
		fmt.Fprintf(os.Stderr, "error: model %q has no operation %q\n", model.Name, ref.OpName.Value)
		return nil, 1
	}
	return opdef, 0
}

// applyFlagOverrides applies name=value arguments over the definition's
// flag mapping.
func applyFlagOverrides(opdef *guildfile.OpDef, args []string) error {
	for _, arg := range args {
		name, val, ok := strings.Cut(arg, "=")
		if !ok || name == "" {
			return fmt.Errorf("invalid flag argument %q (want name=value)", arg)
		}
		if opdef.Flags == nil {
			opdef.Flags = make(map[string]any)
		}
		opdef.Flags[name] = val
	}
	return nil
}

// cmdRuns lists indexed runs, most recent first.
func cmdRuns(cfg config) int {
	ix, err := index.Open(cfg.indexPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	defer ix.Close()

	rows, err := ix.List()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	for _, row := range rows {
		status := "incomplete"
		if row.Completed() {
			status = fmt.Sprintf("exit %d", *row.ExitStatus)
		}
		fmt.Printf("%s  %-12s  %s\n", row.RunID, status, row.OpRef)
	}
	return 0
}

// cmdView serves the run browser over HTTP.
func cmdView(cfg config) int {
	ix, err := index.Open(cfg.indexPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	defer ix.Close()

	srv := web.NewServer(ix, cfg.runsDir)
	addr := fmt.Sprintf(":%d", cfg.port)
	slog.Info("serving runs", "addr", addr, "runs_dir", cfg.runsDir)
	if err := http.ListenAndServe(addr, srv); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	return 0
}
