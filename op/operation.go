// ABOUTME: Run orchestrator: sequences run-directory creation, attribute writes,
// ABOUTME: dependency resolution, process launch, and finalization for one operation.
package op

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"path/filepath"
	"slices"
	"time"

	"github.com/cjbayron/guildai/deps"
	"github.com/cjbayron/guildai/guildfile"
	"github.com/cjbayron/guildai/home"
	"github.com/cjbayron/guildai/opref"
	"github.com/cjbayron/guildai/plugin"
	"github.com/cjbayron/guildai/run"
)

// ErrAlreadyRun is returned when Run is called on an Operation that has
// already been started. Operations are one-shot.
var ErrAlreadyRun = errors.New("operation has already been run")

type opState int

const (
	stateNotStarted opState = iota
	stateRunning
	stateFinished
)

// Operation executes one operation definition as a tracked run. The command
// arguments and environment are computed at construction; Run may be called
// at most once.
type Operation struct {
	opdef    *guildfile.OpDef
	resolver deps.Resolver
	runsDir  string

	cmdArgs []string
	cmdEnv  map[string]string

	state      opState
	started    int64
	stopped    int64
	exitStatus int
	run        *run.Run
	proc       *procHandle
}

// Option configures an Operation.
type Option func(*Operation)

// WithResolver overrides the dependency resolver.
func WithResolver(r deps.Resolver) Option {
	return func(o *Operation) {
		o.resolver = r
	}
}

// WithRunsDir overrides the root directory under which the run directory is
// allocated.
func WithRunsDir(dir string) Option {
	return func(o *Operation) {
		o.runsDir = dir
	}
}

// New builds an Operation for the given definition, precomputing its
// process arguments and environment. Fails with *InvalidCmdError when the
// command template is empty or malformed.
func New(opdef *guildfile.OpDef, plugins *plugin.Set, opts ...Option) (*Operation, error) {
	if plugins == nil {
		plugins = plugin.Default()
	}
	o := &Operation{
		opdef:    opdef,
		resolver: deps.FileResolver{},
		runsDir:  home.RunsDir(),
	}
	for _, opt := range opts {
		opt(o)
	}
	args, err := initCmdArgs(opdef)
	if err != nil {
		return nil, err
	}
	o.cmdArgs = args
	o.cmdEnv = initCmdEnv(opdef, plugins)
	return o, nil
}

// CmdArgs returns the precomputed argument vector, without the --rundir
// pair appended at spawn time.
func (o *Operation) CmdArgs() []string {
	return slices.Clone(o.cmdArgs)
}

// CmdEnv returns the precomputed environment, without RUNDIR.
func (o *Operation) CmdEnv() map[string]string {
	return maps.Clone(o.cmdEnv)
}

// RunRecord returns the run this operation created, or nil if Run has not
// allocated one yet. After a failed Run, the record holds whatever
// attributes were written before the failure.
func (o *Operation) RunRecord() *run.Run {
	return o.run
}

// Started returns the unix time recorded when Run began.
func (o *Operation) Started() int64 { return o.started }

// Stopped returns the unix time recorded when the process exited.
func (o *Operation) Stopped() int64 { return o.stopped }

// Run executes the operation lifecycle: allocate run identity, write
// pre-execution attributes, materialize dependencies, spawn and await the
// process, finalize attributes. Returns the child's exit status. Any error
// means the run did not complete; attributes written before the failure
// remain on disk as a forensic record.
func (o *Operation) Run() (int, error) {
	if o.state != stateNotStarted {
		return 0, ErrAlreadyRun
	}
	o.state = stateRunning
	defer func() { o.state = stateFinished }()

	o.started = time.Now().Unix()
	if err := o.initRun(); err != nil {
		return 0, err
	}
	if err := o.initAttrs(); err != nil {
		return 0, err
	}
	if err := o.resolveDeps(); err != nil {
		return 0, err
	}
	if err := o.startProc(); err != nil {
		return 0, err
	}
	waitErr := o.waitForProc()
	if err := o.finalizeAttrs(); err != nil {
		return 0, err
	}
	if waitErr != nil {
		return 0, waitErr
	}
	return o.exitStatus, nil
}

func (o *Operation) initRun() error {
	id := run.NewID()
	path := filepath.Join(o.runsDir, id)
	o.run = run.New(id, path)
	slog.Debug("initializing run", "path", path)
	return o.run.InitSkel()
}

func (o *Operation) initAttrs() error {
	ref := opref.FromOp(o.opdef.Name, o.modelRef())
	attrs := []struct {
		name string
		val  any
	}{
		{"opref", ref.String()},
		{"flags", o.opdef.FlagVals()},
		{"cmd", o.cmdArgs},
		{"env", o.cmdEnv},
		{"started", o.started},
	}
	for _, attr := range attrs {
		if err := o.run.WriteAttr(attr.name, attr.val); err != nil {
			return err
		}
	}
	return nil
}

func (o *Operation) modelRef() guildfile.ModelRef {
	if o.opdef.ModelDef == nil {
		return guildfile.ModelRef{}
	}
	return o.opdef.ModelDef.Reference
}

func (o *Operation) resolveDeps() error {
	ctx := deps.ResolutionContext{
		TargetDir: o.run.Path,
		OpDef:     o.opdef,
	}
	if err := o.resolver.Resolve(o.opdef.Dependencies, ctx); err != nil {
		return fmt.Errorf("run %s: %w", o.run.ID, err)
	}
	return nil
}

func (o *Operation) startProc() error {
	args := append(o.CmdArgs(), "--rundir", o.run.Path)
	env := o.CmdEnv()
	env["RUNDIR"] = o.run.Path
	slog.Debug("starting operation run", "run", o.run.ID)
	slog.Debug("operation command", "args", args)
	slog.Debug("operation cwd", "cwd", o.run.Path)
	proc, err := spawnProc(args, env, o.run)
	if err != nil {
		return err
	}
	o.proc = proc
	return nil
}

// waitForProc blocks until the child terminates. The exit status and stop
// time are recorded even when the wait itself fails, so finalization can
// persist whatever exit information is available.
func (o *Operation) waitForProc() error {
	status, err := o.proc.Wait()
	o.stopped = time.Now().Unix()
	o.exitStatus = status
	return err
}

func (o *Operation) finalizeAttrs() error {
	if err := o.run.WriteAttr("exit_status", o.exitStatus); err != nil {
		return err
	}
	return o.run.WriteAttr("stopped", o.stopped)
}
