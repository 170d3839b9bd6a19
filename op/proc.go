// ABOUTME: Process supervisor: spawns the operation process, maintains the
// ABOUTME: LOCK marker while it runs, and extracts its exit status on wait.
package op

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"sort"
	"strconv"

	"github.com/cjbayron/guildai/run"
)

// lockFile is the name of the transient marker holding the live child pid,
// relative to the run's control directory.
const lockFile = "LOCK"

// procHandle is a live supervised operation process.
type procHandle struct {
	cmd *exec.Cmd
	run *run.Run
}

// spawnProc starts the operation process with the run path as its working
// directory and writes the LOCK marker immediately after a successful
// start.
func spawnProc(args []string, env map[string]string, r *run.Run) (*procHandle, error) {
	cmd := exec.Command(args[0], args[1:]...)
	cmd.Dir = r.Path
	cmd.Env = envList(env)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start operation process: %w", err)
	}
	if err := writeProcLock(cmd.Process.Pid, r); err != nil {
		return nil, err
	}
	return &procHandle{cmd: cmd, run: r}, nil
}

// Wait blocks until the process terminates, removes the LOCK marker, and
// returns the exit status. A missing marker at removal time is not an
// error.
func (h *procHandle) Wait() (int, error) {
	err := h.cmd.Wait()
	deleteProcLock(h.run)
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	return -1, fmt.Errorf("wait for operation process: %w", err)
}

// Pid returns the child process identifier.
func (h *procHandle) Pid() int {
	return h.cmd.Process.Pid
}

func writeProcLock(pid int, r *run.Run) error {
	path := r.GuildPath(lockFile)
	if err := os.WriteFile(path, []byte(strconv.Itoa(pid)), 0644); err != nil {
		return fmt.Errorf("write proc lock: %w", err)
	}
	return nil
}

// deleteProcLock removes the marker, tolerating its prior absence.
func deleteProcLock(r *run.Run) {
	if err := os.Remove(r.GuildPath(lockFile)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Debug("remove proc lock", "run", r.ID, "error", err)
	}
}

// envList renders an environment map as the NAME=value list expected by
// os/exec, in sorted name order for reproducible spawns.
func envList(env map[string]string) []string {
	names := make([]string, 0, len(env))
	for name := range env {
		names = append(names, name)
	}
	sort.Strings(names)
	list := make([]string, 0, len(env))
	for _, name := range names {
		list = append(list, name+"="+env[name])
	}
	return list
}
