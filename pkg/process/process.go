package process

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"

	"github.com/cuemby/burrow/pkg/log"
	"github.com/rs/zerolog"
)

// Launcher starts and tracks worker OS processes. Implementations never
// block waiting for a child: exits are observed through Reap.
type Launcher interface {
	// Spawn starts a new process with the given arguments and returns its PID
	Spawn(args []string) (int, error)
	// Signal delivers sig to pid
	Signal(pid int, sig syscall.Signal) error
	// Reap collects pid's exit status without blocking. It reports true once
	// the process has exited, or when pid is no longer a child of this process.
	Reap(pid int) (bool, error)
}

// OSLauncher starts real child processes
type OSLauncher struct {
	binary string
	dir    string
	env    []string
	stdout io.Writer
	stderr io.Writer
	logger zerolog.Logger
}

// Config configures an OSLauncher
type Config struct {
	// Binary is the executable started for every worker
	Binary string
	// Dir is the working directory of new processes
	Dir string
	// Env is appended to the parent environment
	Env    []string
	Stdout io.Writer
	Stderr io.Writer
}

// NewOSLauncher creates a launcher for real OS processes
func NewOSLauncher(cfg Config) *OSLauncher {
	stdout, stderr := cfg.Stdout, cfg.Stderr
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}
	return &OSLauncher{
		binary: cfg.Binary,
		dir:    cfg.Dir,
		env:    cfg.Env,
		stdout: stdout,
		stderr: stderr,
		logger: log.WithComponent("process"),
	}
}

// Spawn starts the worker binary. The child is not waited on here: the
// caller reaps it through Reap after a SIGCHLD.
func (l *OSLauncher) Spawn(args []string) (int, error) {
	cmd := exec.Command(l.binary, args...)
	cmd.Dir = l.dir
	cmd.Env = append(os.Environ(), l.env...)
	cmd.Stdout = l.stdout
	cmd.Stderr = l.stderr
	cmd.SysProcAttr = sysProcAttr()

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("failed to start %s: %w", l.binary, err)
	}

	pid := cmd.Process.Pid
	// Release drops the os.Process handle without reaping the child
	if err := cmd.Process.Release(); err != nil {
		l.logger.Warn().Err(err).Int("pid", pid).Msg("Failed to release process handle")
	}

	l.logger.Debug().Int("pid", pid).Strs("args", args).Msg("Process started")
	return pid, nil
}

// Signal delivers sig to pid. A process that is already gone is not an error.
func (l *OSLauncher) Signal(pid int, sig syscall.Signal) error {
	if err := syscall.Kill(pid, sig); err != nil && !errors.Is(err, syscall.ESRCH) {
		return fmt.Errorf("failed to signal %d with %s: %w", pid, sig, err)
	}
	return nil
}

// Reap performs a non-blocking wait on pid
func (l *OSLauncher) Reap(pid int) (bool, error) {
	var status syscall.WaitStatus
	for {
		wpid, err := syscall.Wait4(pid, &status, syscall.WNOHANG, nil)
		switch {
		case errors.Is(err, syscall.EINTR):
			continue
		case errors.Is(err, syscall.ECHILD):
			// reaped elsewhere, or never ours
			return true, nil
		case err != nil:
			return false, fmt.Errorf("failed to wait for %d: %w", pid, err)
		case wpid == 0:
			return false, nil
		}

		l.logger.Debug().
			Int("pid", pid).
			Int("exit_code", status.ExitStatus()).
			Bool("signaled", status.Signaled()).
			Msg("Process exited")
		return true, nil
	}
}
