// Package execute runs the external commands a build delegates to. Failure
// of any command propagates as a nonzero exit wrapped in an error; there is
// no retry or recovery here.
package execute

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sort"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// Invocation describes one external command run. Either Argv or Script must
// be set: Argv invokes the program directly, Script runs through "sh -c".
type Invocation struct {
	Argv   []string
	Script string

	// Dir is the working directory. Empty means the process working directory.
	Dir string
	// Env is merged over the inherited process environment.
	Env map[string]string
}

// CommandLine renders the invocation for logs and run records.
func (inv Invocation) CommandLine() string {
	if inv.Script != "" {
		return inv.Script
	}
	return strings.Join(inv.Argv, " ")
}

func (inv Invocation) validate() error {
	if inv.Script != "" && len(inv.Argv) > 0 {
		return errors.New("invocation declares both a script and an argv")
	}
	if inv.Script == "" && len(inv.Argv) == 0 {
		return errors.New("invocation declares no command")
	}
	return nil
}

// CommandRunner executes a single external command.
type CommandRunner interface {
	Run(ctx context.Context, inv Invocation) error
}

// ExecRunner runs commands through os/exec. Command output is streamed to
// the configured writers. On context cancellation the whole process group is
// signaled so child tool pipelines do not leak.
type ExecRunner struct {
	Logger *slog.Logger
	// Stdout and Stderr receive the command's output. Nil means the
	// process's own streams.
	Stdout io.Writer
	Stderr io.Writer
	// TermGrace is how long a cancelled command gets between SIGTERM and
	// SIGKILL. Zero means 5 seconds.
	TermGrace time.Duration
}

// Run executes the invocation and waits for it to complete.
func (r *ExecRunner) Run(ctx context.Context, inv Invocation) error {
	if err := inv.validate(); err != nil {
		return err
	}

	var cmd *exec.Cmd
	if inv.Script != "" {
		cmd = exec.CommandContext(ctx, "sh", "-c", inv.Script)
	} else {
		cmd = exec.CommandContext(ctx, inv.Argv[0], inv.Argv[1:]...)
	}

	cmd.Dir = inv.Dir
	cmd.Env = mergeEnvironment(os.Environ(), inv.Env)

	cmd.Stdout = r.Stdout
	if cmd.Stdout == nil {
		cmd.Stdout = os.Stdout
	}
	cmd.Stderr = r.Stderr
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}

	// Each command gets its own process group so cancellation reaches the
	// entire tool pipeline, not just the immediate child.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		if err := unix.Kill(-cmd.Process.Pid, unix.SIGTERM); err != nil {
			if errors.Is(err, unix.ESRCH) {
				return os.ErrProcessDone
			}
			return err
		}
		return nil
	}
	cmd.WaitDelay = r.TermGrace
	if cmd.WaitDelay == 0 {
		cmd.WaitDelay = 5 * time.Second
	}

	if r.Logger != nil {
		r.Logger.Debug("running command", "command", inv.CommandLine(), "dir", inv.Dir)
	}

	start := time.Now()
	err := cmd.Run()
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("command %q interrupted: %w", inv.CommandLine(), ctx.Err())
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return fmt.Errorf("command %q exited with status %d", inv.CommandLine(), exitErr.ExitCode())
		}
		return fmt.Errorf("command %q: %w", inv.CommandLine(), err)
	}

	if r.Logger != nil {
		r.Logger.Debug("command completed", "command", inv.CommandLine(), "duration", time.Since(start))
	}
	return nil
}

// mergeEnvironment overlays the extra variables on the base environment,
// replacing existing keys. The result is sorted for stable logs.
func mergeEnvironment(base []string, extra map[string]string) []string {
	if len(extra) == 0 {
		return base
	}

	merged := make(map[string]string, len(base)+len(extra))
	for _, entry := range base {
		key, value, ok := strings.Cut(entry, "=")
		if !ok {
			continue
		}
		merged[key] = value
	}
	for key, value := range extra {
		merged[key] = value
	}

	result := make([]string, 0, len(merged))
	for key, value := range merged {
		result = append(result, key+"="+value)
	}
	sort.Strings(result)
	return result
}
