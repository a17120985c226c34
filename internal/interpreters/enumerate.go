// Package interpreters discovers the installed interpreter versions a build
// must cover. Discovery is delegated to the distribution's version query
// command; this package only invokes it and parses its output.
package interpreters

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

// DefaultCommand is the external command that lists interpreter versions.
const DefaultCommand = "py3versions"

// Mode selects which set of interpreter versions the query command reports.
type Mode string

const (
	// ModeSupported lists all versions currently supported by the system.
	ModeSupported Mode = "-s"
	// ModeDefault lists only the system default version.
	ModeDefault Mode = "-d"
	// ModeRequested lists the versions requested by the package metadata.
	ModeRequested Mode = "-r"
)

// Interpreter identifies one installed interpreter, e.g. "python3.12".
type Interpreter string

// Command returns the executable name used to invoke the interpreter.
func (i Interpreter) Command() string {
	return string(i)
}

// Version returns the bare version suffix, e.g. "3.12".
func (i Interpreter) Version() string {
	return strings.TrimPrefix(string(i), "python")
}

// Enumerator lists the interpreter versions a build step should iterate over.
type Enumerator interface {
	Enumerate(ctx context.Context) ([]Interpreter, error)
}

// ExecEnumerator queries interpreter versions by running the external
// enumerator command.
type ExecEnumerator struct {
	// Command overrides the enumerator executable. Empty means DefaultCommand.
	Command string
	// Mode selects the reported version set. Empty means ModeSupported.
	Mode   Mode
	Logger *slog.Logger
}

// Enumerate runs the query command and parses its output.
func (e *ExecEnumerator) Enumerate(ctx context.Context) ([]Interpreter, error) {
	name := e.Command
	if name == "" {
		name = DefaultCommand
	}
	mode := e.Mode
	if mode == "" {
		mode = ModeSupported
	}

	output, err := exec.CommandContext(ctx, name, string(mode)).Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
			return nil, fmt.Errorf("enumerate interpreters: %w (stderr: %s)",
				err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return nil, fmt.Errorf("enumerate interpreters: %w", err)
	}

	versions, err := ParseList(string(output))
	if err != nil {
		return nil, err
	}

	if e.Logger != nil {
		e.Logger.Debug("enumerated interpreters", "command", name, "mode", string(mode), "count", len(versions))
	}
	return versions, nil
}

// ParseList parses the enumerator's whitespace-separated output into
// interpreter identifiers, deduplicating while preserving order. An empty
// list is an error: a build loop over zero interpreters would silently
// verify nothing.
func ParseList(output string) ([]Interpreter, error) {
	fields := strings.Fields(output)

	seen := make(map[string]struct{}, len(fields))
	versions := make([]Interpreter, 0, len(fields))
	for _, field := range fields {
		if _, ok := seen[field]; ok {
			continue
		}
		seen[field] = struct{}{}
		versions = append(versions, Interpreter(field))
	}

	if len(versions) == 0 {
		return nil, errors.New("enumerator reported no interpreter versions")
	}
	return versions, nil
}
