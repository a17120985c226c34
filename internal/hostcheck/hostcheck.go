// Package hostcheck verifies that the external tools a build run will
// delegate to are actually present before any step executes.
package hostcheck

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"debrules/internal/interpreters"
	"debrules/internal/rules"
)

// RequiredTools derives the external commands a rules document depends on:
// the interpreter-version enumerator always, plus the program behind the
// documentation command when docs are declared.
func RequiredTools(file *rules.File) []string {
	tools := []string{interpreters.DefaultCommand}

	if file != nil && file.Docs.Command != "" {
		if fields := strings.Fields(file.Docs.Command); len(fields) > 0 {
			tools = append(tools, fields[0])
		}
	}

	return dedupe(tools)
}

// Verify checks that every tool resolves on PATH. All missing tools are
// reported together.
func Verify(tools []string) error {
	var errs []error
	for _, tool := range tools {
		if _, err := exec.LookPath(tool); err != nil {
			getLogger().Error("required tool not found", "tool", tool, "error", err)
			errs = append(errs, fmt.Errorf("required tool %q not found: %w", tool, err))
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	getLogger().Debug("host verification succeeded", "tools", strings.Join(tools, " "))
	return nil
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, value := range values {
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		result = append(result, value)
	}
	return result
}
