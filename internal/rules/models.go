// Package rules defines the declarative build-rules document: which package
// is being built, which environment it exports, which documentation it
// ships, and which lifecycle steps are overridden with custom commands.
package rules

import (
	"fmt"
	"strings"
)

// StepName identifies one lifecycle step an override may attach to.
type StepName string

// Lifecycle steps, in the vocabulary the rules file uses.
const (
	StepConfigure   StepName = "configure"
	StepBuild       StepName = "build"
	StepBuildDocs   StepName = "builddocs"
	StepTest        StepName = "test"
	StepInstall     StepName = "install"
	StepInstallDocs StepName = "installdocs"
	StepClean       StepName = "clean"
)

// KnownSteps returns every step name an override may reference.
func KnownSteps() []StepName {
	return []StepName{
		StepConfigure,
		StepBuild,
		StepBuildDocs,
		StepTest,
		StepInstall,
		StepInstallDocs,
		StepClean,
	}
}

// Known reports whether the step name is part of the lifecycle vocabulary.
func (s StepName) Known() bool {
	for _, known := range KnownSteps() {
		if s == known {
			return true
		}
	}
	return false
}

// Override replaces a step's default action with custom command templates.
type Override struct {
	// Commands holds shell command templates, run in order.
	Commands []string `yaml:"commands"`
	// ForeachInterpreter runs each command once per enumerated interpreter.
	ForeachInterpreter bool `yaml:"foreach-interpreter,omitempty"`
	// ThenDefault runs the step's default action after the commands.
	ThenDefault bool `yaml:"then-default,omitempty"`
}

// Docs declares how documentation is produced and what gets installed.
type Docs struct {
	// Command generates the documentation, e.g. "make html". Empty means
	// the builddocs step is a no-op.
	Command string `yaml:"command,omitempty"`
	// Inputs are files or directories, relative to the source directory,
	// installed into the package's doc directory.
	Inputs []string `yaml:"inputs,omitempty"`
}

// File is a parsed rules document.
type File struct {
	// Package is the binary package name.
	Package string `yaml:"package"`
	// Buildsystem names the default-action provider. Empty means distutils.
	Buildsystem string `yaml:"buildsystem,omitempty"`
	// Export is applied to the environment of every invocation.
	Export map[string]string `yaml:"export,omitempty"`
	// Docs declares documentation generation and installation.
	Docs Docs `yaml:"docs,omitempty"`
	// Overrides maps step names to replacement commands.
	Overrides map[StepName]Override `yaml:"overrides,omitempty"`
}

// OverrideFor returns the override attached to the step, if any.
func (f *File) OverrideFor(step StepName) (Override, bool) {
	override, ok := f.Overrides[step]
	return override, ok
}

// Validate checks structural constraints that loading alone cannot catch.
func (f *File) Validate() error {
	if strings.TrimSpace(f.Package) == "" {
		return fmt.Errorf("rules: package name is required")
	}

	for step, override := range f.Overrides {
		if !step.Known() {
			return fmt.Errorf("rules: unknown step %q in overrides", step)
		}
		if len(override.Commands) == 0 && !override.ThenDefault {
			return fmt.Errorf("rules: override for step %q declares no commands", step)
		}
		for _, command := range override.Commands {
			if strings.TrimSpace(command) == "" {
				return fmt.Errorf("rules: override for step %q contains an empty command", step)
			}
		}
	}

	for _, input := range f.Docs.Inputs {
		if strings.TrimSpace(input) == "" {
			return fmt.Errorf("rules: docs inputs contain an empty path")
		}
	}

	return nil
}
