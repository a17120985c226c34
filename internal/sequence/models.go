package sequence

import (
	"fmt"
	"strings"

	"debrules/internal/buildopts"
	"debrules/internal/rules"
)

// Target names a step sequence the orchestrator can run.
type Target string

// Supported targets.
const (
	TargetClean  Target = "clean"
	TargetBuild  Target = "build"
	TargetBinary Target = "binary"
	// TargetTest runs the test step alone, with the usual skip semantics.
	TargetTest Target = "test"
)

// SequenceFor returns the ordered steps a target runs. Documentation
// generation is always sequenced before documentation installation.
func SequenceFor(target Target) ([]rules.StepName, error) {
	switch target {
	case TargetClean:
		return []rules.StepName{rules.StepClean}, nil
	case TargetTest:
		return []rules.StepName{rules.StepTest}, nil
	case TargetBuild:
		return []rules.StepName{
			rules.StepConfigure,
			rules.StepBuild,
			rules.StepBuildDocs,
			rules.StepTest,
		}, nil
	case TargetBinary:
		return []rules.StepName{
			rules.StepConfigure,
			rules.StepBuild,
			rules.StepBuildDocs,
			rules.StepTest,
			rules.StepInstall,
			rules.StepInstallDocs,
		}, nil
	default:
		return nil, fmt.Errorf("unknown target %q", target)
	}
}

// Targets lists the supported targets.
func Targets() []Target {
	return []Target{TargetClean, TargetBuild, TargetBinary, TargetTest}
}

// Resolution states how a step will execute.
type Resolution string

const (
	// ResolutionSkipped means a build option disables the step.
	ResolutionSkipped Resolution = "skipped"
	// ResolutionOverride means rules-file commands replace the default action.
	ResolutionOverride Resolution = "override"
	// ResolutionDefault means the buildsystem's default action runs.
	ResolutionDefault Resolution = "default"
)

// Request describes one sequence run.
type Request struct {
	Target    Target
	SourceDir string
	// DestDir is the staging directory install steps populate.
	DestDir string
	Options buildopts.Options
}

func (r *Request) validate() error {
	if r == nil {
		return fmt.Errorf("request is required")
	}
	if strings.TrimSpace(string(r.Target)) == "" {
		return fmt.Errorf("target is required")
	}
	if strings.TrimSpace(r.SourceDir) == "" {
		return fmt.Errorf("source directory is required")
	}
	return nil
}

// PlannedStep is the resolved execution plan for one step.
type PlannedStep struct {
	Name       rules.StepName
	Resolution Resolution
	// Reason names the build option behind a skip.
	Reason string
	// Commands holds override command templates, or a default-action
	// description when the buildsystem runs the step.
	Commands       []string
	PerInterpreter bool
	ThenDefault    bool
}
