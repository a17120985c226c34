package sequence

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"debrules/internal/execute"
	"debrules/internal/interpreters"
	"debrules/internal/rules"
)

// StepEnvironment carries the per-run context a buildsystem's default
// actions operate in.
type StepEnvironment struct {
	SourceDir string
	DestDir   string
	Package   string
	// Env is exported to every invocation.
	Env map[string]string
	// Parallel bounds concurrent per-interpreter invocations.
	Parallel int
	Docs     rules.Docs
}

// Buildsystem provides the default action for each lifecycle step.
type Buildsystem interface {
	Name() string
	// StepAction runs the step's default action.
	StepAction(ctx context.Context, step rules.StepName, env StepEnvironment) error
	// DescribeStep renders the default action for plan output without
	// running anything.
	DescribeStep(step rules.StepName, env StepEnvironment) []string
}

// Distutils drives a setup.py-based source tree: build and install run once
// per installed interpreter version, tests run the stdlib discovery runner.
type Distutils struct {
	Logger       *slog.Logger
	Runner       execute.CommandRunner
	Interpreters interpreters.Enumerator
}

// Name returns the buildsystem identifier used in rules files.
func (d *Distutils) Name() string {
	return "distutils"
}

func (d *Distutils) StepAction(ctx context.Context, step rules.StepName, env StepEnvironment) error {
	switch step {
	case rules.StepConfigure:
		return nil

	case rules.StepBuild:
		return d.forEachInterpreter(ctx, env, func(py interpreters.Interpreter) execute.Invocation {
			return d.invocation(env, py.Command(), "setup.py", "build")
		})

	case rules.StepTest:
		return d.forEachInterpreter(ctx, env, func(py interpreters.Interpreter) execute.Invocation {
			return d.invocation(env, py.Command(), "-m", "unittest", "discover")
		})

	case rules.StepInstall:
		destDir, err := filepath.Abs(env.DestDir)
		if err != nil {
			return fmt.Errorf("resolve destination directory %q: %w", env.DestDir, err)
		}
		return d.forEachInterpreter(ctx, env, func(py interpreters.Interpreter) execute.Invocation {
			return d.invocation(env, py.Command(),
				"setup.py", "install",
				"--root="+destDir,
				"--install-layout=deb",
				"--no-compile",
			)
		})

	case rules.StepBuildDocs:
		if env.Docs.Command == "" {
			return nil
		}
		return d.Runner.Run(ctx, execute.Invocation{
			Script: env.Docs.Command,
			Dir:    env.SourceDir,
			Env:    env.Env,
		})

	case rules.StepInstallDocs:
		return installDocs(env)

	case rules.StepClean:
		if err := d.Runner.Run(ctx, d.invocation(env, "python3", "setup.py", "clean", "-a")); err != nil {
			return err
		}
		return removeBuildResidue(env.SourceDir)

	default:
		return fmt.Errorf("buildsystem %s has no default action for step %q", d.Name(), step)
	}
}

func (d *Distutils) DescribeStep(step rules.StepName, env StepEnvironment) []string {
	switch step {
	case rules.StepConfigure:
		return nil
	case rules.StepBuild:
		return []string{"<interpreter> setup.py build"}
	case rules.StepTest:
		return []string{"<interpreter> -m unittest discover"}
	case rules.StepInstall:
		return []string{"<interpreter> setup.py install --root=" + env.DestDir + " --install-layout=deb --no-compile"}
	case rules.StepBuildDocs:
		if env.Docs.Command == "" {
			return nil
		}
		return []string{env.Docs.Command}
	case rules.StepInstallDocs:
		descriptions := make([]string, 0, len(env.Docs.Inputs))
		for _, input := range env.Docs.Inputs {
			descriptions = append(descriptions, "install "+input+" into "+docDir(env))
		}
		return descriptions
	case rules.StepClean:
		return []string{"python3 setup.py clean -a"}
	default:
		return nil
	}
}

func (d *Distutils) invocation(env StepEnvironment, argv ...string) execute.Invocation {
	return execute.Invocation{
		Argv: argv,
		Dir:  env.SourceDir,
		Env:  env.Env,
	}
}

// forEachInterpreter runs one invocation per enumerated interpreter version,
// sequentially unless the environment allows parallelism.
func (d *Distutils) forEachInterpreter(ctx context.Context, env StepEnvironment, build func(interpreters.Interpreter) execute.Invocation) error {
	versions, err := d.Interpreters.Enumerate(ctx)
	if err != nil {
		return err
	}
	if d.Logger != nil {
		d.Logger.Debug("iterating interpreter versions", "count", len(versions), "parallel", env.Parallel)
	}

	limit := env.Parallel
	if limit < 1 {
		limit = 1
	}

	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(limit)
	for _, py := range versions {
		inv := build(py)
		group.Go(func() error {
			return d.Runner.Run(ctx, inv)
		})
	}
	return group.Wait()
}
