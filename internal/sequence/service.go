// Package sequence drives the package build lifecycle: a fixed, ordered set
// of steps per target, where each step either gets skipped by a build
// option, replaced by rules-file override commands, or delegated to the
// buildsystem's default action. Execution is strictly sequential at the step
// level; the first failing step aborts the run.
package sequence

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"debrules/internal/execute"
	"debrules/internal/interpreters"
	"debrules/internal/rules"
	"debrules/internal/runrecord"
)

// SequenceService runs step sequences for one rules document.
type SequenceService struct {
	Logger       *slog.Logger
	Runner       execute.CommandRunner
	Interpreters interpreters.Enumerator
	Buildsystem  Buildsystem
	Rules        *rules.File
	// Records persists run bookkeeping. Optional; persistence failures are
	// logged, never fatal.
	Records runrecord.Store
}

// Run executes the target's step sequence.
func (s *SequenceService) Run(ctx context.Context, request *Request) error {
	if err := request.validate(); err != nil {
		return err
	}
	if s.Rules == nil {
		return fmt.Errorf("rules document is not configured")
	}
	if s.Runner == nil {
		return fmt.Errorf("command runner is not configured")
	}
	if s.Buildsystem == nil {
		return fmt.Errorf("buildsystem is not configured")
	}

	steps, err := SequenceFor(request.Target)
	if err != nil {
		return err
	}

	logger := s.logger().With("target", string(request.Target), "package", s.Rules.Package)

	record := runrecord.New(string(request.Target), s.Rules.Package, request.Options.Tokens())
	logger.Info("starting sequence", "run_id", record.ID, "steps", len(steps))

	var runErr error
	for _, step := range steps {
		plan := s.planStep(step, request)
		stepLogger := logger.With("step", string(step))

		stepRecord := runrecord.StepRecord{
			Name:       string(step),
			Resolution: string(plan.Resolution),
			Reason:     plan.Reason,
			StartedAt:  time.Now().UTC(),
		}

		if plan.Resolution == ResolutionSkipped {
			stepLogger.Info("skipping step", "reason", plan.Reason)
			stepRecord.Status = "skipped"
			record.AppendStep(stepRecord)
			continue
		}

		stepLogger.Info("running step", "resolution", string(plan.Resolution))
		start := time.Now()

		executed, stepErr := s.runStep(ctx, step, plan, request)
		stepRecord.Commands = executed
		stepRecord.Duration = time.Since(start)

		if stepErr != nil {
			stepRecord.Status = "failed"
			stepRecord.Error = stepErr.Error()
			record.AppendStep(stepRecord)
			stepLogger.Error("step failed", "error", stepErr)
			runErr = fmt.Errorf("step %s: %w", step, stepErr)
			break
		}

		stepRecord.Status = "succeeded"
		record.AppendStep(stepRecord)
		stepLogger.Info("step completed", "duration", stepRecord.Duration)
	}

	record.Finish(runErr)
	if s.Records != nil {
		if err := s.Records.Save(record); err != nil {
			logger.Warn("persisting run record failed", "run_id", record.ID, "error", err)
		}
	}

	if runErr != nil {
		return runErr
	}
	logger.Info("sequence completed", "run_id", record.ID)
	return nil
}

// Plan resolves the target's steps without executing anything.
func (s *SequenceService) Plan(request *Request) ([]PlannedStep, error) {
	if err := request.validate(); err != nil {
		return nil, err
	}
	if s.Rules == nil {
		return nil, fmt.Errorf("rules document is not configured")
	}

	steps, err := SequenceFor(request.Target)
	if err != nil {
		return nil, err
	}

	planned := make([]PlannedStep, 0, len(steps))
	for _, step := range steps {
		planned = append(planned, s.planStep(step, request))
	}
	return planned, nil
}

// planStep resolves how a step will execute. Skips win over overrides: a
// disabled step performs no invocation even when the rules replace it.
func (s *SequenceService) planStep(step rules.StepName, request *Request) PlannedStep {
	plan := PlannedStep{Name: step}

	switch {
	case step == rules.StepTest && request.Options.NoCheck:
		plan.Resolution = ResolutionSkipped
		plan.Reason = "nocheck"
		return plan
	case (step == rules.StepBuildDocs || step == rules.StepInstallDocs) && request.Options.NoDoc:
		plan.Resolution = ResolutionSkipped
		plan.Reason = "nodoc"
		return plan
	}

	if override, ok := s.Rules.OverrideFor(step); ok {
		plan.Resolution = ResolutionOverride
		plan.Commands = override.Commands
		plan.PerInterpreter = override.ForeachInterpreter
		plan.ThenDefault = override.ThenDefault
		return plan
	}

	plan.Resolution = ResolutionDefault
	if s.Buildsystem != nil {
		plan.Commands = s.Buildsystem.DescribeStep(step, s.stepEnvironment(request))
	}
	return plan
}

func (s *SequenceService) runStep(ctx context.Context, step rules.StepName, plan PlannedStep, request *Request) ([]string, error) {
	env := s.stepEnvironment(request)

	if plan.Resolution == ResolutionDefault {
		return plan.Commands, s.Buildsystem.StepAction(ctx, step, env)
	}

	executed, err := s.runOverride(ctx, plan, env)
	if err != nil {
		return executed, err
	}

	if plan.ThenDefault {
		executed = append(executed, s.Buildsystem.DescribeStep(step, env)...)
		if err := s.Buildsystem.StepAction(ctx, step, env); err != nil {
			return executed, err
		}
	}
	return executed, nil
}

// runOverride renders and executes the override commands. Per-interpreter
// overrides run each interpreter's command list in order; distinct
// interpreters may proceed concurrently within the configured bound.
func (s *SequenceService) runOverride(ctx context.Context, plan PlannedStep, env StepEnvironment) ([]string, error) {
	baseData := rules.TemplateData{
		SourceDir: env.SourceDir,
		DestDir:   env.DestDir,
		Package:   env.Package,
	}

	if !plan.PerInterpreter {
		rendered, err := renderAll(plan.Commands, baseData)
		if err != nil {
			return nil, err
		}
		for _, command := range rendered {
			if err := s.Runner.Run(ctx, execute.Invocation{Script: command, Dir: env.SourceDir, Env: env.Env}); err != nil {
				return rendered, err
			}
		}
		return rendered, nil
	}

	if s.Interpreters == nil {
		return nil, fmt.Errorf("interpreter enumerator is not configured")
	}
	versions, err := s.Interpreters.Enumerate(ctx)
	if err != nil {
		return nil, err
	}

	// Render everything up front so template errors surface before any
	// command runs.
	perInterpreter := make([][]string, len(versions))
	var executed []string
	for i, py := range versions {
		data := baseData
		data.Interpreter = py.Command()
		rendered, err := renderAll(plan.Commands, data)
		if err != nil {
			return nil, err
		}
		perInterpreter[i] = rendered
		executed = append(executed, rendered...)
	}

	limit := env.Parallel
	if limit < 1 {
		limit = 1
	}

	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(limit)
	for _, commands := range perInterpreter {
		commands := commands
		group.Go(func() error {
			for _, command := range commands {
				if err := s.Runner.Run(ctx, execute.Invocation{Script: command, Dir: env.SourceDir, Env: env.Env}); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return executed, err
	}
	return executed, nil
}

func (s *SequenceService) stepEnvironment(request *Request) StepEnvironment {
	return StepEnvironment{
		SourceDir: request.SourceDir,
		DestDir:   request.DestDir,
		Package:   s.Rules.Package,
		Env:       s.Rules.Export,
		Parallel:  request.Options.Parallel,
		Docs:      s.Rules.Docs,
	}
}

func (s *SequenceService) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

func renderAll(commands []string, data rules.TemplateData) ([]string, error) {
	rendered := make([]string, 0, len(commands))
	for _, command := range commands {
		result, err := rules.RenderCommand(command, data)
		if err != nil {
			return nil, err
		}
		rendered = append(rendered, result)
	}
	return rendered, nil
}
