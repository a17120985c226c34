// Package simple wires the default toolchain together: rules loading, build
// options from the environment, host verification, and the step sequence
// service, with local stores for run records.
package simple

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"debrules/internal/buildopts"
	"debrules/internal/execute"
	"debrules/internal/hostcheck"
	"debrules/internal/interpreters"
	"debrules/internal/logging"
	"debrules/internal/rules"
	"debrules/internal/runrecord"
	"debrules/internal/sequence"
)

// DefaultRulesPath is where a package's rules document lives, relative to
// the source directory.
var DefaultRulesPath = filepath.Join("debian", "rules.yaml")

// RunTarget executes the named step sequence for the package rooted at
// sourceDir. Empty rulesPath and destDir select the conventional locations.
func RunTarget(ctx context.Context, target sequence.Target, sourceDir, rulesPath, destDir string, logger *slog.Logger) error {
	logger = logging.Ensure(logger).With("component", "config")

	sourceDir, file, err := loadRules(sourceDir, rulesPath)
	if err != nil {
		return err
	}
	if destDir == "" {
		destDir = filepath.Join(sourceDir, "debian", file.Package)
	}

	options := buildopts.FromEnv()
	logger.Info("resolved build options", "options", options.String(), "package", file.Package)

	hostcheck.SetLogger(logger.With("component", "hostcheck"))
	if err := hostcheck.Verify(hostcheck.RequiredTools(file)); err != nil {
		return err
	}

	service, err := newService(file, sourceDir, logger)
	if err != nil {
		return err
	}

	return service.Run(ctx, &sequence.Request{
		Target:    target,
		SourceDir: sourceDir,
		DestDir:   destDir,
		Options:   options,
	})
}

// PlanTarget resolves the step plan for the named target without executing.
func PlanTarget(target sequence.Target, sourceDir, rulesPath, destDir string) ([]sequence.PlannedStep, error) {
	sourceDir, file, err := loadRules(sourceDir, rulesPath)
	if err != nil {
		return nil, err
	}
	if destDir == "" {
		destDir = filepath.Join(sourceDir, "debian", file.Package)
	}

	service, err := newService(file, sourceDir, nil)
	if err != nil {
		return nil, err
	}

	return service.Plan(&sequence.Request{
		Target:    target,
		SourceDir: sourceDir,
		DestDir:   destDir,
		Options:   buildopts.FromEnv(),
	})
}

// VerifyHost checks that the external tools the rules document needs are
// available.
func VerifyHost(sourceDir, rulesPath string, logger *slog.Logger) error {
	_, file, err := loadRules(sourceDir, rulesPath)
	if err != nil {
		return err
	}

	hostcheck.SetLogger(logging.Ensure(logger).With("component", "hostcheck"))
	return hostcheck.Verify(hostcheck.RequiredTools(file))
}

func newService(file *rules.File, sourceDir string, logger *slog.Logger) (*sequence.SequenceService, error) {
	logger = logging.Ensure(logger)

	runner := &execute.ExecRunner{Logger: logger.With("component", "execute")}
	enumerator := &interpreters.ExecEnumerator{Logger: logger.With("component", "interpreters")}

	var buildsystem sequence.Buildsystem
	switch file.Buildsystem {
	case "", "distutils", "pybuild":
		buildsystem = &sequence.Distutils{
			Logger:       logger.With("buildsystem", "distutils"),
			Runner:       runner,
			Interpreters: enumerator,
		}
	default:
		return nil, fmt.Errorf("unsupported buildsystem %q", file.Buildsystem)
	}

	return &sequence.SequenceService{
		Logger:       logger.With("service", "sequence"),
		Runner:       runner,
		Interpreters: enumerator,
		Buildsystem:  buildsystem,
		Rules:        file,
		Records: &runrecord.LocalStore{
			BaseDir: filepath.Join(sourceDir, "debian", ".debrules", "runs"),
		},
	}, nil
}

// loadRules resolves the source directory and loads its rules document,
// falling back to the embedded defaults when no rules file exists.
func loadRules(sourceDir, rulesPath string) (string, *rules.File, error) {
	if sourceDir == "" {
		sourceDir = "."
	}
	sourceDir, err := filepath.Abs(sourceDir)
	if err != nil {
		return "", nil, fmt.Errorf("resolve source directory: %w", err)
	}
	if _, err := os.Stat(sourceDir); err != nil {
		return "", nil, fmt.Errorf("stat source directory: %w", err)
	}

	path := rulesPath
	if path == "" {
		path = filepath.Join(sourceDir, DefaultRulesPath)
	} else if !filepath.IsAbs(path) {
		path = filepath.Join(sourceDir, path)
	}

	file, err := rules.Load(path)
	if err != nil {
		if rulesPath == "" && errors.Is(err, fs.ErrNotExist) {
			fallback, defaultErr := rules.Default(filepath.Base(sourceDir))
			if defaultErr != nil {
				return "", nil, defaultErr
			}
			return sourceDir, fallback, nil
		}
		return "", nil, err
	}
	return sourceDir, file, nil
}
