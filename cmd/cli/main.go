package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	config "debrules/config"
	"debrules/internal/logging"
	"debrules/internal/sequence"
)

const defaultLogLevel = "info"

func main() {
	var levelVar slog.LevelVar
	levelVar.Set(slog.LevelInfo)

	logger := logging.NewCLI(os.Stderr, &levelVar)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCommand(&levelVar)
	if err := root.ExecuteContext(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			slog.Warn("command interrupted", "error", err)
			os.Exit(130)
		}
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

type globalFlags struct {
	logLevel  string
	logJSON   bool
	rulesPath string
	destDir   string
}

func newRootCommand(levelVar *slog.LevelVar) *cobra.Command {
	flags := &globalFlags{logLevel: defaultLogLevel}

	root := &cobra.Command{
		Use:           "debrules",
		Short:         "Drive a package build lifecycle from a declarative rules file",
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", defaultLogLevel, "Set log verbosity (debug, info, warning, error)")
	root.PersistentFlags().BoolVar(&flags.logJSON, "log-json", false, "Emit log records as JSON")
	root.PersistentFlags().StringVar(&flags.rulesPath, "rules", "", "Path to the rules file (default debian/rules.yaml under the source directory)")
	root.PersistentFlags().StringVar(&flags.destDir, "dest-dir", "", "Staging directory for installed files (default debian/<package>)")

	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		level, err := parseLogLevel(flags.logLevel)
		if err != nil {
			return err
		}
		levelVar.Set(level)
		if flags.logJSON {
			slog.SetDefault(logging.NewJSON(os.Stderr, levelVar))
		}
		return nil
	}

	root.AddCommand(
		newTargetCommand(sequence.TargetBinary, "Build, test, and stage the package with its documentation", flags),
		newTargetCommand(sequence.TargetBuild, "Build the package and run its tests", flags),
		newTargetCommand(sequence.TargetTest, "Run only the test step", flags),
		newTargetCommand(sequence.TargetClean, "Remove build residue", flags),
		newStepsCommand(flags),
		newVerifyCommand(flags),
	)
	return root
}

func newTargetCommand(target sequence.Target, short string, flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   string(target) + " [source-dir]",
		Args:  cobra.MaximumNArgs(1),
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			sourceDir := sourceDirArg(args)
			logger := slog.Default().With("command", string(target))

			if err := config.RunTarget(cmd.Context(), target, sourceDir, flags.rulesPath, flags.destDir, logger); err != nil {
				return err
			}
			logger.Info("target completed")
			return nil
		},
	}
}

func newStepsCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "steps <target> [source-dir]",
		Args:  cobra.RangeArgs(1, 2),
		Short: "Show the resolved step plan for a target without running it",
		RunE: func(cmd *cobra.Command, args []string) error {
			target := sequence.Target(strings.TrimSpace(args[0]))
			sourceDir := sourceDirArg(args[1:])

			planned, err := config.PlanTarget(target, sourceDir, flags.rulesPath, flags.destDir)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, step := range planned {
				switch step.Resolution {
				case sequence.ResolutionSkipped:
					fmt.Fprintf(out, "%s\t%s (%s)\n", step.Name, step.Resolution, step.Reason)
				case sequence.ResolutionOverride:
					suffix := ""
					if step.PerInterpreter {
						suffix = " per interpreter"
					}
					fmt.Fprintf(out, "%s\t%s%s\n", step.Name, step.Resolution, suffix)
					for _, command := range step.Commands {
						fmt.Fprintf(out, "\t%s\n", command)
					}
					if step.ThenDefault {
						fmt.Fprintf(out, "\tthen default action\n")
					}
				default:
					fmt.Fprintf(out, "%s\t%s\n", step.Name, step.Resolution)
					for _, command := range step.Commands {
						fmt.Fprintf(out, "\t%s\n", command)
					}
				}
			}
			return nil
		},
	}
}

func newVerifyCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "verify [source-dir]",
		Args:  cobra.MaximumNArgs(1),
		Short: "Check that the external tools the rules file needs are installed",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := slog.Default().With("command", "verify")
			if err := config.VerifyHost(sourceDirArg(args), flags.rulesPath, logger); err != nil {
				return err
			}
			logger.Info("host verification succeeded")
			return nil
		},
	}
}

func sourceDirArg(args []string) string {
	if len(args) == 0 {
		return "."
	}
	return strings.TrimSpace(args[0])
}

func parseLogLevel(value string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error", "err":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", value)
	}
}
