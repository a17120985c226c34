package sequence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"debrules/internal/buildopts"
	"debrules/internal/execute"
	"debrules/internal/interpreters"
	"debrules/internal/rules"
	"debrules/internal/runrecord"
)

type fakeRunner struct {
	mu       sync.Mutex
	commands []string
	failOn   string
}

func (r *fakeRunner) Run(_ context.Context, inv execute.Invocation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	command := inv.CommandLine()
	r.commands = append(r.commands, command)
	if r.failOn != "" && strings.Contains(command, r.failOn) {
		return fmt.Errorf("command %q exited with status 1", command)
	}
	return nil
}

func (r *fakeRunner) ran() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.commands...)
}

type fakeEnumerator struct {
	versions []interpreters.Interpreter
	err      error
	calls    int
}

func (e *fakeEnumerator) Enumerate(context.Context) ([]interpreters.Interpreter, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	return e.versions, nil
}

type fakeBuildsystem struct {
	steps  []rules.StepName
	failOn rules.StepName
}

func (b *fakeBuildsystem) Name() string { return "fake" }

func (b *fakeBuildsystem) StepAction(_ context.Context, step rules.StepName, _ StepEnvironment) error {
	b.steps = append(b.steps, step)
	if step == b.failOn && b.failOn != "" {
		return errors.New("default action failed")
	}
	return nil
}

func (b *fakeBuildsystem) DescribeStep(step rules.StepName, _ StepEnvironment) []string {
	return []string{"default " + string(step)}
}

type fakeRecordStore struct {
	saved []*runrecord.Record
	err   error
}

func (s *fakeRecordStore) Save(record *runrecord.Record) error {
	s.saved = append(s.saved, record)
	return s.err
}

func testRules(t *testing.T) *rules.File {
	t.Helper()
	file, err := rules.Parse([]byte(`
package: typedload
docs:
  command: make html
  inputs: [README.md]
overrides:
  test:
    foreach-interpreter: true
    commands:
      - "{{.Interpreter}} -m tests"
`))
	if err != nil {
		t.Fatalf("parse test rules: %v", err)
	}
	return file
}

func newTestService(file *rules.File, runner *fakeRunner, enumerator *fakeEnumerator, buildsystem Buildsystem, records runrecord.Store) *SequenceService {
	return &SequenceService{
		Runner:       runner,
		Interpreters: enumerator,
		Buildsystem:  buildsystem,
		Rules:        file,
		Records:      records,
	}
}

func TestRunSkipsTestStepWhenNoCheck(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{}
	enumerator := &fakeEnumerator{versions: []interpreters.Interpreter{"python3.12"}}
	store := &fakeRecordStore{}
	service := newTestService(testRules(t), runner, enumerator, &fakeBuildsystem{}, store)

	request := &Request{
		Target:    TargetBuild,
		SourceDir: t.TempDir(),
		Options:   buildopts.Parse("nocheck"),
	}

	if err := service.Run(context.Background(), request); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	for _, command := range runner.ran() {
		if strings.Contains(command, "-m tests") {
			t.Fatalf("test command %q ran despite nocheck", command)
		}
	}
	if enumerator.calls != 0 {
		t.Errorf("enumerator called %d times despite nocheck, want 0", enumerator.calls)
	}

	if len(store.saved) != 1 {
		t.Fatalf("saved %d records, want 1", len(store.saved))
	}
	record := store.saved[0]
	for _, step := range record.Steps {
		if step.Name == "test" {
			if step.Status != "skipped" || step.Reason != "nocheck" {
				t.Fatalf("test step record = %+v, want skipped with reason nocheck", step)
			}
			return
		}
	}
	t.Fatal("test step missing from run record")
}

func TestRunTestOverrideOncePerInterpreter(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{}
	enumerator := &fakeEnumerator{versions: []interpreters.Interpreter{"python3.11", "python3.12"}}
	service := newTestService(testRules(t), runner, enumerator, &fakeBuildsystem{}, nil)

	request := &Request{Target: TargetBuild, SourceDir: t.TempDir()}
	if err := service.Run(context.Background(), request); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	counts := map[string]int{}
	for _, command := range runner.ran() {
		counts[command]++
	}
	for _, want := range []string{"python3.11 -m tests", "python3.12 -m tests"} {
		if counts[want] != 1 {
			t.Errorf("command %q ran %d times, want exactly 1", want, counts[want])
		}
	}
}

func TestBinarySequenceBuildsDocsBeforeInstallingThem(t *testing.T) {
	t.Parallel()

	buildsystem := &fakeBuildsystem{}
	file, err := rules.Parse([]byte("package: typedload\n"))
	if err != nil {
		t.Fatalf("parse rules: %v", err)
	}
	service := newTestService(file, &fakeRunner{}, &fakeEnumerator{}, buildsystem, nil)

	request := &Request{Target: TargetBinary, SourceDir: t.TempDir(), DestDir: t.TempDir()}
	if err := service.Run(context.Background(), request); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	docsBuilt, docsInstalled := -1, -1
	for i, step := range buildsystem.steps {
		switch step {
		case rules.StepBuildDocs:
			docsBuilt = i
		case rules.StepInstallDocs:
			docsInstalled = i
		}
	}
	if docsBuilt == -1 || docsInstalled == -1 {
		t.Fatalf("steps = %v, want both builddocs and installdocs", buildsystem.steps)
	}
	if docsBuilt >= docsInstalled {
		t.Fatalf("builddocs at %d did not precede installdocs at %d", docsBuilt, docsInstalled)
	}
}

func TestRunAbortsAtFirstFailingStep(t *testing.T) {
	t.Parallel()

	buildsystem := &fakeBuildsystem{failOn: rules.StepBuild}
	enumerator := &fakeEnumerator{versions: []interpreters.Interpreter{"python3.12"}}
	store := &fakeRecordStore{}
	service := newTestService(testRules(t), &fakeRunner{}, enumerator, buildsystem, store)

	request := &Request{Target: TargetBuild, SourceDir: t.TempDir()}
	err := service.Run(context.Background(), request)
	if err == nil {
		t.Fatal("Run() error = nil, want non-nil")
	}
	if !strings.Contains(err.Error(), "step build") {
		t.Fatalf("Run() error = %v, want failing step named", err)
	}

	if enumerator.calls != 0 {
		t.Error("test step ran after the build step failed")
	}

	if len(store.saved) != 1 {
		t.Fatalf("saved %d records, want 1", len(store.saved))
	}
	if store.saved[0].Outcome != runrecord.OutcomeFailed {
		t.Errorf("record outcome = %q, want %q", store.saved[0].Outcome, runrecord.OutcomeFailed)
	}
}

func TestRunOverrideThenDefault(t *testing.T) {
	t.Parallel()

	file, err := rules.Parse([]byte(`
package: typedload
overrides:
  installdocs:
    then-default: true
    commands:
      - "make html"
`))
	if err != nil {
		t.Fatalf("parse rules: %v", err)
	}

	runner := &fakeRunner{}
	buildsystem := &fakeBuildsystem{}
	service := newTestService(file, runner, &fakeEnumerator{}, buildsystem, nil)

	request := &Request{Target: TargetBinary, SourceDir: t.TempDir(), DestDir: t.TempDir()}
	if err := service.Run(context.Background(), request); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	foundOverride := false
	for _, command := range runner.ran() {
		if command == "make html" {
			foundOverride = true
		}
	}
	if !foundOverride {
		t.Error("override command did not run")
	}

	foundDefault := false
	for _, step := range buildsystem.steps {
		if step == rules.StepInstallDocs {
			foundDefault = true
		}
	}
	if !foundDefault {
		t.Error("default installdocs action did not run after the override")
	}
}

func TestRunRecordPersistenceFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	store := &fakeRecordStore{err: errors.New("disk full")}
	file, err := rules.Parse([]byte("package: typedload\n"))
	if err != nil {
		t.Fatalf("parse rules: %v", err)
	}
	service := newTestService(file, &fakeRunner{}, &fakeEnumerator{}, &fakeBuildsystem{}, store)

	request := &Request{Target: TargetClean, SourceDir: t.TempDir()}
	if err := service.Run(context.Background(), request); err != nil {
		t.Fatalf("Run() error = %v, want nil despite record store failure", err)
	}
}

func TestPlanResolutions(t *testing.T) {
	t.Parallel()

	service := newTestService(testRules(t), &fakeRunner{}, &fakeEnumerator{}, &fakeBuildsystem{}, nil)

	request := &Request{
		Target:    TargetBinary,
		SourceDir: "src",
		DestDir:   "debian/typedload",
		Options:   buildopts.Parse("nocheck nodoc"),
	}

	planned, err := service.Plan(request)
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}

	resolutions := map[rules.StepName]Resolution{}
	reasons := map[rules.StepName]string{}
	for _, step := range planned {
		resolutions[step.Name] = step.Resolution
		reasons[step.Name] = step.Reason
	}

	if resolutions[rules.StepTest] != ResolutionSkipped || reasons[rules.StepTest] != "nocheck" {
		t.Errorf("test step = %s/%s, want skipped/nocheck", resolutions[rules.StepTest], reasons[rules.StepTest])
	}
	if resolutions[rules.StepBuildDocs] != ResolutionSkipped || reasons[rules.StepBuildDocs] != "nodoc" {
		t.Errorf("builddocs step = %s/%s, want skipped/nodoc", resolutions[rules.StepBuildDocs], reasons[rules.StepBuildDocs])
	}
	if resolutions[rules.StepInstallDocs] != ResolutionSkipped {
		t.Errorf("installdocs step = %s, want skipped", resolutions[rules.StepInstallDocs])
	}
	if resolutions[rules.StepBuild] != ResolutionDefault {
		t.Errorf("build step = %s, want default", resolutions[rules.StepBuild])
	}

	// Without nocheck the override resolution surfaces instead.
	request.Options = buildopts.Options{Parallel: 1}
	planned, err = service.Plan(request)
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	for _, step := range planned {
		if step.Name == rules.StepTest {
			if step.Resolution != ResolutionOverride || !step.PerInterpreter {
				t.Errorf("test step plan = %+v, want per-interpreter override", step)
			}
		}
	}
}

func TestSequenceForUnknownTarget(t *testing.T) {
	t.Parallel()

	if _, err := SequenceFor(Target("deploy")); err == nil {
		t.Fatal("SequenceFor(deploy) error = nil, want non-nil")
	}
}
