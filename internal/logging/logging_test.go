package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestCLIHandlerFormat(t *testing.T) {
	t.Parallel()

	var buffer bytes.Buffer
	logger := NewCLI(&buffer, nil)

	logger.With("component", "sequence").Info("step completed", "step", "build", "count", 2)

	line := strings.TrimSpace(buffer.String())
	if !strings.HasPrefix(line, "INFO ") {
		t.Errorf("line %q does not start with level", line)
	}
	for _, fragment := range []string{"step completed", "component=sequence", "step=build", "count=2"} {
		if !strings.Contains(line, fragment) {
			t.Errorf("line %q misses %q", line, fragment)
		}
	}
}

func TestCLIHandlerQuotesSpacedValues(t *testing.T) {
	t.Parallel()

	var buffer bytes.Buffer
	logger := NewCLI(&buffer, nil)

	logger.Info("ran", "command", "make html")

	if !strings.Contains(buffer.String(), `command="make html"`) {
		t.Errorf("line %q misses quoted command", buffer.String())
	}
}

func TestCLIHandlerLevelFiltering(t *testing.T) {
	t.Parallel()

	var buffer bytes.Buffer
	var level slog.LevelVar
	level.Set(slog.LevelWarn)
	logger := NewCLI(&buffer, &level)

	logger.Info("hidden")
	logger.Warn("visible")

	output := buffer.String()
	if strings.Contains(output, "hidden") {
		t.Errorf("output %q contains filtered record", output)
	}
	if !strings.Contains(output, "visible") {
		t.Errorf("output %q misses warn record", output)
	}
}

func TestCLIHandlerGroups(t *testing.T) {
	t.Parallel()

	var buffer bytes.Buffer
	logger := NewCLI(&buffer, nil)

	logger.WithGroup("run").Info("started", "id", "abc")

	if !strings.Contains(buffer.String(), "run.id=abc") {
		t.Errorf("line %q misses grouped key", buffer.String())
	}
}

func TestJSONMode(t *testing.T) {
	t.Parallel()

	var buffer bytes.Buffer
	logger := NewJSON(&buffer, nil)

	logger.Info("structured", "step", "test")

	var decoded map[string]any
	if err := json.Unmarshal(buffer.Bytes(), &decoded); err != nil {
		t.Fatalf("decode JSON record: %v", err)
	}
	if decoded["msg"] != "structured" || decoded["step"] != "test" {
		t.Errorf("decoded record = %v", decoded)
	}
}

func TestEnsure(t *testing.T) {
	t.Parallel()

	if Ensure(nil) == nil {
		t.Fatal("Ensure(nil) = nil, want default logger")
	}
	logger := NewCLI(&bytes.Buffer{}, nil)
	if Ensure(logger) != logger {
		t.Fatal("Ensure(logger) did not return the provided logger")
	}
}
