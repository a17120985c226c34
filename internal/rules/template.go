package rules

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"text/template"
)

// TemplateData carries the values an override command template may reference.
type TemplateData struct {
	// Interpreter is the interpreter command for per-interpreter steps,
	// empty otherwise.
	Interpreter string
	// SourceDir is the package source directory.
	SourceDir string
	// DestDir is the staging directory files are installed into.
	DestDir string
	// Package is the binary package name.
	Package string
}

// RenderCommand expands an override command template against the step
// context. The rendered command must not be empty.
func RenderCommand(command string, data TemplateData) (string, error) {
	tmpl, err := template.New("command").Option("missingkey=error").Parse(command)
	if err != nil {
		return "", fmt.Errorf("parse command template %q: %w", command, err)
	}

	var rendered bytes.Buffer
	if err := tmpl.Execute(&rendered, data); err != nil {
		return "", fmt.Errorf("render command template %q: %w", command, err)
	}

	result := strings.TrimSpace(rendered.String())
	if result == "" {
		return "", errors.New("command template rendered empty")
	}
	return result, nil
}
