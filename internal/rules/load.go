package rules

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultRules []byte

// Load reads and validates a rules document from disk.
func Load(path string) (*File, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}

	file, err := Parse(payload)
	if err != nil {
		return nil, fmt.Errorf("parse rules file %s: %w", path, err)
	}
	return file, nil
}

// Parse decodes a rules document. Unknown fields are rejected so typos in a
// rules file fail loudly instead of silently changing behavior.
func Parse(payload []byte) (*File, error) {
	decoder := yaml.NewDecoder(bytes.NewReader(payload))
	decoder.KnownFields(true)

	var file File
	if err := decoder.Decode(&file); err != nil {
		return nil, err
	}
	if err := file.Validate(); err != nil {
		return nil, err
	}
	return &file, nil
}

// Default returns the embedded rules document for the named package: test
// module run per interpreter version, documentation built through make.
func Default(packageName string) (*File, error) {
	decoder := yaml.NewDecoder(bytes.NewReader(defaultRules))
	decoder.KnownFields(true)

	var file File
	if err := decoder.Decode(&file); err != nil {
		return nil, fmt.Errorf("decode embedded rules: %w", err)
	}

	file.Package = packageName
	if err := file.Validate(); err != nil {
		return nil, fmt.Errorf("embedded rules: %w", err)
	}
	return &file, nil
}
