package runrecord

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// Store persists build run records.
type Store interface {
	Save(record *Record) error
}

// LocalStore persists run records as YAML files under BaseDir, one file per
// run, named by run ID.
type LocalStore struct {
	BaseDir string
}

// Save writes the record to disk, creating BaseDir if needed.
func (s *LocalStore) Save(record *Record) error {
	if s.BaseDir == "" {
		return errors.New("base directory is not configured")
	}
	if record == nil || record.ID == "" {
		return errors.New("record id is required")
	}

	if err := os.MkdirAll(s.BaseDir, 0o755); err != nil {
		return fmt.Errorf("create record directory: %w", err)
	}

	payload, err := yaml.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode run record: %w", err)
	}

	path := filepath.Join(s.BaseDir, record.ID+".yaml")
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return fmt.Errorf("write run record: %w", err)
	}
	return nil
}

// List returns all persisted records, newest first. A missing BaseDir is an
// empty result, not an error.
func (s *LocalStore) List() ([]Record, error) {
	entries, err := os.ReadDir(s.BaseDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var records []Record
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".yaml" {
			continue
		}

		payload, err := os.ReadFile(filepath.Join(s.BaseDir, entry.Name()))
		if err != nil {
			return nil, err
		}

		var record Record
		if err := yaml.Unmarshal(payload, &record); err != nil {
			return nil, fmt.Errorf("decode run record %s: %w", entry.Name(), err)
		}
		records = append(records, record)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].StartedAt.After(records[j].StartedAt)
	})
	return records, nil
}
