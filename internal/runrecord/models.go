// Package runrecord persists bookkeeping records for build runs. Records are
// best-effort: a run never fails because its record could not be written.
package runrecord

import (
	"time"

	"github.com/google/uuid"
)

// Outcome captures overall lifecycle states for a build run.
type Outcome string

const (
	OutcomeRunning   Outcome = "running"
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
)

// StepRecord documents one lifecycle step of a run.
type StepRecord struct {
	Name       string        `yaml:"name"`
	Resolution string        `yaml:"resolution"`
	Status     string        `yaml:"status"`
	Reason     string        `yaml:"reason,omitempty"`
	Commands   []string      `yaml:"commands,omitempty"`
	StartedAt  time.Time     `yaml:"started_at"`
	Duration   time.Duration `yaml:"duration"`
	Error      string        `yaml:"error,omitempty"`
}

// Record documents one build run end to end.
type Record struct {
	ID         string       `yaml:"id"`
	Target     string       `yaml:"target"`
	Package    string       `yaml:"package"`
	Options    []string     `yaml:"options,omitempty"`
	StartedAt  time.Time    `yaml:"started_at"`
	FinishedAt time.Time    `yaml:"finished_at,omitempty"`
	Outcome    Outcome      `yaml:"outcome"`
	Steps      []StepRecord `yaml:"steps,omitempty"`
}

// New starts a record for a run of the given target.
func New(target, packageName string, options []string) *Record {
	return &Record{
		ID:        uuid.New().String(),
		Target:    target,
		Package:   packageName,
		Options:   options,
		StartedAt: time.Now().UTC(),
		Outcome:   OutcomeRunning,
	}
}

// AppendStep attaches a completed step to the record.
func (r *Record) AppendStep(step StepRecord) {
	r.Steps = append(r.Steps, step)
}

// Finish marks the record complete. A non-nil error means the run failed.
func (r *Record) Finish(err error) {
	r.FinishedAt = time.Now().UTC()
	if err != nil {
		r.Outcome = OutcomeFailed
		return
	}
	r.Outcome = OutcomeSucceeded
}
