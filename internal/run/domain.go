// Package run keeps the registry of export runs: who asked for which
// company and window, where each run stands and what it produced.
package run

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/saftbridge/saftbridge/internal/ledger"
)

// Status enumerates the run lifecycle values.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusRunning   Status = "RUNNING"
	StatusSucceeded Status = "SUCCEEDED"
	StatusFailed    Status = "FAILED"
)

// ErrInvalidTransition signals a lifecycle move the registry refuses.
var ErrInvalidTransition = errors.New("run: invalid status transition")

// CanTransition reports whether a run may move from s to next. Runs
// only ever move forward: pending starts or fails, running finishes
// one way or the other, terminal states stay put.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusRunning || next == StatusFailed
	case StatusRunning:
		return next == StatusSucceeded || next == StatusFailed
	}
	return false
}

// Run is one registered export run.
type Run struct {
	ID             uuid.UUID
	Company        string
	WindowStart    ledger.PeriodKey
	WindowEnd      ledger.PeriodKey
	Policy         ledger.NormalizationPolicy
	Status         Status
	LinesProcessed int
	LinesSkipped   int
	ArtifactPath   string
	ArtifactDigest string
	Error          string
	CreatedAt      time.Time
	StartedAt      *time.Time
	FinishedAt     *time.Time
}

// Window rebuilds the reporting window the run was registered for.
func (r Run) Window() (ledger.PeriodWindow, error) {
	return ledger.WindowFromKeys(r.WindowStart, r.WindowEnd)
}

// Outcome carries what a successful run produced.
type Outcome struct {
	ArtifactPath   string
	ArtifactDigest string
	LinesProcessed int
	LinesSkipped   int
	FinishedAt     time.Time
}

// Diagnostic is one per-reason count of lines a run dropped.
type Diagnostic struct {
	RunID  uuid.UUID
	Reason string
	Count  int
}
