// Package storage defines persistence contracts for analysis runs.
package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound indicates a requested run is missing.
	ErrNotFound = errors.New("record not found")
	// ErrAlreadyExists indicates a run with the same ID is already stored.
	ErrAlreadyExists = errors.New("record already exists")
)

// Run is one stored analysis. Float fields hold NaN when the value was
// undefined.
type Run struct {
	ID        string
	Command   string // "adjust", "pba" or "sweep"
	CreatedAt time.Time
	Dataset   string
	Measure   string
	Seed      uint64
	Params    []string // "name=distribution", in draw order

	Observed float64
	Point    float64
	Low      float64
	High     float64
	Level    float64

	Used       int
	Excluded   int
	Exclusions map[string]int
}

// Trial is one stored trial estimate. Error is empty for defined trials.
type Trial struct {
	Index    int
	Estimate float64
	Error    string
}

// RunStore persists runs and their trials.
type RunStore interface {
	// SaveRun stores run and its trials and returns the run ID, generating
	// one when run.ID is empty.
	SaveRun(ctx context.Context, run Run, trials []Trial) (string, error)
	// GetRun returns a run and its trials ordered by index.
	GetRun(ctx context.Context, id string) (Run, []Trial, error)
	// ListRuns returns up to limit runs, newest first.
	ListRuns(ctx context.Context, limit int) ([]Run, error)
	Close() error
}
