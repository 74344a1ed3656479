// Package store persists the run ledger: one entry per saved batch run plus
// a snapshot of the canonical contractors it produced.
package store

import (
	"context"

	"github.com/sells-group/icp-resolver/internal/model"
)

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status model.RunStatus `json:"status,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// defaultListLimit caps ListRuns when the filter names no limit.
const defaultListLimit = 100

func (f RunFilter) limit() int {
	if f.Limit <= 0 {
		return defaultListLimit
	}
	return f.Limit
}

// Store defines the run ledger.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, inputs []string) (*model.Run, error)
	UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error
	CompleteRun(ctx context.Context, runID string, counts *model.RunCounts) error
	FailRun(ctx context.Context, runID string, reason string) error
	// GetRun returns nil and no error when the run does not exist.
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Contractor snapshots
	SaveContractors(ctx context.Context, runID string, cs []*model.Contractor) (int, error)
	ListContractors(ctx context.Context, runID string) ([]model.ContractorSnapshot, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// snapshotColumns is the column order of run_contractors rows.
var snapshotColumns = []string{
	"run_id", "contractor_id", "name", "normalized_name", "phone", "domain",
	"state", "source_type", "score", "tier", "certifications",
}
