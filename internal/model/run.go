package model

import "time"

// RunStatus represents the current state of a batch resolution run.
type RunStatus string

const (
	RunStatusQueued    RunStatus = "queued"
	RunStatusResolving RunStatus = "resolving"
	RunStatusScoring   RunStatus = "scoring"
	RunStatusExporting RunStatus = "exporting"
	RunStatusComplete  RunStatus = "complete"
	RunStatusFailed    RunStatus = "failed"
)

// RunCounts are the audit counters every batch reports so an operator can
// account for each loaded record.
type RunCounts struct {
	FilesLoaded     int `json:"files_loaded"`
	FilesFailed     int `json:"files_failed"`
	RecordsLoaded   int `json:"records_loaded"`
	RecordsResolved int `json:"records_resolved"`
	Created         int `json:"created"`
	ConflictMerges  int `json:"conflict_merges"`
	Unresolved      int `json:"unresolved"`
	Canonical       int `json:"canonical"`
	MultiCertified  int `json:"multi_certified"`
}

// Run is one ledger entry for a batch resolution.
type Run struct {
	ID        string     `json:"id"`
	Inputs    []string   `json:"inputs"`
	Status    RunStatus  `json:"status"`
	Counts    *RunCounts `json:"counts,omitempty"`
	Error     string     `json:"error,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// TierCounts tallies contractors per tier.
type TierCounts map[Tier]int

// ContractorSnapshot is the ledger copy of one canonical contractor as it
// stood at the end of a run.
type ContractorSnapshot struct {
	RunID          string     `json:"run_id"`
	ContractorID   int        `json:"contractor_id"`
	Name           string     `json:"name"`
	NormalizedName string     `json:"normalized_name,omitempty"`
	Phone          string     `json:"phone,omitempty"`
	Domain         string     `json:"domain,omitempty"`
	State          string     `json:"state,omitempty"`
	SourceType     SourceType `json:"source_type"`
	Score          int        `json:"score"`
	Tier           Tier       `json:"tier"`
	Certifications []string   `json:"certifications,omitempty"`
}

// Snapshot captures c for the run ledger.
func (c *Contractor) Snapshot(runID string) ContractorSnapshot {
	return ContractorSnapshot{
		RunID:          runID,
		ContractorID:   c.ID,
		Name:           c.DisplayName,
		NormalizedName: c.NormalizedName,
		Phone:          c.PrimaryPhone,
		Domain:         c.PrimaryDomain,
		State:          c.State(),
		SourceType:     c.SourceType,
		Score:          c.Score,
		Tier:           c.Tier,
		Certifications: c.CertificationStrings(),
	}
}
