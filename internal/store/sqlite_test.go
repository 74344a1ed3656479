package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/icp-resolver/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func testContractors() []*model.Contractor {
	return []*model.Contractor{
		{
			ID:             1,
			DisplayName:    "Acme Solar LLC",
			NormalizedName: "ACME SOLAR",
			PrimaryPhone:   "5551112222",
			PrimaryDomain:  "acmesolar.com",
			Addresses:      []model.Address{{City: "AUSTIN", State: "TX", Zip: "78701"}},
			Certifications: []model.Certification{
				{Origin: "Tesla", Label: "Premier", Kind: model.KindDirectory},
				{Origin: "Enphase", Label: "Gold", Kind: model.KindDirectory},
			},
			SourceType: model.SourceDirectoryOnly,
			Score:      39,
			Tier:       model.TierBronze,
		},
		{
			ID:             2,
			DisplayName:    "Volt Bros",
			NormalizedName: "VOLT BROS",
			Addresses:      []model.Address{{City: "NEWARK", State: "NJ"}},
			Certifications: []model.Certification{
				{Origin: "NJ DCA", Label: "Electrical", Kind: model.KindLicense},
			},
			SourceType: model.SourceLicenseOnly,
			Score:      72,
			Tier:       model.TierGold,
		},
	}
}

func TestSQLite_RunLifecycle(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, []string{"tesla.csv", "ftp://registry.example.gov/tdlr.zip"})
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusQueued, run.Status)

	require.NoError(t, st.UpdateRunStatus(ctx, run.ID, model.RunStatusResolving))
	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, model.RunStatusResolving, got.Status)
	assert.Equal(t, []string{"tesla.csv", "ftp://registry.example.gov/tdlr.zip"}, got.Inputs)
	assert.Nil(t, got.Counts)

	counts := &model.RunCounts{FilesLoaded: 2, RecordsLoaded: 10, RecordsResolved: 9, Created: 4, ConflictMerges: 1, Unresolved: 1, Canonical: 3}
	require.NoError(t, st.CompleteRun(ctx, run.ID, counts))

	got, err = st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, got.Status)
	assert.Equal(t, counts, got.Counts)
	assert.Empty(t, got.Error)
}

func TestSQLite_FailRun(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, st.FailRun(ctx, run.ID, "all extracts failed"))

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusFailed, got.Status)
	assert.Equal(t, "all extracts failed", got.Error)
	assert.Empty(t, got.Inputs)
}

func TestSQLite_MissingRun(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	got, err := st.GetRun(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, got)

	err = st.UpdateRunStatus(ctx, "nope", model.RunStatusScoring)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run not found")
	assert.Error(t, st.CompleteRun(ctx, "nope", &model.RunCounts{}))
	assert.Error(t, st.FailRun(ctx, "nope", "x"))
}

func TestSQLite_ListRuns(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	var ids []string
	for range 3 {
		run, err := st.CreateRun(ctx, []string{"x.csv"})
		require.NoError(t, err)
		ids = append(ids, run.ID)
	}
	require.NoError(t, st.CompleteRun(ctx, ids[0], &model.RunCounts{}))

	all, err := st.ListRuns(ctx, RunFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	complete, err := st.ListRuns(ctx, RunFilter{Status: model.RunStatusComplete})
	require.NoError(t, err)
	require.Len(t, complete, 1)
	assert.Equal(t, ids[0], complete[0].ID)

	page, err := st.ListRuns(ctx, RunFilter{Limit: 2, Offset: 2})
	require.NoError(t, err)
	assert.Len(t, page, 1)
}

func TestSQLite_Contractors(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, []string{"a.csv"})
	require.NoError(t, err)

	n, err := st.SaveContractors(ctx, run.ID, testContractors())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err := st.ListContractors(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Volt Bros", got[0].Name, "ordered by score desc")
	assert.Equal(t, model.ContractorSnapshot{
		RunID:          run.ID,
		ContractorID:   1,
		Name:           "Acme Solar LLC",
		NormalizedName: "ACME SOLAR",
		Phone:          "5551112222",
		Domain:         "acmesolar.com",
		State:          "TX",
		SourceType:     model.SourceDirectoryOnly,
		Score:          39,
		Tier:           model.TierBronze,
		Certifications: []string{"Enphase:Gold", "Tesla:Premier"},
	}, got[1])

	// Saving again replaces rather than duplicates.
	cs := testContractors()
	cs[0].Score = 85
	cs[0].Tier = model.TierPlatinum
	_, err = st.SaveContractors(ctx, run.ID, cs)
	require.NoError(t, err)

	got, err = st.ListContractors(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 85, got[0].Score)
	assert.Equal(t, model.TierPlatinum, got[0].Tier)

	none, err := st.ListContractors(ctx, "other-run")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSQLite_SaveContractors_UnknownRun(t *testing.T) {
	st := newTestSQLiteStore(t)

	_, err := st.SaveContractors(context.Background(), "missing-run", testContractors())
	assert.Error(t, err, "snapshot rows reference an existing run")
}
