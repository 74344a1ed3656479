package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/icp-resolver/internal/config"
	"github.com/sells-group/icp-resolver/internal/engine"
	"github.com/sells-group/icp-resolver/internal/export"
	"github.com/sells-group/icp-resolver/internal/model"
	"github.com/sells-group/icp-resolver/internal/scorer"
	"github.com/sells-group/icp-resolver/internal/store"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		Store:  config.StoreConfig{Driver: "sqlite", SQLitePath: filepath.Join(dir, "ledger.db")},
		Ingest: config.IngestConfig{TempDir: filepath.Join(dir, "tmp")},
		Scorer: scorer.DefaultScorerConfig(),
		Export: config.ExportConfig{
			OutputDir: filepath.Join(dir, "out"),
			Views:     []string{"grandmaster", "crossover", "scored", "srec"},
		},
		Batch: config.BatchConfig{ScoreWorkers: 2},
	}
}

func writeExtract(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

const teslaCSV = `Business Name,Phone Number,Website,City,State,Tier
Acme Solar LLC,(555) 111-2222,https://www.acmesolar.com,Austin,TX,Premier
Bright Home Energy,(555) 333-4444,,Trenton,NJ,Certified
`

const enphaseCSV = `name,phone,website,city,state,tier
ACME SOLAR,1-555-111-2222,,Austin,Texas,Gold
`

func TestRunResolve(t *testing.T) {
	c := testConfig(t)
	tesla := writeExtract(t, "tesla.csv", teslaCSV)
	enphase := writeExtract(t, "enphase.csv", enphaseCSV)

	res, err := runResolve(context.Background(), c, []string{tesla, filepath.Join(t.TempDir(), "missing.csv"), enphase}, false)
	require.NoError(t, err)

	assert.Equal(t, 2, res.FilesLoaded)
	assert.Equal(t, 1, res.FilesFailed)
	assert.Equal(t, 3, res.RecordsLoaded)
	assert.Equal(t, 2, res.Canonical)
	assert.Equal(t, 1, res.MultiCertified)
	assert.Empty(t, res.RunID)

	require.NotNil(t, res.Exports)
	assert.Len(t, res.Exports.Written, 4)
	for _, w := range res.Exports.Written {
		_, err := os.Stat(w.Path)
		assert.NoError(t, err, w.Path)
	}
	_, err = os.Stat(c.Store.SQLitePath)
	assert.True(t, os.IsNotExist(err), "ledger is untouched without --save")
}

func TestRunResolve_Save(t *testing.T) {
	c := testConfig(t)
	tesla := writeExtract(t, "tesla.csv", teslaCSV)

	res, err := runResolve(context.Background(), c, []string{tesla}, true)
	require.NoError(t, err)
	require.NotEmpty(t, res.RunID)

	st, err := store.Open(context.Background(), c.Store)
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck

	run, err := st.GetRun(context.Background(), res.RunID)
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, model.RunStatusComplete, run.Status)
	assert.Equal(t, res.Canonical, run.Counts.Canonical)
}

func TestRunResolve_AllExtractsFail(t *testing.T) {
	c := testConfig(t)

	res, err := runResolve(context.Background(), c, []string{filepath.Join(t.TempDir(), "nope.csv")}, false)
	require.Error(t, err)
	require.NotNil(t, res)
	assert.Equal(t, 1, res.FilesFailed)
}

func TestRunResolve_InvalidConfig(t *testing.T) {
	c := testConfig(t)
	c.Export.Views = []string{"summary"}

	_, err := runResolve(context.Background(), c, []string{"a.csv"}, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown view")
}

func TestFormatResult(t *testing.T) {
	res := &engine.Result{
		RunID:          "run-1",
		FilesLoaded:    2,
		FilesFailed:    1,
		RecordsLoaded:  10,
		Canonical:      4,
		MultiCertified: 1,
		Tiers:          model.TierCounts{model.TierGold: 1, model.TierBronze: 3},
		FileErrors:     []model.FileError{{Source: "bad.csv", Error: "no such file"}},
		Exports: &export.Report{
			Written: []export.Written{{View: export.ViewGrandmaster, Path: "out/grandmaster.csv", Rows: 4}},
			Failed:  []export.ViewError{{View: export.ViewSREC, Error: "disk full"}},
		},
	}

	var buf bytes.Buffer
	formatResult(&buf, res)
	out := buf.String()

	assert.Contains(t, out, "run-1")
	assert.Contains(t, out, "Canonical contractors:")
	assert.Contains(t, out, "FAILED bad.csv: no such file")
	assert.Contains(t, out, "out/grandmaster.csv")
	assert.Contains(t, out, "disk full")
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("GOLD")), bytes.Index(buf.Bytes(), []byte("BRONZE")), "tiers listed highest first")
}
