package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/icp-resolver/internal/engine"
	"github.com/sells-group/icp-resolver/internal/ingest"
	"github.com/sells-group/icp-resolver/internal/model"
	"github.com/sells-group/icp-resolver/internal/refdata"
	"github.com/sells-group/icp-resolver/internal/scorer"
	"github.com/sells-group/icp-resolver/internal/store"
)

func newTestServer(t *testing.T, ledger store.Store, opts Options) http.Handler {
	t.Helper()
	tables, err := refdata.Default()
	require.NoError(t, err)
	mapper, err := ingest.NewMapper(tables)
	require.NoError(t, err)
	sc, err := scorer.New(scorer.DefaultScorerConfig())
	require.NoError(t, err)
	return New(engine.New(nil, mapper, sc), mapper, sc, ledger, opts).Handler()
}

func newTestLedger(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestHealth(t *testing.T) {
	h := newTestServer(t, nil, Options{})

	rr := do(t, h, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
}

func TestResolve(t *testing.T) {
	h := newTestServer(t, nil, Options{})

	rr := do(t, h, http.MethodPost, "/v1/resolve", ResolveRequest{
		Name: "tesla",
		Records: []map[string]string{
			{"Business Name": "Acme Solar LLC", "Phone": "(555) 111-2222", "State": "TX", "Tier": "Premier"},
			{"Business Name": "Acme Solar", "Phone": "555.111.2222", "State": "TX", "Tier": "Gold", "Origin": "Enphase"},
			{"Business Name": "", "Phone": "888-555-0000"},
		},
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var resp ResolveResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.NotNil(t, resp.Result)
	assert.Equal(t, 3, resp.Result.RecordsLoaded)
	assert.Equal(t, 1, resp.Result.Unresolved)
	assert.Equal(t, 1, resp.Result.Canonical)
	require.Len(t, resp.Result.RowErrors, 1)
	assert.Equal(t, 4, resp.Result.RowErrors[0].Row)

	require.Len(t, resp.Contractors, 1)
	c := resp.Contractors[0]
	assert.Equal(t, "Acme Solar LLC", c.Name)
	assert.Equal(t, "5551112222", c.Phone)
	assert.Equal(t, []string{"Enphase:Gold", "Tesla:Premier"}, c.Certifications)
	assert.Equal(t, 39, c.Score)
	assert.Equal(t, model.TierBronze, c.Tier)
	assert.Contains(t, c.Components, scorer.FactorCertBreadth)
}

func TestResolve_BadRequests(t *testing.T) {
	h := newTestServer(t, nil, Options{MaxBodyBytes: 64})

	tests := []struct {
		name string
		body string
		code int
		msg  string
	}{
		{"invalid json", `{"records":`, http.StatusBadRequest, "invalid request body"},
		{"no records", `{"records":[]}`, http.StatusBadRequest, "records are required"},
		{"too large", `{"records":[{"name":"` + strings.Repeat("x", 128) + `"}]}`, http.StatusRequestEntityTooLarge, "too large"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/v1/resolve", strings.NewReader(tt.body))
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)
			assert.Equal(t, tt.code, rr.Code)
			assert.Contains(t, rr.Body.String(), tt.msg)
		})
	}
}

func TestNormalize(t *testing.T) {
	h := newTestServer(t, nil, Options{})

	rr := do(t, h, http.MethodPost, "/v1/normalize", NormalizeRequest{
		Phone:  "+1 (555) 111-2222",
		Domain: "HTTPS://www.AcmeSolar.com/contact",
		Name:   "Acme Solar, LLC",
		State:  "texas",
	})
	require.Equal(t, http.StatusOK, rr.Code)

	var resp NormalizeResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, NormalizeResponse{
		Phone:        "5551112222",
		PhoneDisplay: "(555) 111-2222",
		PhoneValid:   true,
		Domain:       "acmesolar.com",
		DomainValid:  true,
		Name:         "ACME SOLAR",
		State:        "TX",
	}, resp)
}

func TestKeys_TollFree(t *testing.T) {
	got := Keys(NormalizeRequest{Phone: "1-800-555-1234"})
	assert.False(t, got.PhoneValid)
	assert.Empty(t, got.PhoneDisplay)
	assert.False(t, got.DomainValid)
}

func TestRuns_NoLedger(t *testing.T) {
	h := newTestServer(t, nil, Options{})

	for _, path := range []string{"/v1/runs", "/v1/runs/abc"} {
		rr := do(t, h, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusServiceUnavailable, rr.Code, path)
	}
}

func TestRuns(t *testing.T) {
	ledger := newTestLedger(t)
	ctx := context.Background()

	run, err := ledger.CreateRun(ctx, []string{"tesla.csv"})
	require.NoError(t, err)
	_, err = ledger.SaveContractors(ctx, run.ID, []*model.Contractor{{
		ID: 1, DisplayName: "Volt Bros", SourceType: model.SourceLicenseOnly, Score: 72, Tier: model.TierGold,
	}})
	require.NoError(t, err)
	require.NoError(t, ledger.CompleteRun(ctx, run.ID, &model.RunCounts{Canonical: 1}))
	_, err = ledger.CreateRun(ctx, []string{"enphase.csv"})
	require.NoError(t, err)

	h := newTestServer(t, ledger, Options{})

	t.Run("list", func(t *testing.T) {
		rr := do(t, h, http.MethodGet, "/v1/runs", nil)
		require.Equal(t, http.StatusOK, rr.Code)
		var runs []model.Run
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &runs))
		assert.Len(t, runs, 2)
	})

	t.Run("list filtered", func(t *testing.T) {
		rr := do(t, h, http.MethodGet, "/v1/runs?status=complete&limit=5", nil)
		require.Equal(t, http.StatusOK, rr.Code)
		var runs []model.Run
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &runs))
		require.Len(t, runs, 1)
		assert.Equal(t, run.ID, runs[0].ID)
	})

	t.Run("list empty", func(t *testing.T) {
		rr := do(t, h, http.MethodGet, "/v1/runs?status=failed", nil)
		require.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, `[]`, rr.Body.String())
	})

	t.Run("bad limit", func(t *testing.T) {
		rr := do(t, h, http.MethodGet, "/v1/runs?limit=abc", nil)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("get", func(t *testing.T) {
		rr := do(t, h, http.MethodGet, "/v1/runs/"+run.ID, nil)
		require.Equal(t, http.StatusOK, rr.Code)
		var detail RunDetail
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &detail))
		assert.Equal(t, model.RunStatusComplete, detail.Status)
		require.Len(t, detail.Contractors, 1)
		assert.Equal(t, "Volt Bros", detail.Contractors[0].Name)
	})

	t.Run("get missing", func(t *testing.T) {
		rr := do(t, h, http.MethodGet, "/v1/runs/nope", nil)
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}

func TestCORS(t *testing.T) {
	h := newTestServer(t, nil, Options{AllowedOrigins: []string{"https://ops.example.com"}})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://ops.example.com")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, "https://ops.example.com", rr.Header().Get("Access-Control-Allow-Origin"))
}
