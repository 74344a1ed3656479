package fetcher

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLoader(t *testing.T) *Loader {
	t.Helper()
	return NewLoader(LoaderOptions{
		TempDir: t.TempDir(),
		HTTP:    HTTPOptions{Timeout: 5 * time.Second, MaxRetries: 1, BackoffBase: time.Millisecond},
		FTP:     FTPOptions{Timeout: 5 * time.Second},
	})
}

func TestLoader_LocalCSV(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tesla_dealers.csv")
	require.NoError(t, os.WriteFile(path, []byte("name,phone\nAcme,5551112222\n"), 0o644))

	extracts, err := newTestLoader(t).Load(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, extracts, 1)
	assert.Equal(t, path, extracts[0].Source)
	assert.Equal(t, "tesla_dealers.csv", extracts[0].Name)
	assert.Equal(t, []string{"name", "phone"}, extracts[0].Header)
	assert.Equal(t, [][]string{{"Acme", "5551112222"}}, extracts[0].Rows)
}

func TestLoader_LocalTSVAndJSON(t *testing.T) {
	dir := t.TempDir()
	tsv := filepath.Join(dir, "a.tsv")
	require.NoError(t, os.WriteFile(tsv, []byte("name\tstate\nAcme\tTX\n"), 0o644))
	js := filepath.Join(dir, "b.json")
	require.NoError(t, os.WriteFile(js, []byte(`[{"name":"Beta","state":"CO"}]`), 0o644))

	l := newTestLoader(t)
	got, err := l.Load(context.Background(), tsv)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"Acme", "TX"}}, got[0].Rows)

	got, err = l.Load(context.Background(), js)
	require.NoError(t, err)
	assert.Equal(t, []string{"name", "state"}, got[0].Header)
	assert.Equal(t, [][]string{{"Beta", "CO"}}, got[0].Rows)
}

func TestLoader_LocalXLSX(t *testing.T) {
	path := createTestXLSX(t, t.TempDir(), map[string][][]string{
		"Sheet1": {{"name", "zip"}, {"Acme", "78701"}},
	})

	got, err := newTestLoader(t).Load(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "dealers.xlsx", got[0].Name)
	assert.Equal(t, [][]string{{"Acme", "78701"}}, got[0].Rows)
}

func TestLoader_ZIPMembersInNameOrder(t *testing.T) {
	zipPath := createTestZIP(t, t.TempDir(), map[string]string{
		"z_enphase.csv": "name\nZed\n",
		"a_tesla.csv":   "name\nAcme\n",
		"README.md":     "ignored",
		"m/generac.json": `[{"name":"Mid"}]`,
	})

	got, err := newTestLoader(t).Load(context.Background(), zipPath)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "extracts.zip/a_tesla.csv", got[0].Name)
	assert.Equal(t, "extracts.zip/m/generac.json", got[1].Name)
	assert.Equal(t, "extracts.zip/z_enphase.csv", got[2].Name)
	for _, e := range got {
		assert.Equal(t, zipPath, e.Source)
	}
}

func TestLoader_HTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/exports/enphase.csv", r.URL.Path)
		w.Write([]byte("name,phone\nAcme,5551112222\n")) //nolint:errcheck
	}))
	defer srv.Close()

	l := newTestLoader(t)
	got, err := l.Load(context.Background(), srv.URL+"/exports/enphase.csv")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "enphase.csv", got[0].Name)
	assert.Equal(t, srv.URL+"/exports/enphase.csv", got[0].Source)

	entries, err := os.ReadDir(l.tempDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "scratch directory is removed after parsing")
}

func TestLoader_FTP(t *testing.T) {
	srv := newRegistryFTP(t, map[string]string{
		"/pub/tdlr.csv": "name,license_category\nVolt Bros,Electrical\n",
	})

	got, err := newTestLoader(t).Load(context.Background(), fmt.Sprintf("ftp://%s/pub/tdlr.csv", srv.addr()))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "tdlr.csv", got[0].Name)
	assert.Equal(t, [][]string{{"Volt Bros", "Electrical"}}, got[0].Rows)
}

func TestLoader_Errors(t *testing.T) {
	l := newTestLoader(t)
	dir := t.TempDir()

	_, err := l.Load(context.Background(), filepath.Join(dir, "missing.csv"))
	assert.Error(t, err)

	pdf := filepath.Join(dir, "dealers.pdf")
	require.NoError(t, os.WriteFile(pdf, []byte("%PDF"), 0o644))
	_, err = l.Load(context.Background(), pdf)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported extract format")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()
	_, err = l.Load(context.Background(), srv.URL+"/x.csv")
	assert.Error(t, err)
}
