package fetcher

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
)

func collectRows(t *testing.T, rowCh <-chan []string, errCh <-chan error) ([][]string, error) {
	t.Helper()
	var rows [][]string
	for row := range rowCh {
		rows = append(rows, row)
	}
	for err := range errCh {
		if err != nil {
			return rows, err
		}
	}
	return rows, nil
}

func createTestXLSX(t *testing.T, dir string, sheets map[string][][]string) string {
	t.Helper()
	f := xlsx.NewFile()
	for name, rows := range sheets {
		sheet, err := f.AddSheet(name)
		require.NoError(t, err)
		for _, rowData := range rows {
			row := sheet.AddRow()
			for _, cellData := range rowData {
				row.AddCell().SetString(cellData)
			}
		}
	}
	path := filepath.Join(dir, "dealers.xlsx")
	require.NoError(t, f.Save(path))
	return path
}

func createTestZIP(t *testing.T, dir string, files map[string]string) string {
	t.Helper()
	zipPath := filepath.Join(dir, "extracts.zip")
	f, err := os.Create(zipPath)
	require.NoError(t, err)
	defer f.Close() //nolint:errcheck

	w := zip.NewWriter(f)
	for name, content := range files {
		fw, err := w.Create(name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return zipPath
}

func TestStreamCSV(t *testing.T) {
	input := "\ufeffname,phone\nAcme,555-111-2222\nBeta,\n"
	rowCh, errCh := StreamCSV(context.Background(), strings.NewReader(input), CSVOptions{})
	rows, err := collectRows(t, rowCh, errCh)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"name", "phone"}, rows[0], "byte order mark is stripped")
	assert.Equal(t, []string{"Beta", ""}, rows[2])
}

func TestStreamCSV_Options(t *testing.T) {
	input := "# exported 2024-01-01\nname|city\n Acme | Austin \n"
	rowCh, errCh := StreamCSV(context.Background(), strings.NewReader(input),
		CSVOptions{Delimiter: '|', Comment: '#', TrimSpace: true})
	rows, err := collectRows(t, rowCh, errCh)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"name", "city"}, {"Acme", "Austin"}}, rows)
}

func TestStreamCSV_ContextAlreadyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rowCh, errCh := StreamCSV(ctx, strings.NewReader("a,b\n1,2\n"), CSVOptions{})
	_, err := collectRows(t, rowCh, errCh)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "context cancelled")
}

func TestReadCSV(t *testing.T) {
	input := "name,phone,state\nAcme,555-111-2222,TX\n,,\nBeta,555-333-4444\n"
	header, rows, err := ReadCSV(context.Background(), strings.NewReader(input), CSVOptions{LazyQuotes: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"name", "phone", "state"}, header)
	assert.Equal(t, [][]string{{"Acme", "555-111-2222", "TX"}, {"Beta", "555-333-4444"}}, rows)
}

func TestReadCSV_Empty(t *testing.T) {
	header, rows, err := ReadCSV(context.Background(), strings.NewReader(""), CSVOptions{})
	require.NoError(t, err)
	assert.Nil(t, header)
	assert.Nil(t, rows)
}

func TestReadCSV_Malformed(t *testing.T) {
	_, _, err := ReadCSV(context.Background(), strings.NewReader("a,b\n\"unterminated,1\n"), CSVOptions{})
	assert.Error(t, err)
}

func TestReadXLSX(t *testing.T) {
	path := createTestXLSX(t, t.TempDir(), map[string][][]string{
		"Dealers": {
			{"Business Name", "Phone", ""},
			{"Acme Solar", "555-111-2222"},
			{"", ""},
			{" Beta Roofing ", "555-333-4444", ""},
		},
	})

	header, rows, err := ReadXLSX(path, XLSXOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"Business Name", "Phone"}, header)
	assert.Equal(t, [][]string{{"Acme Solar", "555-111-2222"}, {"Beta Roofing", "555-333-4444"}}, rows)

	_, _, err = ReadXLSX(path, XLSXOptions{SheetName: "Missing"})
	assert.Error(t, err)
	_, _, err = ReadXLSX(path, XLSXOptions{SheetIndex: 3})
	assert.Error(t, err)
	_, _, err = ReadXLSX(filepath.Join(t.TempDir(), "nope.xlsx"), XLSXOptions{})
	assert.Error(t, err)
}

func TestReadJSONRecords(t *testing.T) {
	input := `[
		{"name": "Acme Solar", "phone": "555-111-2222", "rating": 4.8},
		{"name": "Beta", "zip": 78701, "verified": true, "tags": ["a"]},
		{"name": null}
	]`
	header, rows, err := ReadJSONRecords(context.Background(), strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, []string{"name", "phone", "rating", "tags", "verified", "zip"}, header)
	assert.Equal(t, []string{"Acme Solar", "555-111-2222", "4.8", "", "", ""}, rows[0])
	assert.Equal(t, []string{"Beta", "", "", `["a"]`, "true", "78701"}, rows[1])
	assert.Equal(t, []string{"", "", "", "", "", ""}, rows[2])
}

func TestReadJSONRecords_Errors(t *testing.T) {
	_, _, err := ReadJSONRecords(context.Background(), strings.NewReader(`{"name": "not an array"}`))
	assert.Error(t, err)

	header, rows, err := ReadJSONRecords(context.Background(), strings.NewReader(`[]`))
	require.NoError(t, err)
	assert.Nil(t, header)
	assert.Nil(t, rows)
}

func TestExtractZIP_SortedAndSafe(t *testing.T) {
	dir := t.TempDir()
	zipPath := createTestZIP(t, dir, map[string]string{
		"b.csv":        "x",
		"a.csv":        "y",
		"nested/c.csv": "z",
	})

	dest := t.TempDir()
	paths, err := ExtractZIP(zipPath, dest)
	require.NoError(t, err)
	require.Len(t, paths, 3)
	assert.Equal(t, filepath.Join(dest, "a.csv"), paths[0])
	assert.Equal(t, filepath.Join(dest, "b.csv"), paths[1])
	assert.Equal(t, filepath.Join(dest, "nested", "c.csv"), paths[2])

	evil := createTestZIP(t, t.TempDir(), map[string]string{"../../evil.csv": "pwned"})
	_, err = ExtractZIP(evil, t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "zip slip")

	bad := filepath.Join(dir, "bad.zip")
	require.NoError(t, os.WriteFile(bad, []byte("not a zip"), 0o644))
	_, err = ExtractZIP(bad, t.TempDir())
	assert.Error(t, err)
}
