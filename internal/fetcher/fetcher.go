// Package fetcher locates contractor extracts (local files, HTTP and FTP
// URLs) and parses them into header + row tables from CSV, XLSX, JSON and
// ZIP sources.
package fetcher

import (
	"context"
	"io"
)

// Fetcher defines the interface for downloading remote extracts.
type Fetcher interface {
	// Download fetches the URL and returns the response body.
	Download(ctx context.Context, url string) (io.ReadCloser, error)

	// DownloadToFile fetches the URL and writes it to the given path. Returns bytes written.
	DownloadToFile(ctx context.Context, url string, path string) (int64, error)
}

// Extract is one parsed tabular input. ZIP archives yield one Extract per
// supported entry.
type Extract struct {
	Source string     // locator as given by the caller
	Name   string     // file name, or archive/entry for ZIP members
	Header []string   // first row
	Rows   [][]string // data rows in file order
}
