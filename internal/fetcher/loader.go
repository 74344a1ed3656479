package fetcher

import (
	"context"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// LoaderOptions configures a Loader.
type LoaderOptions struct {
	TempDir string
	HTTP    HTTPOptions
	FTP     FTPOptions
}

// Loader turns an extract locator into parsed tables. Remote extracts are
// downloaded into a scratch directory that is removed once parsed.
type Loader struct {
	http    Fetcher
	ftp     Fetcher
	tempDir string
}

// NewLoader creates a Loader with HTTP and FTP fetchers built from opts.
func NewLoader(opts LoaderOptions) *Loader {
	return &Loader{
		http:    NewHTTPFetcher(opts.HTTP),
		ftp:     NewFTPFetcher(opts.FTP),
		tempDir: opts.TempDir,
	}
}

// NewLoaderWithFetchers creates a Loader around existing fetchers.
func NewLoaderWithFetchers(httpF, ftpF Fetcher, tempDir string) *Loader {
	return &Loader{http: httpF, ftp: ftpF, tempDir: tempDir}
}

// Load fetches and parses the extract at locator: a local path, an
// http(s):// URL or an ftp:// URL.
func (l *Loader) Load(ctx context.Context, locator string) ([]Extract, error) {
	scratch, err := l.scratchDir()
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(scratch) //nolint:errcheck

	local, name, err := l.localize(ctx, locator, scratch)
	if err != nil {
		return nil, err
	}

	extracts, err := parseFile(ctx, local, name, scratch)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: parse %s", locator)
	}
	for i := range extracts {
		extracts[i].Source = locator
	}

	zap.L().Debug("fetcher: extract loaded",
		zap.String("source", locator),
		zap.Int("tables", len(extracts)),
	)
	return extracts, nil
}

func (l *Loader) scratchDir() (string, error) {
	base := l.tempDir
	if base != "" {
		if err := os.MkdirAll(base, 0o755); err != nil {
			return "", eris.Wrap(err, "fetcher: create temp dir")
		}
	}
	dir, err := os.MkdirTemp(base, "extract-*")
	if err != nil {
		return "", eris.Wrap(err, "fetcher: create scratch dir")
	}
	return dir, nil
}

// localize returns a local path for locator, downloading when remote.
func (l *Loader) localize(ctx context.Context, locator, scratch string) (string, string, error) {
	var f Fetcher
	switch {
	case strings.HasPrefix(locator, "http://"), strings.HasPrefix(locator, "https://"):
		f = l.http
	case strings.HasPrefix(locator, "ftp://"):
		f = l.ftp
	default:
		if _, err := os.Stat(locator); err != nil {
			return "", "", eris.Wrapf(err, "fetcher: open %s", locator)
		}
		return locator, filepath.Base(locator), nil
	}

	u, err := url.Parse(locator)
	if err != nil {
		return "", "", eris.Wrapf(err, "fetcher: parse url %s", locator)
	}
	name := path.Base(u.Path)
	if name == "" || name == "/" || name == "." {
		name = "download.csv"
	}

	dest := filepath.Join(scratch, name)
	n, err := f.DownloadToFile(ctx, locator, dest)
	if err != nil {
		return "", "", eris.Wrapf(err, "fetcher: download %s", locator)
	}
	zap.L().Info("fetcher: downloaded extract",
		zap.String("source", locator),
		zap.Int64("bytes", n),
	)
	return dest, name, nil
}

// parseFile parses a local file by extension.
func parseFile(ctx context.Context, local, name, scratch string) ([]Extract, error) {
	switch strings.ToLower(filepath.Ext(local)) {
	case ".zip":
		return parseZIP(ctx, local, name, scratch)
	case ".csv", ".tsv", ".txt", ".xlsx", ".json":
		e, err := parseTable(ctx, local)
		if err != nil {
			return nil, err
		}
		e.Name = name
		return []Extract{e}, nil
	default:
		return nil, eris.Errorf("fetcher: unsupported extract format %q", filepath.Ext(local))
	}
}

func parseTable(ctx context.Context, local string) (Extract, error) {
	var e Extract
	var err error

	switch ext := strings.ToLower(filepath.Ext(local)); ext {
	case ".xlsx":
		e.Header, e.Rows, err = ReadXLSX(local, XLSXOptions{})
		return e, err
	case ".csv", ".tsv", ".txt", ".json":
		f, openErr := os.Open(local)
		if openErr != nil {
			return e, eris.Wrap(openErr, "fetcher: open file")
		}
		defer f.Close() //nolint:errcheck

		switch ext {
		case ".json":
			e.Header, e.Rows, err = ReadJSONRecords(ctx, f)
		case ".tsv":
			e.Header, e.Rows, err = ReadCSV(ctx, f, CSVOptions{Delimiter: '\t', LazyQuotes: true, TrimSpace: true})
		default:
			e.Header, e.Rows, err = ReadCSV(ctx, f, CSVOptions{LazyQuotes: true, TrimSpace: true})
		}
		return e, err
	}
	return e, eris.Errorf("fetcher: unsupported table format %q", filepath.Ext(local))
}

// parseZIP extracts an archive and parses every supported member in entry
// name order. Unsupported members are skipped.
func parseZIP(ctx context.Context, local, name, scratch string) ([]Extract, error) {
	dest, err := os.MkdirTemp(scratch, "zip-*")
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: create zip dir")
	}

	paths, err := ExtractZIP(local, dest)
	if err != nil {
		return nil, err
	}

	var out []Extract
	for _, p := range paths {
		rel, _ := filepath.Rel(dest, p)
		switch strings.ToLower(filepath.Ext(p)) {
		case ".csv", ".tsv", ".txt", ".xlsx", ".json":
		default:
			zap.L().Debug("fetcher: skipping zip member", zap.String("entry", rel))
			continue
		}
		e, err := parseTable(ctx, p)
		if err != nil {
			return nil, eris.Wrapf(err, "fetcher: zip member %s", rel)
		}
		e.Name = name + "/" + filepath.ToSlash(rel)
		out = append(out, e)
	}
	return out, nil
}
