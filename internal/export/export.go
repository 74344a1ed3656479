// Package export renders the scored canonical set as deterministic CSV
// views and writes them atomically.
package export

import (
	"encoding/csv"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/icp-resolver/internal/config"
	"github.com/sells-group/icp-resolver/internal/model"
	"github.com/sells-group/icp-resolver/internal/refdata"
)

// Written describes one view file on disk.
type Written struct {
	View View   `json:"view"`
	Path string `json:"path"`
	Rows int    `json:"rows"`
}

// ViewError describes a view that could not be written.
type ViewError struct {
	View  View   `json:"view"`
	Error string `json:"error"`
}

// Report is the outcome of one Export call.
type Report struct {
	Written []Written   `json:"written,omitempty"`
	Failed  []ViewError `json:"failed,omitempty"`
}

// Exporter writes the configured views into an output directory.
type Exporter struct {
	dir    string
	prefix string
	views  []View
	opts   Options
}

// New creates an Exporter from config. Views default to all of them.
func New(cfg config.ExportConfig, tables *refdata.Tables) *Exporter {
	e := &Exporter{
		dir:    cfg.OutputDir,
		prefix: cfg.Prefix,
		opts:   Options{Tables: tables},
	}
	if t, ok := model.ParseTier(cfg.MinTier); ok {
		e.opts.MinTier = t
	}
	for _, v := range cfg.Views {
		e.views = append(e.views, View(v))
	}
	if len(e.views) == 0 {
		e.views = AllViews
	}
	return e
}

// Path returns the file path a view is written to.
func (e *Exporter) Path(v View) string {
	return filepath.Join(e.dir, e.prefix+string(v)+".csv")
}

// Export renders every configured view and writes each one. A view that
// fails is reported and the remaining views are still written.
func (e *Exporter) Export(cs []*model.Contractor) Report {
	var rep Report
	extras := ExtraColumns(cs)

	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		err = eris.Wrapf(err, "export: create output dir %s", e.dir)
		for _, v := range e.views {
			rep.Failed = append(rep.Failed, ViewError{View: v, Error: err.Error()})
		}
		zap.L().Error("export: output dir unavailable", zap.Error(err))
		return rep
	}

	for _, v := range e.views {
		t := Build(v, cs, extras, e.opts)
		path := e.Path(v)
		if err := WriteCSV(path, t); err != nil {
			zap.L().Warn("export: view failed",
				zap.String("view", string(v)),
				zap.String("path", path),
				zap.Error(err),
			)
			rep.Failed = append(rep.Failed, ViewError{View: v, Error: err.Error()})
			continue
		}
		zap.L().Info("export: view written",
			zap.String("view", string(v)),
			zap.String("path", path),
			zap.Int("rows", len(t.Rows)),
		)
		rep.Written = append(rep.Written, Written{View: v, Path: path, Rows: len(t.Rows)})
	}
	return rep
}

// WriteCSV writes t to path through a temp file in the same directory and
// a rename, so readers never see a partial file.
func WriteCSV(path string, t Table) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return eris.Wrapf(err, "export: create temp file for %s", path)
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		tmp.Close()        //nolint:errcheck
		os.Remove(tmpPath) //nolint:errcheck
	}

	w := csv.NewWriter(tmp)
	if err := w.Write(t.Header); err != nil {
		cleanup()
		return eris.Wrapf(err, "export: write header %s", path)
	}
	if err := w.WriteAll(t.Rows); err != nil {
		cleanup()
		return eris.Wrapf(err, "export: write rows %s", path)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath) //nolint:errcheck
		return eris.Wrapf(err, "export: close %s", path)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath) //nolint:errcheck
		return eris.Wrapf(err, "export: rename %s", path)
	}
	return nil
}
