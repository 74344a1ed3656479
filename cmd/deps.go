package main

import (
	"context"
	"time"

	"github.com/sells-group/icp-resolver/internal/config"
	"github.com/sells-group/icp-resolver/internal/engine"
	"github.com/sells-group/icp-resolver/internal/export"
	"github.com/sells-group/icp-resolver/internal/fetcher"
	"github.com/sells-group/icp-resolver/internal/ingest"
	"github.com/sells-group/icp-resolver/internal/refdata"
	"github.com/sells-group/icp-resolver/internal/scorer"
	"github.com/sells-group/icp-resolver/internal/store"
)

// deps bundles the components a command builds from config.
type deps struct {
	Tables *refdata.Tables
	Mapper *ingest.Mapper
	Scorer *scorer.Scorer
	Store  store.Store
}

// Close releases the ledger, if any.
func (d *deps) Close() {
	if d.Store != nil {
		_ = d.Store.Close()
	}
}

// initDeps loads reference tables, the scorer and, when withStore is set,
// the run ledger.
func initDeps(ctx context.Context, c *config.Config, withStore bool) (*deps, error) {
	tables, err := refdata.Load(c.Refdata)
	if err != nil {
		return nil, err
	}
	mapper, err := ingest.NewMapper(tables)
	if err != nil {
		return nil, err
	}
	sc, err := scorer.New(c.Scorer)
	if err != nil {
		return nil, err
	}

	d := &deps{Tables: tables, Mapper: mapper, Scorer: sc}
	if withStore {
		st, err := store.Open(ctx, c.Store)
		if err != nil {
			return nil, err
		}
		d.Store = st
	}
	return d, nil
}

func loaderOptions(c config.IngestConfig) fetcher.LoaderOptions {
	return fetcher.LoaderOptions{
		TempDir: c.TempDir,
		HTTP: fetcher.HTTPOptions{
			UserAgent:  c.UserAgent,
			Timeout:    time.Duration(c.HTTPTimeoutSecs) * time.Second,
			MaxRetries: c.MaxRetries,
			RateLimit:  c.RateLimit,
		},
		FTP: fetcher.FTPOptions{
			Timeout: time.Duration(c.FTPTimeoutSecs) * time.Second,
		},
	}
}

// newEngine wires a batch engine. A nil exporter or store is skipped.
func newEngine(c *config.Config, d *deps, x *export.Exporter, st store.Store) *engine.Engine {
	opts := []engine.Option{engine.WithScoreWorkers(c.Batch.ScoreWorkers)}
	if x != nil {
		opts = append(opts, engine.WithExporter(x))
	}
	if st != nil {
		opts = append(opts, engine.WithStore(st))
	}
	return engine.New(fetcher.NewLoader(loaderOptions(c.Ingest)), d.Mapper, d.Scorer, opts...)
}
