package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/icp-resolver/internal/config"
	"github.com/sells-group/icp-resolver/internal/engine"
	"github.com/sells-group/icp-resolver/internal/export"
	"github.com/sells-group/icp-resolver/internal/model"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <extract>...",
	Short: "Resolve extracts into scored canonical contractors",
	Long: `Loads each extract (local path, http(s):// or ftp:// URL; csv, xlsx, json or zip) in the
order given, resolves every record into canonical contractors, scores them and writes the
configured CSV views. With --save the run and its contractors are recorded in the ledger.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if dir, _ := cmd.Flags().GetString("output-dir"); dir != "" {
			cfg.Export.OutputDir = dir
		}
		if tier, _ := cmd.Flags().GetString("min-tier"); tier != "" {
			cfg.Export.MinTier = tier
		}
		if views, _ := cmd.Flags().GetStringSlice("views"); len(views) > 0 {
			cfg.Export.Views = views
		}
		save, _ := cmd.Flags().GetBool("save")
		asJSON, _ := cmd.Flags().GetBool("json")

		res, err := runResolve(cmd.Context(), cfg, args, save)
		if err != nil {
			return err
		}
		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		}
		formatResult(os.Stdout, res)
		return nil
	},
}

func init() {
	resolveCmd.Flags().Bool("save", false, "record the run in the ledger")
	resolveCmd.Flags().Bool("json", false, "print the result as JSON")
	resolveCmd.Flags().String("output-dir", "", "directory for CSV views (default from config)")
	resolveCmd.Flags().String("min-tier", "", "minimum ICP tier for the scored view (e.g. GOLD)")
	resolveCmd.Flags().StringSlice("views", nil, "views to write: grandmaster, crossover, scored, srec")
	rootCmd.AddCommand(resolveCmd)
}

// runResolve runs one batch over locators.
func runResolve(ctx context.Context, c *config.Config, locators []string, save bool) (*engine.Result, error) {
	if err := c.Validate("resolve"); err != nil {
		return nil, err
	}

	d, err := initDeps(ctx, c, save)
	if err != nil {
		return nil, err
	}
	defer d.Close()
	if save && d.Store == nil {
		return nil, eris.New("resolve: --save needs store.driver sqlite or postgres")
	}

	x := export.New(c.Export, d.Tables)
	res, err := newEngine(c, d, x, d.Store).Run(ctx, locators)
	if err != nil {
		return nil, eris.Wrap(err, "resolve")
	}

	if res.Exports != nil && len(res.Exports.Failed) > 0 {
		zap.L().Warn("resolve: some views were not written", zap.Int("failed", len(res.Exports.Failed)))
	}
	if res.FilesLoaded == 0 {
		return res, eris.Errorf("resolve: none of %d extracts could be loaded", len(locators))
	}
	return res, nil
}

// formatResult writes a human-readable batch summary to out.
func formatResult(out io.Writer, res *engine.Result) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	if res.RunID != "" {
		_, _ = fmt.Fprintf(w, "Run:\t%s\n", res.RunID)
	}
	_, _ = fmt.Fprintf(w, "Files loaded:\t%d\n", res.FilesLoaded)
	_, _ = fmt.Fprintf(w, "Files failed:\t%d\n", res.FilesFailed)
	_, _ = fmt.Fprintf(w, "Records loaded:\t%d\n", res.RecordsLoaded)
	_, _ = fmt.Fprintf(w, "Records resolved:\t%d\n", res.RecordsResolved)
	_, _ = fmt.Fprintf(w, "Unresolved:\t%d\n", res.Unresolved)
	_, _ = fmt.Fprintf(w, "Created:\t%d\n", res.Created)
	_, _ = fmt.Fprintf(w, "Conflict merges:\t%d\n", res.ConflictMerges)
	_, _ = fmt.Fprintf(w, "Canonical contractors:\t%d\n", res.Canonical)
	_, _ = fmt.Fprintf(w, "Multi-certified:\t%d\n", res.MultiCertified)
	_ = w.Flush()

	tiers := make([]model.Tier, 0, len(res.Tiers))
	for t := range res.Tiers {
		tiers = append(tiers, t)
	}
	sort.Slice(tiers, func(i, j int) bool { return tiers[i].Rank() > tiers[j].Rank() })
	if len(tiers) > 0 {
		_, _ = fmt.Fprintln(out, "\nTiers:")
		for _, t := range tiers {
			_, _ = fmt.Fprintf(out, "  %-9s %d\n", t, res.Tiers[t])
		}
	}

	for _, fe := range res.FileErrors {
		_, _ = fmt.Fprintf(out, "\nFAILED %s: %s", fe.Source, fe.Error)
	}
	if len(res.FileErrors) > 0 {
		_, _ = fmt.Fprintln(out)
	}

	if res.Exports != nil {
		_, _ = fmt.Fprintln(out, "\nViews:")
		for _, v := range res.Exports.Written {
			_, _ = fmt.Fprintf(out, "  %-12s %5d rows  %s\n", v.View, v.Rows, v.Path)
		}
		for _, v := range res.Exports.Failed {
			_, _ = fmt.Fprintf(out, "  %-12s FAILED  %s\n", v.View, v.Error)
		}
	}
}
