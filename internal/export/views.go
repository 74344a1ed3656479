package export

import (
	"sort"
	"strconv"
	"strings"

	"github.com/sells-group/icp-resolver/internal/model"
	"github.com/sells-group/icp-resolver/internal/normalize"
	"github.com/sells-group/icp-resolver/internal/refdata"
)

// View names a CSV export.
type View string

const (
	ViewGrandmaster View = "grandmaster"
	ViewCrossover   View = "crossover"
	ViewScored      View = "scored"
	ViewSREC        View = "srec"
)

// AllViews lists every view in write order.
var AllViews = []View{ViewGrandmaster, ViewCrossover, ViewScored, ViewSREC}

// baseColumns is the OEM-facing column order shared by every view.
var baseColumns = []string{
	"name", "phone", "domain", "website", "OEM_Count", "OEMs_Certified",
	"street", "city", "state", "zip", "rating", "review_count",
	"tier", "oem_source", "scraped_from_zip",
}

var engineColumns = []string{"category_count", "certifications", "source_type"}

var scoreColumns = []string{"coperniq_score", "tier"}

var srecColumns = []string{"srec_state_priority", "itc_urgency"}

// reserved holds every fixed column name so passthrough extras never shadow one.
var reserved = func() map[string]bool {
	m := make(map[string]bool)
	for _, set := range [][]string{baseColumns, engineColumns, scoreColumns, srecColumns, {"oem_tier"}} {
		for _, c := range set {
			m[strings.ToLower(c)] = true
		}
	}
	return m
}()

// Table is one rendered view.
type Table struct {
	View   View
	Header []string
	Rows   [][]string
}

// ExtraColumns returns the passthrough extra keys across cs in lexical
// order, excluding *_normalized keys and fixed column names.
func ExtraColumns(cs []*model.Contractor) []string {
	seen := make(map[string]bool)
	var out []string
	for _, c := range cs {
		for k := range c.Extra {
			if seen[k] || strings.HasSuffix(k, "_normalized") || reserved[strings.ToLower(k)] {
				continue
			}
			seen[k] = true
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// Sorted returns cs ordered by score desc, display name asc, id asc.
func Sorted(cs []*model.Contractor) []*model.Contractor {
	out := append([]*model.Contractor(nil), cs...)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.DisplayName != b.DisplayName {
			return a.DisplayName < b.DisplayName
		}
		return a.ID < b.ID
	})
	return out
}

// Options select rows for the filtered views.
type Options struct {
	// MinTier drops scored-view rows below this tier. Empty keeps all.
	MinTier model.Tier
	Tables  *refdata.Tables
}

// Build renders view over the scored canonical set. extras is the shared
// passthrough column list (see ExtraColumns).
func Build(view View, cs []*model.Contractor, extras []string, opts Options) Table {
	t := Table{View: view}
	sorted := Sorted(cs)

	switch view {
	case ViewGrandmaster:
		t.Header = grandmasterHeader(extras)
		for _, c := range sorted {
			t.Rows = append(t.Rows, grandmasterRow(c, extras))
		}
	case ViewCrossover:
		t.Header = grandmasterHeader(extras)
		for _, c := range sorted {
			if c.IsMultiCertified() {
				t.Rows = append(t.Rows, grandmasterRow(c, extras))
			}
		}
	case ViewScored:
		t.Header = scoredHeader(extras)
		for _, c := range sorted {
			if opts.MinTier != "" && c.Tier.Rank() < opts.MinTier.Rank() {
				continue
			}
			t.Rows = append(t.Rows, scoredRow(c, extras))
		}
	case ViewSREC:
		t.Header = append(scoredHeader(extras), srecColumns...)
		if opts.Tables == nil {
			break
		}
		for _, c := range sorted {
			sp, ok := srecState(c, opts.Tables)
			if !ok {
				continue
			}
			t.Rows = append(t.Rows, append(scoredRow(c, extras), sp.Priority, sp.ITCUrgency))
		}
	}
	return t
}

// srecState finds the state-priority entry for the first address of c
// whose state is in the table.
func srecState(c *model.Contractor, tables *refdata.Tables) (refdata.StatePriority, bool) {
	for _, a := range c.Addresses {
		if a.State == "" {
			continue
		}
		if sp, ok := tables.State(a.State); ok {
			return sp, true
		}
	}
	return refdata.StatePriority{}, false
}

func grandmasterHeader(extras []string) []string {
	h := make([]string, 0, len(baseColumns)+len(engineColumns)+len(extras))
	h = append(h, baseColumns...)
	h = append(h, engineColumns...)
	return append(h, extras...)
}

func scoredHeader(extras []string) []string {
	h := make([]string, 0, len(baseColumns)+len(engineColumns)+len(scoreColumns)+len(extras))
	for _, col := range baseColumns {
		if col == "tier" {
			col = "oem_tier"
		}
		h = append(h, col)
	}
	h = append(h, engineColumns...)
	h = append(h, extras...)
	return append(h, scoreColumns...)
}

func baseRow(c *model.Contractor) []string {
	addr := c.PrimaryAddress()
	phone := ""
	if c.PrimaryPhone != "" {
		phone = normalize.FormatPhone(c.PrimaryPhone)
	}
	return []string{
		c.DisplayName,
		phone,
		c.PrimaryDomain,
		c.Website,
		strconv.Itoa(c.OEMCount()),
		strings.Join(c.OEMs(), ", "),
		c.Street,
		addr.City,
		addr.State,
		addr.Zip,
		c.Extra["rating"],
		c.Extra["review_count"],
		strings.Join(c.OEMTiers(), ", "),
		c.Origin,
		c.OriginQuery,
		strconv.Itoa(c.CategoryCount()),
		strings.Join(c.CertificationStrings(), "; "),
		string(c.SourceType),
	}
}

func extraRow(c *model.Contractor, extras []string) []string {
	out := make([]string, len(extras))
	for i, k := range extras {
		out[i] = c.Extra[k]
	}
	return out
}

func grandmasterRow(c *model.Contractor, extras []string) []string {
	return append(baseRow(c), extraRow(c, extras)...)
}

func scoredRow(c *model.Contractor, extras []string) []string {
	row := grandmasterRow(c, extras)
	return append(row, strconv.Itoa(c.Score), string(c.Tier))
}
