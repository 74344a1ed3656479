// Package ingest maps parsed extract tables onto raw contractor records.
package ingest

import (
	"path"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/icp-resolver/internal/fetcher"
	"github.com/sells-group/icp-resolver/internal/model"
	"github.com/sells-group/icp-resolver/internal/normalize"
	"github.com/sells-group/icp-resolver/internal/refdata"
)

// field is a RawRecord attribute a column can feed.
type field int

const (
	fieldExtra field = iota
	fieldName
	fieldPhone
	fieldWebsite
	fieldStreet
	fieldCity
	fieldState
	fieldZip
	fieldTier
	fieldLicenseCategory
	fieldOrigin
	fieldOriginQuery
)

// headerAliases maps a header key (see HeaderKey) to the field it feeds.
var headerAliases = map[string]field{
	"name":             fieldName,
	"business_name":    fieldName,
	"company":          fieldName,
	"company_name":     fieldName,
	"dealer_name":      fieldName,
	"contractor_name":  fieldName,
	"phone":            fieldPhone,
	"phone_number":     fieldPhone,
	"telephone":        fieldPhone,
	"domain":           fieldWebsite,
	"website":          fieldWebsite,
	"url":              fieldWebsite,
	"street":           fieldStreet,
	"address":          fieldStreet,
	"street_address":   fieldStreet,
	"address1":         fieldStreet,
	"city":             fieldCity,
	"state":            fieldState,
	"zip":              fieldZip,
	"zip_code":         fieldZip,
	"zipcode":          fieldZip,
	"postal_code":      fieldZip,
	"tier":             fieldTier,
	"oem_tier":         fieldTier,
	"license_category": fieldLicenseCategory,
	"license_type":     fieldLicenseCategory,
	"profession":       fieldLicenseCategory,
	"origin":           fieldOrigin,
	"oem_source":       fieldOrigin,
	"source":           fieldOrigin,
	"scraped_from_zip": fieldOriginQuery,
	"origin_query":     fieldOriginQuery,
	"search_zip":       fieldOriginQuery,
}

// HeaderKey folds a column header to the form used for alias lookup and
// passthrough keys: trimmed, lowercased, with runs of spaces and hyphens
// turned into a single underscore.
func HeaderKey(h string) string {
	h = strings.TrimPrefix(h, "\ufeff")
	h = strings.ToLower(strings.TrimSpace(h))
	h = strings.NewReplacer("-", " ", "_", " ").Replace(h)
	return strings.Join(strings.Fields(h), "_")
}

// Mapper converts extracts to raw records using the origin taxonomy.
type Mapper struct {
	tables *refdata.Tables
}

// NewMapper creates a Mapper. A nil tables uses the built-in defaults.
func NewMapper(tables *refdata.Tables) (*Mapper, error) {
	if tables == nil {
		t, err := refdata.Default()
		if err != nil {
			return nil, err
		}
		tables = t
	}
	return &Mapper{tables: tables}, nil
}

// columns is the resolved layout of one extract header.
type columns struct {
	fields    []field
	keys      []string
	hasOrigin bool
}

func layout(header []string) columns {
	c := columns{
		fields: make([]field, len(header)),
		keys:   make([]string, len(header)),
	}
	for i, h := range header {
		key := HeaderKey(h)
		c.keys[i] = key
		c.fields[i] = headerAliases[key]
		if c.fields[i] == fieldOrigin {
			c.hasOrigin = true
		}
	}
	return c
}

// Records maps every row of e to a RawRecord in row order. The header is
// row 1, so the first data row is row 2.
func (m *Mapper) Records(e fetcher.Extract) []model.RawRecord {
	cols := layout(e.Header)
	defaultOrigin := m.DefaultOrigin(e.Name)
	if !cols.hasOrigin {
		zap.L().Debug("ingest: no origin column, using file name",
			zap.String("extract", e.Name),
			zap.String("origin", defaultOrigin),
		)
	}

	// Archive members are reported as "archive-locator!member".
	source := e.Source
	if source == "" {
		source = e.Name
	} else if _, member, ok := strings.Cut(e.Name, "/"); ok {
		source += "!" + member
	}

	out := make([]model.RawRecord, 0, len(e.Rows))
	for i, row := range e.Rows {
		out = append(out, m.record(cols, row, source, i+2, defaultOrigin))
	}
	return out
}

func (m *Mapper) record(cols columns, row []string, source string, rowNum int, defaultOrigin string) model.RawRecord {
	rec := model.RawRecord{SourceFile: source, Row: rowNum}
	var tier, category string

	for i, f := range cols.fields {
		if i >= len(row) {
			break
		}
		v := strings.TrimSpace(row[i])
		if v == "" {
			continue
		}
		switch f {
		case fieldName:
			setOnce(&rec.Name, v)
		case fieldPhone:
			setOnce(&rec.Phone, v)
		case fieldWebsite:
			setOnce(&rec.Website, v)
		case fieldStreet:
			setOnce(&rec.Street, v)
		case fieldCity:
			setOnce(&rec.City, v)
		case fieldState:
			setOnce(&rec.State, normalize.State(v))
		case fieldZip:
			setOnce(&rec.Zip, v)
		case fieldTier:
			setOnce(&tier, v)
		case fieldLicenseCategory:
			setOnce(&category, v)
		case fieldOrigin:
			setOnce(&rec.Origin, v)
		case fieldOriginQuery:
			setOnce(&rec.OriginQuery, v)
		default:
			if cols.keys[i] == "" {
				continue
			}
			if rec.Extra == nil {
				rec.Extra = make(map[string]string)
			}
			if _, ok := rec.Extra[cols.keys[i]]; !ok {
				rec.Extra[cols.keys[i]] = v
			}
		}
	}

	if rec.Origin == "" {
		rec.Origin = defaultOrigin
	}
	rec.Origin = m.tables.CanonicalOrigin(rec.Origin)

	switch {
	case category != "":
		rec.CertificationLabel = category
		rec.Kind = model.KindLicense
	case m.tables.IsLicenseRegistry(rec.Origin):
		rec.CertificationLabel = tier
		rec.Kind = model.KindLicense
	default:
		rec.CertificationLabel = tier
		rec.Kind = model.KindDirectory
	}
	return rec
}

func setOnce(dst *string, v string) {
	if *dst == "" {
		*dst = v
	}
}

// DefaultOrigin derives an origin from an extract name such as
// "tesla_dealers.csv" or "registries.zip/tx_tdlr.csv". The whole stem is
// tried first, then each word of it, against the taxonomy. Unknown stems
// are returned as-is.
func (m *Mapper) DefaultOrigin(name string) string {
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	stem := strings.TrimSuffix(base, path.Ext(base))
	words := strings.FieldsFunc(stem, func(r rune) bool {
		return r == '_' || r == '-' || r == ' ' || r == '.'
	})
	if len(words) == 0 {
		return ""
	}

	phrase := strings.Join(words, " ")
	if o, ok := m.tables.Origin(phrase); ok {
		return o.Name
	}
	// Adjacent word pairs catch two-word origins such as "tx tdlr".
	for i := 0; i+1 < len(words); i++ {
		if o, ok := m.tables.Origin(words[i] + " " + words[i+1]); ok {
			return o.Name
		}
	}
	for _, w := range words {
		if o, ok := m.tables.Origin(w); ok {
			return o.Name
		}
	}
	return phrase
}

// ExtractFromObjects builds an extract from flat JSON-style objects. The
// header is the sorted union of keys.
func ExtractFromObjects(name string, objs []map[string]string) fetcher.Extract {
	seen := make(map[string]struct{})
	var header []string
	for _, o := range objs {
		for k := range o {
			if _, ok := seen[k]; !ok {
				seen[k] = struct{}{}
				header = append(header, k)
			}
		}
	}
	sort.Strings(header)

	rows := make([][]string, len(objs))
	for i, o := range objs {
		row := make([]string, len(header))
		for j, h := range header {
			row[j] = o[h]
		}
		rows[i] = row
	}
	return fetcher.Extract{Source: name, Name: name, Header: header, Rows: rows}
}
