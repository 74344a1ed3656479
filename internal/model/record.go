// Package model defines the raw and canonical contractor records shared by
// the ingest, resolve, scorer and export packages.
package model

// CertificationKind distinguishes the two families of sources a record can
// come from.
type CertificationKind string

const (
	// KindDirectory is an OEM certified-installer directory (Tesla, Enphase, Generac, ...).
	KindDirectory CertificationKind = "oem_directory"
	// KindLicense is a state contractor-license registry feed.
	KindLicense CertificationKind = "license_registry"
)

// RawRecord is one scraped row. It is never mutated after ingest.
type RawRecord struct {
	Name               string            `json:"name"`
	Phone              string            `json:"phone,omitempty"`
	Website            string            `json:"website,omitempty"`
	Street             string            `json:"street,omitempty"`
	City               string            `json:"city,omitempty"`
	State              string            `json:"state,omitempty"`
	Zip                string            `json:"zip,omitempty"`
	CertificationLabel string            `json:"certification_label,omitempty"`
	Origin             string            `json:"origin,omitempty"`
	OriginQuery        string            `json:"origin_query,omitempty"`
	Kind               CertificationKind `json:"kind,omitempty"`

	// Provenance.
	SourceFile string `json:"source_file,omitempty"`
	Row        int    `json:"row,omitempty"`

	// Extra holds passthrough columns the engine does not interpret.
	Extra map[string]string `json:"extra,omitempty"`
}

// EffectiveKind returns the record kind, defaulting to KindDirectory.
func (r RawRecord) EffectiveKind() CertificationKind {
	if r.Kind == "" {
		return KindDirectory
	}
	return r.Kind
}

// RowError describes a row that could not be resolved, with enough context
// for an operator to find it in the source extract.
type RowError struct {
	SourceFile string `json:"source_file"`
	Row        int    `json:"row"`
	Origin     string `json:"origin,omitempty"`
	Name       string `json:"name,omitempty"`
	Reason     string `json:"reason"`
}

// FileError describes an extract that failed to load.
type FileError struct {
	Source string `json:"source"`
	Error  string `json:"error"`
}
