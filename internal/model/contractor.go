package model

import (
	"sort"
	"strings"
)

// SourceType records which source families contributed to a contractor.
type SourceType string

const (
	SourceDirectoryOnly SourceType = "directory_only"
	SourceLicenseOnly   SourceType = "license_only"
	SourceBoth          SourceType = "both"
)

// Tier is the ICP priority bucket derived from the score.
type Tier string

const (
	TierPlatinum Tier = "PLATINUM"
	TierGold     Tier = "GOLD"
	TierSilver   Tier = "SILVER"
	TierBronze   Tier = "BRONZE"
)

// Rank orders tiers from lowest (0) to highest (3) priority.
func (t Tier) Rank() int {
	switch t {
	case TierPlatinum:
		return 3
	case TierGold:
		return 2
	case TierSilver:
		return 1
	default:
		return 0
	}
}

// ParseTier converts a case-insensitive tier name. Unknown values return
// false.
func ParseTier(s string) (Tier, bool) {
	switch Tier(strings.ToUpper(strings.TrimSpace(s))) {
	case TierPlatinum:
		return TierPlatinum, true
	case TierGold:
		return TierGold, true
	case TierSilver:
		return TierSilver, true
	case TierBronze:
		return TierBronze, true
	}
	return "", false
}

// Address is a distinct (city, state, zip) location observed for a contractor.
type Address struct {
	City  string `json:"city,omitempty"`
	State string `json:"state,omitempty"`
	Zip   string `json:"zip,omitempty"`
}

// IsZero reports whether no part of the address is known.
func (a Address) IsZero() bool {
	return a.City == "" && a.State == "" && a.Zip == ""
}

// Certification is an (origin, label) pair carried by a contractor.
type Certification struct {
	Origin string            `json:"origin"`
	Label  string            `json:"label,omitempty"`
	Kind   CertificationKind `json:"kind"`
}

// String renders "origin:label", or just the origin when no label exists.
func (c Certification) String() string {
	if c.Label == "" {
		return c.Origin
	}
	return c.Origin + ":" + c.Label
}

// Contractor is the canonical business identity resolved from one or more
// raw records.
type Contractor struct {
	ID             int    `json:"id"`
	DisplayName    string `json:"display_name"`
	NormalizedName string `json:"normalized_name"`
	PrimaryPhone   string `json:"primary_phone,omitempty"`
	PrimaryDomain  string `json:"primary_domain,omitempty"`

	Addresses      []Address       `json:"addresses,omitempty"`
	Certifications []Certification `json:"certifications,omitempty"`
	SourceType     SourceType      `json:"source_type"`

	// First-seen provenance used for export.
	Street      string            `json:"street,omitempty"`
	Website     string            `json:"website,omitempty"`
	Origin      string            `json:"origin,omitempty"`
	OriginQuery string            `json:"origin_query,omitempty"`
	Extra       map[string]string `json:"extra,omitempty"`
	RecordCount int               `json:"record_count"`

	// Derived by the scorer.
	Score int  `json:"score"`
	Tier  Tier `json:"tier,omitempty"`
}

// HasAddress reports whether the address tuple is already recorded.
func (c *Contractor) HasAddress(a Address) bool {
	for _, have := range c.Addresses {
		if have == a {
			return true
		}
	}
	return false
}

// AddAddress records a new address tuple. Empty or duplicate tuples are
// ignored. Returns true when the set grew.
func (c *Contractor) AddAddress(a Address) bool {
	if a.IsZero() || c.HasAddress(a) {
		return false
	}
	c.Addresses = append(c.Addresses, a)
	return true
}

// HasCertification reports whether the (origin, label, kind) triple exists.
// Origin and label compare case-insensitively; the first-seen casing is kept.
func (c *Contractor) HasCertification(cert Certification) bool {
	for _, have := range c.Certifications {
		if have.Kind == cert.Kind &&
			strings.EqualFold(have.Origin, cert.Origin) &&
			strings.EqualFold(have.Label, cert.Label) {
			return true
		}
	}
	return false
}

// AddCertification adds a certification if it is not already present and
// updates the source type. Returns true when the set grew.
func (c *Contractor) AddCertification(cert Certification) bool {
	if cert.Origin == "" && cert.Label == "" {
		return false
	}
	if c.HasCertification(cert) {
		return false
	}
	c.Certifications = append(c.Certifications, cert)
	c.SourceType = EscalateSourceType(c.SourceType, cert.Kind)
	return true
}

// EscalateSourceType folds a certification kind into the current source type.
// Once a contractor is "both" it stays "both".
func EscalateSourceType(current SourceType, kind CertificationKind) SourceType {
	var incoming SourceType
	switch kind {
	case KindLicense:
		incoming = SourceLicenseOnly
	default:
		incoming = SourceDirectoryOnly
	}
	switch {
	case current == "":
		return incoming
	case current == incoming:
		return current
	default:
		return SourceBoth
	}
}

// PrimaryAddress returns the first-seen address, or a zero Address.
func (c *Contractor) PrimaryAddress() Address {
	if len(c.Addresses) == 0 {
		return Address{}
	}
	return c.Addresses[0]
}

// State returns the state of the first-seen address.
func (c *Contractor) State() string {
	return c.PrimaryAddress().State
}

// OEMs returns the sorted distinct origins among directory certifications.
func (c *Contractor) OEMs() []string {
	return c.distinct(KindDirectory, func(cert Certification) string { return cert.Origin })
}

// OEMCount is the number of distinct OEM-directory origins.
func (c *Contractor) OEMCount() int {
	return len(c.OEMs())
}

// OEMTiers returns the sorted distinct labels among directory certifications.
func (c *Contractor) OEMTiers() []string {
	return c.distinct(KindDirectory, func(cert Certification) string { return cert.Label })
}

// Categories returns the sorted distinct license categories.
func (c *Contractor) Categories() []string {
	return c.distinct(KindLicense, func(cert Certification) string { return cert.Label })
}

// CategoryCount is the number of distinct license/trade categories.
func (c *Contractor) CategoryCount() int {
	return len(c.Categories())
}

// IsMultiCertified reports whether the contractor carries two or more OEMs
// or two or more license categories.
func (c *Contractor) IsMultiCertified() bool {
	return c.OEMCount() >= 2 || c.CategoryCount() >= 2
}

// CertificationStrings returns the sorted "origin:label" renderings.
func (c *Contractor) CertificationStrings() []string {
	out := make([]string, 0, len(c.Certifications))
	seen := make(map[string]bool, len(c.Certifications))
	for _, cert := range c.Certifications {
		s := cert.String()
		if seen[strings.ToUpper(s)] {
			continue
		}
		seen[strings.ToUpper(s)] = true
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func (c *Contractor) distinct(kind CertificationKind, key func(Certification) string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, cert := range c.Certifications {
		if cert.Kind != kind {
			continue
		}
		k := strings.TrimSpace(key(cert))
		if k == "" || seen[strings.ToUpper(k)] {
			continue
		}
		seen[strings.ToUpper(k)] = true
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Clone returns a deep copy, safe to hand to readers outside the resolver.
func (c *Contractor) Clone() *Contractor {
	cp := *c
	cp.Addresses = append([]Address(nil), c.Addresses...)
	cp.Certifications = append([]Certification(nil), c.Certifications...)
	if c.Extra != nil {
		cp.Extra = make(map[string]string, len(c.Extra))
		for k, v := range c.Extra {
			cp.Extra[k] = v
		}
	}
	return &cp
}
