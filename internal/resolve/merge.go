package resolve

import (
	"strings"

	"github.com/sells-group/icp-resolver/internal/model"
)

// mergeRecord folds one raw record into target. Sets only grow; first-seen
// provenance is kept and later values fill gaps only.
func mergeRecord(target *model.Contractor, rec model.RawRecord, k Keys) {
	kind := rec.EffectiveKind()

	target.AddAddress(addressOf(rec))
	added := target.AddCertification(model.Certification{
		Origin: strings.TrimSpace(rec.Origin),
		Label:  strings.TrimSpace(rec.CertificationLabel),
		Kind:   kind,
	})
	// A record without a certification only seeds the source type of a
	// contractor that has none yet.
	if !added && target.SourceType == "" {
		target.SourceType = model.EscalateSourceType("", kind)
	}

	if target.DisplayName == "" {
		target.DisplayName = strings.TrimSpace(rec.Name)
	}
	if target.NormalizedName == "" {
		target.NormalizedName = k.Name
	}
	fillEmpty(&target.Street, rec.Street)
	fillEmpty(&target.Website, rec.Website)
	fillEmpty(&target.Origin, rec.Origin)
	fillEmpty(&target.OriginQuery, rec.OriginQuery)
	fillExtra(target, rec.Extra)
	target.RecordCount++
}

// mergeContractors unions retired into survivor. The survivor's own
// first-seen values win; the retired entity only fills what is missing.
func mergeContractors(survivor, retired *model.Contractor) {
	for _, a := range retired.Addresses {
		survivor.AddAddress(a)
	}
	for _, c := range retired.Certifications {
		survivor.AddCertification(c)
	}
	switch {
	case survivor.SourceType == "":
		survivor.SourceType = retired.SourceType
	case retired.SourceType != "" && retired.SourceType != survivor.SourceType:
		survivor.SourceType = model.SourceBoth
	}

	fillEmpty(&survivor.DisplayName, retired.DisplayName)
	fillEmpty(&survivor.NormalizedName, retired.NormalizedName)
	fillEmpty(&survivor.PrimaryPhone, retired.PrimaryPhone)
	fillEmpty(&survivor.PrimaryDomain, retired.PrimaryDomain)
	fillEmpty(&survivor.Street, retired.Street)
	fillEmpty(&survivor.Website, retired.Website)
	fillEmpty(&survivor.Origin, retired.Origin)
	fillEmpty(&survivor.OriginQuery, retired.OriginQuery)
	fillExtra(survivor, retired.Extra)
	survivor.RecordCount += retired.RecordCount
}

func fillEmpty(dst *string, v string) {
	if *dst == "" {
		*dst = strings.TrimSpace(v)
	}
}

func fillExtra(c *model.Contractor, extra map[string]string) {
	for k, v := range extra {
		if strings.TrimSpace(v) == "" {
			continue
		}
		if c.Extra == nil {
			c.Extra = make(map[string]string, len(extra))
		}
		if _, ok := c.Extra[k]; !ok {
			c.Extra[k] = v
		}
	}
}
