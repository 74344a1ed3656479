package resolve

import (
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/sells-group/icp-resolver/internal/model"
	"github.com/sells-group/icp-resolver/internal/normalize"
)

// Outcome reports what happened to one applied record.
type Outcome struct {
	ContractorID int      `json:"contractor_id,omitempty"`
	Created      bool     `json:"created,omitempty"`
	MatchedBy    MatchKey `json:"matched_by,omitempty"`
	Retired      []int    `json:"retired,omitempty"`
	Unresolved   bool     `json:"unresolved,omitempty"`
}

// Stats are the resolver's running counters.
type Stats struct {
	Applied        int `json:"applied"`
	Resolved       int `json:"resolved"`
	Created        int `json:"created"`
	ConflictMerges int `json:"conflict_merges"`
	Unresolved     int `json:"unresolved"`
}

// Resolver is the single writer over an IdentityIndex. Records must be
// applied in a stable order for the canonical set to be reproducible.
type Resolver struct {
	mu    sync.Mutex
	idx   *IdentityIndex
	stats Stats
}

// NewResolver wraps idx. A nil idx starts from an empty index.
func NewResolver(idx *IdentityIndex) *Resolver {
	if idx == nil {
		idx = NewIdentityIndex()
	}
	return &Resolver{idx: idx}
}

// Apply resolves one record to a canonical contractor, creating or merging
// as needed. Records with no usable phone, domain or name are reported as
// unresolved and leave the index untouched.
func (r *Resolver) Apply(rec model.RawRecord) Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stats.Applied++
	keys := KeysFor(rec)
	if keys.Empty() {
		r.stats.Unresolved++
		zap.L().Warn("resolve: record has no identity keys",
			zap.String("origin", rec.Origin),
			zap.String("source_file", rec.SourceFile),
			zap.Int("row", rec.Row),
			zap.String("name", rec.Name),
		)
		return Outcome{Unresolved: true}
	}

	var out Outcome
	id, by := r.idx.Match(keys)
	target := r.idx.Get(id)
	if target == nil {
		target = r.idx.create(strings.TrimSpace(rec.Name), keys)
		out.Created = true
		r.stats.Created++
		zap.L().Debug("resolve: created contractor",
			zap.Int("contractor_id", target.ID),
			zap.String("name", target.DisplayName),
		)
	} else {
		out.MatchedBy = by
		zap.L().Debug("resolve: matched contractor",
			zap.String("matched_by", string(by)),
			zap.Int("contractor_id", target.ID),
		)
	}

	target = r.claimKeys(target, keys, &out)
	mergeRecord(target, rec, keys)
	r.claimName(target, NameKey{State: keys.State, Name: target.NormalizedName})

	r.stats.Resolved++
	out.ContractorID = target.ID
	return out
}

// claimKeys registers the record's keys on target. A key already owned by a
// different contractor proves the two are one business; they are merged
// under the lower id and the survivor is returned.
func (r *Resolver) claimKeys(target *model.Contractor, k Keys, out *Outcome) *model.Contractor {
	if k.Phone != "" {
		if owner, ok := r.idx.PhoneOwner(k.Phone); ok {
			if owner != target.ID {
				target = r.conflictMerge(target, owner, MatchPhone, k.Phone, out)
			}
		} else if target.PrimaryPhone == "" {
			target.PrimaryPhone = k.Phone
			r.idx.claimPhone(target.ID, k.Phone)
		}
	}

	if k.Domain != "" {
		if owner, ok := r.idx.DomainOwner(k.Domain); ok {
			if owner != target.ID {
				target = r.conflictMerge(target, owner, MatchDomain, k.Domain, out)
			}
		} else if target.PrimaryDomain == "" {
			target.PrimaryDomain = k.Domain
			r.idx.claimDomain(target.ID, k.Domain)
		}
	}

	if nk, ok := k.NameKey(); ok {
		if owner, ok := r.idx.NameOwner(nk); ok {
			if owner != target.ID {
				target = r.conflictMerge(target, owner, MatchName, nk.State+"/"+nk.Name, out)
			}
		} else {
			r.idx.claimName(target.ID, nk)
		}
	}
	return target
}

// claimName registers a (state, name) key if nobody owns it yet.
func (r *Resolver) claimName(c *model.Contractor, nk NameKey) {
	if nk.Name == "" {
		return
	}
	if _, ok := r.idx.NameOwner(nk); !ok {
		r.idx.claimName(c.ID, nk)
	}
}

func (r *Resolver) conflictMerge(target *model.Contractor, otherID int, key MatchKey, value string, out *Outcome) *model.Contractor {
	other := r.idx.Get(otherID)
	survivor, retired := target, other
	if other.ID < target.ID {
		survivor, retired = other, target
	}

	mergeContractors(survivor, retired)
	r.idx.retire(retired.ID, survivor.ID)

	r.stats.ConflictMerges++
	out.Retired = append(out.Retired, retired.ID)
	zap.L().Info("resolve: identity conflict merged",
		zap.String("key", string(key)),
		zap.String("value", value),
		zap.Int("survivor_id", survivor.ID),
		zap.Int("retired_id", retired.ID),
	)
	return survivor
}

// Index exposes the underlying index for read-only inspection.
func (r *Resolver) Index() *IdentityIndex {
	return r.idx
}

// Stats returns a copy of the counters.
func (r *Resolver) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

// Contractors returns clones of the live contractors in id order.
func (r *Resolver) Contractors() []*model.Contractor {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.idx.Contractors()
}

// addressOf builds the normalized address tuple of a record.
func addressOf(rec model.RawRecord) model.Address {
	return model.Address{
		City:  normalize.City(rec.City),
		State: normalize.State(rec.State),
		Zip:   normalize.Zip(rec.Zip),
	}
}
