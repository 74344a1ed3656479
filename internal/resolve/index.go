// Package resolve matches raw contractor records to canonical identities and
// merges them, keeping an explicit index of phone, domain and (state, name)
// keys.
package resolve

import (
	"sort"

	"github.com/sells-group/icp-resolver/internal/model"
	"github.com/sells-group/icp-resolver/internal/normalize"
)

// MatchKey names the identity key that matched a record.
type MatchKey string

const (
	MatchNone   MatchKey = ""
	MatchPhone  MatchKey = "phone"
	MatchDomain MatchKey = "domain"
	MatchName   MatchKey = "name_state"
)

// NameKey is the composite (state, normalized name) key. State is part of
// the key so common business names do not collide across states.
type NameKey struct {
	State string
	Name  string
}

// Keys are the normalized identity keys of one raw record.
type Keys struct {
	Phone  string
	Domain string
	Name   string
	State  string
}

// KeysFor normalizes the identity fields of a record. Keys that fail
// normalization are left empty.
func KeysFor(rec model.RawRecord) Keys {
	var k Keys
	if p, ok := normalize.Phone(rec.Phone); ok {
		k.Phone = p
	}
	if d, ok := normalize.Domain(rec.Website); ok {
		k.Domain = d
	}
	k.Name = normalize.Name(rec.Name)
	k.State = normalize.State(rec.State)
	return k
}

// Empty reports whether no identity key survived normalization.
func (k Keys) Empty() bool {
	return k.Phone == "" && k.Domain == "" && k.Name == ""
}

// NameKey returns the (state, name) key, or false when the name is empty.
func (k Keys) NameKey() (NameKey, bool) {
	if k.Name == "" {
		return NameKey{}, false
	}
	return NameKey{State: k.State, Name: k.Name}, true
}

// ownedKeys tracks every index entry pointing at one contractor so a
// conflict-merge can redirect them without scanning the maps.
type ownedKeys struct {
	phones  []string
	domains []string
	names   []NameKey
}

// IdentityIndex is the arena of canonical contractors plus the key maps used
// by the matcher. Contractors are addressed by integer id; the maps store ids,
// never pointers, so retiring an id is an index update.
//
// IdentityIndex is not safe for concurrent use. Resolver serializes access.
type IdentityIndex struct {
	arena    []*model.Contractor // arena[id]; slot 0 unused, retired ids nil
	owned    map[int]*ownedKeys
	retired  map[int]int
	byPhone  map[string]int
	byDomain map[string]int
	byName   map[NameKey]int
}

// NewIdentityIndex returns an empty index. The first contractor gets id 1.
func NewIdentityIndex() *IdentityIndex {
	return &IdentityIndex{
		arena:    []*model.Contractor{nil},
		owned:    make(map[int]*ownedKeys),
		retired:  make(map[int]int),
		byPhone:  make(map[string]int),
		byDomain: make(map[string]int),
		byName:   make(map[NameKey]int),
	}
}

// Match finds an existing contractor for the keys in precedence order:
// exact phone, then exact domain, then exact (state, name).
func (idx *IdentityIndex) Match(k Keys) (int, MatchKey) {
	if k.Phone != "" {
		if id, ok := idx.byPhone[k.Phone]; ok {
			return id, MatchPhone
		}
	}
	if k.Domain != "" {
		if id, ok := idx.byDomain[k.Domain]; ok {
			return id, MatchDomain
		}
	}
	if nk, ok := k.NameKey(); ok {
		if id, ok := idx.byName[nk]; ok {
			return id, MatchName
		}
	}
	return 0, MatchNone
}

// Get returns the live contractor for id, following retirements.
func (idx *IdentityIndex) Get(id int) *model.Contractor {
	id = idx.Canonical(id)
	if id <= 0 || id >= len(idx.arena) {
		return nil
	}
	return idx.arena[id]
}

// Canonical maps a possibly retired id to the id that now represents it.
func (idx *IdentityIndex) Canonical(id int) int {
	for {
		next, ok := idx.retired[id]
		if !ok {
			return id
		}
		id = next
	}
}

// Len returns the number of live contractors.
func (idx *IdentityIndex) Len() int {
	return len(idx.arena) - 1 - len(idx.retired)
}

// Contractors returns clones of the live contractors in id order.
func (idx *IdentityIndex) Contractors() []*model.Contractor {
	out := make([]*model.Contractor, 0, idx.Len())
	for _, c := range idx.arena[1:] {
		if c != nil {
			out = append(out, c.Clone())
		}
	}
	return out
}

// PhoneOwner returns the contractor id indexed under a phone key.
func (idx *IdentityIndex) PhoneOwner(phone string) (int, bool) {
	id, ok := idx.byPhone[phone]
	return id, ok
}

// DomainOwner returns the contractor id indexed under a domain key.
func (idx *IdentityIndex) DomainOwner(domain string) (int, bool) {
	id, ok := idx.byDomain[domain]
	return id, ok
}

// NameOwner returns the contractor id indexed under a (state, name) key.
func (idx *IdentityIndex) NameOwner(nk NameKey) (int, bool) {
	id, ok := idx.byName[nk]
	return id, ok
}

// create allocates the next id for a new contractor built from keys.
func (idx *IdentityIndex) create(displayName string, k Keys) *model.Contractor {
	c := &model.Contractor{
		ID:             len(idx.arena),
		DisplayName:    displayName,
		NormalizedName: k.Name,
	}
	idx.arena = append(idx.arena, c)
	idx.owned[c.ID] = &ownedKeys{}
	return c
}

func (idx *IdentityIndex) claimPhone(id int, phone string) {
	idx.byPhone[phone] = id
	idx.owned[id].phones = append(idx.owned[id].phones, phone)
}

func (idx *IdentityIndex) claimDomain(id int, domain string) {
	idx.byDomain[domain] = id
	idx.owned[id].domains = append(idx.owned[id].domains, domain)
}

func (idx *IdentityIndex) claimName(id int, nk NameKey) {
	idx.byName[nk] = id
	idx.owned[id].names = append(idx.owned[id].names, nk)
}

// retire moves every index entry of from onto into and drops from the arena.
func (idx *IdentityIndex) retire(from, into int) {
	keys := idx.owned[from]
	dst := idx.owned[into]
	for _, p := range keys.phones {
		idx.byPhone[p] = into
		dst.phones = append(dst.phones, p)
	}
	for _, d := range keys.domains {
		idx.byDomain[d] = into
		dst.domains = append(dst.domains, d)
	}
	for _, n := range keys.names {
		idx.byName[n] = into
		dst.names = append(dst.names, n)
	}
	delete(idx.owned, from)
	idx.arena[from] = nil
	idx.retired[from] = into
}

// RetiredIDs returns the retired ids in ascending order.
func (idx *IdentityIndex) RetiredIDs() []int {
	out := make([]int, 0, len(idx.retired))
	for id := range idx.retired {
		out = append(out, id)
	}
	sort.Ints(out)
	return out
}
