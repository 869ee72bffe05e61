// Package vault stores encrypted listing prices and the set of addresses
// allowed to decrypt each one.
//
// The vault never sees a plaintext price. A Handle is opaque here; what it
// refers to is known only to the confidential backend that issued it.
package vault

import (
	"slices"

	"github.com/roach88/pnftm/internal/ir"
)

// Vault maps tokens to their encrypted price and decrypt grants.
type Vault struct {
	prices map[ir.TokenID]ir.Handle
	grants map[ir.TokenID]map[ir.Address]struct{}
}

// Entry is the persisted form of one token's vault state.
type Entry struct {
	TokenID  ir.TokenID
	Price    ir.Handle
	Grantees []ir.Address
}

// New returns an empty vault.
func New() *Vault {
	return &Vault{
		prices: make(map[ir.TokenID]ir.Handle),
		grants: make(map[ir.TokenID]map[ir.Address]struct{}),
	}
}

// SetPrice stores the handle for id and replaces its grant set with
// grantees plus the lister.
func (v *Vault) SetPrice(id ir.TokenID, lister ir.Address, h ir.Handle, grantees ...ir.Address) {
	v.prices[id] = slices.Clone(h)
	set := map[ir.Address]struct{}{lister: {}}
	for _, g := range grantees {
		if !g.IsZero() {
			set[g] = struct{}{}
		}
	}
	v.grants[id] = set
}

// Clear drops the stored price and all grants for id.
func (v *Vault) Clear(id ir.TokenID) {
	delete(v.prices, id)
	delete(v.grants, id)
}

// EncryptedPrice returns the stored handle. The handle is public; holding
// it does not allow decryption.
func (v *Vault) EncryptedPrice(id ir.TokenID) (ir.Handle, error) {
	h, ok := v.prices[id]
	if !ok {
		return nil, ir.Errorf(ir.CodeNotListed, id, "no encrypted price stored")
	}
	return slices.Clone(h), nil
}

// Grant adds addr to the grant set. Idempotent.
func (v *Vault) Grant(id ir.TokenID, addr ir.Address) {
	set, ok := v.grants[id]
	if !ok {
		set = make(map[ir.Address]struct{})
		v.grants[id] = set
	}
	set[addr] = struct{}{}
}

// Revoke removes addr from the grant set. Revoking an absent address is a
// no-op.
func (v *Vault) Revoke(id ir.TokenID, addr ir.Address) {
	delete(v.grants[id], addr)
}

// Authorize returns the handle if viewer may decrypt it.
func (v *Vault) Authorize(id ir.TokenID, viewer ir.Address) (ir.Handle, error) {
	h, err := v.EncryptedPrice(id)
	if err != nil {
		return nil, err
	}
	if _, ok := v.grants[id][viewer]; !ok {
		return nil, ir.Errorf(ir.CodeUnauthorized, id, "%s may not decrypt this price", viewer)
	}
	return h, nil
}

// IsGranted reports whether addr is in the grant set for id.
func (v *Vault) IsGranted(id ir.TokenID, addr ir.Address) bool {
	_, ok := v.grants[id][addr]
	return ok
}

// Grantees returns the grant set for id in sorted order.
func (v *Vault) Grantees(id ir.TokenID) []ir.Address {
	out := make([]ir.Address, 0, len(v.grants[id]))
	for a := range v.grants[id] {
		out = append(out, a)
	}
	slices.Sort(out)
	return out
}

// Entry returns the persisted form for id and whether anything is stored.
func (v *Vault) Entry(id ir.TokenID) (Entry, bool) {
	h, ok := v.prices[id]
	if !ok {
		return Entry{}, false
	}
	return Entry{TokenID: id, Price: slices.Clone(h), Grantees: v.Grantees(id)}, true
}

// Restore rebuilds a vault from persisted entries.
func Restore(entries []Entry) *Vault {
	v := New()
	for _, e := range entries {
		v.prices[e.TokenID] = slices.Clone(e.Price)
		set := make(map[ir.Address]struct{}, len(e.Grantees))
		for _, g := range e.Grantees {
			set[g] = struct{}{}
		}
		v.grants[e.TokenID] = set
	}
	return v
}
