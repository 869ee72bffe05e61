// Package listing keeps the listing history of every token.
//
// A token has at most one active listing. Listings are deactivated, never
// deleted: History returns every listing a token has had, oldest first.
package listing

import (
	"slices"

	"github.com/roach88/pnftm/internal/ir"
)

// Listing is one offer to sell a token.
type Listing struct {
	TokenID   ir.TokenID
	Seq       int // 1-based, per token
	Seller    ir.Address
	Price     ir.Handle
	Active    bool
	CreatedAt int64 // block
	ClosedAt  int64 // block, zero while active
}

// Book indexes listings by token.
type Book struct {
	history map[ir.TokenID][]*Listing
	active  map[ir.TokenID]*Listing
}

// New returns an empty book.
func New() *Book {
	return &Book{
		history: make(map[ir.TokenID][]*Listing),
		active:  make(map[ir.TokenID]*Listing),
	}
}

// List opens a listing. The caller checks ownership.
func (b *Book) List(id ir.TokenID, seller ir.Address, price ir.Handle, at int64) (Listing, error) {
	if _, ok := b.active[id]; ok {
		return Listing{}, ir.Errorf(ir.CodeAlreadyListed, id, "token already has an active listing")
	}
	l := &Listing{
		TokenID:   id,
		Seq:       len(b.history[id]) + 1,
		Seller:    seller,
		Price:     slices.Clone(price),
		Active:    true,
		CreatedAt: at,
	}
	b.history[id] = append(b.history[id], l)
	b.active[id] = l
	return *l, nil
}

// Cancel closes the active listing.
func (b *Book) Cancel(id ir.TokenID, at int64) (Listing, error) {
	l, ok := b.active[id]
	if !ok {
		return Listing{}, ir.Errorf(ir.CodeNotListed, id, "no active listing")
	}
	l.Active = false
	l.ClosedAt = at
	delete(b.active, id)
	return *l, nil
}

// Deactivate closes the active listing after a sale.
func (b *Book) Deactivate(id ir.TokenID, at int64) error {
	_, err := b.Cancel(id, at)
	return err
}

// Active reports whether id has an active listing.
func (b *Book) Active(id ir.TokenID) bool {
	_, ok := b.active[id]
	return ok
}

// Current returns the active listing for id.
func (b *Book) Current(id ir.TokenID) (Listing, error) {
	l, ok := b.active[id]
	if !ok {
		return Listing{}, ir.Errorf(ir.CodeNotListed, id, "no active listing")
	}
	return *l, nil
}

// Latest returns the most recent listing for id, active or not.
func (b *Book) Latest(id ir.TokenID) (Listing, bool) {
	h := b.history[id]
	if len(h) == 0 {
		return Listing{}, false
	}
	return *h[len(h)-1], true
}

// History returns every listing for id, oldest first.
func (b *Book) History(id ir.TokenID) []Listing {
	out := make([]Listing, len(b.history[id]))
	for i, l := range b.history[id] {
		out[i] = *l
	}
	return out
}

// ActiveIDs returns the ids of actively listed tokens in ascending order.
func (b *Book) ActiveIDs() []ir.TokenID {
	ids := make([]ir.TokenID, 0, len(b.active))
	for id := range b.active {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// ActiveCount returns the number of active listings.
func (b *Book) ActiveCount() int {
	return len(b.active)
}

// Restore rebuilds a book from persisted listings. Input order does not
// matter; each token's history is ordered by seq.
func Restore(listings []Listing) *Book {
	b := New()
	for _, l := range listings {
		rec := l
		b.history[l.TokenID] = append(b.history[l.TokenID], &rec)
	}
	for id, h := range b.history {
		slices.SortFunc(h, func(x, y *Listing) int { return x.Seq - y.Seq })
		for _, l := range h {
			if l.Active {
				b.active[id] = l
			}
		}
	}
	return b
}
