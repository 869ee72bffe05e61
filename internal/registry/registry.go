// Package registry tracks token identity and ownership.
//
// The registry is the only writer of Token.Owner. Ids are assigned from a
// counter that starts at 1 and never goes backwards, so an id is never
// reused even if a token is later restored from storage.
package registry

import (
	"cmp"
	"slices"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/pnftm/internal/ir"
)

// Token is a minted non-fungible token.
type Token struct {
	ID       ir.TokenID
	Owner    ir.Address
	Name     string
	MintedAt int64 // block
}

// Registry holds all minted tokens. It is not safe for concurrent use;
// the engine serializes access.
type Registry struct {
	tokens   map[ir.TokenID]*Token
	balances map[ir.Address]uint64
	current  ir.TokenID
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{
		tokens:   make(map[ir.TokenID]*Token),
		balances: make(map[ir.Address]uint64),
	}
}

// Mint creates a token owned by to and returns its id.
// The name is stored NFC-normalized.
func (r *Registry) Mint(to ir.Address, name string, at int64) (ir.TokenID, error) {
	if to.IsZero() {
		return 0, ir.Errorf(ir.CodeZeroAddress, 0, "cannot mint to the null address")
	}
	r.current++
	id := r.current
	r.tokens[id] = &Token{ID: id, Owner: to, Name: norm.NFC.String(name), MintedAt: at}
	r.balances[to]++
	return id, nil
}

// Token returns a copy of the token record.
func (r *Registry) Token(id ir.TokenID) (Token, error) {
	t, ok := r.tokens[id]
	if !ok {
		return Token{}, ir.Errorf(ir.CodeUnknownToken, id, "token was never minted")
	}
	return *t, nil
}

// OwnerOf returns the current owner of id.
func (r *Registry) OwnerOf(id ir.TokenID) (ir.Address, error) {
	t, err := r.Token(id)
	return t.Owner, err
}

// NameOf returns the name id was minted with.
func (r *Registry) NameOf(id ir.TokenID) (string, error) {
	t, err := r.Token(id)
	return t.Name, err
}

// Exists reports whether id has been minted.
func (r *Registry) Exists(id ir.TokenID) bool {
	_, ok := r.tokens[id]
	return ok
}

// BalanceOf returns how many tokens owner holds.
func (r *Registry) BalanceOf(owner ir.Address) (uint64, error) {
	if owner.IsZero() {
		return 0, ir.Errorf(ir.CodeZeroAddress, 0, "balance query for the null address")
	}
	return r.balances[owner], nil
}

// CurrentID returns the last assigned id, or 0 before the first mint.
func (r *Registry) CurrentID() ir.TokenID {
	return r.current
}

// Transfer moves id from one owner to another. from must match the
// owner recorded at call time.
func (r *Registry) Transfer(id ir.TokenID, from, to ir.Address) error {
	t, ok := r.tokens[id]
	if !ok {
		return ir.Errorf(ir.CodeUnknownToken, id, "token was never minted")
	}
	if to.IsZero() {
		return ir.Errorf(ir.CodeZeroAddress, id, "cannot transfer to the null address")
	}
	if t.Owner != from {
		return ir.Errorf(ir.CodeNotOwner, id, "%s is not the owner", from)
	}
	if from == to {
		return nil
	}
	t.Owner = to
	r.balances[from]--
	if r.balances[from] == 0 {
		delete(r.balances, from)
	}
	r.balances[to]++
	return nil
}

// Tokens returns every token ordered by id.
func (r *Registry) Tokens() []Token {
	out := make([]Token, 0, len(r.tokens))
	for _, t := range r.tokens {
		out = append(out, *t)
	}
	slices.SortFunc(out, func(a, b Token) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

// Restore rebuilds a registry from persisted tokens. The id counter
// resumes after the highest restored id.
func Restore(tokens []Token) *Registry {
	r := New()
	for _, t := range tokens {
		tok := t
		r.tokens[t.ID] = &tok
		r.balances[t.Owner]++
		if t.ID > r.current {
			r.current = t.ID
		}
	}
	return r
}
