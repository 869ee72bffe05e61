package market

import (
	"maps"
	"slices"

	"github.com/roach88/pnftm/internal/fee"
	"github.com/roach88/pnftm/internal/ir"
	"github.com/roach88/pnftm/internal/listing"
	"github.com/roach88/pnftm/internal/registry"
	"github.com/roach88/pnftm/internal/settlement"
	"github.com/roach88/pnftm/internal/vault"
)

// Meta is the marketplace-wide configuration and counters.
type Meta struct {
	Owner        ir.Address
	FeeCollector ir.Address
	Oracle       ir.Address
	FeeBps       uint64
	Policy       settlement.Policy
	Window       int64
	Paused       bool
	TotalVolume  ir.Amount
	TotalSales   uint64
}

// TokenState is everything stored about one token.
type TokenState struct {
	Token    registry.Token
	Listings []listing.Listing
	Vault    *vault.Entry
	Pending  *settlement.Pending
}

// State is a dump of marketplace state. A full snapshot carries every
// token and account; a change set carries only the touched ones, and an
// account credited zero there means its row is gone.
type State struct {
	Meta    Meta
	Tokens  []TokenState
	Credits map[ir.Address]ir.Amount
}

type touchSet struct {
	meta     bool
	tokens   map[ir.TokenID]struct{}
	accounts map[ir.Address]struct{}
}

func newTouchSet() touchSet {
	return touchSet{
		tokens:   make(map[ir.TokenID]struct{}),
		accounts: make(map[ir.Address]struct{}),
	}
}

func (t touchSet) token(id ir.TokenID) {
	t.tokens[id] = struct{}{}
}

func (m *Market) meta() Meta {
	return Meta{
		Owner:        m.owner,
		FeeCollector: m.fees.Collector(),
		Oracle:       m.oracle,
		FeeBps:       m.fees.Bps(),
		Policy:       m.settle.Policy(),
		Window:       m.settle.Window(),
		Paused:       m.paused,
		TotalVolume:  m.volume,
		TotalSales:   m.sales,
	}
}

func (m *Market) tokenState(tok registry.Token) TokenState {
	ts := TokenState{Token: tok, Listings: m.book.History(tok.ID)}
	if e, ok := m.vault.Entry(tok.ID); ok {
		ts.Vault = &e
	}
	if p, ok := m.settle.Pending(tok.ID); ok {
		ts.Pending = &p
	}
	return ts
}

// Snapshot dumps the full state.
func (m *Market) Snapshot() State {
	toks := m.tokens.Tokens()
	s := State{Meta: m.meta(), Tokens: make([]TokenState, 0, len(toks)), Credits: m.creditsSnapshot()}
	for _, tok := range toks {
		s.Tokens = append(s.Tokens, m.tokenState(tok))
	}
	return s
}

// Changes dumps the rows touched since the last ResetChanges.
func (m *Market) Changes() State {
	s := State{Meta: m.meta(), Credits: make(map[ir.Address]ir.Amount, len(m.touched.accounts))}
	ids := slices.Sorted(maps.Keys(m.touched.tokens))
	for _, id := range ids {
		tok, err := m.tokens.Token(id)
		if err != nil {
			continue
		}
		s.Tokens = append(s.Tokens, m.tokenState(tok))
	}
	for a := range m.touched.accounts {
		s.Credits[a] = m.credits[a]
	}
	return s
}

// ResetChanges forgets the touched set.
func (m *Market) ResetChanges() {
	m.touched = newTouchSet()
}

// Restore rebuilds a marketplace from a full snapshot.
func Restore(s State, c settlement.Comparator) (*Market, error) {
	admin := Admin{Owner: s.Meta.Owner, FeeCollector: s.Meta.FeeCollector, Oracle: s.Meta.Oracle}
	if err := admin.Validate(); err != nil {
		return nil, err
	}
	fees, err := fee.New(fee.Config{Bps: s.Meta.FeeBps, Collector: s.Meta.FeeCollector})
	if err != nil {
		return nil, err
	}
	policy, err := settlement.ParsePolicy(string(s.Meta.Policy))
	if err != nil {
		return nil, ir.Errorf(ir.CodeInvalidArgs, 0, "%v", err)
	}

	var (
		toks     []registry.Token
		listings []listing.Listing
		entries  []vault.Entry
		pending  []settlement.Pending
	)
	for _, ts := range s.Tokens {
		toks = append(toks, ts.Token)
		listings = append(listings, ts.Listings...)
		if ts.Vault != nil {
			entries = append(entries, *ts.Vault)
		}
		if ts.Pending != nil {
			pending = append(pending, *ts.Pending)
		}
	}

	m := &Market{
		owner:   s.Meta.Owner,
		oracle:  s.Meta.Oracle,
		paused:  s.Meta.Paused,
		tokens:  registry.Restore(toks),
		vault:   vault.Restore(entries),
		book:    listing.Restore(listings),
		fees:    fees,
		credits: make(map[ir.Address]ir.Amount, len(s.Credits)),
		volume:  s.Meta.TotalVolume,
		sales:   s.Meta.TotalSales,
		touched: newTouchSet(),
	}
	for a, amt := range s.Credits {
		if amt > 0 {
			m.credits[a] = amt
		}
	}
	m.settle = settlement.New(m.deps(), c, policy, s.Meta.Window)
	m.settle.Restore(pending)
	return m, nil
}

// IR renders the state as canonical IR for hashing and display.
func (s State) IR() ir.IRObject {
	toks := make(ir.IRArray, 0, len(s.Tokens))
	for _, ts := range s.Tokens {
		toks = append(toks, ts.IR())
	}
	credits := ir.IRObject{}
	for a, amt := range s.Credits {
		if amt > 0 {
			credits[string(a)] = ir.AmountValue(amt)
		}
	}
	return ir.IRObject{
		"meta":    s.Meta.IR(),
		"tokens":  toks,
		"credits": credits,
	}
}

// IR renders the meta record.
func (m Meta) IR() ir.IRObject {
	return ir.IRObject{
		"owner":         ir.IRString(m.Owner),
		"fee_collector": ir.IRString(m.FeeCollector),
		"oracle":        ir.IRString(orZero(m.Oracle)),
		"fee_bps":       ir.AmountValue(ir.Amount(m.FeeBps)),
		"policy":        ir.IRString(m.Policy),
		"window":        ir.IRInt(m.Window),
		"paused":        ir.IRBool(m.Paused),
		"total_volume":  ir.AmountValue(m.TotalVolume),
		"total_sales":   ir.AmountValue(ir.Amount(m.TotalSales)),
	}
}

// IR renders one token with its listings, vault entry and settlement.
func (ts TokenState) IR() ir.IRObject {
	obj := ir.IRObject{
		"id":        ir.TokenValue(ts.Token.ID),
		"owner":     ir.IRString(ts.Token.Owner),
		"name":      ir.IRString(ts.Token.Name),
		"minted_at": ir.IRInt(ts.Token.MintedAt),
	}
	ls := make(ir.IRArray, 0, len(ts.Listings))
	for _, l := range ts.Listings {
		ls = append(ls, listingIR(l))
	}
	obj["listings"] = ls
	if ts.Vault != nil {
		grantees := make(ir.IRArray, len(ts.Vault.Grantees))
		for i, g := range ts.Vault.Grantees {
			grantees[i] = ir.IRString(g)
		}
		obj["price"] = ir.IRString(ts.Vault.Price.String())
		obj["grantees"] = grantees
	}
	if ts.Pending != nil {
		obj["pending"] = pendingIR(*ts.Pending)
	}
	return obj
}

func listingIR(l listing.Listing) ir.IRObject {
	return ir.IRObject{
		"token_id":   ir.TokenValue(l.TokenID),
		"seq":        ir.IRInt(l.Seq),
		"seller":     ir.IRString(l.Seller),
		"active":     ir.IRBool(l.Active),
		"created_at": ir.IRInt(l.CreatedAt),
		"closed_at":  ir.IRInt(l.ClosedAt),
	}
}

func pendingIR(p settlement.Pending) ir.IRObject {
	return ir.IRObject{
		"token_id":    ir.TokenValue(p.TokenID),
		"buyer":       ir.IRString(p.Buyer),
		"seller":      ir.IRString(p.Seller),
		"escrowed":    ir.AmountValue(p.Escrowed),
		"request_id":  ir.IRString(p.RequestID),
		"state":       ir.IRString(p.State),
		"opened_at":   ir.IRInt(p.OpenedAt),
		"expires_at":  ir.IRInt(p.ExpiresAt),
		"buyer_grant": ir.IRBool(p.BuyerGrant),
	}
}

// Hash fingerprints the state.
func (s State) Hash() (string, error) {
	return ir.StateHash(s.IR())
}
