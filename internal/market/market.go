// Package market is the public entry point of the marketplace.
//
// Market composes the token registry, price vault, fee engine, listing
// book and settlement coordinator under the owner capability. Every write
// checks all of its preconditions before the first mutation, so a method
// that returns an error has changed nothing.
//
// A Market is not safe for concurrent use. The engine owns it and calls
// it from a single goroutine.
package market

import (
	"context"
	"maps"
	"math"
	"math/bits"

	"github.com/roach88/pnftm/internal/fee"
	"github.com/roach88/pnftm/internal/ir"
	"github.com/roach88/pnftm/internal/listing"
	"github.com/roach88/pnftm/internal/registry"
	"github.com/roach88/pnftm/internal/settlement"
	"github.com/roach88/pnftm/internal/vault"
)

// Options are the tunable parameters fixed at construction.
type Options struct {
	FeeBps uint64
	Policy settlement.Policy
	Window int64
}

// DefaultOptions returns 250 bps, the threshold policy and a 100 block
// settlement window.
func DefaultOptions() Options {
	return Options{
		FeeBps: fee.DefaultBps,
		Policy: settlement.PolicyThreshold,
		Window: settlement.DefaultWindow,
	}
}

// Env is the execution context of one call.
type Env struct {
	Ctx    context.Context
	Caller ir.Address
	Value  ir.Amount // attached payment
	Block  int64
}

func (e Env) ctx() context.Context {
	if e.Ctx == nil {
		return context.Background()
	}
	return e.Ctx
}

// Stats are the derived marketplace counters.
type Stats struct {
	TotalTokens    uint64
	ActiveListings uint64
	TotalVolume    ir.Amount
	TotalSales     uint64
}

// Market is the marketplace controller.
type Market struct {
	owner  ir.Address
	oracle ir.Address
	paused bool

	tokens *registry.Registry
	vault  *vault.Vault
	book   *listing.Book
	fees   *fee.Engine
	settle *settlement.Coordinator

	credits map[ir.Address]ir.Amount
	volume  ir.Amount
	sales   uint64

	events  []ir.Event
	touched touchSet
}

// New builds an empty marketplace.
func New(admin Admin, opts Options, cmp settlement.Comparator) (*Market, error) {
	if err := admin.Validate(); err != nil {
		return nil, err
	}
	fees, err := fee.New(fee.Config{Bps: opts.FeeBps, Collector: admin.FeeCollector})
	if err != nil {
		return nil, err
	}
	policy, err := settlement.ParsePolicy(string(opts.Policy))
	if err != nil {
		return nil, ir.Errorf(ir.CodeInvalidArgs, 0, "%v", err)
	}
	m := &Market{
		owner:   admin.Owner,
		oracle:  admin.Oracle,
		tokens:  registry.New(),
		vault:   vault.New(),
		book:    listing.New(),
		fees:    fees,
		credits: make(map[ir.Address]ir.Amount),
		touched: newTouchSet(),
	}
	m.settle = settlement.New(m.deps(), cmp, policy, opts.Window)
	m.touched.meta = true
	return m, nil
}

func (m *Market) deps() settlement.Deps {
	return settlement.Deps{
		Tokens: m.tokens,
		Vault:  m.vault,
		Book:   m.book,
		Fees:   m.fees,
		Ledger: ledger{m},
	}
}

// Admin returns the current capability holders.
func (m *Market) Admin() Admin {
	return Admin{Owner: m.owner, FeeCollector: m.fees.Collector(), Oracle: m.oracle}
}

// Options returns the current fee rate, policy and window.
func (m *Market) Options() Options {
	return Options{FeeBps: m.fees.Bps(), Policy: m.settle.Policy(), Window: m.settle.Window()}
}

// TakeEvents returns the events emitted since the last call and clears
// the buffer.
func (m *Market) TakeEvents() []ir.Event {
	ev := m.events
	m.events = nil
	return ev
}

func (m *Market) emit(name string, args ir.IRObject) {
	m.events = append(m.events, ir.Event{Name: name, Args: args})
}

// ledger credits payouts on behalf of the settlement coordinator.
type ledger struct{ m *Market }

func (l ledger) Credit(addr ir.Address, amount ir.Amount) {
	l.m.credit(addr, amount)
}

func (l ledger) RecordSale(amount ir.Amount) {
	l.m.volume = addAmount(l.m.volume, amount)
	l.m.sales++
	l.m.touched.meta = true
}

func (m *Market) credit(addr ir.Address, amount ir.Amount) {
	if amount == 0 {
		return
	}
	m.credits[addr] = addAmount(m.credits[addr], amount)
	m.touched.accounts[addr] = struct{}{}
}

func (m *Market) creditsSnapshot() map[ir.Address]ir.Amount {
	return maps.Clone(m.credits)
}

// addAmount saturates at MaxUint64 instead of wrapping.
func addAmount(a, b ir.Amount) ir.Amount {
	sum, carry := bits.Add64(uint64(a), uint64(b), 0)
	if carry != 0 {
		return math.MaxUint64
	}
	return ir.Amount(sum)
}
