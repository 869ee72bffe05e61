package settlement

import (
	"context"
	"fmt"

	"github.com/roach88/pnftm/internal/fee"
	"github.com/roach88/pnftm/internal/ir"
	"github.com/roach88/pnftm/internal/listing"
	"github.com/roach88/pnftm/internal/registry"
	"github.com/roach88/pnftm/internal/vault"
)

// Deps are the components a settlement reads and writes.
type Deps struct {
	Tokens *registry.Registry
	Vault  *vault.Vault
	Book   *listing.Book
	Fees   *fee.Engine
	Ledger Ledger
}

// Coordinator owns escrow and pending settlements.
type Coordinator struct {
	deps     Deps
	cmp      Comparator
	policy   Policy
	window   int64
	pending  map[ir.TokenID]*Pending
	requests map[ir.RequestID]ir.TokenID
}

// New returns a coordinator with no open settlements.
func New(deps Deps, c Comparator, policy Policy, window int64) *Coordinator {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Coordinator{
		deps:     deps,
		cmp:      c,
		policy:   policy,
		window:   window,
		pending:  make(map[ir.TokenID]*Pending),
		requests: make(map[ir.RequestID]ir.TokenID),
	}
}

// Policy returns the comparison policy sent with every request.
func (c *Coordinator) Policy() Policy { return c.policy }

// Window returns the settlement window in blocks.
func (c *Coordinator) Window() int64 { return c.window }

// InProgress reports whether id has an open settlement.
func (c *Coordinator) InProgress(id ir.TokenID) bool {
	_, ok := c.pending[id]
	return ok
}

// Pending returns the open settlement for id.
func (c *Coordinator) Pending(id ir.TokenID) (Pending, bool) {
	p, ok := c.pending[id]
	if !ok {
		return Pending{}, false
	}
	return *p, true
}

// ByRequest returns the open settlement waiting on reqID.
func (c *Coordinator) ByRequest(reqID ir.RequestID) (Pending, bool) {
	id, ok := c.requests[reqID]
	if !ok {
		return Pending{}, false
	}
	return c.Pending(id)
}

// Restore reinstates persisted settlements.
func (c *Coordinator) Restore(list []Pending) {
	for _, p := range list {
		rec := p
		c.pending[p.TokenID] = &rec
		c.requests[p.RequestID] = p.TokenID
	}
}

// Buy opens a settlement for the active listing of id. All checks run
// before the comparison request is issued; a rejected buy leaves no trace.
func (c *Coordinator) Buy(ctx context.Context, id ir.TokenID, buyer ir.Address, payment ir.Amount, at int64) (Pending, error) {
	l, err := c.deps.Book.Current(id)
	if err != nil {
		return Pending{}, err
	}
	if c.InProgress(id) {
		return Pending{}, ir.Errorf(ir.CodeSettlementInProgress, id, "a purchase is already pending")
	}
	if payment == 0 {
		return Pending{}, ir.Errorf(ir.CodeInsufficientPayment, id, "payment must be positive")
	}
	if buyer == l.Seller {
		return Pending{}, ir.Errorf(ir.CodeSelfPurchase, id, "seller cannot buy their own listing")
	}
	price, err := c.deps.Vault.EncryptedPrice(id)
	if err != nil {
		return Pending{}, err
	}

	reqID, err := c.cmp.RequestComparison(ctx, price, payment, c.policy)
	if err != nil {
		return Pending{}, fmt.Errorf("request comparison for token %d: %w", id, err)
	}
	if _, dup := c.requests[reqID]; dup || reqID == "" {
		return Pending{}, fmt.Errorf("request comparison for token %d: unusable request id %q", id, reqID)
	}

	p := &Pending{
		TokenID:   id,
		Buyer:     buyer,
		Seller:    l.Seller,
		Escrowed:  payment,
		RequestID: reqID,
		State:     StateEscrowHeld,
		OpenedAt:  at,
		ExpiresAt: at + c.window,
	}
	if !c.deps.Vault.IsGranted(id, buyer) {
		c.deps.Vault.Grant(id, buyer)
		p.BuyerGrant = true
	}
	p.State = StateComparisonRequested

	c.pending[id] = p
	c.requests[reqID] = id
	return *p, nil
}

// Resolve applies the comparison answer for reqID. A satisfied answer
// transfers the token and pays out the escrow; otherwise the buyer is
// refunded and the listing stays active.
func (c *Coordinator) Resolve(reqID ir.RequestID, satisfied bool, at int64) (Outcome, error) {
	id, ok := c.requests[reqID]
	if !ok {
		return Outcome{}, ir.Errorf(ir.CodeUnknownRequest, 0, "request %s is unknown or already resolved", reqID)
	}
	p := c.pending[id]
	if p.Expired(at) {
		return Outcome{}, ir.Errorf(ir.CodeSettlementExpired, id, "settlement expired at block %d", p.ExpiresAt)
	}

	if !satisfied {
		return c.refund(p), nil
	}

	// Transfer is the only step that can fail; it runs first.
	if err := c.deps.Tokens.Transfer(id, p.Seller, p.Buyer); err != nil {
		return Outcome{}, err
	}
	if err := c.deps.Book.Deactivate(id, at); err != nil {
		return Outcome{}, fmt.Errorf("deactivate sold listing: %w", err)
	}
	feeAmt, net := c.deps.Fees.Split(p.Escrowed)
	c.deps.Ledger.Credit(c.deps.Fees.Collector(), feeAmt)
	c.deps.Ledger.Credit(p.Seller, net)
	c.deps.Ledger.RecordSale(p.Escrowed)

	c.close(p)
	p.State = StateFinalized
	return Outcome{Pending: *p, Satisfied: true, Fee: feeAmt, Net: net}, nil
}

// Reclaim refunds an expired settlement. Only its buyer or seller may
// call it.
func (c *Coordinator) Reclaim(id ir.TokenID, caller ir.Address, at int64) (Outcome, error) {
	p, ok := c.pending[id]
	if !ok {
		return Outcome{}, ir.Errorf(ir.CodeUnknownRequest, id, "no pending settlement")
	}
	if caller != p.Buyer && caller != p.Seller {
		return Outcome{}, ir.Errorf(ir.CodeNotOwner, id, "%s is neither buyer nor seller", caller)
	}
	if !p.Expired(at) {
		return Outcome{}, ir.Errorf(ir.CodeSettlementInProgress, id, "settlement open until block %d", p.ExpiresAt)
	}
	return c.refund(p), nil
}

func (c *Coordinator) refund(p *Pending) Outcome {
	c.deps.Ledger.Credit(p.Buyer, p.Escrowed)
	c.close(p)
	p.State = StateRefunded
	return Outcome{Pending: *p}
}

// close drops the settlement and the buyer's transient grant. The price
// and the lister's grants stay in the vault.
func (c *Coordinator) close(p *Pending) {
	if p.BuyerGrant {
		c.deps.Vault.Revoke(p.TokenID, p.Buyer)
	}
	delete(c.pending, p.TokenID)
	delete(c.requests, p.RequestID)
}
