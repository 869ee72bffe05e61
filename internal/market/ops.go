package market

import (
	"github.com/roach88/pnftm/internal/fee"
	"github.com/roach88/pnftm/internal/ir"
)

func (m *Market) requireActive(action string) error {
	if m.paused {
		return ir.Errorf(ir.CodePaused, 0, "%s is disabled while the marketplace is paused", action)
	}
	return nil
}

// Mint creates a token for to.
func (m *Market) Mint(env Env, to ir.Address, name string) (ir.TokenID, error) {
	if err := m.requireActive("mint"); err != nil {
		return 0, err
	}
	id, err := m.tokens.Mint(to, name, env.Block)
	if err != nil {
		return 0, err
	}
	m.touched.token(id)
	m.emit(ir.EventMinted, ir.IRObject{
		"token_id": ir.TokenValue(id),
		"to":       ir.IRString(to),
	})
	return id, nil
}

// List offers id for sale at an encrypted price. Only the owner may list,
// and never while a purchase of the token is pending. The extra grantees
// may decrypt the price alongside the seller.
func (m *Market) List(env Env, id ir.TokenID, price ir.Handle, grantees ...ir.Address) error {
	if err := m.requireActive("list"); err != nil {
		return err
	}
	owner, err := m.tokens.OwnerOf(id)
	if err != nil {
		return err
	}
	if env.Caller != owner {
		return ir.Errorf(ir.CodeNotOwner, id, "%s is not the owner", env.Caller)
	}
	if m.settle.InProgress(id) {
		return ir.Errorf(ir.CodeSettlementInProgress, id, "a purchase is pending")
	}
	if len(price) == 0 {
		return ir.Errorf(ir.CodeInvalidArgs, id, "price handle is empty")
	}
	if _, err := m.book.List(id, owner, price, env.Block); err != nil {
		return err
	}
	m.vault.SetPrice(id, owner, price, grantees...)
	m.touched.token(id)
	m.emit(ir.EventListed, ir.IRObject{
		"token_id": ir.TokenValue(id),
		"seller":   ir.IRString(owner),
	})
	return nil
}

// Cancel withdraws the active listing. The seller or the current owner may
// cancel, but not while a purchase is pending.
func (m *Market) Cancel(env Env, id ir.TokenID) error {
	l, err := m.book.Current(id)
	if err != nil {
		return err
	}
	owner, err := m.tokens.OwnerOf(id)
	if err != nil {
		return err
	}
	if env.Caller != l.Seller && env.Caller != owner {
		return ir.Errorf(ir.CodeNotOwner, id, "%s is neither seller nor owner", env.Caller)
	}
	if m.settle.InProgress(id) {
		return ir.Errorf(ir.CodeSettlementInProgress, id, "a purchase is pending")
	}
	if _, err := m.book.Cancel(id, env.Block); err != nil {
		return err
	}
	m.vault.Clear(id)
	m.touched.token(id)
	m.emit(ir.EventCancelled, ir.IRObject{
		"token_id": ir.TokenValue(id),
		"seller":   ir.IRString(l.Seller),
	})
	return nil
}

// Buy escrows env.Value and requests a confidential comparison against the
// listing price. The returned request id is answered by OnComparisonResult.
func (m *Market) Buy(env Env, id ir.TokenID) (ir.RequestID, error) {
	if err := m.requireActive("buy"); err != nil {
		return "", err
	}
	if !m.tokens.Exists(id) {
		return "", ir.Errorf(ir.CodeUnknownToken, id, "token was never minted")
	}
	p, err := m.settle.Buy(env.ctx(), id, env.Caller, env.Value, env.Block)
	if err != nil {
		return "", err
	}
	m.touched.token(id)
	m.emit(ir.EventPurchaseRequested, ir.IRObject{
		"token_id":   ir.TokenValue(id),
		"buyer":      ir.IRString(p.Buyer),
		"request_id": ir.IRString(p.RequestID),
	})
	return p.RequestID, nil
}

// OnComparisonResult delivers the oracle's answer for a pending purchase.
func (m *Market) OnComparisonResult(env Env, reqID ir.RequestID, satisfied bool) error {
	if !m.Admin().IsOracle(env.Caller) {
		return ir.Errorf(ir.CodeCallbackUnauthorized, 0, "%s is not the comparison oracle", env.Caller)
	}
	out, err := m.settle.Resolve(reqID, satisfied, env.Block)
	if err != nil {
		return err
	}
	m.touched.token(out.TokenID)
	if out.Satisfied {
		m.emit(ir.EventSold, ir.IRObject{
			"token_id": ir.TokenValue(out.TokenID),
			"buyer":    ir.IRString(out.Buyer),
			"seller":   ir.IRString(out.Seller),
		})
		return nil
	}
	m.emitRefund(out.TokenID, out.Buyer, out.Escrowed)
	return nil
}

// ReclaimExpiredSettlement refunds a purchase whose oracle never answered
// within the settlement window.
func (m *Market) ReclaimExpiredSettlement(env Env, id ir.TokenID) error {
	out, err := m.settle.Reclaim(id, env.Caller, env.Block)
	if err != nil {
		return err
	}
	m.touched.token(id)
	m.emitRefund(id, out.Buyer, out.Escrowed)
	return nil
}

func (m *Market) emitRefund(id ir.TokenID, buyer ir.Address, amount ir.Amount) {
	m.emit(ir.EventPurchaseRefunded, ir.IRObject{
		"token_id": ir.TokenValue(id),
		"buyer":    ir.IRString(buyer),
		"amount":   ir.AmountValue(amount),
	})
}

// Transfer moves an unlisted token to another owner.
func (m *Market) Transfer(env Env, id ir.TokenID, to ir.Address) error {
	if err := m.requireActive("transfer"); err != nil {
		return err
	}
	owner, err := m.tokens.OwnerOf(id)
	if err != nil {
		return err
	}
	if env.Caller != owner {
		return ir.Errorf(ir.CodeNotOwner, id, "%s is not the owner", env.Caller)
	}
	if to.IsZero() {
		return ir.Errorf(ir.CodeZeroAddress, id, "cannot transfer to the null address")
	}
	if m.settle.InProgress(id) {
		return ir.Errorf(ir.CodeSettlementInProgress, id, "a purchase is pending")
	}
	if m.book.Active(id) {
		return ir.Errorf(ir.CodeAlreadyListed, id, "cancel the listing before transferring")
	}
	if err := m.tokens.Transfer(id, owner, to); err != nil {
		return err
	}
	m.touched.token(id)
	m.emit(ir.EventTransfer, ir.IRObject{
		"token_id": ir.TokenValue(id),
		"from":     ir.IRString(owner),
		"to":       ir.IRString(to),
	})
	return nil
}

// Withdraw pays out everything credited to the caller.
func (m *Market) Withdraw(env Env) (ir.Amount, error) {
	amount := m.credits[env.Caller]
	if amount == 0 {
		return 0, ir.Errorf(ir.CodeInsufficientPayment, 0, "%s has nothing to withdraw", env.Caller)
	}
	delete(m.credits, env.Caller)
	m.touched.accounts[env.Caller] = struct{}{}
	m.emit(ir.EventWithdrawn, ir.IRObject{
		"to":     ir.IRString(env.Caller),
		"amount": ir.AmountValue(amount),
	})
	return amount, nil
}

// SetFee changes the fee rate. Owner only.
func (m *Market) SetFee(env Env, bps uint64) error {
	if err := m.Admin().requireOwner(env.Caller, "setFee"); err != nil {
		return err
	}
	if bps > fee.MaxBps {
		return ir.Errorf(ir.CodeInvalidFee, 0, "fee %d bps exceeds %d", bps, fee.MaxBps)
	}
	old := m.fees.Bps()
	if err := m.fees.SetFee(bps); err != nil {
		return err
	}
	m.touched.meta = true
	m.emit(ir.EventFeeUpdated, ir.IRObject{
		"previous_bps": ir.AmountValue(ir.Amount(old)),
		"bps":          ir.AmountValue(ir.Amount(bps)),
	})
	return nil
}

// SetFeeCollector changes the fee recipient. Owner only.
func (m *Market) SetFeeCollector(env Env, addr ir.Address) error {
	if err := m.Admin().requireOwner(env.Caller, "setFeeCollector"); err != nil {
		return err
	}
	old := m.fees.Collector()
	if err := m.fees.SetCollector(addr); err != nil {
		return err
	}
	m.touched.meta = true
	m.emit(ir.EventFeeCollectorUpdated, ir.IRObject{
		"previous":  ir.IRString(old),
		"collector": ir.IRString(addr),
	})
	return nil
}

// SetOracle designates the address allowed to deliver comparison results.
// Owner only.
func (m *Market) SetOracle(env Env, addr ir.Address) error {
	if err := m.Admin().requireOwner(env.Caller, "setOracle"); err != nil {
		return err
	}
	if addr.IsZero() {
		return ir.Errorf(ir.CodeZeroAddress, 0, "oracle is the null address")
	}
	old := m.oracle
	m.oracle = addr
	m.touched.meta = true
	m.emit(ir.EventOracleUpdated, ir.IRObject{
		"previous": ir.IRString(orZero(old)),
		"oracle":   ir.IRString(addr),
	})
	return nil
}

// Pause blocks mint, list, buy and transfer. Owner only.
func (m *Market) Pause(env Env) error {
	return m.setPaused(env, true)
}

// Unpause lifts a pause. Owner only.
func (m *Market) Unpause(env Env) error {
	return m.setPaused(env, false)
}

func (m *Market) setPaused(env Env, paused bool) error {
	name := ir.EventUnpaused
	if paused {
		name = ir.EventPaused
	}
	if err := m.Admin().requireOwner(env.Caller, name); err != nil {
		return err
	}
	if m.paused == paused {
		return nil
	}
	m.paused = paused
	m.touched.meta = true
	m.emit(name, ir.IRObject{"by": ir.IRString(env.Caller)})
	return nil
}

// TransferMarketOwnership hands the owner capability to next. Owner only.
func (m *Market) TransferMarketOwnership(env Env, next ir.Address) error {
	if err := m.Admin().requireOwner(env.Caller, "transferMarketOwnership"); err != nil {
		return err
	}
	if next.IsZero() {
		return ir.Errorf(ir.CodeZeroAddress, 0, "owner is the null address")
	}
	old := m.owner
	m.owner = next
	m.touched.meta = true
	m.emit(ir.EventOwnershipTransferred, ir.IRObject{
		"previous": ir.IRString(old),
		"owner":    ir.IRString(next),
	})
	return nil
}

func orZero(a ir.Address) ir.Address {
	if a == "" {
		return ir.ZeroAddress
	}
	return a
}
