package market

import (
	"github.com/roach88/pnftm/internal/ir"
	"github.com/roach88/pnftm/internal/listing"
	"github.com/roach88/pnftm/internal/settlement"
)

// Name returns the token's name.
func (m *Market) Name(id ir.TokenID) (string, error) {
	return m.tokens.NameOf(id)
}

// CurrentTokenID returns the last minted id.
func (m *Market) CurrentTokenID() ir.TokenID {
	return m.tokens.CurrentID()
}

// EncryptedPrice returns the listing's price handle.
func (m *Market) EncryptedPrice(id ir.TokenID) (ir.Handle, error) {
	if !m.tokens.Exists(id) {
		return nil, ir.Errorf(ir.CodeUnknownToken, id, "token was never minted")
	}
	return m.vault.EncryptedPrice(id)
}

// Fee returns the fee rate in basis points.
func (m *Market) Fee() uint64 { return m.fees.Bps() }

// FeeCollector returns the fee recipient.
func (m *Market) FeeCollector() ir.Address { return m.fees.Collector() }

// Owner returns the holder of the owner capability.
func (m *Market) Owner() ir.Address { return m.owner }

// Oracle returns the designated comparison oracle.
func (m *Market) Oracle() ir.Address { return orZero(m.oracle) }

// Paused reports whether the marketplace is paused.
func (m *Market) Paused() bool { return m.paused }

// OwnerOf returns the token's owner.
func (m *Market) OwnerOf(id ir.TokenID) (ir.Address, error) {
	return m.tokens.OwnerOf(id)
}

// BalanceOf returns how many tokens addr holds.
func (m *Market) BalanceOf(addr ir.Address) (uint64, error) {
	return m.tokens.BalanceOf(addr)
}

// Listing returns the most recent listing of id, active or not.
func (m *Market) Listing(id ir.TokenID) (listing.Listing, error) {
	if !m.tokens.Exists(id) {
		return listing.Listing{}, ir.Errorf(ir.CodeUnknownToken, id, "token was never minted")
	}
	l, ok := m.book.Latest(id)
	if !ok {
		return listing.Listing{}, ir.Errorf(ir.CodeNotListed, id, "token was never listed")
	}
	return l, nil
}

// ListingHistory returns every listing of id.
func (m *Market) ListingHistory(id ir.TokenID) []listing.Listing {
	return m.book.History(id)
}

// ListedNFTs returns the actively listed token ids.
func (m *Market) ListedNFTs() []ir.TokenID {
	return m.book.ActiveIDs()
}

// Stats returns the marketplace counters.
func (m *Market) Stats() Stats {
	return Stats{
		TotalTokens:    uint64(m.tokens.CurrentID()),
		ActiveListings: uint64(m.book.ActiveCount()),
		TotalVolume:    m.volume,
		TotalSales:     m.sales,
	}
}

// PendingSettlement returns the open settlement for id, if any.
func (m *Market) PendingSettlement(id ir.TokenID) (settlement.Pending, bool) {
	return m.settle.Pending(id)
}

// PendingByRequest returns the open settlement waiting on reqID.
func (m *Market) PendingByRequest(reqID ir.RequestID) (settlement.Pending, bool) {
	return m.settle.ByRequest(reqID)
}

// CreditsOf returns the withdrawable balance of addr.
func (m *Market) CreditsOf(addr ir.Address) ir.Amount {
	return m.credits[addr]
}

// AuthorizeDecrypt returns the price handle if viewer may decrypt it.
func (m *Market) AuthorizeDecrypt(id ir.TokenID, viewer ir.Address) (ir.Handle, error) {
	if !m.tokens.Exists(id) {
		return nil, ir.Errorf(ir.CodeUnknownToken, id, "token was never minted")
	}
	return m.vault.Authorize(id, viewer)
}
