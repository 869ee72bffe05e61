package settlement

import (
	"context"
	"fmt"

	"github.com/roach88/pnftm/internal/ir"
)

// State is the lifecycle position of a settlement.
type State string

const (
	StateIdle                State = "Idle"
	StateEscrowHeld          State = "EscrowHeld"
	StateComparisonRequested State = "ComparisonRequested"
	StateFinalized           State = "Finalized"
	StateRefunded            State = "Refunded"
)

// Policy decides when a payment satisfies the encrypted price.
type Policy string

const (
	// PolicyThreshold accepts payment >= price.
	PolicyThreshold Policy = "threshold"
	// PolicyExact accepts payment == price only.
	PolicyExact Policy = "exact"
)

// DefaultWindow is the number of blocks a settlement stays open before it
// can be reclaimed.
const DefaultWindow int64 = 100

// ParsePolicy validates a policy name. The empty string selects
// PolicyThreshold.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "", PolicyThreshold:
		return PolicyThreshold, nil
	case PolicyExact:
		return PolicyExact, nil
	default:
		return "", fmt.Errorf("unknown comparison policy %q", s)
	}
}

// Satisfied evaluates the policy on plaintext values. Only a confidential
// backend that can decrypt the price calls this.
func (p Policy) Satisfied(payment, price ir.Amount) bool {
	if p == PolicyExact {
		return payment == price
	}
	return payment >= price
}

// Pending is an open settlement.
type Pending struct {
	TokenID   ir.TokenID
	Buyer     ir.Address
	Seller    ir.Address
	Escrowed  ir.Amount
	RequestID ir.RequestID
	State     State
	OpenedAt  int64 // block
	ExpiresAt int64 // block

	// BuyerGrant is set when the settlement added the buyer to the vault
	// grant set, so closing it only revokes what it granted.
	BuyerGrant bool
}

// Expired reports whether the window has closed at block at.
func (p Pending) Expired(at int64) bool {
	return at >= p.ExpiresAt
}

// Outcome describes a closed settlement.
type Outcome struct {
	Pending
	Satisfied bool
	Fee       ir.Amount
	Net       ir.Amount
}

// Comparator is the confidential comparison capability. It returns a
// request id immediately and reports the answer later as a callback
// transaction.
type Comparator interface {
	RequestComparison(ctx context.Context, price ir.Handle, payment ir.Amount, policy Policy) (ir.RequestID, error)
}

// ComparatorFunc adapts a function to Comparator.
type ComparatorFunc func(ctx context.Context, price ir.Handle, payment ir.Amount, policy Policy) (ir.RequestID, error)

// RequestComparison calls f.
func (f ComparatorFunc) RequestComparison(ctx context.Context, price ir.Handle, payment ir.Amount, policy Policy) (ir.RequestID, error) {
	return f(ctx, price, payment, policy)
}

// Canceller is implemented by comparators that can withdraw a request
// whose buy was never committed.
type Canceller interface {
	CancelComparison(ctx context.Context, id ir.RequestID) error
}

// Ledger receives the money movements of closed settlements.
type Ledger interface {
	Credit(addr ir.Address, amount ir.Amount)
	RecordSale(amount ir.Amount)
}
