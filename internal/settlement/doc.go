// Package settlement runs the two-phase purchase protocol.
//
// A purchase spans two transactions. Buy escrows the payment, lets the
// buyer see the encrypted price and asks a Comparator whether the payment
// satisfies it. The Comparator answers later through Resolve, which either
// finalizes the sale or refunds the buyer. If no answer arrives within the
// settlement window, either party may Reclaim the escrow.
//
// State machine:
//
//	Idle → EscrowHeld → ComparisonRequested → Finalized
//	                                        → Refunded
//
// At most one settlement is open per token. The plaintext price is never
// visible to this package.
package settlement
