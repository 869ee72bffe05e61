package market

import (
	"github.com/roach88/pnftm/internal/ir"
)

// Admin holds the administrative capabilities. Checks against it are pure
// predicates; nothing reads a global.
type Admin struct {
	Owner        ir.Address
	FeeCollector ir.Address
	Oracle       ir.Address
}

// Validate rejects a null owner or fee collector. The oracle may be unset
// until setOracle is called; callbacks are refused until then.
func (a Admin) Validate() error {
	if a.Owner.IsZero() {
		return ir.Errorf(ir.CodeZeroAddress, 0, "owner is the null address")
	}
	if a.FeeCollector.IsZero() {
		return ir.Errorf(ir.CodeZeroAddress, 0, "fee collector is the null address")
	}
	return nil
}

// IsOwner reports whether addr holds the owner capability.
func (a Admin) IsOwner(addr ir.Address) bool {
	return !addr.IsZero() && addr == a.Owner
}

// IsOracle reports whether addr may deliver comparison results.
func (a Admin) IsOracle(addr ir.Address) bool {
	return !a.Oracle.IsZero() && addr == a.Oracle
}

// requireOwner returns Unauthorized unless caller is the owner.
func (a Admin) requireOwner(caller ir.Address, action string) error {
	if !a.IsOwner(caller) {
		return ir.Errorf(ir.CodeUnauthorized, 0, "%s requires the owner capability", action)
	}
	return nil
}
