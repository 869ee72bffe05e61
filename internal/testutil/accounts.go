// Package testutil provides deterministic fixtures shared by tests and the
// scenario harness.
package testutil

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/pnftm/internal/ir"
)

// AliasPrefix marks a scenario string as an account reference, as in
// "@seller".
const AliasPrefix = "@"

// Builtin account names every Accounts set starts with.
const (
	Owner     = "owner"
	Collector = "collector"
	Oracle    = "oracle"
)

// Accounts maps human names to stable addresses. The n-th registered name
// always gets the address 0x…n, so the same scenario produces the same
// transactions on every run.
//
// Not safe for concurrent registration.
type Accounts struct {
	byName map[string]ir.Address
	byAddr map[ir.Address]string
	names  []string
}

// NewAccounts registers the builtin names followed by names.
func NewAccounts(names ...string) (*Accounts, error) {
	a := &Accounts{
		byName: make(map[string]ir.Address),
		byAddr: make(map[ir.Address]string),
	}
	for _, n := range append([]string{Owner, Collector, Oracle}, names...) {
		if err := a.Add(n); err != nil {
			return nil, err
		}
	}
	return a, nil
}

// Add registers name. Registering a builtin again is a no-op.
func (a *Accounts) Add(name string) error {
	if name == "" || strings.ContainsAny(name, " @") {
		return fmt.Errorf("invalid account name %q", name)
	}
	if _, ok := a.byName[name]; ok {
		if slices.Contains([]string{Owner, Collector, Oracle}, name) {
			return nil
		}
		return fmt.Errorf("account %q declared twice", name)
	}
	addr := ir.Address(fmt.Sprintf("0x%040x", len(a.names)+1))
	a.byName[name] = addr
	a.byAddr[addr] = name
	a.names = append(a.names, name)
	return nil
}

// Address returns the address of name. name may carry the alias prefix.
func (a *Accounts) Address(name string) (ir.Address, error) {
	addr, ok := a.byName[strings.TrimPrefix(name, AliasPrefix)]
	if !ok {
		return "", fmt.Errorf("unknown account %q", name)
	}
	return addr, nil
}

// MustAddress is like Address but panics on unknown names.
func (a *Accounts) MustAddress(name string) ir.Address {
	addr, err := a.Address(name)
	if err != nil {
		panic(err)
	}
	return addr
}

// Names returns the registered names in registration order.
func (a *Accounts) Names() []string {
	return slices.Clone(a.names)
}

// Resolve replaces every "@name" string inside v with the account
// address. Other values are returned unchanged.
func (a *Accounts) Resolve(v ir.IRValue) (ir.IRValue, error) {
	switch val := v.(type) {
	case ir.IRString:
		s := string(val)
		if !strings.HasPrefix(s, AliasPrefix) {
			return val, nil
		}
		addr, err := a.Address(s)
		if err != nil {
			return nil, err
		}
		return ir.IRString(addr), nil
	case ir.IRArray:
		out := make(ir.IRArray, len(val))
		for i, e := range val {
			r, err := a.Resolve(e)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = r
		}
		return out, nil
	case ir.IRObject:
		out := make(ir.IRObject, len(val))
		for k, e := range val {
			r, err := a.Resolve(e)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			out[k] = r
		}
		return out, nil
	default:
		return v, nil
	}
}

// ResolveObject is Resolve for objects.
func (a *Accounts) ResolveObject(obj ir.IRObject) (ir.IRObject, error) {
	if obj == nil {
		return ir.IRObject{}, nil
	}
	v, err := a.Resolve(obj)
	if err != nil {
		return nil, err
	}
	return v.(ir.IRObject), nil
}

// Alias is the inverse of Resolve: every string equal to a registered
// address becomes "@name". Used to render traces independent of the
// address layout.
func (a *Accounts) Alias(v ir.IRValue) ir.IRValue {
	switch val := v.(type) {
	case ir.IRString:
		if name, ok := a.byAddr[ir.Address(val)]; ok {
			return ir.IRString(AliasPrefix + name)
		}
		return val
	case ir.IRArray:
		out := make(ir.IRArray, len(val))
		for i, e := range val {
			out[i] = a.Alias(e)
		}
		return out
	case ir.IRObject:
		out := make(ir.IRObject, len(val))
		for k, e := range val {
			out[k] = a.Alias(e)
		}
		return out
	default:
		return v
	}
}

// AliasObject is Alias for objects.
func (a *Accounts) AliasObject(obj ir.IRObject) ir.IRObject {
	if obj == nil {
		return ir.IRObject{}
	}
	return a.Alias(obj).(ir.IRObject)
}
