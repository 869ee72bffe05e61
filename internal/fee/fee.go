// Package fee computes the marketplace cut of a sale.
package fee

import (
	"fmt"
	"math/bits"

	"github.com/roach88/pnftm/internal/ir"
)

// MaxBps is 100% in basis points.
const MaxBps = 10000

// DefaultBps is the fee applied when none is configured.
const DefaultBps = 250

// ComputeFee splits amount into the marketplace fee and the seller's net.
// fee = floor(amount*bps/10000) computed with a 128-bit intermediate, so
// it holds for every uint64 amount. Callers pass a rate already checked
// by Validate or SetFee; ComputeFee panics when bps exceeds MaxBps.
func ComputeFee(amount ir.Amount, bps uint64) (fee, net ir.Amount) {
	if bps > MaxBps {
		panic(fmt.Sprintf("fee: rate %d bps exceeds %d", bps, MaxBps))
	}
	hi, lo := bits.Mul64(uint64(amount), bps)
	q, _ := bits.Div64(hi, lo, MaxBps)
	return ir.Amount(q), amount - ir.Amount(q)
}

// Config is the fee rate and the address that receives fees.
type Config struct {
	Bps       uint64
	Collector ir.Address
}

// Validate checks the rate range and collector.
func (c Config) Validate() error {
	if c.Bps > MaxBps {
		return ir.Errorf(ir.CodeInvalidFee, 0, "fee %d bps exceeds %d", c.Bps, MaxBps)
	}
	if c.Collector.IsZero() {
		return ir.Errorf(ir.CodeZeroAddress, 0, "fee collector is the null address")
	}
	return nil
}

// Engine holds the current fee configuration.
type Engine struct {
	cfg Config
}

// New returns an Engine for a validated configuration.
func New(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{cfg: cfg}, nil
}

// Config returns the current configuration.
func (e *Engine) Config() Config { return e.cfg }

// Bps returns the current rate.
func (e *Engine) Bps() uint64 { return e.cfg.Bps }

// Collector returns the fee recipient.
func (e *Engine) Collector() ir.Address { return e.cfg.Collector }

// SetFee changes the rate. Rates above MaxBps are rejected.
func (e *Engine) SetFee(bps uint64) error {
	if bps > MaxBps {
		return ir.Errorf(ir.CodeInvalidFee, 0, "fee %d bps exceeds %d", bps, MaxBps)
	}
	e.cfg.Bps = bps
	return nil
}

// SetCollector changes the fee recipient.
func (e *Engine) SetCollector(addr ir.Address) error {
	if addr.IsZero() {
		return ir.Errorf(ir.CodeZeroAddress, 0, "fee collector is the null address")
	}
	e.cfg.Collector = addr
	return nil
}

// Split applies the current rate to amount.
func (e *Engine) Split(amount ir.Amount) (fee, net ir.Amount) {
	return ComputeFee(amount, e.cfg.Bps)
}
