package fee

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/pnftm/internal/ir"
)

var collector = ir.MustAddress("0xc000000000000000000000000000000000000001")

func TestComputeFee(t *testing.T) {
	tests := []struct {
		name    string
		amount  ir.Amount
		bps     uint64
		wantFee ir.Amount
		wantNet ir.Amount
	}{
		{"default rate", 1000, 250, 25, 975},
		{"five percent", 1000, 500, 50, 950},
		{"floor division", 999, 250, 24, 975},
		{"zero rate", 1000, 0, 0, 1000},
		{"full rate", 1000, 10000, 1000, 0},
		{"zero amount", 0, 250, 0, 0},
		{"tiny amount rounds to zero fee", 39, 250, 0, 39},
		{"max amount full rate", math.MaxUint64, 10000, math.MaxUint64, 0},
		{"max amount", math.MaxUint64, 250, 461168601842738790, math.MaxUint64 - 461168601842738790},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fee, net := ComputeFee(tt.amount, tt.bps)
			assert.Equal(t, tt.wantFee, fee)
			assert.Equal(t, tt.wantNet, net)
		})
	}
}

func TestComputeFeeRejectsUnvalidatedRate(t *testing.T) {
	assert.Panics(t, func() { ComputeFee(1000, MaxBps+1) })
	assert.Panics(t, func() { ComputeFee(math.MaxUint64, 20000) })
	assert.NotPanics(t, func() { ComputeFee(math.MaxUint64, MaxBps) })
}

func TestComputeFeeConservesAmount(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	for range 10000 {
		amount := ir.Amount(r.Uint64())
		bps := r.Uint64N(MaxBps + 1)

		fee, net := ComputeFee(amount, bps)
		require.Equal(t, amount, fee+net, "amount=%d bps=%d", amount, bps)
		require.LessOrEqual(t, fee, amount)
	}
}

func TestSetFee(t *testing.T) {
	e, err := New(Config{Bps: DefaultBps, Collector: collector})
	require.NoError(t, err)

	assert.ErrorIs(t, e.SetFee(10001), ir.ErrInvalidFee)
	assert.Equal(t, uint64(DefaultBps), e.Bps(), "rejected update must not change the rate")

	require.NoError(t, e.SetFee(500))
	fee, net := e.Split(1000)
	assert.Equal(t, ir.Amount(50), fee)
	assert.Equal(t, ir.Amount(950), net)

	require.NoError(t, e.SetFee(MaxBps))
}

func TestSetCollector(t *testing.T) {
	e, err := New(Config{Bps: DefaultBps, Collector: collector})
	require.NoError(t, err)

	assert.ErrorIs(t, e.SetCollector(ir.ZeroAddress), ir.ErrZeroAddress)
	assert.Equal(t, collector, e.Collector())

	next := ir.MustAddress("0xc000000000000000000000000000000000000002")
	require.NoError(t, e.SetCollector(next))
	assert.Equal(t, next, e.Collector())
}

func TestNewValidates(t *testing.T) {
	_, err := New(Config{Bps: 10001, Collector: collector})
	assert.ErrorIs(t, err, ir.ErrInvalidFee)

	_, err = New(Config{Bps: 100})
	assert.ErrorIs(t, err, ir.ErrZeroAddress)
}
