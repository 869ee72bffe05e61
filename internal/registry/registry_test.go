package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/pnftm/internal/ir"
)

var (
	u1 = ir.MustAddress("0x1000000000000000000000000000000000000001")
	u2 = ir.MustAddress("0x2000000000000000000000000000000000000002")
)

func TestMintAssignsSequentialIDs(t *testing.T) {
	r := New()
	assert.Equal(t, ir.TokenID(0), r.CurrentID())

	for want := ir.TokenID(1); want <= 5; want++ {
		id, err := r.Mint(u1, "N", int64(want))
		require.NoError(t, err)
		assert.Equal(t, want, id)
	}
	assert.Equal(t, ir.TokenID(5), r.CurrentID())

	bal, err := r.BalanceOf(u1)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), bal)
}

func TestMintZeroAddress(t *testing.T) {
	r := New()
	_, err := r.Mint(ir.ZeroAddress, "N1", 1)
	assert.ErrorIs(t, err, ir.ErrZeroAddress)
	assert.Equal(t, ir.TokenID(0), r.CurrentID(), "failed mint must not consume an id")
}

func TestMintNormalizesName(t *testing.T) {
	r := New()
	id, err := r.Mint(u1, "Cafe\u0301", 1)
	require.NoError(t, err)

	name, err := r.NameOf(id)
	require.NoError(t, err)
	assert.Equal(t, "Caf\u00e9", name)
}

func TestUnknownToken(t *testing.T) {
	r := New()
	_, err := r.OwnerOf(1)
	assert.ErrorIs(t, err, ir.ErrUnknownToken)
	_, err = r.NameOf(1)
	assert.ErrorIs(t, err, ir.ErrUnknownToken)
	assert.ErrorIs(t, r.Transfer(1, u1, u2), ir.ErrUnknownToken)
}

func TestBalanceOfZeroAddress(t *testing.T) {
	_, err := New().BalanceOf(ir.ZeroAddress)
	assert.ErrorIs(t, err, ir.ErrZeroAddress)
}

func TestTransfer(t *testing.T) {
	r := New()
	id, err := r.Mint(u1, "N1", 1)
	require.NoError(t, err)

	assert.ErrorIs(t, r.Transfer(id, u2, u1), ir.ErrNotOwner)
	assert.ErrorIs(t, r.Transfer(id, u1, ir.ZeroAddress), ir.ErrZeroAddress)

	require.NoError(t, r.Transfer(id, u1, u2))
	owner, err := r.OwnerOf(id)
	require.NoError(t, err)
	assert.Equal(t, u2, owner)

	b1, _ := r.BalanceOf(u1)
	b2, _ := r.BalanceOf(u2)
	assert.Equal(t, uint64(0), b1)
	assert.Equal(t, uint64(1), b2)
}

func TestRestoreResumesCounter(t *testing.T) {
	r := New()
	_, _ = r.Mint(u1, "A", 1)
	_, _ = r.Mint(u2, "B", 2)

	restored := Restore(r.Tokens())
	assert.Equal(t, r.Tokens(), restored.Tokens())

	id, err := restored.Mint(u1, "C", 3)
	require.NoError(t, err)
	assert.Equal(t, ir.TokenID(3), id)

	bal, _ := restored.BalanceOf(u2)
	assert.Equal(t, uint64(1), bal)
}
