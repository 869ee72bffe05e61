package vault

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/pnftm/internal/ir"
)

var (
	seller = ir.MustAddress("0x1000000000000000000000000000000000000001")
	buyer  = ir.MustAddress("0x2000000000000000000000000000000000000002")
	other  = ir.MustAddress("0x3000000000000000000000000000000000000003")
	handle = ir.Handle{0x01, 0x02, 0x03}
)

func TestSetPriceAlwaysGrantsLister(t *testing.T) {
	v := New()
	v.SetPrice(1, seller, handle)

	assert.Equal(t, []ir.Address{seller}, v.Grantees(1))

	h, err := v.EncryptedPrice(1)
	require.NoError(t, err)
	assert.Equal(t, handle, h)
}

func TestSetPriceReplacesGrants(t *testing.T) {
	v := New()
	v.SetPrice(1, seller, handle, buyer)
	assert.Equal(t, []ir.Address{seller, buyer}, v.Grantees(1))

	v.SetPrice(1, seller, handle, other)
	assert.Equal(t, []ir.Address{seller, other}, v.Grantees(1))
}

func TestEncryptedPriceNotListed(t *testing.T) {
	_, err := New().EncryptedPrice(9)
	assert.ErrorIs(t, err, ir.ErrNotListed)
}

func TestGrantRevokeIdempotent(t *testing.T) {
	v := New()
	v.SetPrice(1, seller, handle)

	v.Grant(1, buyer)
	v.Grant(1, buyer)
	assert.Equal(t, []ir.Address{seller, buyer}, v.Grantees(1))

	v.Revoke(1, buyer)
	v.Revoke(1, buyer)
	v.Revoke(1, other)
	assert.Equal(t, []ir.Address{seller}, v.Grantees(1))

	v.Revoke(42, buyer)
}

func TestAuthorize(t *testing.T) {
	v := New()
	v.SetPrice(1, seller, handle)

	h, err := v.Authorize(1, seller)
	require.NoError(t, err)
	assert.Equal(t, handle, h)

	_, err = v.Authorize(1, buyer)
	assert.ErrorIs(t, err, ir.ErrUnauthorized)

	v.Grant(1, buyer)
	_, err = v.Authorize(1, buyer)
	assert.NoError(t, err)

	_, err = v.Authorize(2, seller)
	assert.ErrorIs(t, err, ir.ErrNotListed)
}

func TestHandleIsCopied(t *testing.T) {
	v := New()
	h := ir.Handle{0xaa}
	v.SetPrice(1, seller, h)
	h[0] = 0xbb

	got, err := v.EncryptedPrice(1)
	require.NoError(t, err)
	assert.Equal(t, ir.Handle{0xaa}, got)
}

func TestRestore(t *testing.T) {
	v := New()
	v.SetPrice(2, seller, handle, buyer)
	v.SetPrice(1, other, ir.Handle{0x09})

	e1, ok := v.Entry(1)
	require.True(t, ok)
	e2, ok := v.Entry(2)
	require.True(t, ok)

	restored := Restore([]Entry{e2, e1})
	for _, want := range []Entry{e1, e2} {
		got, ok := restored.Entry(want.TokenID)
		require.True(t, ok)
		assert.Equal(t, want, got)
	}
	assert.True(t, restored.IsGranted(2, buyer))

	v.Clear(2)
	_, ok = v.Entry(2)
	assert.False(t, ok)
}
