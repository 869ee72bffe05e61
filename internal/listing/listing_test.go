package listing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/pnftm/internal/ir"
)

var (
	seller = ir.MustAddress("0x1000000000000000000000000000000000000001")
	price  = ir.Handle{0xca, 0xfe}
)

func TestListAndCancel(t *testing.T) {
	b := New()

	l, err := b.List(1, seller, price, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, l.Seq)
	assert.True(t, l.Active)
	assert.True(t, b.Active(1))

	_, err = b.List(1, seller, price, 11)
	assert.ErrorIs(t, err, ir.ErrAlreadyListed)

	cancelled, err := b.Cancel(1, 12)
	require.NoError(t, err)
	assert.False(t, cancelled.Active)
	assert.Equal(t, int64(12), cancelled.ClosedAt)
	assert.False(t, b.Active(1))

	_, err = b.Cancel(1, 13)
	assert.ErrorIs(t, err, ir.ErrNotListed)
	assert.ErrorIs(t, b.Deactivate(1, 13), ir.ErrNotListed)
}

func TestHistoryIsRetained(t *testing.T) {
	b := New()
	_, err := b.List(1, seller, price, 1)
	require.NoError(t, err)
	require.NoError(t, b.Deactivate(1, 2))

	l, err := b.List(1, seller, ir.Handle{0x01}, 3)
	require.NoError(t, err)
	assert.Equal(t, 2, l.Seq)

	h := b.History(1)
	require.Len(t, h, 2)
	assert.False(t, h[0].Active)
	assert.True(t, h[1].Active)

	latest, ok := b.Latest(1)
	require.True(t, ok)
	assert.Equal(t, 2, latest.Seq)

	_, ok = b.Latest(2)
	assert.False(t, ok)
}

func TestCurrent(t *testing.T) {
	b := New()
	_, err := b.Current(1)
	assert.ErrorIs(t, err, ir.ErrNotListed)

	_, err = b.List(1, seller, price, 1)
	require.NoError(t, err)
	cur, err := b.Current(1)
	require.NoError(t, err)
	assert.Equal(t, seller, cur.Seller)
	assert.Equal(t, price, cur.Price)
}

func TestActiveIDsSorted(t *testing.T) {
	b := New()
	for _, id := range []ir.TokenID{5, 2, 9, 1} {
		_, err := b.List(id, seller, price, 1)
		require.NoError(t, err)
	}
	require.NoError(t, b.Deactivate(9, 2))

	assert.Equal(t, []ir.TokenID{1, 2, 5}, b.ActiveIDs())
	assert.Equal(t, 3, b.ActiveCount())
}

func TestRestore(t *testing.T) {
	b := New()
	_, _ = b.List(1, seller, price, 1)
	_ = b.Deactivate(1, 2)
	_, _ = b.List(1, seller, price, 3)
	_, _ = b.List(2, seller, price, 4)

	all := append(b.History(1), b.History(2)...)
	// Reverse to check Restore orders by seq.
	rev := make([]Listing, len(all))
	for i, l := range all {
		rev[len(all)-1-i] = l
	}

	restored := Restore(rev)
	assert.Equal(t, b.History(1), restored.History(1))
	assert.Equal(t, b.History(2), restored.History(2))
	assert.Equal(t, []ir.TokenID{1, 2}, restored.ActiveIDs())
}
