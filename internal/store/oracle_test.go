package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/pnftm/internal/confidential"
	"github.com/roach88/pnftm/internal/ir"
	"github.com/roach88/pnftm/internal/settlement"
)

func TestOracleBook_Ciphertexts(t *testing.T) {
	b := createTestStore(t).OracleBook()
	ctx := context.Background()
	h := ir.Handle{0x01, 0x02}

	_, err := b.Ciphertext(ctx, h)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, b.PutCiphertext(ctx, h, []byte("sealed")))
	got, err := b.Ciphertext(ctx, h)
	require.NoError(t, err)
	assert.Equal(t, []byte("sealed"), got)
}

func TestOracleBook_Requests(t *testing.T) {
	b := createTestStore(t).OracleBook()
	ctx := context.Background()

	for _, id := range []ir.RequestID{"req-b", "req-a", "req-c"} {
		require.NoError(t, b.PutRequest(ctx, confidential.Request{
			ID:      id,
			Price:   ir.Handle{0x05},
			Payment: 1 << 63,
			Policy:  settlement.PolicyThreshold,
			Status:  confidential.StatusOpen,
		}))
	}

	r, err := b.Request(ctx, "req-a")
	require.NoError(t, err)
	assert.Equal(t, ir.Amount(1<<63), r.Payment)
	assert.Equal(t, settlement.PolicyThreshold, r.Policy)

	r.Status = confidential.StatusResolved
	r.Satisfied = true
	r.Outcome = ir.StatusOK
	require.NoError(t, b.PutRequest(ctx, r))

	open, err := b.OpenRequests(ctx)
	require.NoError(t, err)
	require.Len(t, open, 2)
	assert.Equal(t, ir.RequestID("req-b"), open[0].ID, "insertion order")
	assert.Equal(t, ir.RequestID("req-c"), open[1].ID)

	r, err = b.Request(ctx, "req-a")
	require.NoError(t, err)
	assert.True(t, r.Satisfied)
	assert.Equal(t, ir.StatusOK, r.Outcome)

	_, err = b.Request(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOracleKey(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, err := s.OracleKey(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	key := make([]byte, 32)
	key[0] = 0x7f
	require.NoError(t, s.PutOracleKey(ctx, key))
	got, err := s.OracleKey(ctx)
	require.NoError(t, err)
	assert.Equal(t, key, got)
}
