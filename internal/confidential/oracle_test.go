package confidential

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/pnftm/internal/ir"
	"github.com/roach88/pnftm/internal/settlement"
)

var oracleAddr = ir.MustAddress("0x0e00000000000000000000000000000000000001")

type seqIDs struct{ n int }

func (s *seqIDs) Generate() string {
	s.n++
	return fmt.Sprintf("req-%d", s.n)
}

type call struct {
	from   ir.Address
	method string
	args   ir.IRObject
}

type recordingSubmitter struct {
	calls  []call
	status string
}

func (r *recordingSubmitter) Submit(_ context.Context, from ir.Address, method string, args ir.IRObject, _ ir.Amount) (ir.Receipt, error) {
	r.calls = append(r.calls, call{from: from, method: method, args: args})
	status := r.status
	if status == "" {
		status = ir.StatusOK
	}
	return ir.Receipt{Status: status}, nil
}

func newOracle(t *testing.T) (*LocalOracle, *MemoryBook) {
	t.Helper()
	key, err := GenerateKey()
	require.NoError(t, err)
	book := NewMemoryBook()
	o, err := NewLocalOracle(oracleAddr, key, book, &seqIDs{})
	require.NoError(t, err)
	return o, book
}

func TestEncryptDecrypt(t *testing.T) {
	o, _ := newOracle(t)
	ctx := context.Background()

	h, err := o.Encrypt(ctx, 1000)
	require.NoError(t, err)
	assert.Len(t, h, 32)

	got, err := o.Decrypt(ctx, h)
	require.NoError(t, err)
	assert.Equal(t, ir.Amount(1000), got)
}

func TestHandlesAreUnlinkable(t *testing.T) {
	o, _ := newOracle(t)
	ctx := context.Background()

	h1, err := o.Encrypt(ctx, 1000)
	require.NoError(t, err)
	h2, err := o.Encrypt(ctx, 1000)
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2, "equal prices must not produce equal handles")
}

func TestDeriveHandleDeterministic(t *testing.T) {
	a, err := DeriveHandle([]byte("sealed"))
	require.NoError(t, err)
	b, err := DeriveHandle([]byte("sealed"))
	require.NoError(t, err)
	c, err := DeriveHandle([]byte("sealed!"))
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestDecryptWithWrongKey(t *testing.T) {
	o, book := newOracle(t)
	ctx := context.Background()
	h, err := o.Encrypt(ctx, 1000)
	require.NoError(t, err)

	otherKey, err := GenerateKey()
	require.NoError(t, err)
	other, err := NewLocalOracle(oracleAddr, otherKey, book, &seqIDs{})
	require.NoError(t, err)

	_, err = other.Decrypt(ctx, h)
	assert.Error(t, err)
}

func TestNewLocalOracleValidates(t *testing.T) {
	_, err := NewLocalOracle(ir.ZeroAddress, make([]byte, KeySize), NewMemoryBook(), &seqIDs{})
	assert.Error(t, err)
	_, err = NewLocalOracle(oracleAddr, []byte("short"), NewMemoryBook(), &seqIDs{})
	assert.Error(t, err)
}

func TestEvaluatePolicies(t *testing.T) {
	tests := []struct {
		name    string
		price   ir.Amount
		payment ir.Amount
		policy  settlement.Policy
		want    bool
	}{
		{"threshold exact", 1000, 1000, settlement.PolicyThreshold, true},
		{"threshold over", 1000, 1500, settlement.PolicyThreshold, true},
		{"threshold under", 1000, 999, settlement.PolicyThreshold, false},
		{"exact match", 1000, 1000, settlement.PolicyExact, true},
		{"exact over", 1000, 1001, settlement.PolicyExact, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, _ := newOracle(t)
			ctx := context.Background()
			h, err := o.Encrypt(ctx, tt.price)
			require.NoError(t, err)

			id, err := o.RequestComparison(ctx, h, tt.payment, tt.policy)
			require.NoError(t, err)

			got, err := o.Evaluate(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluateUnknownCiphertext(t *testing.T) {
	o, _ := newOracle(t)
	ctx := context.Background()

	id, err := o.RequestComparison(ctx, ir.Handle{0xde, 0xad}, 1000, settlement.PolicyThreshold)
	require.NoError(t, err)

	got, err := o.Evaluate(ctx, id)
	require.NoError(t, err)
	assert.False(t, got)
}

func TestResolveSubmitsCallback(t *testing.T) {
	o, book := newOracle(t)
	ctx := context.Background()
	h, err := o.Encrypt(ctx, 1000)
	require.NoError(t, err)
	id, err := o.RequestComparison(ctx, h, 1000, settlement.PolicyThreshold)
	require.NoError(t, err)
	assert.Equal(t, ir.RequestID("req-1"), id)

	sub := &recordingSubmitter{}
	rec, err := o.Resolve(ctx, id, sub)
	require.NoError(t, err)
	assert.True(t, rec.OK())

	require.Len(t, sub.calls, 1)
	assert.Equal(t, oracleAddr, sub.calls[0].from)
	assert.Equal(t, MethodCallback, sub.calls[0].method)
	assert.Equal(t, ir.IRObject{"request_id": ir.IRString("req-1"), "satisfied": ir.IRBool(true)}, sub.calls[0].args)

	req, err := book.Request(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusResolved, req.Status)
	assert.Equal(t, ir.StatusOK, req.Outcome)

	_, err = o.Resolve(ctx, id, sub)
	assert.Error(t, err, "resolved requests are closed")
}

func TestResolveAllInOrder(t *testing.T) {
	o, _ := newOracle(t)
	ctx := context.Background()
	h, err := o.Encrypt(ctx, 500)
	require.NoError(t, err)

	for _, pay := range []ir.Amount{100, 900, 500} {
		_, err := o.RequestComparison(ctx, h, pay, settlement.PolicyThreshold)
		require.NoError(t, err)
	}

	sub := &recordingSubmitter{}
	recs, err := o.ResolveAll(ctx, sub)
	require.NoError(t, err)
	require.Len(t, recs, 3)

	var got []ir.IRValue
	for _, c := range sub.calls {
		got = append(got, c.args["satisfied"])
	}
	assert.Equal(t, []ir.IRValue{ir.IRBool(false), ir.IRBool(true), ir.IRBool(true)}, got)

	recs, err = o.ResolveAll(ctx, sub)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestAnswerOverridesEvaluation(t *testing.T) {
	o, _ := newOracle(t)
	ctx := context.Background()
	h, err := o.Encrypt(ctx, 1000)
	require.NoError(t, err)
	id, err := o.RequestComparison(ctx, h, 5000, settlement.PolicyThreshold)
	require.NoError(t, err)

	sub := &recordingSubmitter{status: string(ir.CodeSettlementExpired)}
	rec, err := o.Answer(ctx, id, false, sub)
	require.NoError(t, err)
	assert.False(t, rec.OK())
	assert.Equal(t, ir.IRBool(false), sub.calls[0].args["satisfied"])
}

func TestCancelComparison(t *testing.T) {
	o, book := newOracle(t)
	ctx := context.Background()
	h, err := o.Encrypt(ctx, 1000)
	require.NoError(t, err)
	id, err := o.RequestComparison(ctx, h, 1000, settlement.PolicyThreshold)
	require.NoError(t, err)

	require.NoError(t, o.CancelComparison(ctx, id))
	require.NoError(t, o.CancelComparison(ctx, id), "cancelling twice is a no-op")

	req, err := book.Request(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, req.Status)

	sub := &recordingSubmitter{}
	recs, err := o.ResolveAll(ctx, sub)
	require.NoError(t, err)
	assert.Empty(t, recs)
	assert.Empty(t, sub.calls, "a cancelled request is never answered")

	_, err = o.Resolve(ctx, id, sub)
	assert.ErrorContains(t, err, "already cancelled")

	assert.ErrorIs(t, o.CancelComparison(ctx, "req-missing"), ErrNotFound)
}
