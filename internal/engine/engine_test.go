package engine

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/pnftm/internal/confidential"
	"github.com/roach88/pnftm/internal/ir"
	"github.com/roach88/pnftm/internal/market"
	"github.com/roach88/pnftm/internal/settlement"
	"github.com/roach88/pnftm/internal/store"
)

var (
	owner     = ir.MustAddress("0x0a00000000000000000000000000000000000001")
	collector = ir.MustAddress("0x0c00000000000000000000000000000000000001")
	oracle    = ir.MustAddress("0x0e00000000000000000000000000000000000001")
	seller    = ir.MustAddress("0x1000000000000000000000000000000000000001")
	buyer     = ir.MustAddress("0x2000000000000000000000000000000000000002")
)

type counter struct{ n int }

func (c *counter) RequestComparison(context.Context, ir.Handle, ir.Amount, settlement.Policy) (ir.RequestID, error) {
	c.n++
	return ir.RequestID(fmt.Sprintf("req-%d", c.n)), nil
}

type failingComparator struct{}

func (failingComparator) RequestComparison(context.Context, ir.Handle, ir.Amount, settlement.Policy) (ir.RequestID, error) {
	return "", fmt.Errorf("oracle unreachable")
}

// blockSquatter opens a request and then commits a foreign transaction at
// block seq, so the buy that asked for the comparison cannot commit.
type blockSquatter struct {
	store     *store.Store
	seq       int64
	cancelled []ir.RequestID
}

func (b *blockSquatter) RequestComparison(ctx context.Context, _ ir.Handle, _ ir.Amount, _ settlement.Policy) (ir.RequestID, error) {
	args := ir.IRObject{}
	tx := ir.Tx{ID: ir.MustTxID(owner, "pause", args, 0, b.seq), Seq: b.seq, From: owner, Method: "pause", Args: args}
	rec, err := NewReceipt(tx, nil, nil, nil)
	if err != nil {
		return "", err
	}
	if err := b.store.Commit(ctx, tx, rec, nil); err != nil {
		return "", err
	}
	return "req-lost", nil
}

func (b *blockSquatter) CancelComparison(_ context.Context, id ir.RequestID) error {
	b.cancelled = append(b.cancelled, id)
	return nil
}

func setupTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(t.TempDir() + "/test.db")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	m, err := market.New(market.Admin{Owner: owner, FeeCollector: collector, Oracle: oracle}, market.DefaultOptions(), &counter{})
	require.NoError(t, err)
	require.NoError(t, s.Init(context.Background(), m.Snapshot()))
	return s
}

// startEngine runs an engine over s until the test ends.
func startEngine(t *testing.T, s *store.Store, cmp settlement.Comparator) *Engine {
	t.Helper()
	e, err := New(context.Background(), s, cmp)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = e.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return e
}

func exec(t *testing.T, e *Engine, from ir.Address, method string, args ir.IRObject, value ir.Amount) ir.Receipt {
	t.Helper()
	rec, err := e.Execute(context.Background(), Call{From: from, Method: method, Args: args, Value: value})
	require.NoError(t, err)
	return rec
}

func query(t *testing.T, e *Engine, method string, args ir.IRObject) ir.IRObject {
	t.Helper()
	out, err := e.Query(context.Background(), Call{Method: method, Args: args})
	require.NoError(t, err)
	return out
}

func mintAndList(t *testing.T, e *Engine) {
	t.Helper()
	rec := exec(t, e, seller, "mint", ir.IRObject{"to": ir.IRString(seller), "name": ir.IRString("Dawn")}, 0)
	require.True(t, rec.OK(), rec.Error)
	assert.Equal(t, ir.IRInt(1), rec.Result["token_id"])

	rec = exec(t, e, seller, "list", ir.IRObject{"token_id": ir.IRInt(1), "price": ir.IRString("0a0b")}, 0)
	require.True(t, rec.OK(), rec.Error)
}

func TestEngine_ExecuteAssignsBlocks(t *testing.T) {
	s := setupTestStore(t)
	e := startEngine(t, s, &counter{})

	mintAndList(t, e)
	assert.Equal(t, int64(2), e.Block())

	entries, err := s.ReadLog(context.Background(), store.LogFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, int64(1), entries[0].Tx.Seq)
	assert.Equal(t, int64(2), entries[1].Tx.Seq)
	assert.Equal(t, ir.MustTxID(seller, "mint", entries[0].Tx.Args, 0, 1), entries[0].Tx.ID)
}

func TestEngine_RejectionIsLoggedReceipt(t *testing.T) {
	s := setupTestStore(t)
	e := startEngine(t, s, &counter{})

	rec := exec(t, e, seller, "setFee", ir.IRObject{"bps": ir.IRInt(500)}, 0)
	assert.False(t, rec.OK())
	assert.Equal(t, string(ir.CodeUnauthorized), rec.Status)
	assert.Empty(t, rec.Events)

	rec = exec(t, e, owner, "setFee", ir.IRObject{"bps": ir.IRInt(10001)}, 0)
	assert.Equal(t, string(ir.CodeInvalidFee), rec.Status)

	out := query(t, e, "fee", nil)
	assert.Equal(t, ir.IRInt(250), out["bps"])

	entries, err := s.ReadLog(context.Background(), store.LogFilter{})
	require.NoError(t, err)
	assert.Len(t, entries, 2, "rejected transactions stay in the log")
}

func TestEngine_BuyAndCallback(t *testing.T) {
	s := setupTestStore(t)
	e := startEngine(t, s, &counter{})
	mintAndList(t, e)

	rec := exec(t, e, buyer, "buy", ir.IRObject{"token_id": ir.IRInt(1)}, 1000)
	require.True(t, rec.OK(), rec.Error)
	assert.Equal(t, ir.IRString("req-1"), rec.Result["request_id"])

	pending := query(t, e, "getPendingSettlement", ir.IRObject{"token_id": ir.IRInt(1)})
	assert.Equal(t, ir.IRString(settlement.StateComparisonRequested), pending["state"])

	rec = exec(t, e, buyer, "onComparisonResult", ir.IRObject{"request_id": ir.IRString("req-1"), "satisfied": ir.IRBool(true)}, 0)
	assert.Equal(t, string(ir.CodeCallbackUnauthorized), rec.Status)

	rec = exec(t, e, oracle, "onComparisonResult", ir.IRObject{"request_id": ir.IRString("req-1"), "satisfied": ir.IRBool(true)}, 0)
	require.True(t, rec.OK(), rec.Error)

	out := query(t, e, "ownerOf", ir.IRObject{"token_id": ir.IRInt(1)})
	assert.Equal(t, ir.IRString(buyer), out["owner"])

	out = query(t, e, "creditsOf", ir.IRObject{"account": ir.IRString(collector)})
	assert.Equal(t, ir.IRInt(25), out["amount"])

	// state survives a restart
	st, err := s.LoadState(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), st.Meta.TotalSales)
	assert.Equal(t, ir.Amount(975), st.Credits[seller])
}

func TestEngine_InfraErrorNotLogged(t *testing.T) {
	s := setupTestStore(t)
	e := startEngine(t, s, failingComparator{})
	mintAndList(t, e)

	_, err := e.Execute(context.Background(), Call{From: buyer, Method: "buy", Args: ir.IRObject{"token_id": ir.IRInt(1)}, Value: 1000})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "oracle unreachable")

	entries, err := s.ReadLog(context.Background(), store.LogFilter{})
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	out := query(t, e, "getPendingSettlement", ir.IRObject{"token_id": ir.IRInt(1)})
	assert.Equal(t, ir.IRString(settlement.StateIdle), out["state"])

	assert.Equal(t, int64(2), e.Block(), "a failed transaction claims no block")
	rec := exec(t, e, seller, "cancel", ir.IRObject{"token_id": ir.IRInt(1)}, 0)
	require.True(t, rec.OK(), rec.Error)
	assert.Equal(t, int64(3), rec.Seq)
}

func TestEngine_UncommittedBuyCancelsRequest(t *testing.T) {
	s := setupTestStore(t)
	squatter := &blockSquatter{store: s, seq: 3}
	e := startEngine(t, s, squatter)
	mintAndList(t, e)

	_, err := e.Execute(context.Background(), Call{From: buyer, Method: "buy", Args: ir.IRObject{"token_id": ir.IRInt(1)}, Value: 1000})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "commit")

	assert.Equal(t, []ir.RequestID{"req-lost"}, squatter.cancelled)
	assert.Equal(t, int64(2), e.Block())

	out := query(t, e, "getPendingSettlement", ir.IRObject{"token_id": ir.IRInt(1)})
	assert.Equal(t, ir.IRString(settlement.StateIdle), out["state"], "in-memory effects are discarded")
}

func TestEngine_MethodKinds(t *testing.T) {
	s := setupTestStore(t)
	e := startEngine(t, s, &counter{})

	_, err := e.Execute(context.Background(), Call{From: owner, Method: "owner"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), string(ErrCodeWrongKind))

	_, err = e.Query(context.Background(), Call{Method: "mint"})
	require.Error(t, err)

	_, err = e.Query(context.Background(), Call{Method: "nope"})
	assert.ErrorIs(t, err, ir.ErrUnknownMethod)

	rec := exec(t, e, owner, "nope", nil, 0)
	assert.Equal(t, string(ir.CodeUnknownMethod), rec.Status)
}

func TestEngine_ResumesClock(t *testing.T) {
	s := setupTestStore(t)
	e := startEngine(t, s, &counter{})
	mintAndList(t, e)

	e2, err := New(context.Background(), s, &counter{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), e2.Block())
}

func TestEngine_StopRejectsCalls(t *testing.T) {
	s := setupTestStore(t)
	e, err := New(context.Background(), s, &counter{})
	require.NoError(t, err)

	done := make(chan error)
	go func() { done <- e.Run(context.Background()) }()
	e.Stop()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after Stop")
	}

	_, err = e.Execute(context.Background(), Call{From: owner, Method: "pause"})
	assert.True(t, IsStopped(err))
}

func TestEngine_LocalOracleRoundTrip(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	key, err := confidential.GenerateKey()
	require.NoError(t, err)
	orc, err := confidential.NewLocalOracle(oracle, key, s.OracleBook(), NewSequenceGenerator("req"))
	require.NoError(t, err)
	e := startEngine(t, s, orc)

	exec(t, e, seller, "mint", ir.IRObject{"to": ir.IRString(seller), "name": ir.IRString("Dusk")}, 0)
	h, err := orc.Encrypt(ctx, 800)
	require.NoError(t, err)
	rec := exec(t, e, seller, "list", ir.IRObject{"token_id": ir.IRInt(1), "price": ir.IRString(h.String())}, 0)
	require.True(t, rec.OK(), rec.Error)

	// underpayment is refunded
	rec = exec(t, e, buyer, "buy", ir.IRObject{"token_id": ir.IRInt(1)}, 700)
	require.True(t, rec.OK(), rec.Error)
	rec, err = orc.Resolve(ctx, "req-1", e)
	require.NoError(t, err)
	require.True(t, rec.OK(), rec.Error)
	require.Len(t, rec.Events, 1)
	assert.Equal(t, ir.EventPurchaseRefunded, rec.Events[0].Name)

	// enough payment settles
	exec(t, e, buyer, "buy", ir.IRObject{"token_id": ir.IRInt(1)}, 800)
	recs, err := orc.ResolveAll(ctx, e)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.True(t, recs[0].OK(), recs[0].Error)

	out := query(t, e, "ownerOf", ir.IRObject{"token_id": ir.IRInt(1)})
	assert.Equal(t, ir.IRString(buyer), out["owner"])

	req, err := s.OracleBook().Request(ctx, "req-2")
	require.NoError(t, err)
	assert.Equal(t, confidential.StatusResolved, req.Status)
	assert.True(t, req.Satisfied)

	_, err = orc.Resolve(ctx, "req-2", e)
	assert.Error(t, err, "resolved requests are closed")
}
