package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/pnftm/internal/ir"
	"github.com/roach88/pnftm/internal/testutil"
)

// sampleResult is a trace in alias form: mint, list, buy, refund.
func sampleResult() *Result {
	r := NewResult()
	r.Trace = []TraceEvent{
		{Seq: 1, Method: "mint", From: "@seller", Status: ir.StatusOK, Events: []ir.Event{
			{Name: ir.EventMinted, Args: ir.IRObject{"token_id": ir.IRInt(1), "to": ir.IRString("@seller")}},
		}},
		{Seq: 2, Method: "list", From: "@seller", Status: ir.StatusOK, Events: []ir.Event{
			{Name: ir.EventListed, Args: ir.IRObject{"token_id": ir.IRInt(1), "seller": ir.IRString("@seller")}},
		}},
		{Seq: 3, Method: "cancel", From: "@buyer", Status: string(ir.CodeNotOwner)},
		{Seq: 4, Method: "buy", From: "@buyer", Status: ir.StatusOK, Events: []ir.Event{
			{Name: ir.EventPurchaseRequested, Args: ir.IRObject{"token_id": ir.IRInt(1), "buyer": ir.IRString("@buyer")}},
		}},
		{Seq: 5, Method: "onComparisonResult", From: "@oracle", Status: ir.StatusOK, Events: []ir.Event{
			{Name: ir.EventPurchaseRefunded, Args: ir.IRObject{"token_id": ir.IRInt(1), "amount": ir.IRInt(500)}},
		}},
	}
	return r
}

func sampleContext(t *testing.T) *AssertionContext {
	t.Helper()
	accounts, err := testutil.NewAccounts("seller", "buyer")
	require.NoError(t, err)
	return &AssertionContext{Accounts: accounts}
}

func TestResult_Events(t *testing.T) {
	events := sampleResult().Events()
	require.Len(t, events, 4)
	assert.Equal(t, ir.EventMinted, events[0].Name)
	assert.Equal(t, ir.EventPurchaseRefunded, events[3].Name)
}

func TestResult_AddError(t *testing.T) {
	r := NewResult()
	assert.True(t, r.Pass)
	r.AddError("boom")
	assert.False(t, r.Pass)
	assert.Equal(t, []string{"boom"}, r.Errors)
}

func TestAssertEventContains(t *testing.T) {
	r := sampleResult()
	actx := sampleContext(t)

	tests := []struct {
		name string
		a    Assertion
		ok   bool
	}{
		{"name only", Assertion{Event: ir.EventListed}, true},
		{"alias arg", Assertion{Event: ir.EventListed, Args: map[string]any{"seller": "@seller"}}, true},
		{"raw address arg", Assertion{Event: ir.EventListed, Args: map[string]any{"seller": string(actx.Accounts.MustAddress("seller"))}}, true},
		{"subset", Assertion{Event: ir.EventPurchaseRefunded, Args: map[string]any{"amount": 500}}, true},
		{"wrong value", Assertion{Event: ir.EventPurchaseRefunded, Args: map[string]any{"amount": 501}}, false},
		{"missing key", Assertion{Event: ir.EventListed, Args: map[string]any{"price": 1}}, false},
		{"absent event", Assertion{Event: ir.EventSold}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.a.Type = AssertEventContains
			err := assertEventContains(r, tt.a, actx)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				var ae *AssertionError
				require.ErrorAs(t, err, &ae)
				assert.Equal(t, AssertEventContains, ae.Type)
			}
		})
	}
}

func TestAssertEventOrder(t *testing.T) {
	r := sampleResult()

	assert.NoError(t, assertEventOrder(r, Assertion{Events: []string{ir.EventMinted, ir.EventPurchaseRefunded}}),
		"intervening events are allowed")

	err := assertEventOrder(r, Assertion{Events: []string{ir.EventPurchaseRequested, ir.EventListed}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "should be before")

	err = assertEventOrder(r, Assertion{Events: []string{ir.EventMinted, ir.EventSold}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing event: Sold")
}

func TestAssertEventCount(t *testing.T) {
	r := sampleResult()

	assert.NoError(t, assertEventCount(r, Assertion{Event: ir.EventListed, Count: 1}))
	assert.NoError(t, assertEventCount(r, Assertion{Event: ir.EventSold, Count: 0}))

	err := assertEventCount(r, Assertion{Event: ir.EventListed, Count: 2})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 occurrences")
}

func TestEvaluateAssertions(t *testing.T) {
	r := sampleResult()
	errs := EvaluateAssertions(r, []Assertion{
		{Type: AssertEventCount, Event: ir.EventMinted, Count: 1},
		{Type: AssertEventCount, Event: ir.EventMinted, Count: 3},
		{Type: AssertFinalState, View: "ownerOf", Expect: map[string]any{"owner": "@seller"}},
		{Type: "bogus"},
	}, sampleContext(t))

	require.Len(t, errs, 3)
	assert.Contains(t, errs[0], "3 occurrences of Minted")
	assert.Contains(t, errs[1], "requires a running engine")
	assert.Contains(t, errs[2], `unknown assertion type "bogus"`)
}

func TestAssertionError_ErrorFormat(t *testing.T) {
	err := &AssertionError{
		Type:     AssertEventCount,
		Expected: "2 occurrences of Sold",
		Actual:   "0 occurrences",
		Trace:    sampleResult().Trace[:1],
	}
	msg := err.Error()
	assert.Contains(t, msg, "Assertion failed: event_count")
	assert.Contains(t, msg, "Expected: 2 occurrences of Sold")
	assert.Contains(t, msg, "Actual: 0 occurrences")
	assert.Contains(t, msg, "[1] mint from @seller -> ok [Minted]")
}

func TestMatchSubset(t *testing.T) {
	accounts := sampleContext(t).Accounts
	actual := ir.IRObject{
		"owner":     ir.IRString("@seller"),
		"token_ids": ir.IRArray{ir.IRInt(1), ir.IRInt(2)},
		"paused":    ir.IRBool(false),
	}

	assert.NoError(t, matchSubset(accounts, nil, actual))
	assert.NoError(t, matchSubset(accounts, map[string]any{"owner": "@seller", "paused": false}, actual))
	assert.NoError(t, matchSubset(accounts, map[string]any{"token_ids": []any{1, 2}}, actual))

	err := matchSubset(accounts, map[string]any{"token_ids": []any{2, 1}}, actual)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `field "token_ids": expected [2,1], got [1,2]`)

	err = matchSubset(accounts, map[string]any{"owner": "@ghost"}, actual)
	assert.ErrorContains(t, err, "ghost")

	err = matchSubset(nil, map[string]any{"fee": 1}, actual)
	assert.ErrorContains(t, err, `field "fee" missing`)
}

func TestValuesEqual(t *testing.T) {
	assert.True(t, valuesEqual(ir.IRInt(5), ir.AmountValue(5)))
	assert.True(t, valuesEqual(ir.IRObject{"a": ir.IRInt(1)}, ir.IRObject{"a": ir.IRInt(1)}))
	assert.False(t, valuesEqual(ir.IRString("5"), ir.IRInt(5)))
	assert.False(t, valuesEqual(nil, nil))
}
