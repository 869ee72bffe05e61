package harness

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/roach88/pnftm/internal/engine"
	"github.com/roach88/pnftm/internal/ir"
	"github.com/roach88/pnftm/internal/testutil"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, te := range e.Trace {
			names := make([]string, len(te.Events))
			for i, ev := range te.Events {
				names[i] = ev.Name
			}
			fmt.Fprintf(&buf, "  [%d] %s from %s -> %s %v\n", te.Seq, te.Method, te.From, te.Status, names)
		}
	}
	return buf.String()
}

// AssertionContext provides what final_state assertions query.
type AssertionContext struct {
	Ctx      context.Context
	Engine   *engine.Engine
	Accounts *testutil.Accounts
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertEventContains:
			err = assertEventContains(result, assertion, actx)
		case AssertEventOrder:
			err = assertEventOrder(result, assertion)
		case AssertEventCount:
			err = assertEventCount(result, assertion)
		case AssertFinalState:
			if actx == nil || actx.Engine == nil {
				err = fmt.Errorf("assertion[%d]: final_state requires a running engine", i)
			} else {
				err = assertFinalState(actx, assertion)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}
	return errors
}

// assertEventContains checks that some event has the name and carries
// every expected argument.
func assertEventContains(result *Result, a Assertion, actx *AssertionContext) error {
	var accounts *testutil.Accounts
	if actx != nil {
		accounts = actx.Accounts
	}
	for _, ev := range result.Events() {
		if ev.Name != a.Event {
			continue
		}
		if matchSubset(accounts, a.Args, ev.Args) == nil {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertEventContains,
		Expected: fmt.Sprintf("event %s with args %v", a.Event, a.Args),
		Actual:   "not found in trace",
		Trace:    result.Trace,
	}
}

// assertEventOrder checks that the first occurrences of the events come in
// the given order. Intervening events are allowed.
func assertEventOrder(result *Result, a Assertion) error {
	positions := make(map[string]int)
	for i, ev := range result.Events() {
		if _, seen := positions[ev.Name]; !seen {
			positions[ev.Name] = i + 1
		}
	}

	for _, name := range a.Events {
		if positions[name] == 0 {
			return &AssertionError{
				Type:     AssertEventOrder,
				Expected: fmt.Sprintf("all events present: %v", a.Events),
				Actual:   fmt.Sprintf("missing event: %s", name),
				Trace:    result.Trace,
			}
		}
	}

	for i := 1; i < len(a.Events); i++ {
		prev, curr := a.Events[i-1], a.Events[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertEventOrder,
				Expected: fmt.Sprintf("events in order: %v", a.Events),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: result.Trace,
			}
		}
	}
	return nil
}

// assertEventCount checks that the event was emitted exactly Count times.
func assertEventCount(result *Result, a Assertion) error {
	count := 0
	for _, ev := range result.Events() {
		if ev.Name == a.Event {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertEventCount,
			Expected: fmt.Sprintf("%d occurrences of %s", a.Count, a.Event),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    result.Trace,
		}
	}
	return nil
}

// assertFinalState queries a view on the live engine and checks the result
// with subset semantics.
func assertFinalState(actx *AssertionContext, a Assertion) error {
	raw, err := ir.ObjectFromGo(a.Args)
	if err != nil {
		return fmt.Errorf("final_state %s: args: %w", a.View, err)
	}
	args, err := actx.Accounts.ResolveObject(raw)
	if err != nil {
		return fmt.Errorf("final_state %s: args: %w", a.View, err)
	}
	var from ir.Address
	if a.From != "" {
		if from, err = actx.Accounts.Address(a.From); err != nil {
			return fmt.Errorf("final_state %s: %w", a.View, err)
		}
	}

	got, err := actx.Engine.Query(actx.Ctx, engine.Call{From: from, Method: a.View, Args: args})
	if err != nil {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("view %s to answer", a.View),
			Actual:   err.Error(),
		}
	}
	if err := matchSubset(actx.Accounts, a.Expect, actx.Accounts.AliasObject(got)); err != nil {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("view %s(%v) to return %v", a.View, a.Args, a.Expect),
			Actual:   err.Error(),
		}
	}
	return nil
}

// matchSubset checks that actual carries every expected field. actual is
// in alias form; expected may use aliases or raw addresses. A nil accounts
// set compares strings literally.
func matchSubset(accounts *testutil.Accounts, expected map[string]any, actual ir.IRObject) error {
	if len(expected) == 0 {
		return nil
	}
	want, err := ir.ObjectFromGo(expected)
	if err != nil {
		return fmt.Errorf("expected values: %w", err)
	}
	if accounts != nil {
		resolved, err := accounts.ResolveObject(want)
		if err != nil {
			return err
		}
		want = accounts.AliasObject(resolved)
	}

	for _, key := range want.SortedKeys() {
		got, ok := actual[key]
		if !ok {
			return fmt.Errorf("field %q missing from %s", key, render(actual))
		}
		if !valuesEqual(want[key], got) {
			return fmt.Errorf("field %q: expected %s, got %s", key, render(want[key]), render(got))
		}
	}
	return nil
}

// valuesEqual compares canonical encodings, so an amount written as an
// integer matches the same amount however it was produced.
func valuesEqual(a, b ir.IRValue) bool {
	ab, err := ir.MarshalCanonical(a)
	if err != nil {
		return false
	}
	bb, err := ir.MarshalCanonical(b)
	if err != nil {
		return false
	}
	return bytes.Equal(ab, bb)
}

func render(v ir.IRValue) string {
	b, err := ir.MarshalCanonical(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}
