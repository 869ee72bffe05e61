package harness

import (
	"context"
	"fmt"

	"github.com/roach88/pnftm/internal/confidential"
	"github.com/roach88/pnftm/internal/engine"
	"github.com/roach88/pnftm/internal/ir"
	"github.com/roach88/pnftm/internal/market"
	"github.com/roach88/pnftm/internal/store"
	"github.com/roach88/pnftm/internal/testutil"
)

// RequestPrefix prefixes the request ids the harness oracle issues.
const RequestPrefix = "req"

// Harness is the scenario execution engine. It owns one engine, its store
// and the local oracle for the duration of a scenario.
type Harness struct {
	store    *store.Store
	engine   *engine.Engine
	clock    *engine.Clock
	oracle   *confidential.LocalOracle
	accounts *testutil.Accounts
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
// Execution flow:
//  1. Initialize an empty marketplace with the scenario's options
//  2. Execute setup steps, which must all succeed
//  3. Execute flow steps with expect validation
//  4. Evaluate assertions against the trace and the live engine
//  5. Replay the log from genesis and compare every receipt
func Run(scenario *Scenario) (*Result, error) {
	return RunContext(context.Background(), scenario)
}

// RunContext is Run with a caller-supplied context.
func RunContext(ctx context.Context, scenario *Scenario) (*Result, error) {
	accounts, err := testutil.NewAccounts(scenario.Accounts...)
	if err != nil {
		return nil, fmt.Errorf("accounts: %w", err)
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	admin := market.Admin{
		Owner:        accounts.MustAddress(testutil.Owner),
		FeeCollector: accounts.MustAddress(testutil.Collector),
		Oracle:       accounts.MustAddress(testutil.Oracle),
	}
	genesis, err := market.New(admin, scenario.Market.Options(), nil)
	if err != nil {
		return nil, fmt.Errorf("build marketplace: %w", err)
	}
	if err := st.Init(ctx, genesis.Snapshot()); err != nil {
		return nil, err
	}

	oracle, err := confidential.NewLocalOracle(admin.Oracle, testutil.SealingKey(scenario.Name),
		st.OracleBook(), engine.NewSequenceGenerator(RequestPrefix))
	if err != nil {
		return nil, err
	}
	clock := engine.NewClock()
	eng, err := engine.New(ctx, st, oracle, engine.WithClock(clock))
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = eng.Run(runCtx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	h := &Harness{
		store:    st,
		engine:   eng,
		clock:    clock,
		oracle:   oracle,
		accounts: accounts,
	}

	result := NewResult()
	for i, step := range scenario.Setup {
		te, err := h.execute(ctx, step)
		if err != nil {
			return nil, fmt.Errorf("setup[%d]: %w", i, err)
		}
		if te == nil {
			continue
		}
		result.Trace = append(result.Trace, *te)
		want := ir.StatusOK
		if step.Expect != nil {
			want = step.Expect.Status
		}
		if te.Status != want {
			return nil, fmt.Errorf("setup[%d]: %s returned %s, want %s", i, te.Method, te.Status, want)
		}
	}

	for i, step := range scenario.Flow {
		te, err := h.execute(ctx, step)
		if err != nil {
			return nil, fmt.Errorf("flow[%d]: %w", i, err)
		}
		if te == nil {
			continue
		}
		result.Trace = append(result.Trace, *te)
		if step.Expect != nil {
			if err := h.checkExpect(*step.Expect, *te); err != nil {
				result.AddError(fmt.Sprintf("flow[%d] %s: %v", i, te.Method, err))
			}
		}
	}

	actx := &AssertionContext{
		Ctx:      ctx,
		Engine:   eng,
		Accounts: accounts,
	}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}

	eng.Stop()
	<-done

	report, err := engine.Replay(ctx, st)
	if err != nil {
		result.AddError(fmt.Sprintf("replay: %v", err))
	} else {
		result.StateHash = report.StateHash
	}
	return result, nil
}

// execute performs one step. Advance steps return a nil trace event.
func (h *Harness) execute(ctx context.Context, step Step) (*TraceEvent, error) {
	switch step.Kind() {
	case StepAdvance:
		h.clock.Advance(step.Advance)
		return nil, nil

	case StepCall:
		return h.call(ctx, step)

	case StepResolve:
		rec, err := h.oracle.Resolve(ctx, ir.RequestID(step.Resolve), h.engine)
		if err != nil {
			return nil, err
		}
		return h.traceLogged(ctx, rec)

	case StepAnswer:
		rec, err := h.oracle.Answer(ctx, ir.RequestID(step.Answer.RequestID), step.Answer.Satisfied, h.engine)
		if err != nil {
			return nil, err
		}
		return h.traceLogged(ctx, rec)

	default:
		return nil, fmt.Errorf("step sets no action")
	}
}

func (h *Harness) call(ctx context.Context, step Step) (*TraceEvent, error) {
	from, err := h.accounts.Address(step.From)
	if err != nil {
		return nil, err
	}
	raw, err := ir.ObjectFromGo(step.Args)
	if err != nil {
		return nil, fmt.Errorf("args: %w", err)
	}
	args, err := h.accounts.ResolveObject(raw)
	if err != nil {
		return nil, fmt.Errorf("args: %w", err)
	}
	shown := h.accounts.AliasObject(args)

	if step.Price != nil {
		handle, err := h.oracle.Encrypt(ctx, ir.Amount(*step.Price))
		if err != nil {
			return nil, fmt.Errorf("seal price: %w", err)
		}
		args["price"] = ir.IRString(handle.String())
		shown["price"] = ir.IRString(fmt.Sprintf("sealed:%d", *step.Price))
	}

	value := ir.Amount(step.Value)
	rec, err := h.engine.Execute(ctx, engine.Call{From: from, Method: step.Call, Args: args, Value: value})
	if err != nil {
		return nil, err
	}
	te := h.trace(rec, step.Call, from, shown, value)
	return &te, nil
}

// traceLogged builds the trace event of a transaction the harness did not
// submit itself, reading its arguments back from the log.
func (h *Harness) traceLogged(ctx context.Context, rec ir.Receipt) (*TraceEvent, error) {
	en, err := h.store.ReadTx(ctx, rec.TxID)
	if err != nil {
		return nil, fmt.Errorf("read back %s: %w", rec.TxID, err)
	}
	te := h.trace(rec, en.Tx.Method, en.Tx.From, h.accounts.AliasObject(en.Tx.Args), en.Tx.Value)
	return &te, nil
}

func (h *Harness) trace(rec ir.Receipt, method string, from ir.Address, args ir.IRObject, value ir.Amount) TraceEvent {
	events := make([]ir.Event, len(rec.Events))
	for i, ev := range rec.Events {
		events[i] = ir.Event{Name: ev.Name, Args: h.accounts.AliasObject(ev.Args)}
	}
	return TraceEvent{
		Seq:    rec.Seq,
		Method: method,
		From:   string(h.accounts.Alias(ir.IRString(from)).(ir.IRString)),
		Args:   args,
		Value:  value,
		Status: rec.Status,
		Error:  rec.Error,
		Result: h.accounts.AliasObject(rec.Result),
		Events: events,
	}
}

func (h *Harness) checkExpect(exp ExpectClause, te TraceEvent) error {
	if exp.Status != te.Status {
		if te.Error != "" {
			return fmt.Errorf("expected status %s, got %s (%s)", exp.Status, te.Status, te.Error)
		}
		return fmt.Errorf("expected status %s, got %s", exp.Status, te.Status)
	}
	if len(exp.Result) == 0 {
		return nil
	}
	return matchSubset(h.accounts, exp.Result, te.Result)
}
