package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/pnftm/internal/confidential"
	"github.com/roach88/pnftm/internal/ir"
	"github.com/roach88/pnftm/internal/market"
	"github.com/roach88/pnftm/internal/settlement"
	"github.com/roach88/pnftm/internal/store"
)

var _ confidential.Submitter = (*Engine)(nil)

// Engine is the single-writer transaction executor.
//
// Thread-safety model:
//   - Execute, Query, Submit: safe from any goroutine, block until the
//     loop answers
//   - Run: must be called from exactly one goroutine
//   - market is read and written only inside Run
type Engine struct {
	store  *store.Store
	clock  *Clock
	cmp    settlement.Comparator
	market *market.Market
	queue  *eventQueue
	done   chan struct{}
}

// EngineOption allows configuration of engine parameters.
type EngineOption func(*Engine)

// WithClock replaces the clock resumed from the log. Tests use it to start
// at a known block.
func WithClock(c *Clock) EngineOption {
	return func(e *Engine) {
		e.clock = c
	}
}

// New loads the marketplace from an initialized store and resumes the
// clock after the last logged block.
func New(ctx context.Context, s *store.Store, cmp settlement.Comparator, opts ...EngineOption) (*Engine, error) {
	last, err := s.LastSeq(ctx)
	if err != nil {
		return nil, err
	}
	e := &Engine{
		store: s,
		clock: NewClockAt(last),
		cmp:   cmp,
		queue: newEventQueue(),
		done:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	if err := e.reload(ctx); err != nil {
		return nil, err
	}
	return e, nil
}

// reload discards in-memory state and rebuilds it from the store.
func (e *Engine) reload(ctx context.Context) error {
	st, err := e.store.LoadState(ctx)
	if err != nil {
		return fmt.Errorf("load state: %w", err)
	}
	m, err := market.Restore(st, e.cmp)
	if err != nil {
		return fmt.Errorf("restore market: %w", err)
	}
	e.market = m
	return nil
}

// Block returns the last issued block.
func (e *Engine) Block() int64 {
	return e.clock.Current()
}

// Run starts the single-writer loop. Blocks until ctx is cancelled or
// Stop is called. Calls still queued at that point fail with ErrStopped.
func (e *Engine) Run(ctx context.Context) error {
	slog.Info("engine starting", "block", e.clock.Current())
	defer e.shutdown()

	for {
		if ev, ok := e.queue.TryDequeue(); ok {
			ev.reply <- e.process(ctx, ev)
			continue
		}

		select {
		case <-ctx.Done():
			slog.Info("engine stopping: context cancelled")
			e.queue.Close()
			return ctx.Err()

		case <-e.queue.Wait():
			// The signal channel is closed by Close, so an empty queue
			// here means shutdown
			if e.queue.Len() == 0 && e.queue.Closed() {
				slog.Info("engine stopping: queue closed")
				return nil
			}
		}
	}
}

// Stop closes the queue, which makes Run return.
func (e *Engine) Stop() {
	e.queue.Close()
}

func (e *Engine) shutdown() {
	for _, ev := range e.queue.drain() {
		ev.reply <- outcome{err: ErrStopped}
	}
	close(e.done)
}

// Execute runs a write method and returns its receipt. A marketplace
// rejection is a receipt with a failing status, not an error; errors are
// infrastructure failures, and the transaction is then not logged.
func (e *Engine) Execute(ctx context.Context, c Call) (ir.Receipt, error) {
	if kind, ok := market.MethodKind(c.Method); ok && kind != market.KindWrite {
		return ir.Receipt{}, newKindError(c.Method, "write")
	}
	out, err := e.call(ctx, newEvent(EventTypeTx, c))
	if err != nil {
		return ir.Receipt{}, err
	}
	return out.receipt, out.err
}

// Submit executes a transaction on behalf of an external party such as
// the oracle.
func (e *Engine) Submit(ctx context.Context, from ir.Address, method string, args ir.IRObject, value ir.Amount) (ir.Receipt, error) {
	return e.Execute(ctx, Call{From: from, Method: method, Args: args, Value: value})
}

// Query runs a view method at the current state.
func (e *Engine) Query(ctx context.Context, c Call) (ir.IRObject, error) {
	kind, ok := market.MethodKind(c.Method)
	if !ok {
		return nil, ir.Errorf(ir.CodeUnknownMethod, 0, "unknown method %q", c.Method)
	}
	if kind != market.KindView {
		return nil, newKindError(c.Method, "view")
	}
	out, err := e.call(ctx, newEvent(EventTypeQuery, c))
	if err != nil {
		return nil, err
	}
	return out.result, out.err
}

func (e *Engine) call(ctx context.Context, ev Event) (outcome, error) {
	if !e.queue.Enqueue(ev) {
		return outcome{}, ErrStopped
	}
	select {
	case out := <-ev.reply:
		return out, nil
	case <-ctx.Done():
		return outcome{}, ctx.Err()
	case <-e.done:
		// shutdown answers everything it drained
		select {
		case out := <-ev.reply:
			return out, nil
		default:
			return outcome{}, ErrStopped
		}
	}
}

// process handles one event.
// CRITICAL: Called only from the Run goroutine.
func (e *Engine) process(ctx context.Context, ev Event) outcome {
	switch ev.Type {
	case EventTypeTx:
		rec, err := e.apply(ctx, ev.Call)
		if err != nil {
			logCallError(ev.Call, err)
		}
		return outcome{receipt: rec, err: err}

	case EventTypeQuery:
		env := market.Env{Ctx: ctx, Caller: ev.Call.From, Block: e.clock.Current()}
		result, _, err := e.market.Dispatch(env, ev.Call.Method, ev.Call.Args)
		return outcome{result: result, err: err}

	default:
		return outcome{err: fmt.Errorf("unknown event type: %d", ev.Type)}
	}
}

// apply executes and persists one transaction.
func (e *Engine) apply(ctx context.Context, c Call) (ir.Receipt, error) {
	args := c.Args
	if args == nil {
		args = ir.IRObject{}
	}
	// The block is claimed only once the transaction is committed.
	seq := e.clock.Current() + 1
	txID, err := ir.TxID(c.From, c.Method, args, c.Value, seq)
	if err != nil {
		return ir.Receipt{}, err
	}
	tx := ir.Tx{ID: txID, Seq: seq, From: c.From, Method: c.Method, Args: args, Value: c.Value}

	env := market.Env{Ctx: ctx, Caller: c.From, Value: c.Value, Block: seq}
	result, events, callErr := e.market.Dispatch(env, c.Method, args)
	if callErr != nil && !ir.IsMarketError(callErr) {
		e.recover(ctx)
		return ir.Receipt{}, fmt.Errorf("execute %s: %w", c.Method, callErr)
	}

	rec, err := NewReceipt(tx, result, events, callErr)
	if err != nil {
		e.abandon(ctx, events)
		e.recover(ctx)
		return ir.Receipt{}, err
	}

	var changes *market.State
	if rec.OK() {
		ch := e.market.Changes()
		changes = &ch
	}
	if err := e.store.Commit(ctx, tx, rec, changes); err != nil {
		e.abandon(ctx, rec.Events)
		e.recover(ctx)
		return ir.Receipt{}, fmt.Errorf("commit %s: %w", tx.ID, err)
	}
	e.clock.Next()
	e.market.ResetChanges()

	slog.Info("transaction executed",
		"tx", tx.ID,
		"seq", seq,
		"method", c.Method,
		"from", c.From,
		"status", rec.Status,
	)
	return rec, nil
}

// abandon withdraws the comparison requests opened by a transaction that
// was not committed, so the oracle never answers a settlement the log
// does not hold.
func (e *Engine) abandon(ctx context.Context, events []ir.Event) {
	c, ok := e.cmp.(settlement.Canceller)
	if !ok {
		return
	}
	for _, ev := range events {
		if ev.Name != ir.EventPurchaseRequested {
			continue
		}
		id, err := ev.Args.GetString("request_id")
		if err != nil {
			continue
		}
		if err := c.CancelComparison(ctx, ir.RequestID(id)); err != nil {
			slog.Error("cancel comparison", "request_id", id, "error", err)
		}
	}
}

// recover reloads state after a failed transaction so partial in-memory
// effects never outlive it.
func (e *Engine) recover(ctx context.Context) {
	if err := e.reload(ctx); err != nil {
		slog.Error("reload after failed transaction", "error", err)
	}
}

// NewReceipt builds the receipt for a dispatched transaction. callErr must
// be nil or a marketplace error.
func NewReceipt(tx ir.Tx, result ir.IRObject, events []ir.Event, callErr error) (ir.Receipt, error) {
	rec := ir.Receipt{TxID: tx.ID, Seq: tx.Seq, Status: ir.StatusOK, Result: result, Events: events}
	if callErr != nil {
		rec.Status = string(ir.CodeOf(callErr))
		rec.Error = callErr.Error()
		rec.Result = ir.IRObject{}
		rec.Events = nil
	}
	if rec.Result == nil {
		rec.Result = ir.IRObject{}
	}
	id, err := ir.ReceiptID(rec.TxID, rec.Status, rec.Result, rec.Events, rec.Seq)
	if err != nil {
		return ir.Receipt{}, err
	}
	rec.ID = id
	return rec, nil
}

// logCallError records an infrastructure failure with enough context to
// retry the call by hand. Args may carry handles but never plaintext.
func logCallError(c Call, err error) {
	slog.Error("transaction failed",
		"method", c.Method,
		"from", c.From,
		"value", uint64(c.Value),
		"error", err,
	)
}
