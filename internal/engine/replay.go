package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/pnftm/internal/ir"
	"github.com/roach88/pnftm/internal/market"
	"github.com/roach88/pnftm/internal/settlement"
	"github.com/roach88/pnftm/internal/store"
)

// ReplayReport summarizes a replay that matched the log.
type ReplayReport struct {
	Txs       int
	Rejected  int
	LastSeq   int64
	StateHash string
}

// Replay re-executes the whole log against the genesis meta and checks
// every receipt id and the final state hash against the store. It assumes
// the marketplace was initialized empty, as the CLI does.
//
// Replay never writes; it is safe to run against a live database.
func Replay(ctx context.Context, s *store.Store) (ReplayReport, error) {
	var report ReplayReport

	genesis, err := s.Genesis(ctx)
	if err != nil {
		return report, fmt.Errorf("read genesis: %w", err)
	}
	entries, err := s.ReadLog(ctx, store.LogFilter{})
	if err != nil {
		return report, err
	}

	m, err := market.Restore(market.State{Meta: genesis}, newLoggedRequests(entries))
	if err != nil {
		return report, fmt.Errorf("restore genesis: %w", err)
	}

	for _, en := range entries {
		tx := en.Tx
		wantID, err := ir.TxID(tx.From, tx.Method, tx.Args, tx.Value, tx.Seq)
		if err != nil {
			return report, err
		}
		if wantID != tx.ID {
			return report, NewReplayMismatch(tx.Seq, tx.Method, tx.ID, wantID)
		}

		env := market.Env{Ctx: ctx, Caller: tx.From, Value: tx.Value, Block: tx.Seq}
		result, events, callErr := m.Dispatch(env, tx.Method, tx.Args)
		if callErr != nil && !ir.IsMarketError(callErr) {
			return report, fmt.Errorf("replay seq %d: %w", tx.Seq, callErr)
		}
		rec, err := NewReceipt(tx, result, events, callErr)
		if err != nil {
			return report, err
		}
		if rec.ID != en.Receipt.ID {
			slog.Debug("replay diverged",
				"seq", tx.Seq,
				"method", tx.Method,
				"logged_status", en.Receipt.Status,
				"replayed_status", rec.Status,
			)
			return report, NewReplayMismatch(tx.Seq, tx.Method, en.Receipt.Status, rec.Status)
		}
		m.ResetChanges()

		report.Txs++
		if !rec.OK() {
			report.Rejected++
		}
		report.LastSeq = tx.Seq
	}

	stored, err := s.LoadState(ctx)
	if err != nil {
		return report, err
	}
	want, err := stored.Hash()
	if err != nil {
		return report, err
	}
	got, err := m.Snapshot().Hash()
	if err != nil {
		return report, err
	}
	if want != got {
		return report, &RuntimeError{
			Code:    ErrCodeStateMismatch,
			Message: "replayed state differs from stored state",
			Seq:     report.LastSeq,
			Details: map[string]string{"expected": want, "actual": got},
		}
	}
	report.StateHash = got

	slog.Info("replay complete", "txs", report.Txs, "last_seq", report.LastSeq, "state", got)
	return report, nil
}

// loggedRequests answers comparison requests with the ids recorded in the
// successful buy receipts, in log order.
type loggedRequests struct {
	ids []ir.RequestID
}

func newLoggedRequests(entries []store.Entry) *loggedRequests {
	lr := &loggedRequests{}
	for _, en := range entries {
		if en.Tx.Method != "buy" || !en.Receipt.OK() {
			continue
		}
		if id, ok := en.Receipt.Result["request_id"].(ir.IRString); ok {
			lr.ids = append(lr.ids, ir.RequestID(id))
		}
	}
	return lr
}

func (lr *loggedRequests) RequestComparison(context.Context, ir.Handle, ir.Amount, settlement.Policy) (ir.RequestID, error) {
	if len(lr.ids) == 0 {
		return "", fmt.Errorf("replay: more comparison requests than logged purchases")
	}
	id := lr.ids[0]
	lr.ids = lr.ids[1:]
	return id, nil
}
