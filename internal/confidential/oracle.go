package confidential

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/pnftm/internal/ir"
	"github.com/roach88/pnftm/internal/settlement"
)

// MethodCallback is the marketplace method the oracle answers through.
const MethodCallback = "onComparisonResult"

var (
	_ settlement.Comparator = (*LocalOracle)(nil)
	_ settlement.Canceller  = (*LocalOracle)(nil)
	_ Decryptor             = (*LocalOracle)(nil)
)

// LocalOracle is a single-key reference implementation of the
// confidential capability.
type LocalOracle struct {
	addr   ir.Address
	sealer *sealer
	book   Book
	ids    IDGenerator
}

// NewLocalOracle returns an oracle that submits callbacks as addr.
func NewLocalOracle(addr ir.Address, key []byte, book Book, ids IDGenerator) (*LocalOracle, error) {
	if addr.IsZero() {
		return nil, fmt.Errorf("oracle address is the null address")
	}
	s, err := newSealer(key)
	if err != nil {
		return nil, err
	}
	return &LocalOracle{addr: addr, sealer: s, book: book, ids: ids}, nil
}

// Address returns the address callbacks are sent from.
func (o *LocalOracle) Address() ir.Address { return o.addr }

// Encrypt seals amount and returns its handle.
func (o *LocalOracle) Encrypt(ctx context.Context, amount ir.Amount) (ir.Handle, error) {
	sealed, err := o.sealer.seal(amount)
	if err != nil {
		return nil, err
	}
	h, err := DeriveHandle(sealed)
	if err != nil {
		return nil, err
	}
	if err := o.book.PutCiphertext(ctx, h, sealed); err != nil {
		return nil, fmt.Errorf("store ciphertext: %w", err)
	}
	return h, nil
}

// Decrypt reveals the amount behind h.
func (o *LocalOracle) Decrypt(ctx context.Context, h ir.Handle) (ir.Amount, error) {
	sealed, err := o.book.Ciphertext(ctx, h)
	if err != nil {
		return 0, fmt.Errorf("load ciphertext %s: %w", h, err)
	}
	return o.sealer.open(sealed)
}

// RequestComparison records a request and returns its id. The answer is
// delivered later by Resolve.
func (o *LocalOracle) RequestComparison(ctx context.Context, price ir.Handle, payment ir.Amount, policy settlement.Policy) (ir.RequestID, error) {
	req := Request{
		ID:      ir.RequestID(o.ids.Generate()),
		Price:   price,
		Payment: payment,
		Policy:  policy,
		Status:  StatusOpen,
	}
	if err := o.book.PutRequest(ctx, req); err != nil {
		return "", fmt.Errorf("store request: %w", err)
	}
	slog.Debug("comparison requested", "request_id", req.ID, "policy", policy)
	return req.ID, nil
}

// CancelComparison closes an open request without answering it. The
// engine calls it when the buy that opened the request failed to commit.
func (o *LocalOracle) CancelComparison(ctx context.Context, id ir.RequestID) error {
	req, err := o.book.Request(ctx, id)
	if err != nil {
		return fmt.Errorf("load request %s: %w", id, err)
	}
	if req.Status != StatusOpen {
		return nil
	}
	req.Status = StatusCancelled
	if err := o.book.PutRequest(ctx, req); err != nil {
		return fmt.Errorf("cancel request %s: %w", id, err)
	}
	slog.Warn("comparison cancelled", "request_id", id)
	return nil
}

// Evaluate answers a request. A price the oracle cannot open never
// satisfies a payment.
func (o *LocalOracle) Evaluate(ctx context.Context, id ir.RequestID) (bool, error) {
	req, err := o.book.Request(ctx, id)
	if err != nil {
		return false, fmt.Errorf("load request %s: %w", id, err)
	}
	price, err := o.Decrypt(ctx, req.Price)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			slog.Warn("comparison against unknown ciphertext", "request_id", id, "handle", req.Price.String())
			return false, nil
		}
		return false, err
	}
	return req.Policy.Satisfied(req.Payment, price), nil
}

// Resolve evaluates the request and submits the callback. The request is
// closed whatever the receipt status; a rejected callback cannot succeed
// on retry.
func (o *LocalOracle) Resolve(ctx context.Context, id ir.RequestID, sub Submitter) (ir.Receipt, error) {
	req, err := o.book.Request(ctx, id)
	if err != nil {
		return ir.Receipt{}, fmt.Errorf("load request %s: %w", id, err)
	}
	if req.Status != StatusOpen {
		return ir.Receipt{}, fmt.Errorf("request %s already %s", id, req.Status)
	}
	satisfied, err := o.Evaluate(ctx, id)
	if err != nil {
		return ir.Receipt{}, err
	}
	return o.answer(ctx, req, satisfied, sub)
}

// Answer submits a fixed result for a request, bypassing evaluation.
// Used to script oracle behaviour in scenarios.
func (o *LocalOracle) Answer(ctx context.Context, id ir.RequestID, satisfied bool, sub Submitter) (ir.Receipt, error) {
	req, err := o.book.Request(ctx, id)
	if err != nil {
		return ir.Receipt{}, fmt.Errorf("load request %s: %w", id, err)
	}
	return o.answer(ctx, req, satisfied, sub)
}

func (o *LocalOracle) answer(ctx context.Context, req Request, satisfied bool, sub Submitter) (ir.Receipt, error) {
	rec, err := sub.Submit(ctx, o.addr, MethodCallback, ir.IRObject{
		"request_id": ir.IRString(req.ID),
		"satisfied":  ir.IRBool(satisfied),
	}, 0)
	if err != nil {
		return ir.Receipt{}, fmt.Errorf("submit callback for %s: %w", req.ID, err)
	}
	req.Status = StatusResolved
	req.Satisfied = satisfied
	req.Outcome = rec.Status
	if err := o.book.PutRequest(ctx, req); err != nil {
		return rec, fmt.Errorf("close request %s: %w", req.ID, err)
	}
	slog.Info("comparison resolved", "request_id", req.ID, "satisfied", satisfied, "status", rec.Status)
	return rec, nil
}

// ResolveAll answers every open request in the order they were made.
func (o *LocalOracle) ResolveAll(ctx context.Context, sub Submitter) ([]ir.Receipt, error) {
	open, err := o.book.OpenRequests(ctx)
	if err != nil {
		return nil, fmt.Errorf("list open requests: %w", err)
	}
	out := make([]ir.Receipt, 0, len(open))
	for _, req := range open {
		rec, err := o.Resolve(ctx, req.ID, sub)
		if err != nil {
			return out, err
		}
		out = append(out, rec)
	}
	return out, nil
}
