package confidential

import (
	"context"
	"errors"

	"github.com/roach88/pnftm/internal/ir"
	"github.com/roach88/pnftm/internal/settlement"
)

// ErrNotFound is returned by a Book for unknown handles or requests.
var ErrNotFound = errors.New("not found")

// Decryptor reveals a sealed price. Callers gate access through the
// marketplace's authorizeDecrypt first.
type Decryptor interface {
	Decrypt(ctx context.Context, h ir.Handle) (ir.Amount, error)
}

// Request status values.
const (
	StatusOpen      = "open"
	StatusResolved  = "resolved"
	StatusCancelled = "cancelled"
)

// Request is a comparison the oracle has been asked to answer.
type Request struct {
	ID        ir.RequestID
	Price     ir.Handle
	Payment   ir.Amount
	Policy    settlement.Policy
	Status    string
	Satisfied bool
	// Outcome is the receipt status of the callback, empty while open.
	Outcome string
}

// Book persists the oracle's ciphertexts and requests.
type Book interface {
	PutCiphertext(ctx context.Context, h ir.Handle, sealed []byte) error
	Ciphertext(ctx context.Context, h ir.Handle) ([]byte, error)
	PutRequest(ctx context.Context, r Request) error
	Request(ctx context.Context, id ir.RequestID) (Request, error)
	OpenRequests(ctx context.Context) ([]Request, error)
}

// Submitter executes a transaction and returns its receipt.
type Submitter interface {
	Submit(ctx context.Context, from ir.Address, method string, args ir.IRObject, value ir.Amount) (ir.Receipt, error)
}

// IDGenerator issues request ids.
type IDGenerator interface {
	Generate() string
}
