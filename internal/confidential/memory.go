package confidential

import (
	"context"
	"slices"
	"sync"

	"github.com/roach88/pnftm/internal/ir"
)

// MemoryBook is an in-process Book.
type MemoryBook struct {
	mu          sync.Mutex
	ciphertexts map[string][]byte
	requests    map[ir.RequestID]Request
	order       []ir.RequestID
}

// NewMemoryBook returns an empty book.
func NewMemoryBook() *MemoryBook {
	return &MemoryBook{
		ciphertexts: make(map[string][]byte),
		requests:    make(map[ir.RequestID]Request),
	}
}

func (b *MemoryBook) PutCiphertext(_ context.Context, h ir.Handle, sealed []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ciphertexts[h.String()] = slices.Clone(sealed)
	return nil
}

func (b *MemoryBook) Ciphertext(_ context.Context, h ir.Handle) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sealed, ok := b.ciphertexts[h.String()]
	if !ok {
		return nil, ErrNotFound
	}
	return slices.Clone(sealed), nil
}

func (b *MemoryBook) PutRequest(_ context.Context, r Request) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.requests[r.ID]; !ok {
		b.order = append(b.order, r.ID)
	}
	b.requests[r.ID] = r
	return nil
}

func (b *MemoryBook) Request(_ context.Context, id ir.RequestID) (Request, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	r, ok := b.requests[id]
	if !ok {
		return Request{}, ErrNotFound
	}
	return r, nil
}

func (b *MemoryBook) OpenRequests(_ context.Context) ([]Request, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []Request
	for _, id := range b.order {
		if r := b.requests[id]; r.Status == StatusOpen {
			out = append(out, r)
		}
	}
	return out, nil
}
