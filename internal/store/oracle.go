package store

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/roach88/pnftm/internal/confidential"
	"github.com/roach88/pnftm/internal/ir"
	"github.com/roach88/pnftm/internal/settlement"
)

// ErrNotFound is returned for unknown rows. It matches the oracle book's
// sentinel so callers need only one.
var ErrNotFound = confidential.ErrNotFound

var _ confidential.Book = (*OracleBook)(nil)

// OracleBook persists the local oracle's ciphertexts and requests next to
// the marketplace state.
type OracleBook struct {
	db *sql.DB
}

// OracleBook returns the store-backed oracle book.
func (s *Store) OracleBook() *OracleBook {
	return &OracleBook{db: s.db}
}

func (b *OracleBook) PutCiphertext(ctx context.Context, h ir.Handle, sealed []byte) error {
	_, err := b.db.ExecContext(ctx, `
		INSERT INTO oracle_ciphertexts (handle, sealed) VALUES (?, ?)
		ON CONFLICT(handle) DO UPDATE SET sealed = excluded.sealed
	`, []byte(h), sealed)
	if err != nil {
		return fmt.Errorf("put ciphertext: %w", err)
	}
	return nil
}

func (b *OracleBook) Ciphertext(ctx context.Context, h ir.Handle) ([]byte, error) {
	var sealed []byte
	err := b.db.QueryRowContext(ctx, `SELECT sealed FROM oracle_ciphertexts WHERE handle = ?`, []byte(h)).Scan(&sealed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get ciphertext: %w", err)
	}
	return sealed, nil
}

func (b *OracleBook) PutRequest(ctx context.Context, r confidential.Request) error {
	_, err := b.db.ExecContext(ctx, `
		INSERT INTO oracle_requests (id, handle, payment, policy, status, satisfied, outcome)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			satisfied = excluded.satisfied,
			outcome = excluded.outcome
	`,
		string(r.ID),
		blob(r.Price),
		formatAmount(r.Payment),
		string(r.Policy),
		r.Status,
		boolInt(r.Satisfied),
		r.Outcome,
	)
	if err != nil {
		return fmt.Errorf("put request %s: %w", r.ID, err)
	}
	return nil
}

func (b *OracleBook) Request(ctx context.Context, id ir.RequestID) (confidential.Request, error) {
	rows, err := b.db.QueryContext(ctx, `
		SELECT id, handle, payment, policy, status, satisfied, outcome
		FROM oracle_requests WHERE id = ?
	`, string(id))
	if err != nil {
		return confidential.Request{}, fmt.Errorf("get request: %w", err)
	}
	reqs, err := scanRequests(rows)
	if err != nil {
		return confidential.Request{}, err
	}
	if len(reqs) == 0 {
		return confidential.Request{}, ErrNotFound
	}
	return reqs[0], nil
}

// OpenRequests returns unanswered requests in the order they were made.
func (b *OracleBook) OpenRequests(ctx context.Context) ([]confidential.Request, error) {
	rows, err := b.db.QueryContext(ctx, `
		SELECT id, handle, payment, policy, status, satisfied, outcome
		FROM oracle_requests WHERE status = ?
		ORDER BY rowid ASC
	`, confidential.StatusOpen)
	if err != nil {
		return nil, fmt.Errorf("query open requests: %w", err)
	}
	return scanRequests(rows)
}

func scanRequests(rows *sql.Rows) ([]confidential.Request, error) {
	defer rows.Close()

	var out []confidential.Request
	for rows.Next() {
		var (
			r                   confidential.Request
			id, payment, policy string
			handle              []byte
			satisfied           int
		)
		if err := rows.Scan(&id, &handle, &payment, &policy, &r.Status, &satisfied, &r.Outcome); err != nil {
			return nil, fmt.Errorf("scan request: %w", err)
		}
		amt, err := parseAmount(payment)
		if err != nil {
			return nil, fmt.Errorf("request %s: %w", id, err)
		}
		r.ID = ir.RequestID(id)
		r.Price = ir.Handle(handle)
		r.Payment = amt
		r.Policy = settlement.Policy(policy)
		r.Satisfied = satisfied != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

// OracleKey returns the persisted sealing key.
func (s *Store) OracleKey(ctx context.Context) ([]byte, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, metaOracleKey).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get oracle key: %w", err)
	}
	key, err := hex.DecodeString(v)
	if err != nil {
		return nil, fmt.Errorf("decode oracle key: %w", err)
	}
	return key, nil
}

// PutOracleKey stores the sealing key.
func (s *Store) PutOracleKey(ctx context.Context, key []byte) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return putMeta(ctx, tx, metaOracleKey, hex.EncodeToString(key))
	})
}
