package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/pnftm/internal/ir"
	"github.com/roach88/pnftm/internal/listing"
	"github.com/roach88/pnftm/internal/market"
	"github.com/roach88/pnftm/internal/registry"
	"github.com/roach88/pnftm/internal/settlement"
	"github.com/roach88/pnftm/internal/vault"
)

// Meta keys.
const (
	metaOwner        = "owner"
	metaFeeCollector = "fee_collector"
	metaOracle       = "oracle"
	metaFeeBps       = "fee_bps"
	metaPolicy       = "policy"
	metaWindow       = "settlement_window"
	metaPaused       = "paused"
	metaTotalVolume  = "total_volume"
	metaTotalSales   = "total_sales"
	metaOracleKey    = "oracle_key"

	genesisPrefix = "genesis."
)

// Entry is one logged transaction with its receipt.
type Entry struct {
	Tx      ir.Tx
	Receipt ir.Receipt
}

// LogFilter narrows ReadLog. Zero values match everything.
type LogFilter struct {
	FromSeq int64
	ToSeq   int64
	Method  string
	Limit   int
}

// Initialized reports whether Init has run against this database.
func (s *Store) Initialized(ctx context.Context) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM meta WHERE key = ?`, metaOwner).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check initialized: %w", err)
	}
	return n > 0, nil
}

// LastSeq returns the highest logged sequence number, zero for an empty log.
func (s *Store) LastSeq(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(seq) FROM txs`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("last seq: %w", err)
	}
	return seq.Int64, nil
}

// LoadState reads the full marketplace state.
func (s *Store) LoadState(ctx context.Context) (market.State, error) {
	var st market.State
	meta, err := s.readMeta(ctx, "")
	if err != nil {
		return st, err
	}
	st.Meta = meta

	toks, err := s.readTokens(ctx)
	if err != nil {
		return st, err
	}
	byID := make(map[ir.TokenID]*market.TokenState, len(toks))
	st.Tokens = make([]market.TokenState, len(toks))
	for i, t := range toks {
		st.Tokens[i] = market.TokenState{Token: t}
		byID[t.ID] = &st.Tokens[i]
	}

	if err := s.readListings(ctx, byID); err != nil {
		return st, err
	}
	if err := s.readVault(ctx, byID); err != nil {
		return st, err
	}
	if err := s.readPending(ctx, byID); err != nil {
		return st, err
	}
	credits, err := s.readCredits(ctx)
	if err != nil {
		return st, err
	}
	st.Credits = credits
	return st, nil
}

// Genesis returns the meta the marketplace was initialized with.
func (s *Store) Genesis(ctx context.Context) (market.Meta, error) {
	return s.readMeta(ctx, genesisPrefix)
}

func (s *Store) readMeta(ctx context.Context, prefix string) (market.Meta, error) {
	var m market.Meta
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM meta`)
	if err != nil {
		return m, fmt.Errorf("query meta: %w", err)
	}
	defer rows.Close()

	kv := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return m, fmt.Errorf("scan meta: %w", err)
		}
		if rest, ok := strings.CutPrefix(k, prefix); ok && (prefix != "" || !strings.HasPrefix(k, genesisPrefix)) {
			kv[rest] = v
		}
	}
	if err := rows.Err(); err != nil {
		return m, fmt.Errorf("iterate meta: %w", err)
	}
	if _, ok := kv[metaOwner]; !ok {
		return m, fmt.Errorf("load state: marketplace not initialized")
	}

	m.Owner = ir.Address(kv[metaOwner])
	m.FeeCollector = ir.Address(kv[metaFeeCollector])
	m.Oracle = ir.Address(kv[metaOracle])
	m.Policy = settlement.Policy(kv[metaPolicy])
	if m.FeeBps, err = strconv.ParseUint(kv[metaFeeBps], 10, 64); err != nil {
		return m, fmt.Errorf("meta %s: %w", metaFeeBps, err)
	}
	if m.Window, err = strconv.ParseInt(kv[metaWindow], 10, 64); err != nil {
		return m, fmt.Errorf("meta %s: %w", metaWindow, err)
	}
	if m.Paused, err = strconv.ParseBool(kv[metaPaused]); err != nil {
		return m, fmt.Errorf("meta %s: %w", metaPaused, err)
	}
	if m.TotalVolume, err = parseAmount(kv[metaTotalVolume]); err != nil {
		return m, fmt.Errorf("meta %s: %w", metaTotalVolume, err)
	}
	if m.TotalSales, err = strconv.ParseUint(kv[metaTotalSales], 10, 64); err != nil {
		return m, fmt.Errorf("meta %s: %w", metaTotalSales, err)
	}
	return m, nil
}

func (s *Store) readTokens(ctx context.Context) ([]registry.Token, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, owner, name, minted_at FROM tokens ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("query tokens: %w", err)
	}
	defer rows.Close()

	var toks []registry.Token
	for rows.Next() {
		var (
			t     registry.Token
			id    int64
			owner string
		)
		if err := rows.Scan(&id, &owner, &t.Name, &t.MintedAt); err != nil {
			return nil, fmt.Errorf("scan token: %w", err)
		}
		t.ID = ir.TokenID(id)
		t.Owner = ir.Address(owner)
		toks = append(toks, t)
	}
	return toks, rows.Err()
}

func (s *Store) readListings(ctx context.Context, byID map[ir.TokenID]*market.TokenState) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT token_id, seq, seller, price, active, created_at, closed_at
		FROM listings
		ORDER BY token_id ASC, seq ASC
	`)
	if err != nil {
		return fmt.Errorf("query listings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			l      listing.Listing
			id     int64
			seller string
			price  []byte
			active int
		)
		if err := rows.Scan(&id, &l.Seq, &seller, &price, &active, &l.CreatedAt, &l.ClosedAt); err != nil {
			return fmt.Errorf("scan listing: %w", err)
		}
		l.TokenID = ir.TokenID(id)
		l.Seller = ir.Address(seller)
		l.Price = ir.Handle(price)
		l.Active = active != 0
		ts, ok := byID[l.TokenID]
		if !ok {
			return fmt.Errorf("listing for unknown token %d", id)
		}
		ts.Listings = append(ts.Listings, l)
	}
	return rows.Err()
}

func (s *Store) readVault(ctx context.Context, byID map[ir.TokenID]*market.TokenState) error {
	rows, err := s.db.QueryContext(ctx, `SELECT token_id, handle FROM prices ORDER BY token_id ASC`)
	if err != nil {
		return fmt.Errorf("query prices: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id     int64
			handle []byte
		)
		if err := rows.Scan(&id, &handle); err != nil {
			return fmt.Errorf("scan price: %w", err)
		}
		ts, ok := byID[ir.TokenID(id)]
		if !ok {
			return fmt.Errorf("price for unknown token %d", id)
		}
		ts.Vault = &vault.Entry{TokenID: ir.TokenID(id), Price: ir.Handle(handle), Grantees: []ir.Address{}}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate prices: %w", err)
	}

	grows, err := s.db.QueryContext(ctx, `SELECT token_id, grantee FROM grants ORDER BY token_id ASC, grantee ASC`)
	if err != nil {
		return fmt.Errorf("query grants: %w", err)
	}
	defer grows.Close()

	for grows.Next() {
		var (
			id      int64
			grantee string
		)
		if err := grows.Scan(&id, &grantee); err != nil {
			return fmt.Errorf("scan grant: %w", err)
		}
		ts, ok := byID[ir.TokenID(id)]
		if !ok || ts.Vault == nil {
			return fmt.Errorf("grant without price for token %d", id)
		}
		ts.Vault.Grantees = append(ts.Vault.Grantees, ir.Address(grantee))
	}
	return grows.Err()
}

func (s *Store) readPending(ctx context.Context, byID map[ir.TokenID]*market.TokenState) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT token_id, buyer, seller, escrowed, request_id, state, opened_at, expires_at, buyer_grant
		FROM pending
		ORDER BY token_id ASC
	`)
	if err != nil {
		return fmt.Errorf("query pending: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			p                     settlement.Pending
			id                    int64
			buyer, seller, escrow string
			reqID, state          string
			grant                 int
		)
		if err := rows.Scan(&id, &buyer, &seller, &escrow, &reqID, &state, &p.OpenedAt, &p.ExpiresAt, &grant); err != nil {
			return fmt.Errorf("scan pending: %w", err)
		}
		amt, err := parseAmount(escrow)
		if err != nil {
			return fmt.Errorf("pending %d: %w", id, err)
		}
		p.TokenID = ir.TokenID(id)
		p.Buyer = ir.Address(buyer)
		p.Seller = ir.Address(seller)
		p.Escrowed = amt
		p.RequestID = ir.RequestID(reqID)
		p.State = settlement.State(state)
		p.BuyerGrant = grant != 0
		ts, ok := byID[p.TokenID]
		if !ok {
			return fmt.Errorf("pending for unknown token %d", id)
		}
		ts.Pending = &p
	}
	return rows.Err()
}

func (s *Store) readCredits(ctx context.Context) (map[ir.Address]ir.Amount, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT account, amount FROM credits`)
	if err != nil {
		return nil, fmt.Errorf("query credits: %w", err)
	}
	defer rows.Close()

	credits := make(map[ir.Address]ir.Amount)
	for rows.Next() {
		var account, amount string
		if err := rows.Scan(&account, &amount); err != nil {
			return nil, fmt.Errorf("scan credit: %w", err)
		}
		amt, err := parseAmount(amount)
		if err != nil {
			return nil, fmt.Errorf("credit %s: %w", account, err)
		}
		credits[ir.Address(account)] = amt
	}
	return credits, rows.Err()
}

// ReadLog returns logged transactions with their receipts in seq order.
func (s *Store) ReadLog(ctx context.Context, f LogFilter) ([]Entry, error) {
	query := `
		SELECT t.id, t.seq, t.sender, t.method, t.args, t.value,
		       r.id, r.status, r.error, r.result, r.events
		FROM txs t
		JOIN receipts r ON r.tx_id = t.id
		WHERE t.seq >= ?
	`
	args := []any{f.FromSeq}
	if f.ToSeq > 0 {
		query += " AND t.seq <= ?"
		args = append(args, f.ToSeq)
	}
	if f.Method != "" {
		query += " AND t.method = ?"
		args = append(args, f.Method)
	}
	query += " ORDER BY t.seq ASC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query log: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e                          Entry
			sender, txArgs, value      string
			result, events, statusText string
		)
		if err := rows.Scan(
			&e.Tx.ID, &e.Tx.Seq, &sender, &e.Tx.Method, &txArgs, &value,
			&e.Receipt.ID, &statusText, &e.Receipt.Error, &result, &events,
		); err != nil {
			return nil, fmt.Errorf("scan log: %w", err)
		}
		e.Tx.From = ir.Address(sender)
		if e.Tx.Args, err = unmarshalObject(txArgs); err != nil {
			return nil, fmt.Errorf("tx %s args: %w", e.Tx.ID, err)
		}
		if e.Tx.Value, err = parseAmount(value); err != nil {
			return nil, fmt.Errorf("tx %s value: %w", e.Tx.ID, err)
		}
		e.Receipt.TxID = e.Tx.ID
		e.Receipt.Seq = e.Tx.Seq
		e.Receipt.Status = statusText
		if e.Receipt.Result, err = unmarshalObject(result); err != nil {
			return nil, fmt.Errorf("receipt %s result: %w", e.Receipt.ID, err)
		}
		if e.Receipt.Events, err = unmarshalEvents(events); err != nil {
			return nil, fmt.Errorf("receipt %s: %w", e.Receipt.ID, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate log: %w", err)
	}
	return entries, nil
}

// ReadEvents returns events with the given name in seq order.
func (s *Store) ReadEvents(ctx context.Context, name string) ([]ir.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, args FROM events
		WHERE name = ?
		ORDER BY seq ASC, idx ASC
	`, name)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []ir.Event
	for rows.Next() {
		var n, args string
		if err := rows.Scan(&n, &args); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		obj, err := unmarshalObject(args)
		if err != nil {
			return nil, fmt.Errorf("event %s: %w", n, err)
		}
		out = append(out, ir.Event{Name: n, Args: obj})
	}
	return out, rows.Err()
}

// ReadTx returns one logged transaction by id.
func (s *Store) ReadTx(ctx context.Context, id string) (Entry, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx, `SELECT seq FROM txs WHERE id = ?`, id).Scan(&seq)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, fmt.Errorf("tx %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Entry{}, fmt.Errorf("read tx: %w", err)
	}
	entries, err := s.ReadLog(ctx, LogFilter{FromSeq: seq, ToSeq: seq})
	if err != nil {
		return Entry{}, err
	}
	if len(entries) != 1 {
		return Entry{}, fmt.Errorf("tx %s: receipt missing", id)
	}
	return entries[0], nil
}
