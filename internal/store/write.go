package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"github.com/roach88/pnftm/internal/ir"
	"github.com/roach88/pnftm/internal/market"
)

// Init writes the genesis state of a new marketplace. It fails if the
// database already holds one. The genesis meta is kept apart from the live
// meta so the log can be replayed from it.
func (s *Store) Init(ctx context.Context, st market.State) error {
	ok, err := s.Initialized(ctx)
	if err != nil {
		return err
	}
	if ok {
		return fmt.Errorf("init: marketplace already initialized")
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := writeMeta(ctx, tx, genesisPrefix, st.Meta); err != nil {
			return fmt.Errorf("init: %w", err)
		}
		if err := writeState(ctx, tx, st); err != nil {
			return fmt.Errorf("init: %w", err)
		}
		return nil
	})
}

// Commit appends a transaction and its receipt to the log and applies the
// changed rows, all in one SQL transaction. changes is nil for rejected
// transactions.
func (s *Store) Commit(ctx context.Context, t ir.Tx, rec ir.Receipt, changes *market.State) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := writeTx(ctx, tx, t); err != nil {
			return err
		}
		if err := writeReceipt(ctx, tx, rec); err != nil {
			return err
		}
		if changes != nil {
			if err := writeState(ctx, tx, *changes); err != nil {
				return fmt.Errorf("commit %s: %w", t.ID, err)
			}
		}
		return nil
	})
}

func writeTx(ctx context.Context, tx *sql.Tx, t ir.Tx) error {
	argsJSON, err := marshalObject(t.Args)
	if err != nil {
		return fmt.Errorf("write tx: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO txs (id, seq, sender, method, args, value, engine_version, schema_version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		t.ID,
		t.Seq,
		string(t.From),
		t.Method,
		argsJSON,
		formatAmount(t.Value),
		ir.EngineVersion,
		ir.SchemaVersion,
	)
	if err != nil {
		return fmt.Errorf("write tx: %w", err)
	}
	return nil
}

func writeReceipt(ctx context.Context, tx *sql.Tx, rec ir.Receipt) error {
	resultJSON, err := marshalObject(rec.Result)
	if err != nil {
		return fmt.Errorf("write receipt: %w", err)
	}
	eventsJSON, err := marshalEvents(rec.Events)
	if err != nil {
		return fmt.Errorf("write receipt: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO receipts (id, tx_id, seq, status, error, result, events)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.TxID, rec.Seq, rec.Status, rec.Error, resultJSON, eventsJSON)
	if err != nil {
		return fmt.Errorf("write receipt: %w", err)
	}

	for i, ev := range rec.Events {
		argsJSON, err := marshalObject(ev.Args)
		if err != nil {
			return fmt.Errorf("write event %s: %w", ev.Name, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO events (receipt_id, idx, seq, name, args)
			VALUES (?, ?, ?, ?, ?)
		`, rec.ID, i, rec.Seq, ev.Name, argsJSON); err != nil {
			return fmt.Errorf("write event %s: %w", ev.Name, err)
		}
	}
	return nil
}

func writeState(ctx context.Context, tx *sql.Tx, st market.State) error {
	if err := writeMeta(ctx, tx, "", st.Meta); err != nil {
		return err
	}
	for _, ts := range st.Tokens {
		if err := writeToken(ctx, tx, ts); err != nil {
			return fmt.Errorf("token %d: %w", ts.Token.ID, err)
		}
	}
	for account, amount := range st.Credits {
		var err error
		if amount == 0 {
			_, err = tx.ExecContext(ctx, `DELETE FROM credits WHERE account = ?`, string(account))
		} else {
			_, err = tx.ExecContext(ctx, `
				INSERT INTO credits (account, amount) VALUES (?, ?)
				ON CONFLICT(account) DO UPDATE SET amount = excluded.amount
			`, string(account), formatAmount(amount))
		}
		if err != nil {
			return fmt.Errorf("credits %s: %w", account, err)
		}
	}
	return nil
}

func writeMeta(ctx context.Context, tx *sql.Tx, prefix string, m market.Meta) error {
	rows := map[string]string{
		metaOwner:        string(m.Owner),
		metaFeeCollector: string(m.FeeCollector),
		metaOracle:       string(m.Oracle),
		metaFeeBps:       strconv.FormatUint(m.FeeBps, 10),
		metaPolicy:       string(m.Policy),
		metaWindow:       strconv.FormatInt(m.Window, 10),
		metaPaused:       strconv.FormatBool(m.Paused),
		metaTotalVolume:  formatAmount(m.TotalVolume),
		metaTotalSales:   strconv.FormatUint(m.TotalSales, 10),
	}
	for k, v := range rows {
		if err := putMeta(ctx, tx, prefix+k, v); err != nil {
			return err
		}
	}
	return nil
}

func putMeta(ctx context.Context, tx *sql.Tx, key, value string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("meta %s: %w", key, err)
	}
	return nil
}

// writeToken replaces every row belonging to one token.
func writeToken(ctx context.Context, tx *sql.Tx, ts market.TokenState) error {
	t := ts.Token
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO tokens (id, owner, name, minted_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET owner = excluded.owner
	`, int64(t.ID), string(t.Owner), t.Name, t.MintedAt); err != nil {
		return fmt.Errorf("upsert token: %w", err)
	}

	for _, q := range []string{
		`DELETE FROM listings WHERE token_id = ?`,
		`DELETE FROM grants WHERE token_id = ?`,
		`DELETE FROM prices WHERE token_id = ?`,
		`DELETE FROM pending WHERE token_id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, q, int64(t.ID)); err != nil {
			return fmt.Errorf("clear token rows: %w", err)
		}
	}

	for _, l := range ts.Listings {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO listings (token_id, seq, seller, price, active, created_at, closed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, int64(l.TokenID), l.Seq, string(l.Seller), blob(l.Price), boolInt(l.Active), l.CreatedAt, l.ClosedAt); err != nil {
			return fmt.Errorf("insert listing %d: %w", l.Seq, err)
		}
	}

	if v := ts.Vault; v != nil {
		if _, err := tx.ExecContext(ctx, `INSERT INTO prices (token_id, handle) VALUES (?, ?)`,
			int64(t.ID), []byte(v.Price)); err != nil {
			return fmt.Errorf("insert price: %w", err)
		}
		for _, g := range v.Grantees {
			if _, err := tx.ExecContext(ctx, `INSERT INTO grants (token_id, grantee) VALUES (?, ?)`,
				int64(t.ID), string(g)); err != nil {
				return fmt.Errorf("insert grant: %w", err)
			}
		}
	}

	if p := ts.Pending; p != nil {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO pending (token_id, buyer, seller, escrowed, request_id, state, opened_at, expires_at, buyer_grant)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			int64(p.TokenID),
			string(p.Buyer),
			string(p.Seller),
			formatAmount(p.Escrowed),
			string(p.RequestID),
			string(p.State),
			p.OpenedAt,
			p.ExpiresAt,
			boolInt(p.BuyerGrant),
		); err != nil {
			return fmt.Errorf("insert pending: %w", err)
		}
	}
	return nil
}
