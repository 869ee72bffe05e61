package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainTx      = "pnftm/tx/v1"
	DomainReceipt = "pnftm/receipt/v1"
	DomainState   = "pnftm/state/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// TxID computes the content-addressed id of a transaction.
// The id is stable across replays given the same inputs and block.
func TxID(from Address, method string, args IRObject, value Amount, seq int64) (string, error) {
	if args == nil {
		args = IRObject{}
	}
	obj := IRObject{
		"from":   IRString(from),
		"method": IRString(method),
		"args":   args,
		"value":  AmountValue(value),
		"seq":    IRInt(seq),
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("TxID: %w", err)
	}
	return hashWithDomain(DomainTx, canonical), nil
}

// ReceiptID computes the content-addressed id of a receipt.
// Events are part of the identity so a replay that emits different
// notifications produces a different id.
func ReceiptID(txID, status string, result IRObject, events []Event, seq int64) (string, error) {
	if result == nil {
		result = IRObject{}
	}
	evs := make(IRArray, len(events))
	for i, ev := range events {
		args := ev.Args
		if args == nil {
			args = IRObject{}
		}
		evs[i] = IRObject{"name": IRString(ev.Name), "args": args}
	}
	obj := IRObject{
		"tx_id":  IRString(txID),
		"status": IRString(status),
		"result": result,
		"events": evs,
		"seq":    IRInt(seq),
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("ReceiptID: %w", err)
	}
	return hashWithDomain(DomainReceipt, canonical), nil
}

// StateHash fingerprints a canonical state dump. Replay compares the
// hash of the rebuilt state against the persisted one.
func StateHash(state IRObject) (string, error) {
	canonical, err := MarshalCanonical(state)
	if err != nil {
		return "", fmt.Errorf("StateHash: %w", err)
	}
	return hashWithDomain(DomainState, canonical), nil
}

// MustTxID is like TxID but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustTxID(from Address, method string, args IRObject, value Amount, seq int64) string {
	id, err := TxID(from, method, args, value, seq)
	if err != nil {
		panic(err)
	}
	return id
}
