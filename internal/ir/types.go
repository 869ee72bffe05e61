package ir

import (
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Address identifies an account: "0x" followed by 40 lowercase hex digits.
type Address string

// ZeroAddress is the null address. It can never own tokens or receive fees.
const ZeroAddress Address = "0x0000000000000000000000000000000000000000"

// ParseAddress validates and lower-cases a hex address.
func ParseAddress(s string) (Address, error) {
	s = strings.TrimSpace(s)
	if len(s) != 42 || !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return "", fmt.Errorf("address %q: want 0x followed by 40 hex digits", s)
	}
	if _, err := hex.DecodeString(s[2:]); err != nil {
		return "", fmt.Errorf("address %q: %w", s, err)
	}
	return Address("0x" + strings.ToLower(s[2:])), nil
}

// MustAddress is like ParseAddress but panics on error.
// Use only in tests or for compile-time constants.
func MustAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

// IsZero reports whether a is the null address or unset.
func (a Address) IsZero() bool {
	return a == "" || a == ZeroAddress
}

// TokenID identifies a minted token. Valid ids start at 1.
type TokenID uint64

// Amount is a monetary value in the ledger's base unit.
type Amount uint64

// Handle is an opaque reference to an encrypted value.
// The bytes reveal nothing about the plaintext.
type Handle []byte

// String renders the handle as 0x-prefixed hex.
func (h Handle) String() string {
	return "0x" + hex.EncodeToString(h)
}

// ParseHandle decodes a 0x-prefixed hex handle.
func ParseHandle(s string) (Handle, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	if s == "" {
		return nil, fmt.Errorf("empty handle")
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("handle: %w", err)
	}
	return Handle(b), nil
}

// RequestID identifies a pending confidential comparison.
type RequestID string

// Tx is a transaction submitted to the marketplace.
//
// Seq is the block number assigned by the engine clock. Every executed
// transaction occupies exactly one block.
type Tx struct {
	ID     string   `json:"id"`     // Content-addressed hash
	Seq    int64    `json:"seq"`    // Block number (logical clock)
	From   Address  `json:"from"`   // Caller
	Method string   `json:"method"` // External method name, e.g. "buy"
	Args   IRObject `json:"args"`
	Value  Amount   `json:"value"` // Attached payment, only meaningful for payable methods
}

// Status values for receipts. Failed receipts carry the error Code instead.
const StatusOK = "ok"

// Receipt records the outcome of one transaction.
type Receipt struct {
	ID     string   `json:"id"`
	TxID   string   `json:"tx_id"`
	Seq    int64    `json:"seq"`
	Status string   `json:"status"` // StatusOK or an error Code
	Error  string   `json:"error,omitempty"`
	Result IRObject `json:"result"`
	Events []Event  `json:"events"`
}

// OK reports whether the transaction applied.
func (r Receipt) OK() bool {
	return r.Status == StatusOK
}

// Event is a notification emitted by a successful transaction.
type Event struct {
	Name string   `json:"name"`
	Args IRObject `json:"args"`
}

// Event names.
const (
	EventMinted               = "Minted"
	EventTransfer             = "Transfer"
	EventListed               = "Listed"
	EventCancelled            = "Cancelled"
	EventPurchaseRequested    = "PurchaseRequested"
	EventSold                 = "Sold"
	EventPurchaseRefunded     = "PurchaseRefunded"
	EventFeeUpdated           = "FeeUpdated"
	EventFeeCollectorUpdated  = "FeeCollectorUpdated"
	EventOracleUpdated        = "OracleUpdated"
	EventPaused               = "Paused"
	EventUnpaused             = "Unpaused"
	EventOwnershipTransferred = "OwnershipTransferred"
	EventWithdrawn            = "Withdrawn"
)

// AmountValue encodes an amount for IR payloads. Amounts above MaxInt64
// fall back to a decimal string since IRInt is signed.
func AmountValue(a Amount) IRValue {
	if a > math.MaxInt64 {
		return IRString(strconv.FormatUint(uint64(a), 10))
	}
	return IRInt(int64(a))
}

// TokenValue encodes a token id for IR payloads.
func TokenValue(id TokenID) IRValue {
	return AmountValue(Amount(id))
}
