// Package store provides SQLite-backed durable storage for the marketplace.
//
// The store holds three things:
//   - Current state: tokens, listings, prices, grants, pending settlements,
//     payout credits and marketplace meta (admin, fee, counters)
//   - The append-only transaction log: every tx and its receipt, applied or
//     rejected, plus an events index
//   - The local oracle's book: sealed prices and comparison requests
//
// # Atomicity
//
// Commit writes a transaction, its receipt and the rows it touched in one
// SQL transaction. Either the whole block is durable or none of it is.
//
// # Ordering
//
// The log is ordered by seq (the engine's block clock), never by wall time.
// All log queries use ORDER BY seq ASC.
//
// # Amounts
//
// Amounts are uint64 and are stored as decimal TEXT, since SQLite integers
// are signed.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
