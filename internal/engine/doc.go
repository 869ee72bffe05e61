// Package engine executes marketplace transactions.
//
// ARCHITECTURE:
//
// Single-Writer Event Loop:
// Every call, write or read, is queued and handled by one goroutine
// running Run. The marketplace state is only ever touched there, so
// execution is strictly serialized and the log order is the execution
// order.
//
// Transaction Flow:
//  1. Execute enqueues a Call and waits for its receipt
//  2. Run dequeues it and stamps the next block from the Clock
//  3. The market dispatches the method; a rejection becomes a failed
//     receipt with the error code as status
//  4. The tx, receipt and touched rows commit in one SQLite transaction
//  5. If the commit fails the in-memory market is reloaded from the store
//
// The oracle's callback is an ordinary transaction submitted through the
// same path (Engine implements confidential.Submitter).
//
// Replay:
// Replay rebuilds the marketplace from the genesis meta by re-dispatching
// every logged transaction at its logged block. Comparison request ids are
// taken from the logged buy receipts, so no oracle is needed. Each
// receipt id and the final state hash must match what was stored.
package engine
