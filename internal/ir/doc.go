// Package ir provides the shared vocabulary of the marketplace core.
//
// This package contains value types, canonical encoding and the error
// taxonomy. All other internal packages import ir; ir imports nothing
// internal, so it stays the foundational layer with no import cycles.
//
// Key design constraints:
//   - NO float types anywhere - amounts are uint64 base units, ints are int64
//   - Ordering uses the engine's block number (logical clock), never wall time
//   - All JSON tags use snake_case
//   - Encrypted prices are opaque Handles; nothing in ir can decode them
package ir
