// Package harness runs marketplace scenarios against the real engine.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	market: { fee_bps: 250, policy: threshold, window: 100 }
//	accounts: [seller, buyer]
//	setup:
//	  - call: mint
//	    from: "@owner"
//	    args: { to: "@seller", name: Dawn }
//	flow:
//	  - call: list
//	    from: "@seller"
//	    args: { token_id: 1 }
//	    price: 800
//	  - call: buy
//	    from: "@buyer"
//	    args: { token_id: 1 }
//	    value: 1000
//	    expect:
//	      status: ok
//	      result: { request_id: req-1 }
//	  - resolve: req-1
//	  - answer: { request_id: req-2, satisfied: false }
//	  - advance: 100
//	assertions:
//	  - type: event_contains
//	    event: Sold
//	    args: { buyer: "@buyer" }
//	  - type: final_state
//	    view: ownerOf
//	    args: { token_id: 1 }
//	    expect: { owner: "@buyer" }
//
// The owner, collector and oracle accounts always exist. Strings starting
// with "@" name accounts. A step's price is sealed by the local oracle and
// passed as the list price handle. resolve lets the oracle evaluate a
// request against the sealed price; answer scripts the callback instead.
// advance skips blocks, which is how settlement windows expire.
//
// # Assertion Types
//
//   - event_contains: an event with matching args was emitted
//   - event_order: events were first emitted in the specified order
//   - event_count: an event was emitted exactly N times
//   - final_state: a view returns the expected fields
//
// # Deterministic Testing
//
// Every scenario runs on a fresh in-memory database with fixed account
// addresses, request ids req-1, req-2, ... and a clock starting at block 0.
// Traces render addresses as aliases and prices as "sealed:<amount>", so
// the same scenario always produces the same golden file. After the
// assertions the harness replays the log from genesis; a receipt or state
// hash that differs fails the scenario.
package harness
