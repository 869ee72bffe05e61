// Package confidential provides the encrypted-price capability the
// marketplace calls into, and a local reference oracle implementing it.
//
// The marketplace only ever holds Handles. LocalOracle seals prices with
// AES-GCM under a key it alone holds, derives each handle as a MiMC digest
// of the sealed bytes, answers comparison requests by decrypting, and
// delivers the answer as an onComparisonResult transaction from its own
// address. It stands in for a real confidential-compute network in the
// CLI and tests.
package confidential
