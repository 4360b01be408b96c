// Package dispatch provides the business boundary for Warden's incident-guard
// dispatch engine. It defines the Service (signal dedup, alert cascade,
// assignment arbitration), the signal policy table, the guard locator, the
// Store interface (persistence with per-incident locking), and domain models.
package dispatch
