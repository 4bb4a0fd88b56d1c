// Package models defines the core domain models for split payments.
//
// # Models
//
//   - Split: a shared-expense document holding an ordered list of members
//   - Member: one participant's share of a split and its payment state
//   - WebhookEvent: a decoded payment notification from the processor
//   - PaymentOrder: the record written when a payment attempt is started
//
// # Invariants
//
// Member IDs are unique within a split. A member moves from unpaid to paid
// exactly once and never back; the PaymentInfo recorded on that transition is
// never replaced.
//
// Split.Version is the optimistic-concurrency token. Every successful member
// update bumps it, so a writer holding a stale copy of the member list can be
// detected and retried instead of overwriting someone else's update.
package models
