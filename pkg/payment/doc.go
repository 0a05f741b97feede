// Package payment reconciles at-least-once billing webhooks into a
// consistent view of each subscription's lifecycle and converts
// qualifying events into credit grants.
//
// Control flow for every delivery:
//
//	provider → Provider.ParseWebhook (signature check, normalization)
//	         → Processor idempotency check (audit table, optional cache)
//	         → per-event-type handler (record upsert, ledger grants)
//	         → audit Event insert (closes the idempotency window)
//
// Deliveries may repeat, arrive out of order, or race each other. Three
// mechanisms make processing effectively exactly-once:
//
//   - the uniqueness constraint on the audit table's provider event ID:
//     a constraint violation on the final insert means a concurrent
//     delivery already won, and is treated as success;
//   - record upserts keyed by the provider's subscription/payment ID, so
//     duplicate checkout deliveries collapse into one row;
//   - deterministic ledger reference IDs ("sub_1_inv_2",
//     "upgrade_sub_1_price_a_price_b") that the ledger rejects on reuse.
//
// Failure policy: signature failures reject with 400, storage failures
// return non-2xx so the provider retries, and everything else is logged
// and acknowledged. Credit grants that fail with a storage error are
// handed to an optional CreditRetryQueue rather than failing the
// webhook, because provider-side retry storms cannot repair a partial
// grant.
//
// Two Provider implementations ship with the package: Stripe
// (stripe-go, Stripe-Signature verification, API expansion of checkout
// sessions) and Paddle (paddle-go-sdk webhook verifier).
package payment
