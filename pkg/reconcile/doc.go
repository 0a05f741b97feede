// Package reconcile is the durable retry path for credit grants that
// failed inside an already-acknowledged webhook. The processor ACKs
// fast to avoid provider retry storms, so a grant that hits a transient
// storage error would otherwise be lost; Queue.Defer persists it and a
// background Worker replays it through the ledger until it lands or
// exhausts its attempts and moves to the dead-letter log.
//
// Replaying is safe because every posting carries the same deterministic
// reference ID the original grant used: the ledger turns a duplicate
// into ErrDuplicateReference, which the worker counts as success.
package reconcile
