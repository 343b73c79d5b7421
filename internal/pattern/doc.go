// Package pattern implements the Pattern Store.
//
// The store exclusively owns Pattern entities. Its responsibilities are
// structural: it rejects duplicate payloads within a field, assigns
// monotonically increasing ids, runs the field's validation predicate and
// records the resulting status. Impact scores are computed elsewhere (the
// relationship graph) and pushed in through SetImpact.
//
// # Concurrency
//
// Ingestion into different fields proceeds in parallel. Ingestion into the
// same field is serialized behind a per-field lock so the duplicate check
// and the insert happen atomically. The lock wait is bounded; a caller that
// cannot get in receives a *lock.BusyError.
//
// # Identity
//
// Pattern ids come from a logical Clock and are never reused, including ids
// of patterns that were rejected. Duplicate detection compares a
// domain-separated SHA-256 digest of the NFC-normalized payload.
package pattern
