// Package engine implements the entity reconciliation engine: it takes
// normalized wire entities and merges them into the persistent object
// graph shared by both network sources.
//
// The public entry points are the per-kind CreateOrMerge functions and
// ApplyBatch. Each call is one synchronous depth-first traversal:
// embedded sub-entities (author, repost/quote targets, poll,
// notification subject) are resolved and persisted child-first, so a
// parent is never visible with a dangling required relationship.
//
// Identity is the composite key (source, domain, remote id). Within one
// call tree a batch cache guarantees that two references to the same
// remote entity resolve to the identical local object; a per-call
// in-flight set breaks cyclic repost/quote references instead of
// recursing on them.
//
// Staleness is gated by the batch fetch timestamp: an incoming response
// only overwrites stored fields when it was fetched strictly later than
// the last applied response, and a stale root short-circuits the merge
// of everything beneath it. Sparse per-viewer flags are the exception:
// they apply whenever the response reports them, because relationship
// state changes without the entity's content changing.
//
// The engine has no internal concurrency and opens no transactions of
// its own. The caller must serialize writes to a given store: run every
// batch for a store on one writer goroutine, the same discipline the
// store backends assume. Each CreateOrMerge call is idempotent by
// remote id, so an abandoned traversal is safe to retry end-to-end.
package engine
