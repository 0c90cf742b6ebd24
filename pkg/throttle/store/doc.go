// Package store defines the counter store contract used by the throttle
// engine and provides two implementations of it.
//
// The engine coordinates concurrent admission passes exclusively through the
// store: there is no distributed lock. Everything it needs is expressed as a
// small set of primitive operations (get, set, expire-at, rename-if-absent,
// increment, remaining-ttl) batched into atomic, ordered transactions.
//
// # Backends
//
//   - Redis: the production backend. A transaction maps to a MULTI/EXEC block
//     queued on a TxPipeline, so the server applies the whole batch in
//     submission order with no interleaving from other clients.
//
//   - Memory: an in-process backend with the same transactional semantics,
//     guarded by a single mutex. It is used by unit tests and by
//     single-instance deployments that do not need a shared counter store.
//
// Any backend must guarantee that a transaction is applied in full, in order,
// or not at all; the engine's race tolerance depends on it.
package store
