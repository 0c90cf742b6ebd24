// Package throttle implements distributed, multi-window admission control on
// top of a shared atomic counter store.
//
// Given a request's identity (an access token, an IP address) and a
// classified action, the engine decides whether to admit or reject the
// request against several concurrently enforced calendar windows. Token
// quotas are checked per second, day, and month; IP quotas per second,
// minute, hour, and day. All process instances share one counter store, which
// is the only coordination mechanism: there are no distributed locks.
//
// # Core Types
//
// Tier is the nested limit policy: resource name → action → duration →
// limit, with "*" wildcards at the resource and action levels. An absent
// limit for a duration means that duration is unbounded, which is distinct
// from a limit of zero.
//
// Resolver maps a request's token (or its absence) to the tier and scoping
// id the engine should enforce.
//
// Engine runs one enforcement pass per request and returns a Decision naming
// the first breached window, or an error when the counter store or policy
// store failed. The two never mix: a rejection travels in the Decision, and
// any error is a server-side failure.
//
// # Enforcement Pass
//
// A pass runs in two store transactions. The first reads every window's
// counter; if a limit is already exceeded, the pass rejects without writing.
// The second, per window and in a fixed order, stages a fresh zero-valued
// counter with the window's expiry and renames it onto the real counter key
// only when that key does not yet exist, then increments the counter and
// reads back its time-to-live. Counters observed without an expiry (a
// concurrent pass won the creation race before any expiry was attached) are
// repaired afterwards. Finally the post-increment counts are checked again.
//
// A pass that survives the pre-check always increments, even when the
// post-check rejects it: rejected requests count against the quota.
//
// # Concurrency
//
// The engine holds no local state beyond configuration. Races between
// concurrent passes on the same keys are tolerated by construction: the
// conditional rename guarantees at most one pass creates a counter,
// increments commute, and the expiry repair is idempotent.
package throttle
