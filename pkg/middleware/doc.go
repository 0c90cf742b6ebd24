// Package middleware adapts the throttle engine to net/http handler chains.
//
// PerIP enforces the address-scoped quotas for every request; PerToken
// enforces the token-scoped quotas for one resource, resolving the tier
// through the quota resolver. Authentication itself happens upstream: an
// auth layer stores the request's token with WithToken, and may override the
// default method-to-action classification with WithAction.
//
// A quota rejection maps to 429 Too Many Requests with the breached window
// named in the X-Throttle-Window header; any engine or resolver failure maps
// to 500. The two are never conflated.
package middleware
