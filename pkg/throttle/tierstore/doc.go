// Package tierstore provides tier policy sources for the throttle resolver.
//
// Static serves tiers defined inline in the process configuration. SQLite
// serves tiers from a local policy database, for deployments that manage
// quota classes outside the config file. Both satisfy throttle.TierSource.
package tierstore
