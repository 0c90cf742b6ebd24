// Package config loads, validates, and watches the throttle service
// configuration.
//
// Configuration is a single YAML file with four sections: server, redis,
// throttle, and logging. Load applies documented defaults, then
// THROTTLE_*-prefixed environment overrides, then validation. Watch reloads
// the file on change so the engine kill switch can be flipped without a
// restart.
//
// The configuration is always passed explicitly to the components that need
// it; nothing in this package is read ambiently after startup.
package config
