package throttle

import (
	"errors"
	"time"
)

// Duration names one calendar window. Windows are aligned to UTC calendar
// boundaries, not to the instant of the first request.
type Duration string

const (
	// Second is the one-second window.
	Second Duration = "second"

	// Minute is the one-minute window.
	Minute Duration = "minute"

	// Hour is the one-hour window.
	Hour Duration = "hour"

	// Day is the UTC calendar day window.
	Day Duration = "day"

	// Month is the UTC calendar month window.
	Month Duration = "month"
)

// Errors returned by policy resolution and configuration.
var (
	// ErrTierNotFound is returned by a tier source when no tier exists under
	// the requested name.
	ErrTierNotFound = errors.New("tier not found")
)

// Decision is the outcome of one enforcement pass. Rejections are values,
// not errors; only store or policy failures travel the error path, so
// callers can never mistake a quota rejection for a backend failure.
type Decision struct {
	// Allowed indicates the request may proceed.
	Allowed bool

	// Duration names the first breached window when Allowed is false,
	// following the fixed per-scope window order.
	Duration Duration

	// Limit is the configured limit of the breached window.
	Limit int64

	// Count is the observed count that exceeded the limit.
	Count int64
}

// rule is the ephemeral per-window state of one enforcement pass.
type rule struct {
	duration Duration
	key      string
	limit    int64
	bounded  bool // false: this window carries no limit and never rejects
	expiry   time.Time
	count    int64
	ttl      int64 // remaining ttl observed during commit, store sentinels included
}
