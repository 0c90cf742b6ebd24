package throttle

import (
	"strings"
	"time"
)

// Window orders are fixed: they drive transaction layout and decide which
// breached window a rejection reports first.
var (
	tokenDurations = []Duration{Second, Day, Month}
	ipDurations    = []Duration{Second, Minute, Hour, Day}
)

// counterKey derives the store key for one window:
// <namespace>:<scope parts...>:<action>:<duration>. All concurrent passes for
// the same subject, action, and duration address the same key.
func counterKey(namespace string, parts []string, action Action, d Duration) string {
	elems := make([]string, 0, len(parts)+3)
	elems = append(elems, namespace)
	elems = append(elems, parts...)
	elems = append(elems, string(action), string(d))
	return strings.Join(elems, ":")
}

// stagingKey derives the per-subject scratch key: the counter key template
// with an empty duration component. One enforcement pass recreates and
// consumes it once per window.
func stagingKey(namespace string, parts []string, action Action) string {
	return counterKey(namespace, parts, action, "")
}

// buildRules produces the ordered window rules for one pass. Durations with
// no configured limit still produce a rule (their counters are maintained);
// they just can never reject.
func buildRules(namespace string, parts []string, action Action, durations []Duration, limits Limits, now time.Time) []*rule {
	rules := make([]*rule, 0, len(durations))
	for _, d := range durations {
		r := &rule{
			duration: d,
			key:      counterKey(namespace, parts, action, d),
			expiry:   windowExpiry(now, d),
		}
		if n, ok := limits[d]; ok {
			r.limit = n
			r.bounded = true
		}
		rules = append(rules, r)
	}
	return rules
}

// windowExpiry returns the instant one second past the end of the calendar
// window containing now, in UTC, so a counter expires strictly after the
// window it counts.
func windowExpiry(now time.Time, d Duration) time.Time {
	now = now.UTC()
	switch d {
	case Minute:
		return now.Truncate(time.Minute).Add(time.Minute)
	case Hour:
		return now.Truncate(time.Hour).Add(time.Hour)
	case Day:
		y, m, dd := now.Date()
		return time.Date(y, m, dd, 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
	case Month:
		y, m, _ := now.Date()
		return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
	default: // Second
		return now.Truncate(time.Second).Add(time.Second)
	}
}
