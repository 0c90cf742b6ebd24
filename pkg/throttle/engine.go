package throttle

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/serandules/throttle/pkg/throttle/store"
)

// Operations queued per window rule during the commit transaction, and the
// offsets of the increment and ttl replies within each group.
const (
	opsPerRule = 5
	incrOffset = 3
	ttlOffset  = 4
)

// Config configures an Engine. Store is required; everything else has a
// default.
type Config struct {
	// Store is the shared counter store.
	Store store.Store

	// Namespace prefixes every counter key. Default: "throttle".
	Namespace string

	// IPLimits is the per-address quota table. Default: DefaultIPLimits().
	IPLimits IPLimits

	// Disabled is the initial kill-switch state. A disabled engine admits
	// everything and never touches the store. Default: false.
	Disabled bool

	// Logger receives per-pass diagnostics. Default: slog.Default().
	Logger *slog.Logger

	// Metrics, when non-nil, receives counters and latencies.
	Metrics *Metrics

	// Now overrides the clock. Tests use it to pin window boundaries.
	Now func() time.Time
}

// Engine runs enforcement passes. It is safe for concurrent use: it holds no
// mutable state beyond the kill switch, and all coordination between passes
// happens inside the counter store.
type Engine struct {
	store    store.Store
	ns       string
	ipLimits IPLimits
	logger   *slog.Logger
	metrics  *Metrics
	disabled atomic.Bool
	now      func() time.Time
}

// NewEngine creates an engine from cfg, applying defaults.
func NewEngine(cfg Config) *Engine {
	if cfg.Namespace == "" {
		cfg.Namespace = "throttle"
	}
	if cfg.IPLimits == nil {
		cfg.IPLimits = DefaultIPLimits()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	e := &Engine{
		store:    cfg.Store,
		ns:       cfg.Namespace,
		ipLimits: cfg.IPLimits,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
		now:      cfg.Now,
	}
	e.disabled.Store(cfg.Disabled)
	return e
}

// SetDisabled flips the kill switch at runtime. The configuration watcher
// calls this when the config file changes.
func (e *Engine) SetDisabled(disabled bool) {
	if e.disabled.Swap(disabled) != disabled {
		e.logger.Info("throttle kill switch changed", "disabled", disabled)
	}
}

// Disabled reports the current kill-switch state.
func (e *Engine) Disabled() bool {
	return e.disabled.Load()
}

// CheckToken enforces the token-scoped quotas (second, day, month windows)
// for one request against resource under tier. The scoping id comes from
// Resolver.Resolve.
func (e *Engine) CheckToken(ctx context.Context, tier *Tier, id, resource string, action Action) (Decision, error) {
	if e.disabled.Load() {
		return Decision{Allowed: true}, nil
	}
	now := e.now().UTC()
	parts := []string{id, resource}
	rules := buildRules(e.ns, parts, action, tokenDurations, tier.limitsFor(resource, action), now)
	dec, err := e.enforce(ctx, stagingKey(e.ns, parts, action), rules)
	e.observe("token", dec, err)
	return dec, err
}

// CheckIP enforces the address-scoped quotas (second, minute, hour, day
// windows) for one request from ip.
func (e *Engine) CheckIP(ctx context.Context, ip string, action Action) (Decision, error) {
	if e.disabled.Load() {
		return Decision{Allowed: true}, nil
	}
	now := e.now().UTC()
	parts := []string{ip}
	rules := buildRules(e.ns, parts, action, ipDurations, e.ipLimits.limitsFor(action), now)
	dec, err := e.enforce(ctx, stagingKey(e.ns, parts, action), rules)
	e.observe("ip", dec, err)
	return dec, err
}

// enforce runs one two-phase pass over rules. The pass either admits,
// rejects naming the first breached window, or fails with a store error.
func (e *Engine) enforce(ctx context.Context, staging string, rules []*rule) (Decision, error) {
	// Pre-check: read every window's counter in one transaction. A subject
	// already over quota is rejected here without a single write.
	tx := e.store.Tx()
	for _, r := range rules {
		tx.Get(r.key)
	}
	results, err := e.exec(ctx, tx, "pre_check")
	if err != nil {
		return Decision{}, fmt.Errorf("pre-check read: %w", err)
	}
	for i, r := range rules {
		if results[i].OK {
			r.count = results[i].Value
		}
	}
	if dec, breached := firstBreach(rules); breached {
		return dec, nil
	}

	// Commit: for each window, in order, stage a zero counter with the
	// window's expiry, rename it onto the counter key only if that key does
	// not exist yet, then increment and read back the ttl. The staging key
	// is recreated and consumed once per window within this same batch, so
	// each window's rename completes before the next window's staging step
	// begins.
	tx = e.store.Tx()
	for _, r := range rules {
		tx.Set(staging, 0)
		tx.ExpireAt(staging, r.expiry)
		tx.RenameNX(staging, r.key)
		tx.Incr(r.key)
		tx.TTL(r.key)
	}
	results, err = e.exec(ctx, tx, "commit")
	if err != nil {
		return Decision{}, fmt.Errorf("commit: %w", err)
	}
	for i, r := range rules {
		r.count = results[i*opsPerRule+incrOffset].Value
		r.ttl = results[i*opsPerRule+ttlOffset].Value
	}

	// A counter observed without an expiry lost the creation race: a
	// concurrent pass incremented the key before any expiry was attached.
	// Attach this pass's expiry so the key cannot outlive its window. The
	// repairs are order-independent and idempotent, so they run
	// concurrently; any failure fails the pass.
	g, gctx := errgroup.WithContext(ctx)
	for _, r := range rules {
		if r.ttl != store.TTLNone {
			continue
		}
		key, at, d := r.key, r.expiry, r.duration
		g.Go(func() error {
			if err := e.store.ExpireAt(gctx, key, at); err != nil {
				return fmt.Errorf("repairing expiry of %s window: %w", d, err)
			}
			if e.metrics != nil {
				e.metrics.RecordRepair()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Decision{}, err
	}

	// Post-check against the post-increment counts. A pass rejected here
	// has already counted against the quota; that is deliberate.
	if dec, breached := firstBreach(rules); breached {
		return dec, nil
	}
	return Decision{Allowed: true}, nil
}

// exec runs a transaction and times it.
func (e *Engine) exec(ctx context.Context, tx store.Tx, phase string) ([]store.Result, error) {
	start := time.Now()
	results, err := tx.Exec(ctx)
	if e.metrics != nil {
		e.metrics.ObserveStorePhase(phase, time.Since(start).Seconds())
	}
	return results, err
}

// firstBreach evaluates the shared breach rule: the earliest window in the
// fixed order whose count exceeds its limit wins. Unbounded windows never
// reject.
func firstBreach(rules []*rule) (Decision, bool) {
	for _, r := range rules {
		if r.bounded && r.count > r.limit {
			return Decision{
				Duration: r.duration,
				Limit:    r.limit,
				Count:    r.count,
			}, true
		}
	}
	return Decision{}, false
}

// observe emits metrics and logs for a finished pass.
func (e *Engine) observe(scope string, dec Decision, err error) {
	if err != nil {
		if e.metrics != nil {
			e.metrics.RecordCheck(scope, "error")
		}
		e.logger.Error("throttle check failed", "scope", scope, "error", err)
		return
	}
	if dec.Allowed {
		if e.metrics != nil {
			e.metrics.RecordCheck(scope, "allowed")
		}
		return
	}
	if e.metrics != nil {
		e.metrics.RecordCheck(scope, "rejected")
		e.metrics.RecordRejection(string(dec.Duration))
	}
	e.logger.Debug("throttle rejection",
		"scope", scope,
		"window", string(dec.Duration),
		"limit", dec.Limit,
		"count", dec.Count)
}
