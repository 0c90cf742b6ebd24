package throttle

import (
	"context"
	"fmt"
)

// ResourceWildcard matches any resource name in a limit policy.
const ResourceWildcard = "*"

// AnonymousID is the scoping id shared by all requests that carry no
// authenticated token. Their counters aggregate under one subject.
const AnonymousID = "anonymous"

// Limits maps a duration to its request limit. A duration absent from the
// map is unbounded; an explicit zero admits nothing. The two are distinct on
// purpose.
type Limits map[Duration]int64

// ActionLimits maps an action (or ActionWildcard) to its duration limits.
type ActionLimits map[Action]Limits

// ResourceLimits maps a resource name (or ResourceWildcard) to its action
// limits.
type ResourceLimits map[string]ActionLimits

// Tier is the quota policy attached to a class of tokens. Lookups fall back
// from the exact resource name to the resource wildcard, then from the exact
// action to the action wildcard; when nothing matches, every duration is
// unbounded.
type Tier struct {
	// Name identifies the tier ("free", "basic", ...).
	Name string

	// Limits holds the token-scoped quota table.
	Limits ResourceLimits
}

// limitsFor resolves the duration limits for a resource/action pair,
// honoring wildcard fallbacks. A nil return means no limits apply.
func (t *Tier) limitsFor(resource string, action Action) Limits {
	if t == nil {
		return nil
	}
	al, ok := t.Limits[resource]
	if !ok {
		al = t.Limits[ResourceWildcard]
	}
	l, ok := al[action]
	if !ok {
		l = al[ActionWildcard]
	}
	return l
}

// IPLimits maps an action (or ActionWildcard) to the duration limits applied
// to every client address, regardless of authentication.
type IPLimits map[Action]Limits

// limitsFor resolves the duration limits for an action, falling back to the
// action wildcard.
func (l IPLimits) limitsFor(action Action) Limits {
	d, ok := l[action]
	if !ok {
		d = l[ActionWildcard]
	}
	return d
}

// DefaultIPLimits returns the built-in per-address quota table. Deployments
// override it through configuration.
func DefaultIPLimits() IPLimits {
	return IPLimits{
		ActionFind: Limits{
			Second: 10,
			Minute: 500,
			Hour:   5000,
			Day:    50000,
		},
		ActionCreate: Limits{
			Second: 10,
			Minute: 100,
			Hour:   500,
			Day:    1000,
		},
	}
}

// Token is a request's authenticated identity. Tier is populated by the
// authentication layer when the token's quota class is already known; the
// resolver then performs no I/O.
type Token struct {
	// ID is the opaque token identifier used to scope counter keys.
	ID string

	// Tier is the token's quota policy, when resolved upstream.
	Tier *Tier
}

// TierSource looks up a tier policy by name. Implementations live in
// pkg/throttle/tierstore.
type TierSource interface {
	Lookup(ctx context.Context, name string) (*Tier, error)
}

// Resolver maps a request's token, or its absence, to the tier and scoping
// id the engine enforces.
type Resolver struct {
	source      TierSource
	defaultTier string
}

// NewResolver creates a resolver that serves defaultTier from source for
// unauthenticated requests.
func NewResolver(source TierSource, defaultTier string) *Resolver {
	return &Resolver{source: source, defaultTier: defaultTier}
}

// Resolve returns the applicable tier and the scoping id. Authenticated
// tokens that already carry their tier resolve without I/O; everything else
// is served the default tier under the shared anonymous scope. A failed
// lookup is a server-side failure, never an admission decision.
func (r *Resolver) Resolve(ctx context.Context, token *Token) (*Tier, string, error) {
	if token != nil && token.Tier != nil {
		return token.Tier, token.ID, nil
	}
	tier, err := r.source.Lookup(ctx, r.defaultTier)
	if err != nil {
		return nil, "", fmt.Errorf("resolving default tier %q: %w", r.defaultTier, err)
	}
	return tier, AnonymousID, nil
}
