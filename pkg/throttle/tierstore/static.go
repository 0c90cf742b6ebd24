package tierstore

import (
	"context"
	"fmt"

	"github.com/serandules/throttle/pkg/throttle"
)

// Static serves tiers from an in-memory map, typically built from the
// process configuration. Lookups never perform I/O.
type Static struct {
	tiers map[string]*throttle.Tier
}

// NewStatic creates a source over the given tiers, keyed by tier name.
func NewStatic(tiers map[string]*throttle.Tier) *Static {
	if tiers == nil {
		tiers = make(map[string]*throttle.Tier)
	}
	return &Static{tiers: tiers}
}

// Lookup returns the named tier or throttle.ErrTierNotFound.
func (s *Static) Lookup(ctx context.Context, name string) (*throttle.Tier, error) {
	tier, ok := s.tiers[name]
	if !ok {
		return nil, fmt.Errorf("%q: %w", name, throttle.ErrTierNotFound)
	}
	return tier, nil
}
