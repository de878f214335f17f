// Package policy implements the authorization policies that gate registry
// mutations.
//
// Policy is a closed tagged union. OneOf is the only variant today; new
// variants (threshold, weighted) extend the switch in Authorize without
// touching call sites.
package policy

import (
	"fmt"

	"golang.org/x/exp/slices"

	"github.com/pilacorp/go-trust-registry/registry/dto"
	"github.com/pilacorp/go-trust-registry/registry/rerr"
)

type variant uint8

const (
	variantUnset variant = iota
	variantOneOf
)

// Policy decides whether a controller may mutate the object it governs.
// Policies are immutable once attached to a registry.
type Policy struct {
	kind   variant
	owners map[dto.Controller]struct{}
}

// OneOf builds a policy satisfied by any single controller in owners.
// The owner set must be non-empty; order and duplicates are irrelevant.
func OneOf(owners ...dto.Controller) (Policy, error) {
	if len(owners) == 0 {
		return Policy{}, fmt.Errorf("OneOf policy requires at least one owner")
	}

	set := make(map[dto.Controller]struct{}, len(owners))
	for _, o := range owners {
		if o == "" {
			return Policy{}, fmt.Errorf("OneOf policy owner must not be empty")
		}
		set[o] = struct{}{}
	}
	return Policy{kind: variantOneOf, owners: set}, nil
}

// Authorize reports whether acting may mutate the governed object. It is a
// pure function of the policy and its argument; the caller is responsible
// for evaluating it atomically with the mutation it gates.
func (p Policy) Authorize(acting dto.Controller) error {
	switch p.kind {
	case variantOneOf:
		if _, ok := p.owners[acting]; !ok {
			return fmt.Errorf("controller %q: %w", acting, rerr.ErrUnauthorized)
		}
		return nil
	default:
		return fmt.Errorf("unknown policy variant")
	}
}

// Owners returns the owner set in stable sorted order.
func (p Policy) Owners() []dto.Controller {
	out := make([]dto.Controller, 0, len(p.owners))
	for o := range p.owners {
		out = append(out, o)
	}
	slices.Sort(out)
	return out
}

// IsZero reports whether the policy was never initialised.
func (p Policy) IsZero() bool {
	return p.kind == variantUnset
}
