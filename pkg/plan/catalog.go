package plan

import (
	"context"
	"errors"
	"fmt"
	"slices"
)

// Source defines how plans are loaded into the catalog.
type Source interface {
	Load(ctx context.Context) (map[string]Plan, error)
}

type priceRef struct {
	planID   string
	interval BillingInterval
}

// Catalog resolves provider price identifiers to plans. It is immutable
// after construction and safe for concurrent use.
type Catalog struct {
	plans   map[string]Plan
	byPrice map[string]priceRef
}

// NewCatalog loads plans from the source and builds the price index.
// Configuration errors are reported at construction time so a
// misconfigured catalog never reaches the webhook path.
func NewCatalog(ctx context.Context, src Source) (*Catalog, error) {
	if src == nil {
		panic("plan: Source is required")
	}

	plans, err := src.Load(ctx)
	if err != nil {
		return nil, errors.Join(ErrFailedToLoadPlans, err)
	}

	if err := validatePlans(plans); err != nil {
		return nil, err
	}

	byPrice := make(map[string]priceRef)
	for id, p := range plans {
		for interval, priceID := range p.PriceIDs {
			if priceID == "" {
				continue
			}
			if prev, exists := byPrice[priceID]; exists {
				return nil, errors.Join(ErrInvalidPlanConfiguration,
					fmt.Errorf("price ID %s mapped to both plan %s and plan %s", priceID, prev.planID, id))
			}
			byPrice[priceID] = priceRef{planID: id, interval: interval}
		}
	}

	return &Catalog{plans: plans, byPrice: byPrice}, nil
}

// Plan returns the plan with the given ID.
func (c *Catalog) Plan(id string) (Plan, error) {
	p, exists := c.plans[id]
	if !exists {
		return Plan{}, ErrPlanNotFound
	}
	return p, nil
}

// ResolvePrice maps a provider price ID to its plan and billing interval.
func (c *Catalog) ResolvePrice(priceID string) (Plan, BillingInterval, error) {
	ref, exists := c.byPrice[priceID]
	if !exists {
		return Plan{}, IntervalNone, fmt.Errorf("%w: %s", ErrPriceNotFound, priceID)
	}
	return c.plans[ref.planID], ref.interval, nil
}

// Plans returns all plans sorted by tier, then ID. Useful for pricing
// pages and admin tooling.
func (c *Catalog) Plans() []Plan {
	out := make([]Plan, 0, len(c.plans))
	for _, p := range c.plans {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b Plan) int {
		if a.Tier != b.Tier {
			return a.Tier - b.Tier
		}
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})
	return out
}

// validatePlans ensures plan configurations are internally consistent.
// Catches common configuration errors early to prevent runtime issues.
func validatePlans(plans map[string]Plan) error {
	if len(plans) == 0 {
		return errors.Join(ErrInvalidPlanConfiguration, errors.New("no plans configured"))
	}

	for planID, p := range plans {
		if p.ID != planID {
			return errors.Join(ErrInvalidPlanConfiguration,
				fmt.Errorf("plan ID mismatch: map key %s != plan.ID %s", planID, p.ID))
		}
		if p.Tier < 0 {
			return errors.Join(ErrInvalidPlanConfiguration,
				fmt.Errorf("plan %s has negative tier: %d", planID, p.Tier))
		}
		if p.Grants.OnSignup < 0 || p.Grants.OnSubscribe < 0 || p.Grants.Monthly < 0 || p.Grants.Yearly < 0 {
			return errors.Join(ErrInvalidPlanConfiguration,
				fmt.Errorf("plan %s has negative credit grant", planID))
		}
		for interval := range p.PriceIDs {
			if !interval.Valid() {
				return errors.Join(ErrInvalidPlanConfiguration,
					fmt.Errorf("plan %s has unknown billing interval %q", planID, interval))
			}
		}
	}
	return nil
}
