package plan

// Change describes the credit consequences of moving a subscription from
// one provider price to another.
//
// Downgrades and lateral moves (same tier, different interval) report
// Upgrade=false and carry no credit amounts: there is no clawback policy,
// the subscriber simply keeps what was already granted.
type Change struct {
	Upgrade          bool
	CreditDelta      int64 // extra periodic credits owed for the current interval
	ImmediateCredits int64 // one-time bonus from the new plan's subscribe grant
	OldPlan          Plan
	NewPlan          Plan
	Interval         BillingInterval // the new price's billing interval
}

// DetectChange resolves both price IDs and computes the credit
// differential for an upgrade.
//
// The delta compares both plans' grants for the NEW price's interval, so
// a subscriber upgrading mid-cycle is topped up to the new plan's rate
// rather than granted the new plan's face value twice. The delta is
// clamped at zero.
func (c *Catalog) DetectChange(oldPriceID, newPriceID string) (Change, error) {
	oldPlan, _, err := c.ResolvePrice(oldPriceID)
	if err != nil {
		return Change{}, err
	}
	newPlan, interval, err := c.ResolvePrice(newPriceID)
	if err != nil {
		return Change{}, err
	}

	change := Change{
		OldPlan:  oldPlan,
		NewPlan:  newPlan,
		Interval: interval,
	}

	if newPlan.Tier <= oldPlan.Tier {
		return change, nil
	}

	change.Upgrade = true
	if delta := newPlan.GrantFor(interval) - oldPlan.GrantFor(interval); delta > 0 {
		change.CreditDelta = delta
	}
	change.ImmediateCredits = newPlan.Grants.OnSubscribe

	return change, nil
}
