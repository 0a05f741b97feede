package plan_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/creditkit/creditkit/pkg/plan"
)

func testPlans() []plan.Plan {
	return []plan.Plan{
		{
			ID:   "free",
			Name: "Free",
			Tier: 0,
			Grants: plan.CreditGrants{
				OnSignup: 100,
				Monthly:  100,
			},
			Public: true,
		},
		{
			ID:   "pro",
			Name: "Pro",
			Tier: 1,
			PriceIDs: map[plan.BillingInterval]string{
				plan.IntervalMonth: "price_pro_monthly",
				plan.IntervalYear:  "price_pro_yearly",
			},
			Grants: plan.CreditGrants{
				OnSubscribe: 500,
				Monthly:     1000,
				Yearly:      12000,
			},
			Public: true,
		},
		{
			ID:   "business",
			Name: "Business",
			Tier: 2,
			PriceIDs: map[plan.BillingInterval]string{
				plan.IntervalMonth: "price_business_monthly",
				plan.IntervalYear:  "price_business_yearly",
			},
			Grants: plan.CreditGrants{
				OnSubscribe: 2000,
				Monthly:     6000,
				Yearly:      72000,
			},
			Public: true,
		},
	}
}

func newTestCatalog(t *testing.T) *plan.Catalog {
	t.Helper()

	catalog, err := plan.NewCatalog(context.Background(), plan.NewInMemSource(testPlans()...))
	require.NoError(t, err)
	return catalog
}

// emptySource stands in for a misconfigured source with no plans.
type emptySource struct{}

func (emptySource) Load(context.Context) (map[string]plan.Plan, error) {
	return map[string]plan.Plan{}, nil
}

func TestNewCatalog(t *testing.T) {
	t.Parallel()

	t.Run("panics on nil source", func(t *testing.T) {
		t.Parallel()

		assert.Panics(t, func() {
			_, _ = plan.NewCatalog(context.Background(), nil)
		})
	})

	t.Run("rejects empty catalog", func(t *testing.T) {
		t.Parallel()

		_, err := plan.NewCatalog(context.Background(), emptySource{})
		assert.ErrorIs(t, err, plan.ErrInvalidPlanConfiguration)
	})

	t.Run("rejects duplicate price mapping", func(t *testing.T) {
		t.Parallel()

		plans := testPlans()
		plans[2].PriceIDs = map[plan.BillingInterval]string{plan.IntervalMonth: "price_pro_monthly"}

		_, err := plan.NewCatalog(context.Background(), plan.NewInMemSource(plans...))
		assert.ErrorIs(t, err, plan.ErrInvalidPlanConfiguration)
	})

	t.Run("rejects negative grants", func(t *testing.T) {
		t.Parallel()

		plans := testPlans()
		plans[0].Grants.Monthly = -1

		_, err := plan.NewCatalog(context.Background(), plan.NewInMemSource(plans...))
		assert.ErrorIs(t, err, plan.ErrInvalidPlanConfiguration)
	})

	t.Run("source failure wrapped", func(t *testing.T) {
		t.Parallel()

		_, err := plan.NewCatalog(context.Background(), failingSource{})
		assert.ErrorIs(t, err, plan.ErrFailedToLoadPlans)
	})
}

type failingSource struct{}

func (failingSource) Load(context.Context) (map[string]plan.Plan, error) {
	return nil, errors.New("boom")
}

func TestCatalog_ResolvePrice(t *testing.T) {
	t.Parallel()

	catalog := newTestCatalog(t)

	p, interval, err := catalog.ResolvePrice("price_pro_monthly")
	require.NoError(t, err)
	assert.Equal(t, "pro", p.ID)
	assert.Equal(t, plan.IntervalMonth, interval)

	p, interval, err = catalog.ResolvePrice("price_business_yearly")
	require.NoError(t, err)
	assert.Equal(t, "business", p.ID)
	assert.Equal(t, plan.IntervalYear, interval)

	_, _, err = catalog.ResolvePrice("price_unknown")
	assert.ErrorIs(t, err, plan.ErrPriceNotFound)
}

func TestCatalog_Plans(t *testing.T) {
	t.Parallel()

	catalog := newTestCatalog(t)

	plans := catalog.Plans()
	require.Len(t, plans, 3)
	assert.Equal(t, "free", plans[0].ID)
	assert.Equal(t, "pro", plans[1].ID)
	assert.Equal(t, "business", plans[2].ID)
}

func TestPlan_GrantFor(t *testing.T) {
	t.Parallel()

	p := plan.Plan{Grants: plan.CreditGrants{OnSubscribe: 500, Monthly: 1000, Yearly: 12000}}
	assert.Equal(t, int64(1000), p.GrantFor(plan.IntervalMonth))
	assert.Equal(t, int64(12000), p.GrantFor(plan.IntervalYear))
	assert.Equal(t, int64(500), p.GrantFor(plan.IntervalNone))
}

func TestCatalog_DetectChange(t *testing.T) {
	t.Parallel()

	catalog := newTestCatalog(t)

	t.Run("upgrade grants differential and subscribe bonus", func(t *testing.T) {
		t.Parallel()

		change, err := catalog.DetectChange("price_pro_monthly", "price_business_monthly")
		require.NoError(t, err)
		assert.True(t, change.Upgrade)
		assert.Equal(t, int64(5000), change.CreditDelta, "business monthly 6000 minus pro monthly 1000")
		assert.Equal(t, int64(2000), change.ImmediateCredits)
		assert.Equal(t, "pro", change.OldPlan.ID)
		assert.Equal(t, "business", change.NewPlan.ID)
		assert.Equal(t, plan.IntervalMonth, change.Interval)
	})

	t.Run("downgrade is not an upgrade and claws nothing back", func(t *testing.T) {
		t.Parallel()

		change, err := catalog.DetectChange("price_business_monthly", "price_pro_monthly")
		require.NoError(t, err)
		assert.False(t, change.Upgrade)
		assert.Zero(t, change.CreditDelta)
		assert.Zero(t, change.ImmediateCredits)
	})

	t.Run("interval switch within same tier is lateral", func(t *testing.T) {
		t.Parallel()

		change, err := catalog.DetectChange("price_pro_monthly", "price_pro_yearly")
		require.NoError(t, err)
		assert.False(t, change.Upgrade)
		assert.Zero(t, change.CreditDelta)
	})

	t.Run("upgrade delta follows the new interval", func(t *testing.T) {
		t.Parallel()

		change, err := catalog.DetectChange("price_pro_monthly", "price_business_yearly")
		require.NoError(t, err)
		assert.True(t, change.Upgrade)
		assert.Equal(t, int64(60000), change.CreditDelta, "yearly grants compared: 72000 minus 12000")
		assert.Equal(t, plan.IntervalYear, change.Interval)
	})

	t.Run("upgrade from a zero-grant tier", func(t *testing.T) {
		t.Parallel()

		c, err := plan.NewCatalog(context.Background(), plan.NewInMemSource(
			plan.Plan{
				ID:       "free",
				Tier:     0,
				PriceIDs: map[plan.BillingInterval]string{plan.IntervalMonth: "price_free_monthly"},
			},
			plan.Plan{
				ID:       "pro",
				Tier:     1,
				PriceIDs: map[plan.BillingInterval]string{plan.IntervalMonth: "price_pro_monthly"},
				Grants:   plan.CreditGrants{Monthly: 500},
			},
		))
		require.NoError(t, err)

		change, err := c.DetectChange("price_free_monthly", "price_pro_monthly")
		require.NoError(t, err)
		assert.True(t, change.Upgrade)
		assert.Equal(t, int64(500), change.CreditDelta)
		assert.Zero(t, change.ImmediateCredits)
	})

	t.Run("unknown price", func(t *testing.T) {
		t.Parallel()

		_, err := catalog.DetectChange("price_unknown", "price_pro_monthly")
		assert.ErrorIs(t, err, plan.ErrPriceNotFound)

		_, err = catalog.DetectChange("price_pro_monthly", "price_unknown")
		assert.ErrorIs(t, err, plan.ErrPriceNotFound)
	})
}
