package plan_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/creditkit/creditkit/pkg/plan"
)

func writePlansFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "plans.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestFileSource_Load(t *testing.T) {
	t.Parallel()

	t.Run("loads catalog from yaml", func(t *testing.T) {
		t.Parallel()

		path := writePlansFile(t, `
plans:
  - id: free
    name: Free
    tier: 0
    grants:
      on_signup: 100
      monthly: 100
  - id: pro
    name: Pro
    tier: 1
    prices:
      month: price_pro_monthly
      year: price_pro_yearly
    amounts:
      month: { amount: 1900, currency: USD }
    grants:
      on_subscribe: 500
      monthly: 1000
      yearly: 12000
`)

		catalog, err := plan.NewCatalog(context.Background(), plan.NewFileSource(path))
		require.NoError(t, err)

		p, interval, err := catalog.ResolvePrice("price_pro_yearly")
		require.NoError(t, err)
		assert.Equal(t, "pro", p.ID)
		assert.Equal(t, 1, p.Tier)
		assert.Equal(t, plan.IntervalYear, interval)
		assert.Equal(t, int64(500), p.Grants.OnSubscribe)
		assert.Equal(t, int64(1900), p.Prices[plan.IntervalMonth].Amount)

		free, err := catalog.Plan("free")
		require.NoError(t, err)
		assert.Equal(t, int64(100), free.Grants.OnSignup)
	})

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()

		src := plan.NewFileSource(filepath.Join(t.TempDir(), "nope.yml"))
		_, err := src.Load(context.Background())
		assert.ErrorIs(t, err, plan.ErrFailedToLoadPlans)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		t.Parallel()

		src := plan.NewFileSource(writePlansFile(t, "plans: [whoops"))
		_, err := src.Load(context.Background())
		assert.ErrorIs(t, err, plan.ErrFailedToLoadPlans)
	})

	t.Run("duplicate plan id", func(t *testing.T) {
		t.Parallel()

		src := plan.NewFileSource(writePlansFile(t, `
plans:
  - id: pro
    tier: 1
  - id: pro
    tier: 2
`))
		_, err := src.Load(context.Background())
		assert.ErrorIs(t, err, plan.ErrInvalidPlanConfiguration)
	})

	t.Run("plan without id", func(t *testing.T) {
		t.Parallel()

		src := plan.NewFileSource(writePlansFile(t, `
plans:
  - name: Mystery
    tier: 1
`))
		_, err := src.Load(context.Background())
		assert.ErrorIs(t, err, plan.ErrInvalidPlanConfiguration)
	})
}
