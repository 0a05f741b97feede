package plan

// BillingInterval represents the billing frequency tied to a provider price.
type BillingInterval string

const (
	IntervalNone  BillingInterval = "none" // one-time purchases and free plans
	IntervalMonth BillingInterval = "month"
	IntervalYear  BillingInterval = "year"
)

// Valid reports whether the interval is one of the known values.
func (i BillingInterval) Valid() bool {
	switch i {
	case IntervalNone, IntervalMonth, IntervalYear:
		return true
	}
	return false
}

// CreditGrants describes the credit amounts a plan awards for each
// qualifying business event. Zero means the plan awards nothing for
// that event.
type CreditGrants struct {
	OnSignup    int64 `yaml:"on_signup"`
	OnSubscribe int64 `yaml:"on_subscribe"`
	Monthly     int64 `yaml:"monthly"`
	Yearly      int64 `yaml:"yearly"`
}

// Money represents a monetary amount in the smallest currency unit.
// For example, $10.99 USD would be Amount: 1099, Currency: "USD".
type Money struct {
	Amount   int64  `yaml:"amount"`
	Currency string `yaml:"currency"`
}

// Plan describes a purchasable plan and the credits it awards.
//
// Tier is an explicit integer rank (free=0 < pro=1 < enterprise=2) used to
// distinguish upgrades from downgrades. The comparison is a plain integer
// comparison; there is no implicit ordering anywhere else.
type Plan struct {
	ID          string                     `yaml:"id"`
	Name        string                     `yaml:"name"`
	Description string                     `yaml:"description"`
	Tier        int                        `yaml:"tier"`
	PriceIDs    map[BillingInterval]string `yaml:"prices"` // provider price ID per interval
	Prices      map[BillingInterval]Money  `yaml:"amounts"`
	Grants      CreditGrants               `yaml:"grants"`
	Public      bool                       `yaml:"public"` // available for self-service signup
}

// GrantFor returns the credit amount this plan awards for a billing
// interval: the monthly grant for monthly billing, the yearly grant for
// yearly billing, and the subscribe grant for one-time purchases.
func (p Plan) GrantFor(interval BillingInterval) int64 {
	switch interval {
	case IntervalMonth:
		return p.Grants.Monthly
	case IntervalYear:
		return p.Grants.Yearly
	case IntervalNone:
		return p.Grants.OnSubscribe
	}
	return 0
}
