// Package plan maps payment-provider price identifiers to internal plans
// and decides the credit consequences of plan changes.
//
// The Catalog is a static lookup built once at startup from a Source
// (in-memory or YAML file). Each Plan carries an explicit integer Tier;
// upgrade detection is a plain tier comparison, so the ordering lives in
// configuration rather than in code.
//
//	catalog, err := plan.NewCatalog(ctx, plan.NewFileSource("plans.yml"))
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	change, err := catalog.DetectChange("price_free", "price_pro_month")
//	if change.Upgrade {
//		// post change.CreditDelta and change.ImmediateCredits
//	}
//
// The package holds no mutable state and performs no I/O after
// construction (the file source re-reads only on explicit Load).
package plan
